package normalize

import "fmt"

// ParseError reports a message that could not be turned into events.
// Path locates the offending value ("$" is the message itself, "$[1]" its
// second element) and Shape describes it.
type ParseError struct {
	Path  string
	Shape string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Shape != "" {
		return fmt.Sprintf("parse %s (%s): %v", e.Path, e.Shape, e.Err)
	}
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
