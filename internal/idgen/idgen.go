// Package idgen generates the identifiers `timeline publish` stamps on
// outgoing events, backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the two kinds of producer identifiers. An event ID is unique
// per message; a task ID names the logical task that later updates reuse.
const (
	EventPrefix = "evt-"
	TaskPrefix  = "task-"
)

// Alphabet defines the character set used for the random portion of the ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Length is the number of random characters generated (excluding the prefix).
const Length = 12

// EventID returns a new message identifier.
func EventID() (string, error) {
	return withPrefix(EventPrefix)
}

// TaskID returns a new task identifier for a task with no prior updates.
func TaskID() (string, error) {
	return withPrefix(TaskPrefix)
}

func withPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}
