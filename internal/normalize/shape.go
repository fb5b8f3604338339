package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Kind tags the JSON shape of a raw queue message.
type Kind int

const (
	KindNull Kind = iota
	KindObject
	KindString
	KindArray
	KindOther
)

// String returns the name used in error messages.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindObject:
		return "object"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	default:
		return "other"
	}
}

// Shape is a classified raw message. Exactly one payload field is set,
// matching Kind.
type Shape struct {
	Kind   Kind
	Object map[string]json.RawMessage
	String string
	Array  []json.RawMessage
	Raw    json.RawMessage // original bytes for KindOther
}

// Classify decodes the outermost JSON value of raw and tags its shape.
// Empty or whitespace-only input is KindNull.
func Classify(raw []byte) (Shape, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Shape{Kind: KindNull}, nil
	}

	switch trimmed[0] {
	case 'n':
		if string(trimmed) != "null" {
			return Shape{}, fmt.Errorf("invalid JSON literal %q", truncate(trimmed))
		}
		return Shape{Kind: KindNull}, nil
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return Shape{}, fmt.Errorf("decoding object: %w", err)
		}
		return Shape{Kind: KindObject, Object: obj}, nil
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return Shape{}, fmt.Errorf("decoding string: %w", err)
		}
		return Shape{Kind: KindString, String: s}, nil
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return Shape{}, fmt.Errorf("decoding array: %w", err)
		}
		return Shape{Kind: KindArray, Array: arr}, nil
	}

	if !json.Valid(trimmed) {
		return Shape{}, fmt.Errorf("invalid JSON %q", truncate(trimmed))
	}
	return Shape{Kind: KindOther, Raw: json.RawMessage(trimmed)}, nil
}

// describe names a JSON value for error messages, e.g. "number 42".
func describe(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "empty value"
	}
	switch trimmed[0] {
	case 't', 'f':
		return "boolean " + string(trimmed)
	case 'n':
		return "null"
	case '{':
		return "object"
	case '[':
		return "array"
	case '"':
		return "string"
	}
	return "number " + truncate(trimmed)
}

func truncate(b []byte) string {
	const max = 100
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
