// Package normalize turns raw queue messages into timeline events.
//
// A message may be a single event object, a string holding the JSON encoding
// of one, an array mixing both, or null. Each message is classified once into
// a Shape and then converted by the function for that shape.
package normalize

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alfredjeanlab/livetimeline/internal/model"
)

// maxStringDepth bounds how many layers of JSON-in-a-string are unwrapped.
const maxStringDepth = 8

// Normalize parses one raw message. A null or empty message yields no events
// and no error. now is used for timestamps that fail to parse.
func Normalize(raw []byte, now time.Time) ([]*model.Event, error) {
	return normalize(raw, now, "$", 0)
}

func normalize(raw []byte, now time.Time, path string, depth int) ([]*model.Event, error) {
	shape, err := Classify(raw)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	switch shape.Kind {
	case KindNull:
		return nil, nil
	case KindObject:
		e, err := fromObject(shape.Object, now)
		if err != nil {
			return nil, &ParseError{Path: path, Shape: "object", Err: err}
		}
		return []*model.Event{e}, nil
	case KindString:
		return fromString(shape.String, now, path, depth)
	case KindArray:
		return fromArray(shape.Array, now, path, depth)
	default:
		return nil, &ParseError{Path: path, Shape: describe(shape.Raw), Err: errors.New("unsupported message shape")}
	}
}

// fromString unwraps a JSON-encoded payload and normalizes its content.
func fromString(s string, now time.Time, path string, depth int) ([]*model.Event, error) {
	if depth >= maxStringDepth {
		return nil, &ParseError{Path: path, Shape: "string", Err: errors.New("too many nested encodings")}
	}
	if !json.Valid([]byte(s)) {
		return nil, &ParseError{Path: path, Shape: "string", Err: fmt.Errorf("content is not JSON: %q", truncate([]byte(s)))}
	}
	return normalize([]byte(s), now, path, depth+1)
}

// fromArray flattens the elements in order. Elements must be event objects or
// strings encoding one.
func fromArray(items []json.RawMessage, now time.Time, path string, depth int) ([]*model.Event, error) {
	var out []*model.Event
	for i, item := range items {
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		shape, err := Classify(item)
		if err != nil {
			return nil, &ParseError{Path: elemPath, Err: err}
		}

		switch shape.Kind {
		case KindObject:
			e, err := fromObject(shape.Object, now)
			if err != nil {
				return nil, &ParseError{Path: elemPath, Shape: "object", Err: err}
			}
			out = append(out, e)
		case KindString:
			e, err := fromEncodedObject(shape.String, now)
			if err != nil {
				return nil, &ParseError{Path: elemPath, Shape: "string", Err: err}
			}
			out = append(out, e)
		default:
			return nil, &ParseError{Path: elemPath, Shape: describe(item), Err: errors.New("array element must be an object or a string")}
		}
	}
	return out, nil
}

// fromEncodedObject decodes an array element string, which must encode a
// single event object.
func fromEncodedObject(s string, now time.Time) (*model.Event, error) {
	shape, err := Classify([]byte(s))
	if err != nil {
		return nil, err
	}
	if shape.Kind != KindObject {
		return nil, fmt.Errorf("encoded %s, want object", shape.Kind)
	}
	return fromObject(shape.Object, now)
}

// fromObject maps the wire object onto an Event. Required fields must be
// present strings; body and category default to "".
func fromObject(obj map[string]json.RawMessage, now time.Time) (*model.Event, error) {
	var (
		e   model.Event
		err error
	)
	if e.ID, err = requiredString(obj, "id"); err != nil {
		return nil, err
	}
	if e.AgentID, err = requiredString(obj, "agent_id"); err != nil {
		return nil, err
	}
	if e.TaskID, err = requiredString(obj, "task_id"); err != nil {
		return nil, err
	}
	if e.Title, err = requiredString(obj, "title"); err != nil {
		return nil, err
	}
	if e.Body, err = optionalString(obj, "body"); err != nil {
		return nil, err
	}
	if e.Category, err = optionalString(obj, "category"); err != nil {
		return nil, err
	}

	status, err := requiredString(obj, "status")
	if err != nil {
		return nil, err
	}
	if e.Status, err = model.ParseStatus(status); err != nil {
		return nil, err
	}

	ts, err := requiredString(obj, "timestamp")
	if err != nil {
		return nil, err
	}
	e.Timestamp = ParseTimestamp(ts, now)
	return &e, nil
}

func requiredString(obj map[string]json.RawMessage, key string) (string, error) {
	raw, ok := obj[key]
	if !ok || string(raw) == "null" {
		return "", fmt.Errorf("missing required field %q", key)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("field %q: want string, got %s", key, describe(raw))
	}
	return s, nil
}

func optionalString(obj map[string]json.RawMessage, key string) (string, error) {
	raw, ok := obj[key]
	if !ok || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("field %q: want string, got %s", key, describe(raw))
	}
	return s, nil
}
