package session

import (
	"encoding/json"
	"fmt"
)

// AttributeCodec serializes attribute values for backends that store bytes.
type AttributeCodec interface {
	Encode(value any) ([]byte, error)
	Decode(data []byte) (any, error)
}

// JSONCodec stores attribute values as JSON. Decoded values are generic
// (maps, float64, strings); use Attr to convert them back to concrete types.
type JSONCodec struct{}

// Encode implements AttributeCodec.
func (JSONCodec) Encode(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	return data, nil
}

// Decode implements AttributeCodec.
func (JSONCodec) Decode(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	return v, nil
}

// Attr returns the attribute stored under name converted to T.
// Values that came back from storage in generic form are converted through JSON.
func Attr[T any](s *Session, name string) (T, bool) {
	var zero T
	v, ok := s.Attribute(name)
	if !ok {
		return zero, false
	}
	typed, err := convert[T](v)
	if err != nil {
		return zero, false
	}
	return typed, true
}

func convert[T any](v any) (T, error) {
	var zero T

	if typed, ok := v.(T); ok {
		return typed, nil
	}

	var data []byte
	switch raw := v.(type) {
	case []byte:
		data = raw
	case json.RawMessage:
		data = raw
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return zero, fmt.Errorf("%w: %v", ErrCodec, err)
		}
		data = b
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	return out, nil
}
