package field

import (
	"encoding/json"
	"errors"
)

var errMalformedPayload = errors.New("payload is neither an object nor an array")

// Payload is one decoded topic message. Field types are not trusted: every
// accessor reports whether the key held a value of the expected type.
type Payload map[string]any

// Bool returns the boolean stored under key.
func (p Payload) Bool(key string) (bool, bool) {
	v, ok := p[key].(bool)
	return v, ok
}

// Number returns the number stored under key.
func (p Payload) Number(key string) (float64, bool) {
	v, ok := p[key].(float64)
	return v, ok
}

// String returns the string stored under key.
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key].(string)
	return v, ok
}

// NonEmpty returns the string under key when it is present and not empty.
func (p Payload) NonEmpty(key string) (string, bool) {
	v, ok := p.String(key)
	return v, ok && v != ""
}

// Message is a topic message: a single object or an ordered batch.
type Message struct {
	Samples []Payload
	Batch   bool
}

// Last returns the most recent sample.
func (m Message) Last() (Payload, bool) {
	if len(m.Samples) == 0 {
		return nil, false
	}
	return m.Samples[len(m.Samples)-1], true
}

// decodeMessage parses raw topic data. Batch elements that are not objects
// are dropped.
func decodeMessage(raw json.RawMessage) (Message, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Message{}, err
	}
	switch data := v.(type) {
	case map[string]any:
		return Message{Samples: []Payload{data}}, nil
	case []any:
		msg := Message{Batch: true, Samples: make([]Payload, 0, len(data))}
		for _, item := range data {
			if obj, ok := item.(map[string]any); ok {
				msg.Samples = append(msg.Samples, obj)
			}
		}
		return msg, nil
	default:
		return Message{}, errMalformedPayload
	}
}
