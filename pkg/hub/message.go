// Package hub fans messages out to websocket clients using the channel-based
// register/unregister/broadcast pattern.
package hub

import "encoding/json"

// Message is one frame queued for every client.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// NewMessage encodes v under a type tag.
func NewMessage(typ string, v any) (Message, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Data: data}, nil
}
