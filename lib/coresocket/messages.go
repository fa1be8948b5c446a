package coresocket

import (
	"encoding/json"
)

// Message is the envelope exchanged with the application core. Value holds
// the port's payload.
type Message struct {
	Port  string          `json:"port"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Server-only ports.
const (
	PortInit  = "init"
	PortError = "error"
)

// ErrorValue is the payload of an error message.
type ErrorValue struct {
	Port  string `json:"port,omitempty"`
	Error string `json:"error"`
}

func newMessage(port string, v any) (Message, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Message{}, err
	}
	return Message{Port: port, Value: raw}, nil
}

func newErrorMessage(port, msg string) Message {
	m, _ := newMessage(PortError, ErrorValue{Port: port, Error: msg})
	return m
}
