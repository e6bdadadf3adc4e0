package model

import (
	"bytes"
	"encoding/json"
)

// InvocationContext is the request data handed to a sandbox as input.json.
// It lives only for one invocation and is never stored.
type InvocationContext struct {
	Body    json.RawMessage   `json:"body"`
	Query   map[string]any    `json:"query"`
	Params  map[string]string `json:"params"`
	Headers map[string]string `json:"headers"`
}

// RequestBody turns a raw request body into the JSON value functions see:
// JSON passes through, anything else becomes a string, nothing becomes {}.
func RequestBody(raw []byte) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return json.RawMessage(`{}`)
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	encoded, _ := json.Marshal(string(raw))
	return encoded
}

func (c InvocationContext) Marshal() ([]byte, error) {
	if c.Body == nil {
		c.Body = json.RawMessage(`{}`)
	}
	if c.Query == nil {
		c.Query = map[string]any{}
	}
	if c.Params == nil {
		c.Params = map[string]string{}
	}
	if c.Headers == nil {
		c.Headers = map[string]string{}
	}
	return json.Marshal(c)
}
