// Package json wraps the sonic JSON codec behind the familiar
// Marshal/Unmarshal surface so the rest of the codebase does not depend
// on a concrete encoder.
package json

import (
	"io"

	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

// Marshal encodes v as JSON.
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalString encodes v as a JSON string.
func MarshalString(v any) (string, error) {
	return api.MarshalToString(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// UnmarshalString decodes a JSON string into v.
func UnmarshalString(data string, v any) error {
	return api.UnmarshalFromString(data, v)
}

// NewDecoder returns a streaming decoder reading from r.
func NewDecoder(r io.Reader) sonic.Decoder {
	return api.NewDecoder(r)
}

// Valid reports whether data is syntactically valid JSON.
func Valid(data []byte) bool {
	return api.Valid(data)
}
