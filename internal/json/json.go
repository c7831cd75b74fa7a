// Package json wraps the sonic codec behind the stdlib encoding/json API
// so call sites stay portable.
package json

import (
	"io"

	"github.com/bytedance/sonic"
)

var api = sonic.ConfigStd

// Marshal encodes v as JSON.
func Marshal(v any) ([]byte, error) { return api.Marshal(v) }

// MarshalIndent encodes v as indented JSON.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error { return api.Unmarshal(data, v) }

// Valid reports whether data is syntactically valid JSON.
func Valid(data []byte) bool { return api.Valid(data) }

// NewDecoder returns a streaming decoder for r.
func NewDecoder(r io.Reader) sonic.Decoder { return api.NewDecoder(r) }

// NewEncoder returns a streaming encoder writing to w.
func NewEncoder(w io.Writer) sonic.Encoder { return api.NewEncoder(w) }
