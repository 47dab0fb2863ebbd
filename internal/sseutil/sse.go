// Package sseutil parses server-sent-events lines from backend
// streaming responses.
package sseutil

import "bytes"

var (
	doneMarker = []byte("[DONE]")
	dataPrefix = []byte("data:")
)

// Payload extracts the JSON payload from one SSE line. The second
// return is true when the line is the [DONE] sentinel. Blank lines,
// comments and non-JSON lines yield a nil payload.
func Payload(line []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, false
	}
	if bytes.HasPrefix(trimmed, dataPrefix) {
		trimmed = bytes.TrimSpace(trimmed[len(dataPrefix):])
	}
	if bytes.Equal(trimmed, doneMarker) {
		return nil, true
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	return trimmed, false
}
