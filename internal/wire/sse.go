// Package wire decodes provider-native stream framings into logical events.
// It never performs I/O; callers feed it byte chunks as they arrive.
package wire

import "bytes"

var (
	dataPrefix = []byte("data:")
	doneMarker = []byte("[DONE]")
)

// SSEDecoder incrementally splits an SSE byte stream into data payloads.
// Leftover bytes stay buffered across Feed calls.
type SSEDecoder struct {
	buf  []byte
	done bool
}

// Feed appends chunk to the internal buffer and returns the complete
// data payloads found so far. A [DONE] sentinel terminates the stream.
func (d *SSEDecoder) Feed(chunk []byte) [][]byte {
	if d.done {
		return nil
	}
	d.buf = append(d.buf, chunk...)

	var payloads [][]byte
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]
		line = bytes.TrimSuffix(line, []byte("\r"))
		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if len(payload) == 0 {
			continue
		}
		if bytes.Equal(payload, doneMarker) {
			d.done = true
			break
		}
		payloads = append(payloads, append([]byte(nil), payload...))
	}
	return payloads
}

// Done reports whether the [DONE] terminator was seen.
func (d *SSEDecoder) Done() bool { return d.done }

// Rest returns any bytes still buffered (partial line at end of stream).
func (d *SSEDecoder) Rest() []byte { return d.buf }
