// Package stream converts provider response streams into unified events and
// renders those events as OpenAI chat completion chunks. Each connection
// owns its processor and emitter; nothing here is safe for shared use.
package stream

import (
	"fmt"
	"time"

	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

// Processor turns one provider payload (an SSE data payload, or a raw body
// chunk for eventstream providers) into unified events. Done flushes
// whatever the provider only makes known at end of stream.
type Processor interface {
	Process(payload []byte) ([]ir.Event, error)
	Done() []ir.Event
}

// IDSource synthesizes tool-call ids when the upstream does not supply one.
// The counter keeps ids distinct within a burst of calls in the same
// nanosecond.
type IDSource struct {
	n int64
}

// Next returns a fresh id of the form <name>-<unix_nanos>-<counter>.
func (s *IDSource) Next(name string) string {
	s.n++
	return fmt.Sprintf("%s-%d-%d", name, time.Now().UnixNano(), s.n)
}
