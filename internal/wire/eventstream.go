package wire

import (
	"bytes"

	"github.com/tidwall/gjson"
)

// EventKind classifies a logical event scanned out of the CodeWhisperer
// eventstream byte flow.
type EventKind int

const (
	KindContent EventKind = iota
	KindToolStart
	KindToolInputDelta
	KindToolStop
	KindUsage
	KindContextUsage
)

// Event is one JSON payload recovered from the eventstream framing.
type Event struct {
	Kind EventKind
	Raw  []byte
}

// sentinels are the JSON prefixes CodeWhisperer embeds between eventstream
// frame headers. The scanner keys on them instead of decoding the full AWS
// header protocol.
var sentinels = []struct {
	prefix []byte
	kind   EventKind
}{
	{[]byte(`{"content":`), KindContent},
	{[]byte(`{"name":`), KindToolStart},
	{[]byte(`{"input":`), KindToolInputDelta},
	{[]byte(`{"stop":`), KindToolStop},
	{[]byte(`{"usage":`), KindUsage},
	{[]byte(`{"contextUsagePercentage":`), KindContextUsage},
}

// EventStreamScanner extracts sentinel-prefixed JSON objects from a raw
// CodeWhisperer response body. Partial objects stay buffered until the
// closing brace arrives.
type EventStreamScanner struct {
	buf         []byte
	lastContent string
}

// Feed appends chunk and returns every complete event found, in byte order.
// Duplicate consecutive content events with identical text are suppressed.
func (s *EventStreamScanner) Feed(chunk []byte) []Event {
	s.buf = append(s.buf, chunk...)

	var events []Event
	for {
		pos, kind := s.earliestSentinel()
		if pos < 0 {
			break
		}
		end := matchingBrace(s.buf, pos)
		if end < 0 {
			// Incomplete object; drop scanned garbage before it and wait.
			if pos > 0 {
				s.buf = append([]byte(nil), s.buf[pos:]...)
			}
			break
		}
		raw := append([]byte(nil), s.buf[pos:end+1]...)
		s.buf = append([]byte(nil), s.buf[end+1:]...)

		if !gjson.ValidBytes(raw) {
			continue
		}
		if kind == KindContent {
			text := gjson.GetBytes(raw, "content").String()
			if text != "" && text == s.lastContent {
				continue
			}
			s.lastContent = text
		} else {
			s.lastContent = ""
		}
		events = append(events, Event{Kind: kind, Raw: raw})
	}
	return events
}

// Rest returns the unconsumed tail, for diagnostics.
func (s *EventStreamScanner) Rest() []byte { return s.buf }

func (s *EventStreamScanner) earliestSentinel() (int, EventKind) {
	best := -1
	kind := KindContent
	for _, sn := range sentinels {
		if idx := bytes.Index(s.buf, sn.prefix); idx >= 0 && (best < 0 || idx < best) {
			best = idx
			kind = sn.kind
		}
	}
	return best, kind
}

// matchingBrace finds the index of the brace closing the object opened at
// start. String literals and escapes are honored. Returns -1 when the
// object is still incomplete.
func matchingBrace(buf []byte, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(buf); i++ {
		c := buf[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
