// Package thinking splits streamed model text into content and reasoning
// channels, recognizing the convention where a model wraps its reasoning in a
// <thinking>-style tag at the very start of the response.
package thinking

import (
	"bytes"

	"github.com/llm-gate/llm-gate/internal/config"
)

// openTags are the recognized thinking markers, matched after optional
// leading whitespace at the start of the response.
var openTags = [][]byte{
	[]byte("<thinking>"),
	[]byte("<think>"),
	[]byte("<reasoning>"),
	[]byte("<thought>"),
}

// maxTagLength is the longest close tag ("</reasoning>").
const maxTagLength = 12

const defaultInitialBuffer = 20

type state int

const (
	statePreContent state = iota
	stateInThinking
	stateStreaming
)

// Event is one output unit of the parser. Exactly one of Content or
// Reasoning is non-empty (except for drop events produced by the remove
// handling, which are not emitted at all).
type Event struct {
	Content   string
	Reasoning string
	// FirstReasoning and LastReasoning bracket the reasoning span so
	// downstream emitters can re-wrap tags when pass handling is active.
	FirstReasoning bool
	LastReasoning  bool
}

// Parser is a per-stream state machine. Not safe for concurrent use; each
// connection owns one.
type Parser struct {
	handling   config.ThinkingHandling
	initialMax int

	st       state
	buf      []byte
	lead     []byte
	openTag  []byte
	closeTag []byte
	emitted  bool
}

// NewParser builds a parser from the reasoning configuration.
func NewParser(cfg config.ReasoningConfig) *Parser {
	max := cfg.InitialBufferSize
	if max <= 0 {
		max = defaultInitialBuffer
	}
	handling := cfg.Handling
	if handling == "" {
		handling = config.ThinkingAsReasoning
	}
	return &Parser{handling: handling, initialMax: max}
}

// Feed consumes the next chunk of plain text and returns zero or more events.
func (p *Parser) Feed(chunk string) []Event {
	if chunk == "" {
		return nil
	}
	switch p.st {
	case stateStreaming:
		return []Event{{Content: chunk}}
	case stateInThinking:
		p.buf = append(p.buf, chunk...)
		return p.drainThinking()
	default:
		return p.feedPreContent(chunk)
	}
}

// Flush terminates the stream, returning any residual events.
func (p *Parser) Flush() []Event {
	defer func() {
		p.buf = nil
		p.st = stateStreaming
	}()
	switch p.st {
	case stateInThinking:
		return p.emitReasoning(string(p.buf), true)
	default:
		if len(p.buf) > 0 {
			return []Event{{Content: string(p.buf)}}
		}
		return nil
	}
}

func (p *Parser) feedPreContent(chunk string) []Event {
	p.buf = append(p.buf, chunk...)
	trimmed := bytes.TrimLeft(p.buf, " \t\r\n")

	for _, tag := range openTags {
		if bytes.HasPrefix(trimmed, tag) {
			p.lead = append([]byte(nil), p.buf[:len(p.buf)-len(trimmed)]...)
			p.openTag = tag
			p.closeTag = closeTagFor(tag)
			p.buf = append([]byte(nil), trimmed[len(tag):]...)
			p.st = stateInThinking
			return p.drainThinking()
		}
	}

	// Keep buffering only while some open tag could still complete.
	prefixPossible := len(trimmed) == 0
	for _, tag := range openTags {
		if bytes.HasPrefix(tag, trimmed) {
			prefixPossible = true
			break
		}
	}
	if len(p.buf) > p.initialMax || !prefixPossible {
		content := string(p.buf)
		p.buf = nil
		p.st = stateStreaming
		return []Event{{Content: content}}
	}
	return nil
}

func (p *Parser) drainThinking() []Event {
	if idx := bytes.Index(p.buf, p.closeTag); idx >= 0 {
		reasoning := string(p.buf[:idx])
		rest := bytes.TrimLeft(p.buf[idx+len(p.closeTag):], " \t\r\n")
		p.buf = nil
		p.st = stateStreaming
		events := p.emitReasoning(reasoning, true)
		if len(rest) > 0 {
			events = append(events, Event{Content: string(rest)})
		}
		return events
	}
	// No close tag yet; flush all but a potential partial close tag.
	if len(p.buf) > 2*maxTagLength {
		cut := len(p.buf) - maxTagLength
		reasoning := string(p.buf[:cut])
		p.buf = append([]byte(nil), p.buf[cut:]...)
		return p.emitReasoning(reasoning, false)
	}
	return nil
}

func (p *Parser) emitReasoning(text string, last bool) []Event {
	first := !p.emitted
	// Empty deltas only matter in pass mode, where the tags themselves
	// still have to reach the client.
	if text == "" && !(p.handling == config.ThinkingPass && (first || last)) {
		return nil
	}
	p.emitted = true

	switch p.handling {
	case config.ThinkingRemove:
		return nil
	case config.ThinkingStripTags:
		if text == "" {
			return nil
		}
		return []Event{{Content: text}}
	case config.ThinkingPass:
		content := text
		if first {
			content = string(p.lead) + string(p.openTag) + content
		}
		if last {
			content += string(p.closeTag)
		}
		return []Event{{Content: content}}
	default: // as_reasoning_content
		if text == "" {
			return nil
		}
		return []Event{{Reasoning: text, FirstReasoning: first, LastReasoning: last}}
	}
}

func closeTagFor(open []byte) []byte {
	out := make([]byte, 0, len(open)+1)
	out = append(out, '<', '/')
	out = append(out, open[1:]...)
	return out
}
