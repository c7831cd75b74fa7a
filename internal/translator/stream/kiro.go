package stream

import (
	"math"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/llm-gate/llm-gate/internal/translator/ir"
	"github.com/llm-gate/llm-gate/internal/wire"
)

// kiroMaxInputTokens is the context window the contextUsagePercentage is
// reported against.
const kiroMaxInputTokens = 200000

// KiroProcessor parses raw CodeWhisperer response bodies. Process receives
// body chunks, not SSE payloads; the eventstream scanner recovers the
// embedded JSON events.
type KiroProcessor struct {
	ids *IDSource

	// PromptFallback is the locally estimated prompt size, used when the
	// stream carries no contextUsagePercentage.
	PromptFallback int

	scanner wire.EventStreamScanner
	text    strings.Builder

	toolIndex int
	open      *openTool
	seen      []ir.ToolCall
	pct       float64
}

type openTool struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// NewKiroProcessor builds the processor.
func NewKiroProcessor(ids *IDSource) *KiroProcessor {
	return &KiroProcessor{ids: ids}
}

// Process scans one body chunk.
func (p *KiroProcessor) Process(chunk []byte) ([]ir.Event, error) {
	var events []ir.Event
	for _, ev := range p.scanner.Feed(chunk) {
		switch ev.Kind {
		case wire.KindContent:
			text := gjson.GetBytes(ev.Raw, "content").String()
			if text == "" {
				continue
			}
			p.text.WriteString(text)
			events = append(events, ir.Event{Type: ir.EventText, Text: text})
		case wire.KindToolStart:
			events = append(events, p.closeTool()...)
			name := gjson.GetBytes(ev.Raw, "name").String()
			id := gjson.GetBytes(ev.Raw, "toolUseId").String()
			if id == "" {
				id = p.ids.Next(name)
			}
			p.open = &openTool{index: p.toolIndex, id: id, name: name}
			p.toolIndex++
			events = append(events, ir.Event{
				Type:          ir.EventToolCallStart,
				ToolCallIndex: p.open.index,
				ToolCallID:    id,
				ToolCallName:  name,
			})
			if input := gjson.GetBytes(ev.Raw, "input").String(); input != "" {
				p.open.args.WriteString(input)
				events = append(events, ir.Event{
					Type:          ir.EventToolCallArgs,
					ToolCallIndex: p.open.index,
					ToolCallArgs:  input,
				})
			}
		case wire.KindToolInputDelta:
			if p.open == nil {
				continue
			}
			input := gjson.GetBytes(ev.Raw, "input").String()
			if input == "" {
				continue
			}
			p.open.args.WriteString(input)
			events = append(events, ir.Event{
				Type:          ir.EventToolCallArgs,
				ToolCallIndex: p.open.index,
				ToolCallArgs:  input,
			})
		case wire.KindToolStop:
			events = append(events, p.closeTool()...)
		case wire.KindContextUsage:
			p.pct = gjson.GetBytes(ev.Raw, "contextUsagePercentage").Float()
		}
	}
	return events, nil
}

func (p *KiroProcessor) closeTool() []ir.Event {
	if p.open == nil {
		return nil
	}
	p.seen = append(p.seen, ir.ToolCall{ID: p.open.id, Name: p.open.name, Args: p.open.args.String()})
	p.open = nil
	return nil
}

// Done closes any open tool call, surfaces tool calls the model wrote as
// text, and computes usage.
func (p *KiroProcessor) Done() []ir.Event {
	var events []ir.Event
	events = append(events, p.closeTool()...)

	for _, tc := range dedupeToolCalls(append(p.seen, extractTextToolCalls(p.text.String(), p.ids)...)) {
		if containsCall(p.seen, tc) {
			continue
		}
		events = append(events, ir.Event{
			Type:          ir.EventToolCallStart,
			ToolCallIndex: p.toolIndex,
			ToolCallID:    tc.ID,
			ToolCallName:  tc.Name,
			ToolCallArgs:  tc.Args,
		})
		p.toolIndex++
	}

	completion := estimateTokens(p.text.String())
	prompt := p.PromptFallback
	if p.pct > 0 {
		if v := int(p.pct/100*kiroMaxInputTokens) - completion; v > 0 {
			prompt = v
		}
	}
	events = append(events, ir.Event{Type: ir.EventUsage, Usage: &ir.Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}})

	finish := ir.FinishStop
	if p.toolIndex > 0 {
		finish = ir.FinishToolCalls
	}
	return append(events, ir.Event{Type: ir.EventFinish, Finish: finish})
}

// estimateTokens approximates output tokens from character count, with a
// safety factor matching what the upstream bills.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	base := int(math.Ceil(float64(len(text))/4)) + 1
	return int(float64(base) * 1.15)
}

// extractTextToolCalls recovers calls the model rendered inline as
// "[Called <name> with args: {...}]".
func extractTextToolCalls(text string, ids *IDSource) []ir.ToolCall {
	const marker = "[Called "
	const argsSep = " with args: "

	var out []ir.ToolCall
	for {
		start := strings.Index(text, marker)
		if start < 0 {
			return out
		}
		rest := text[start+len(marker):]
		sep := strings.Index(rest, argsSep)
		if sep < 0 {
			text = rest
			continue
		}
		name := rest[:sep]
		body := rest[sep+len(argsSep):]
		end := matchBrace(body)
		if end < 0 {
			text = rest
			continue
		}
		args := body[:end+1]
		if gjson.Valid(args) && name != "" && !strings.ContainsAny(name, " \n") {
			out = append(out, ir.ToolCall{ID: ids.Next(name), Name: name, Args: args})
		}
		text = body[end+1:]
	}
}

// matchBrace returns the index of the brace closing the object opened at
// position 0, or -1.
func matchBrace(s string) int {
	if len(s) == 0 || s[0] != '{' {
		return -1
	}
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
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

// dedupeToolCalls drops repeats first by id (keeping the longer arguments)
// then by (name, arguments).
func dedupeToolCalls(calls []ir.ToolCall) []ir.ToolCall {
	byID := map[string]int{}
	var kept []ir.ToolCall
	for _, tc := range calls {
		if i, ok := byID[tc.ID]; ok && tc.ID != "" {
			if len(tc.Args) > len(kept[i].Args) {
				kept[i].Args = tc.Args
			}
			continue
		}
		if tc.ID != "" {
			byID[tc.ID] = len(kept)
		}
		kept = append(kept, tc)
	}

	seen := map[string]bool{}
	out := kept[:0]
	for _, tc := range kept {
		key := tc.Name + "\x00" + tc.Args
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, tc)
	}
	return out
}

// containsCall reports whether an equivalent call was already streamed.
func containsCall(calls []ir.ToolCall, tc ir.ToolCall) bool {
	for _, c := range calls {
		if c.ID == tc.ID || (c.Name == tc.Name && c.Args == tc.Args) {
			return true
		}
	}
	return false
}
