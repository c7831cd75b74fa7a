package stream

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/llm-gate/llm-gate/internal/translator/ir"
	"github.com/llm-gate/llm-gate/internal/wire"
)

// CodexProcessor parses Responses API SSE payloads. toolNames takes the
// shortened names the request was sent with back to the originals.
type CodexProcessor struct {
	toolNames map[string]string

	toolIndex    int
	sawReasoning bool
}

// NewCodexProcessor builds the processor. toolNames may be nil.
func NewCodexProcessor(toolNames map[string]string) *CodexProcessor {
	return &CodexProcessor{toolNames: toolNames}
}

// Process parses one SSE data payload.
func (p *CodexProcessor) Process(payload []byte) ([]ir.Event, error) {
	root := gjson.ParseBytes(payload)
	switch wire.CodexEventType(payload) {
	case wire.CodexEventCreated:
		resp := root.Get("response")
		return []ir.Event{{Type: ir.EventMeta, Meta: &ir.Meta{
			ID:      resp.Get("id").String(),
			Model:   resp.Get("model").String(),
			Created: resp.Get("created_at").Int(),
		}}}, nil
	case wire.CodexEventReasoningDelta:
		delta := root.Get("delta").String()
		if delta == "" {
			return nil, nil
		}
		p.sawReasoning = true
		return []ir.Event{{Type: ir.EventReasoning, Reasoning: delta}}, nil
	case wire.CodexEventReasoningDone:
		if !p.sawReasoning {
			return nil, nil
		}
		// Separates the reasoning summary from the answer that follows.
		return []ir.Event{{Type: ir.EventReasoning, Reasoning: "\n\n"}}, nil
	case wire.CodexEventOutputTextDelta:
		if delta := root.Get("delta").String(); delta != "" {
			return []ir.Event{{Type: ir.EventText, Text: delta}}, nil
		}
		return nil, nil
	case wire.CodexEventOutputItemDone:
		item := root.Get("item")
		if item.Get("type").String() != "function_call" {
			return nil, nil
		}
		name := item.Get("name").String()
		if orig, ok := p.toolNames[name]; ok {
			name = orig
		}
		args := item.Get("arguments").String()
		if args == "" {
			args = "{}"
		}
		ev := ir.Event{
			Type:          ir.EventToolCallStart,
			ToolCallIndex: p.toolIndex,
			ToolCallID:    item.Get("call_id").String(),
			ToolCallName:  name,
			ToolCallArgs:  args,
		}
		p.toolIndex++
		return []ir.Event{ev}, nil
	case wire.CodexEventCompleted:
		usage := root.Get("response.usage")
		events := []ir.Event{{Type: ir.EventUsage, Usage: &ir.Usage{
			PromptTokens:     int(usage.Get("input_tokens").Int()),
			CompletionTokens: int(usage.Get("output_tokens").Int()),
			TotalTokens:      int(usage.Get("total_tokens").Int()),
			ReasoningTokens:  int(usage.Get("output_tokens_details.reasoning_tokens").Int()),
			CachedTokens:     int(usage.Get("input_tokens_details.cached_tokens").Int()),
		}}}
		finish := ir.FinishStop
		if p.toolIndex > 0 {
			finish = ir.FinishToolCalls
		}
		return append(events, ir.Event{Type: ir.EventFinish, Finish: finish}), nil
	case wire.CodexEventFailed:
		msg := root.Get("response.error.message").String()
		if msg == "" {
			msg = "response failed"
		}
		return nil, fmt.Errorf("codex: %s", msg)
	}
	return nil, nil
}

// Done implements Processor; Codex signals completion in-band.
func (p *CodexProcessor) Done() []ir.Event { return nil }
