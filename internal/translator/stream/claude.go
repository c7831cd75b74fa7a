package stream

import (
	"github.com/tidwall/gjson"

	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

// ClaudeProcessor parses Anthropic Messages SSE payloads. Block indices in
// the native stream count every content block; tool_calls indices count
// only tool blocks, so the processor keeps its own mapping.
type ClaudeProcessor struct {
	toolIndex int
	blockTool map[int]int

	inputTokens  int
	cachedTokens int
	outputTokens int
	stopReason   string
}

// NewClaudeProcessor builds the processor.
func NewClaudeProcessor() *ClaudeProcessor {
	return &ClaudeProcessor{blockTool: map[int]int{}}
}

// Process handles one SSE data payload.
func (p *ClaudeProcessor) Process(payload []byte) ([]ir.Event, error) {
	root := gjson.ParseBytes(payload)
	switch root.Get("type").String() {
	case "message_start":
		msg := root.Get("message")
		p.inputTokens = int(msg.Get("usage.input_tokens").Int())
		p.cachedTokens = int(msg.Get("usage.cache_read_input_tokens").Int())
		return []ir.Event{{Type: ir.EventMeta, Meta: &ir.Meta{
			ID:    msg.Get("id").String(),
			Model: msg.Get("model").String(),
		}}}, nil

	case "content_block_start":
		block := root.Get("content_block")
		if block.Get("type").String() != "tool_use" {
			return nil, nil
		}
		native := int(root.Get("index").Int())
		idx := p.toolIndex
		p.toolIndex++
		p.blockTool[native] = idx
		return []ir.Event{{
			Type:          ir.EventToolCallStart,
			ToolCallIndex: idx,
			ToolCallID:    block.Get("id").String(),
			ToolCallName:  block.Get("name").String(),
		}}, nil

	case "content_block_delta":
		delta := root.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			if text := delta.Get("text").String(); text != "" {
				return []ir.Event{{Type: ir.EventText, Text: text}}, nil
			}
		case "thinking_delta":
			if text := delta.Get("thinking").String(); text != "" {
				return []ir.Event{{Type: ir.EventReasoning, Reasoning: text}}, nil
			}
		case "input_json_delta":
			partial := delta.Get("partial_json").String()
			idx, ok := p.blockTool[int(root.Get("index").Int())]
			if ok && partial != "" {
				return []ir.Event{{
					Type:          ir.EventToolCallArgs,
					ToolCallIndex: idx,
					ToolCallArgs:  partial,
				}}, nil
			}
		}
		return nil, nil

	case "message_delta":
		if v := root.Get("delta.stop_reason"); v.Exists() {
			p.stopReason = v.String()
		}
		if v := root.Get("usage.output_tokens"); v.Exists() {
			p.outputTokens = int(v.Int())
		}
		return nil, nil

	case "message_stop":
		usage := &ir.Usage{
			PromptTokens:     p.inputTokens,
			CompletionTokens: p.outputTokens,
			TotalTokens:      p.inputTokens + p.outputTokens,
			CachedTokens:     p.cachedTokens,
		}
		return []ir.Event{
			{Type: ir.EventUsage, Usage: usage},
			{Type: ir.EventFinish, Finish: ir.FinishFromAnthropic(p.stopReason), NativeFinish: p.stopReason},
		}, nil
	}
	return nil, nil
}

// Done is a no-op; message_stop already closed the stream.
func (p *ClaudeProcessor) Done() []ir.Event { return nil }
