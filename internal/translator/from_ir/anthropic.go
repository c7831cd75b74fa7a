package from_ir

import (
	"strings"

	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

// anthropicDefaultMaxTokens applies when the inbound request did not set a
// limit; the Messages API requires one.
const anthropicDefaultMaxTokens = 8192

// ToAnthropicRequest builds a native Messages API body from the unified
// request. Used when the claude provider serves an OpenAI-schema call.
func ToAnthropicRequest(req *ir.ChatRequest) ([]byte, error) {
	root := map[string]any{
		"model":      req.Model,
		"max_tokens": anthropicDefaultMaxTokens,
		"stream":     req.Stream,
	}
	if req.MaxTokens != nil {
		root["max_tokens"] = *req.MaxTokens
	}
	if req.Temperature != nil {
		root["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		root["top_p"] = *req.TopP
	}
	if req.TopK != nil {
		root["top_k"] = *req.TopK
	}
	if len(req.Stop) > 0 {
		root["stop_sequences"] = req.Stop
	}
	if budget := effortToBudget(req.ReasoningEffort); budget > 0 {
		root["thinking"] = map[string]any{"type": "enabled", "budget_tokens": budget}
	}

	if sys := leadingSystemText(req.Messages); sys != "" {
		root["system"] = sys
	}

	var messages []any
	rest := trimLeadingSystem(req.Messages)
	for i := range rest {
		m := &rest[i]
		switch m.Role {
		case ir.RoleSystem, ir.RoleDeveloper:
			messages = append(messages, map[string]any{
				"role":    "user",
				"content": []any{map[string]any{"type": "text", "text": m.Text()}},
			})
		case ir.RoleUser:
			if blocks := anthropicUserBlocks(m); len(blocks) > 0 {
				messages = append(messages, map[string]any{"role": "user", "content": blocks})
			}
		case ir.RoleAssistant:
			if blocks := anthropicAssistantBlocks(m); len(blocks) > 0 {
				messages = append(messages, map[string]any{"role": "assistant", "content": blocks})
			}
		case ir.RoleTool:
			messages = append(messages, map[string]any{
				"role": "user",
				"content": []any{map[string]any{
					"type":        "tool_result",
					"tool_use_id": m.ToolCallID,
					"content":     m.Text(),
				}},
			})
		}
	}
	root["messages"] = messages

	if len(req.Tools) > 0 {
		var tools []any
		for _, t := range req.Tools {
			tool := map[string]any{"name": t.Name, "description": t.Description}
			if len(t.Parameters) > 0 {
				tool["input_schema"] = t.Parameters
			} else {
				tool["input_schema"] = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			tools = append(tools, tool)
		}
		root["tools"] = tools
	}
	return json.Marshal(root)
}

func anthropicUserBlocks(m *ir.Message) []any {
	var blocks []any
	for _, p := range m.Parts {
		switch p.Type {
		case ir.ContentTypeText:
			if p.Text != "" {
				blocks = append(blocks, map[string]any{"type": "text", "text": p.Text})
			}
		case ir.ContentTypeImage:
			if p.Image == nil || p.Image.Data == "" {
				continue
			}
			blocks = append(blocks, map[string]any{
				"type": "image",
				"source": map[string]any{
					"type":       "base64",
					"media_type": p.Image.MimeType,
					"data":       p.Image.Data,
				},
			})
		}
	}
	return blocks
}

func anthropicAssistantBlocks(m *ir.Message) []any {
	var blocks []any
	if text := m.Text(); text != "" {
		blocks = append(blocks, map[string]any{"type": "text", "text": text})
	}
	for _, tc := range m.ToolCalls {
		input := map[string]any{}
		if tc.Args != "" {
			_ = json.Unmarshal([]byte(tc.Args), &input)
		}
		blocks = append(blocks, map[string]any{
			"type":  "tool_use",
			"id":    tc.ID,
			"name":  tc.Name,
			"input": input,
		})
	}
	return blocks
}

// effortToBudget is the inverse of the inbound budget bucketing.
func effortToBudget(effort string) int {
	switch effort {
	case "low":
		return 1024
	case "medium":
		return 8192
	case "high", "auto":
		return 32768
	}
	return 0
}

// AnthropicStreamState tracks what the Messages SSE emitter has opened so
// blocks are started and stopped exactly once.
type AnthropicStreamState struct {
	MessageID        string
	Model            string
	MessageStartSent bool
	TextBlockOpen    bool
	ThinkingOpen     bool
	ToolBlockOpen    bool
	BlockIndex       int
	HasToolCalls     bool
	FinishSent       bool
	Usage            ir.Usage
}

// NewAnthropicStreamState creates the per-response emitter state.
func NewAnthropicStreamState(messageID, model string) *AnthropicStreamState {
	return &AnthropicStreamState{MessageID: messageID, Model: model}
}

// ToAnthropicSSE renders one unified stream event as zero or more Messages
// API SSE frames.
func ToAnthropicSSE(ev ir.Event, st *AnthropicStreamState) []byte {
	var b strings.Builder

	if !st.MessageStartSent {
		switch ev.Type {
		case ir.EventText, ir.EventReasoning, ir.EventToolCallStart, ir.EventFinish:
			st.MessageStartSent = true
			writeAnthropicFrame(&b, "message_start", map[string]any{
				"type": "message_start",
				"message": map[string]any{
					"id":            st.MessageID,
					"type":          "message",
					"role":          "assistant",
					"content":       []any{},
					"model":         st.Model,
					"stop_reason":   nil,
					"stop_sequence": nil,
					"usage":         map[string]any{"input_tokens": 0, "output_tokens": 0},
				},
			})
		}
	}

	switch ev.Type {
	case ir.EventReasoning:
		if !st.ThinkingOpen {
			st.closeTextBlock(&b)
			st.closeToolBlock(&b)
			st.ThinkingOpen = true
			writeAnthropicFrame(&b, "content_block_start", map[string]any{
				"type": "content_block_start", "index": st.BlockIndex,
				"content_block": map[string]any{"type": "thinking", "thinking": ""},
			})
		}
		writeAnthropicFrame(&b, "content_block_delta", map[string]any{
			"type": "content_block_delta", "index": st.BlockIndex,
			"delta": map[string]any{"type": "thinking_delta", "thinking": ev.Reasoning},
		})
	case ir.EventText:
		if st.ThinkingOpen {
			st.closeThinkingBlock(&b)
		}
		st.closeToolBlock(&b)
		if !st.TextBlockOpen {
			st.TextBlockOpen = true
			writeAnthropicFrame(&b, "content_block_start", map[string]any{
				"type": "content_block_start", "index": st.BlockIndex,
				"content_block": map[string]any{"type": "text", "text": ""},
			})
		}
		writeAnthropicFrame(&b, "content_block_delta", map[string]any{
			"type": "content_block_delta", "index": st.BlockIndex,
			"delta": map[string]any{"type": "text_delta", "text": ev.Text},
		})
	case ir.EventToolCallStart:
		st.closeTextBlock(&b)
		st.closeThinkingBlock(&b)
		st.closeToolBlock(&b)
		st.HasToolCalls = true
		st.ToolBlockOpen = true
		writeAnthropicFrame(&b, "content_block_start", map[string]any{
			"type": "content_block_start", "index": st.BlockIndex,
			"content_block": map[string]any{
				"type": "tool_use", "id": ev.ToolCallID, "name": ev.ToolCallName, "input": map[string]any{},
			},
		})
		if ev.ToolCallArgs != "" {
			writeAnthropicFrame(&b, "content_block_delta", map[string]any{
				"type": "content_block_delta", "index": st.BlockIndex,
				"delta": map[string]any{"type": "input_json_delta", "partial_json": ev.ToolCallArgs},
			})
			st.closeToolBlock(&b)
		}
	case ir.EventToolCallArgs:
		writeAnthropicFrame(&b, "content_block_delta", map[string]any{
			"type": "content_block_delta", "index": st.BlockIndex,
			"delta": map[string]any{"type": "input_json_delta", "partial_json": ev.ToolCallArgs},
		})
	case ir.EventUsage:
		if ev.Usage != nil {
			st.Usage = *ev.Usage
		}
	case ir.EventFinish:
		if st.FinishSent {
			return nil
		}
		st.FinishSent = true
		st.closeTextBlock(&b)
		st.closeThinkingBlock(&b)
		st.closeToolBlock(&b)
		stop := ir.FinishToAnthropic(ev.Finish)
		if st.HasToolCalls {
			stop = "tool_use"
		}
		writeAnthropicFrame(&b, "message_delta", map[string]any{
			"type":  "message_delta",
			"delta": map[string]any{"stop_reason": stop, "stop_sequence": nil},
			"usage": map[string]any{
				"input_tokens":  st.Usage.PromptTokens,
				"output_tokens": st.Usage.CompletionTokens,
			},
		})
		writeAnthropicFrame(&b, "message_stop", map[string]any{"type": "message_stop"})
	}

	if b.Len() == 0 {
		return nil
	}
	return []byte(b.String())
}

func (st *AnthropicStreamState) closeTextBlock(b *strings.Builder) {
	if !st.TextBlockOpen {
		return
	}
	st.TextBlockOpen = false
	writeAnthropicFrame(b, "content_block_stop", map[string]any{
		"type": "content_block_stop", "index": st.BlockIndex,
	})
	st.BlockIndex++
}

func (st *AnthropicStreamState) closeToolBlock(b *strings.Builder) {
	if !st.ToolBlockOpen {
		return
	}
	st.ToolBlockOpen = false
	writeAnthropicFrame(b, "content_block_stop", map[string]any{
		"type": "content_block_stop", "index": st.BlockIndex,
	})
	st.BlockIndex++
}

func (st *AnthropicStreamState) closeThinkingBlock(b *strings.Builder) {
	if !st.ThinkingOpen {
		return
	}
	st.ThinkingOpen = false
	writeAnthropicFrame(b, "content_block_stop", map[string]any{
		"type": "content_block_stop", "index": st.BlockIndex,
	})
	st.BlockIndex++
}

func writeAnthropicFrame(b *strings.Builder, event string, payload map[string]any) {
	raw, _ := json.Marshal(payload)
	b.WriteString("event: ")
	b.WriteString(event)
	b.WriteString("\ndata: ")
	b.Write(raw)
	b.WriteString("\n\n")
}

// ToAnthropicResponse reduces collected output to a final Messages object.
func ToAnthropicResponse(messageID, model, text, reasoning string, toolCalls []ir.ToolCall, finish ir.FinishReason, usage ir.Usage) ([]byte, error) {
	var content []any
	if reasoning != "" {
		content = append(content, map[string]any{"type": "thinking", "thinking": reasoning})
	}
	if text != "" {
		content = append(content, map[string]any{"type": "text", "text": text})
	}
	for _, tc := range toolCalls {
		input := map[string]any{}
		if tc.Args != "" {
			_ = json.Unmarshal([]byte(tc.Args), &input)
		}
		content = append(content, map[string]any{
			"type": "tool_use", "id": tc.ID, "name": tc.Name, "input": input,
		})
	}
	stop := ir.FinishToAnthropic(finish)
	if len(toolCalls) > 0 {
		stop = "tool_use"
	}
	return json.Marshal(map[string]any{
		"id":            messageID,
		"type":          "message",
		"role":          "assistant",
		"model":         model,
		"content":       content,
		"stop_reason":   stop,
		"stop_sequence": nil,
		"usage": map[string]any{
			"input_tokens":  usage.PromptTokens,
			"output_tokens": usage.CompletionTokens,
		},
	})
}
