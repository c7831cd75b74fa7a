package to_ir

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

// ParseAnthropicMessages parses an Anthropic /v1/messages request body.
// The system field (string or part array) becomes a leading system message.
func ParseAnthropicMessages(body []byte) (*ir.ChatRequest, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("anthropic request: invalid JSON")
	}
	root := gjson.ParseBytes(body)
	req := &ir.ChatRequest{
		Model:  root.Get("model").String(),
		Stream: root.Get("stream").Bool(),
		Raw:    append([]byte(nil), body...),
	}
	if req.Model == "" {
		return nil, fmt.Errorf("anthropic request: missing model")
	}

	if v := root.Get("temperature"); v.Exists() {
		f := v.Float()
		req.Temperature = &f
	}
	if v := root.Get("top_p"); v.Exists() {
		f := v.Float()
		req.TopP = &f
	}
	if v := root.Get("top_k"); v.Exists() {
		n := int(v.Int())
		req.TopK = &n
	}
	if v := root.Get("max_tokens"); v.Exists() {
		n := int(v.Int())
		req.MaxTokens = &n
	}
	for _, s := range root.Get("stop_sequences").Array() {
		req.Stop = append(req.Stop, s.String())
	}
	// Anthropic thinking budget maps onto a coarse effort level.
	if t := root.Get("thinking"); t.Exists() && t.Get("type").String() == "enabled" {
		req.ReasoningEffort = budgetToEffort(int(t.Get("budget_tokens").Int()))
	}

	if system := root.Get("system"); system.Exists() {
		text := systemText(system)
		if text != "" {
			req.Messages = append(req.Messages, ir.TextMessage(ir.RoleSystem, text))
		}
	}

	for _, msg := range root.Get("messages").Array() {
		parsed := parseAnthropicMessage(msg)
		req.Messages = append(req.Messages, parsed...)
	}

	for _, tool := range root.Get("tools").Array() {
		def := ir.ToolDefinition{
			Name:        tool.Get("name").String(),
			Description: tool.Get("description").String(),
		}
		if params := tool.Get("input_schema"); params.Exists() && params.IsObject() {
			var m map[string]any
			if err := json.Unmarshal([]byte(params.Raw), &m); err == nil {
				def.Parameters = m
			}
		}
		req.Tools = append(req.Tools, def)
	}
	return req, nil
}

// parseAnthropicMessage can yield multiple unified messages because
// Anthropic carries tool results inside user turns while the unified form
// keeps them as distinct tool-role messages.
func parseAnthropicMessage(msg gjson.Result) []ir.Message {
	role := ir.Role(msg.Get("role").String())
	content := msg.Get("content")

	if content.Type == gjson.String {
		return []ir.Message{ir.TextMessage(role, content.String())}
	}

	var out []ir.Message
	current := ir.Message{Role: role}
	flush := func() {
		if len(current.Parts) > 0 || len(current.ToolCalls) > 0 {
			out = append(out, current)
			current = ir.Message{Role: role}
		}
	}

	for _, block := range content.Array() {
		switch block.Get("type").String() {
		case "text":
			current.Parts = append(current.Parts, ir.ContentPart{Type: ir.ContentTypeText, Text: block.Get("text").String()})
		case "image":
			src := block.Get("source")
			current.Parts = append(current.Parts, ir.ContentPart{Type: ir.ContentTypeImage, Image: &ir.ImagePart{
				MimeType: src.Get("media_type").String(),
				Data:     src.Get("data").String(),
			}})
		case "tool_use":
			args := block.Get("input").Raw
			if args == "" {
				args = "{}"
			}
			current.ToolCalls = append(current.ToolCalls, ir.ToolCall{
				ID:   block.Get("id").String(),
				Name: block.Get("name").String(),
				Args: args,
			})
		case "tool_result":
			flush()
			out = append(out, ir.Message{
				Role:       ir.RoleTool,
				ToolCallID: block.Get("tool_use_id").String(),
				Parts: []ir.ContentPart{{
					Type: ir.ContentTypeText,
					Text: toolResultText(block.Get("content")),
				}},
			})
		}
	}
	flush()
	return out
}

func systemText(system gjson.Result) string {
	if system.Type == gjson.String {
		return system.String()
	}
	var text string
	for _, part := range system.Array() {
		if part.Get("type").String() == "text" {
			if text != "" {
				text += "\n"
			}
			text += part.Get("text").String()
		}
	}
	return text
}

func toolResultText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	var text string
	for _, part := range content.Array() {
		if part.Get("type").String() == "text" {
			text += part.Get("text").String()
		}
	}
	return text
}

func budgetToEffort(budget int) string {
	switch {
	case budget <= 0:
		return ""
	case budget <= 1024:
		return "low"
	case budget <= 8192:
		return "medium"
	default:
		return "high"
	}
}
