package from_ir

import (
	"fmt"
	"strings"

	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

// ToCodexRequest builds the Responses API envelope. The returned map takes
// shortened tool names back to their originals so the response path can
// restore them on emitted tool calls.
func ToCodexRequest(req *ir.ChatRequest) ([]byte, map[string]string, error) {
	effort := "medium"
	if req.ReasoningEffort != "" && req.ReasoningEffort != "auto" {
		effort = req.ReasoningEffort
	}

	root := map[string]any{
		"instructions":        "",
		"model":               req.Model,
		"stream":              req.Stream,
		"parallel_tool_calls": true,
		"reasoning":           map[string]any{"effort": effort, "summary": "auto"},
		"include":             []any{"reasoning.encrypted_content"},
		"store":               false,
	}

	shortNames := shortenToolNames(req.Tools)
	reverse := make(map[string]string, len(shortNames))
	for orig, short := range shortNames {
		if short != orig {
			reverse[short] = orig
		}
	}

	input, err := buildCodexInput(req.Messages, shortNames)
	if err != nil {
		return nil, nil, err
	}
	root["input"] = input

	if len(req.Tools) > 0 {
		var tools []any
		for _, t := range req.Tools {
			tool := map[string]any{
				"type":        "function",
				"name":        shortNames[t.Name],
				"description": t.Description,
				"strict":      false,
			}
			if len(t.Parameters) > 0 {
				tool["parameters"] = t.Parameters
			} else {
				tool["parameters"] = map[string]any{"type": "object", "properties": map[string]any{}}
			}
			tools = append(tools, tool)
		}
		root["tools"] = tools
	}

	if req.Temperature != nil {
		root["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		root["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		root["max_output_tokens"] = *req.MaxTokens
	}

	body, err := json.Marshal(root)
	if err != nil {
		return nil, nil, err
	}
	return body, reverse, nil
}

func buildCodexInput(messages []ir.Message, shortNames map[string]string) ([]any, error) {
	var input []any
	for i := range messages {
		m := &messages[i]
		switch m.Role {
		case ir.RoleSystem, ir.RoleDeveloper:
			input = append(input, map[string]any{
				"type":    "message",
				"role":    "developer",
				"content": []any{map[string]any{"type": "input_text", "text": m.Text()}},
			})
		case ir.RoleUser:
			content := codexUserContent(m)
			input = append(input, map[string]any{
				"type":    "message",
				"role":    "user",
				"content": content,
			})
		case ir.RoleAssistant:
			if text := m.Text(); text != "" {
				input = append(input, map[string]any{
					"type":    "message",
					"role":    "assistant",
					"content": []any{map[string]any{"type": "output_text", "text": text}},
				})
			}
			for _, tc := range m.ToolCalls {
				args := tc.Args
				if args == "" {
					args = "{}"
				}
				name := tc.Name
				if short, ok := shortNames[name]; ok {
					name = short
				}
				input = append(input, map[string]any{
					"type":      "function_call",
					"call_id":   tc.ID,
					"name":      name,
					"arguments": args,
				})
			}
		case ir.RoleTool:
			input = append(input, map[string]any{
				"type":    "function_call_output",
				"call_id": m.ToolCallID,
				"output":  m.Text(),
			})
		default:
			return nil, fmt.Errorf("codex request: unsupported role %q", m.Role)
		}
	}
	return input, nil
}

func codexUserContent(m *ir.Message) []any {
	var content []any
	for _, p := range m.Parts {
		switch p.Type {
		case ir.ContentTypeText:
			content = append(content, map[string]any{"type": "input_text", "text": p.Text})
		case ir.ContentTypeImage:
			if p.Image == nil {
				continue
			}
			url := p.Image.URL
			if url == "" && p.Image.Data != "" {
				url = "data:" + p.Image.MimeType + ";base64," + p.Image.Data
			}
			content = append(content, map[string]any{"type": "input_image", "image_url": url})
		}
	}
	if len(content) == 0 {
		content = []any{map[string]any{"type": "input_text", "text": ""}}
	}
	return content
}

// shortenToolNames maps every tool name to one that fits MaxToolNameLength.
// mcp__-prefixed names keep the prefix plus the segment after the last __
// so the server name in the middle is the part that gets dropped. Collisions
// after truncation pick up numeric suffixes inside the cap.
func shortenToolNames(tools []ir.ToolDefinition) map[string]string {
	out := make(map[string]string, len(tools))
	used := make(map[string]bool, len(tools))
	for _, t := range tools {
		short := shortenToolName(t.Name)
		short = dedupeToolName(short, used)
		used[short] = true
		out[t.Name] = short
	}
	return out
}

func shortenToolName(name string) string {
	if len(name) <= ir.MaxToolNameLength {
		return name
	}
	if strings.HasPrefix(name, "mcp__") {
		rest := name[len("mcp__"):]
		if idx := strings.LastIndex(rest, "__"); idx >= 0 {
			name = "mcp__" + rest[idx+2:]
		}
	}
	if len(name) > ir.MaxToolNameLength {
		name = name[:ir.MaxToolNameLength]
	}
	return name
}

func dedupeToolName(name string, used map[string]bool) string {
	if !used[name] {
		return name
	}
	for i := 2; ; i++ {
		suffix := fmt.Sprintf("_%d", i)
		candidate := name
		if len(candidate)+len(suffix) > ir.MaxToolNameLength {
			candidate = candidate[:ir.MaxToolNameLength-len(suffix)]
		}
		candidate += suffix
		if !used[candidate] {
			return candidate
		}
	}
}
