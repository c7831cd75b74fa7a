// Package to_ir parses inbound request bodies into the unified ir form.
// Parsers are pure: bytes in, ir out, no I/O.
package to_ir

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

// ParseOpenAIChat parses an OpenAI chat-completions request body.
func ParseOpenAIChat(body []byte) (*ir.ChatRequest, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("openai request: invalid JSON")
	}
	root := gjson.ParseBytes(body)
	req := &ir.ChatRequest{
		Model:           root.Get("model").String(),
		Stream:          root.Get("stream").Bool(),
		ReasoningEffort: root.Get("reasoning_effort").String(),
		Raw:             append([]byte(nil), body...),
	}
	if req.Model == "" {
		return nil, fmt.Errorf("openai request: missing model")
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
	} else if v = root.Get("max_completion_tokens"); v.Exists() {
		n := int(v.Int())
		req.MaxTokens = &n
	}
	req.Stop = parseStop(root.Get("stop"))

	for _, msg := range root.Get("messages").Array() {
		parsed, err := parseOpenAIMessage(msg)
		if err != nil {
			return nil, err
		}
		req.Messages = append(req.Messages, parsed)
	}

	for _, tool := range root.Get("tools").Array() {
		if tool.Get("type").String() != "function" {
			continue
		}
		fn := tool.Get("function")
		def := ir.ToolDefinition{
			Name:        fn.Get("name").String(),
			Description: fn.Get("description").String(),
		}
		if params := fn.Get("parameters"); params.Exists() && params.IsObject() {
			var m map[string]any
			if err := json.Unmarshal([]byte(params.Raw), &m); err == nil {
				def.Parameters = m
			}
		}
		req.Tools = append(req.Tools, def)
	}
	return req, nil
}

func parseOpenAIMessage(msg gjson.Result) (ir.Message, error) {
	role := ir.Role(msg.Get("role").String())
	switch role {
	case ir.RoleSystem, ir.RoleDeveloper, ir.RoleUser, ir.RoleAssistant, ir.RoleTool:
	default:
		return ir.Message{}, fmt.Errorf("openai request: unknown role %q", role)
	}

	out := ir.Message{Role: role, ToolCallID: msg.Get("tool_call_id").String()}

	content := msg.Get("content")
	switch {
	case content.Type == gjson.String:
		out.Parts = append(out.Parts, ir.ContentPart{Type: ir.ContentTypeText, Text: content.String()})
	case content.IsArray():
		for _, part := range content.Array() {
			switch part.Get("type").String() {
			case "text":
				out.Parts = append(out.Parts, ir.ContentPart{Type: ir.ContentTypeText, Text: part.Get("text").String()})
			case "image_url":
				url := part.Get("image_url.url").String()
				img := &ir.ImagePart{URL: url}
				if mime, data, ok := splitDataURL(url); ok {
					img.MimeType = mime
					img.Data = data
				}
				out.Parts = append(out.Parts, ir.ContentPart{Type: ir.ContentTypeImage, Image: img})
			case "file":
				out.Parts = append(out.Parts, ir.ContentPart{Type: ir.ContentTypeFile, File: &ir.FilePart{
					Filename: part.Get("file.filename").String(),
					Data:     part.Get("file.file_data").String(),
				}})
			}
		}
	}

	for _, tc := range msg.Get("tool_calls").Array() {
		out.ToolCalls = append(out.ToolCalls, ir.ToolCall{
			ID:   tc.Get("id").String(),
			Name: tc.Get("function.name").String(),
			Args: tc.Get("function.arguments").String(),
		})
	}
	return out, nil
}

func parseStop(v gjson.Result) []string {
	switch {
	case v.Type == gjson.String:
		return []string{v.String()}
	case v.IsArray():
		var out []string
		for _, s := range v.Array() {
			out = append(out, s.String())
		}
		return out
	}
	return nil
}

// splitDataURL decodes data:<mime>;base64,<data> URLs.
func splitDataURL(url string) (mime, data string, ok bool) {
	if !strings.HasPrefix(url, "data:") {
		return "", "", false
	}
	rest := strings.TrimPrefix(url, "data:")
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", "", false
	}
	meta := rest[:comma]
	data = rest[comma+1:]
	mime = strings.TrimSuffix(meta, ";base64")
	return mime, data, true
}
