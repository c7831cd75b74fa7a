// Package from_ir builds provider-native request envelopes from the
// unified ir form. Builders are pure: ir in, bytes out, no I/O.
package from_ir

import (
	"fmt"
	"path"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/schema"
	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

// ThoughtSignatureMarker is attached to image and functionCall parts so the
// upstream signature validator accepts parts we did not originate. The
// dispatcher may replace it with a cached real signature before sending.
const ThoughtSignatureMarker = "skip_thought_signature_validator"

// fileMimeTypes maps file extensions accepted as inlineData attachments.
var fileMimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".html": "text/html",
	".xml":  "text/xml",
	".json": "application/json",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
}

// ToGeminiCLIRequest builds the Cloud Code Assist generateContent envelope:
// {project:"", request:<inner>, model}.
func ToGeminiCLIRequest(req *ir.ChatRequest) ([]byte, error) {
	inner, err := buildGeminiInner(req, schema.DialectGemini, "parameters")
	if err != nil {
		return nil, err
	}
	inner["safetySettings"] = defaultSafetySettings()
	root := map[string]any{
		"project": "",
		"request": inner,
		"model":   req.Model,
	}
	return json.Marshal(root)
}

// buildGeminiInner assembles the provider-neutral Gemini request body.
// declKey selects the key function declarations carry their schema under;
// Antigravity builds with parametersJsonSchema and renames afterwards.
func buildGeminiInner(req *ir.ChatRequest, dialect schema.Dialect, declKey string) (map[string]any, error) {
	inner := map[string]any{}

	messages := req.Messages
	if sys := leadingSystemText(messages); sys != "" && len(messages) > 1 {
		inner["systemInstruction"] = map[string]any{
			"role":  "user",
			"parts": []any{map[string]any{"text": sys}},
		}
		messages = trimLeadingSystem(messages)
	}

	contents, err := buildGeminiContents(messages)
	if err != nil {
		return nil, err
	}
	inner["contents"] = contents

	if tools := buildGeminiTools(req, dialect, declKey); len(tools) > 0 {
		inner["tools"] = tools
	}

	if gc := buildGenerationConfig(req); len(gc) > 0 {
		inner["generationConfig"] = gc
	}
	return inner, nil
}

// leadingSystemText concatenates system and developer messages that appear
// before any other role.
func leadingSystemText(messages []ir.Message) string {
	var b strings.Builder
	for i := range messages {
		m := &messages[i]
		if m.Role != ir.RoleSystem && m.Role != ir.RoleDeveloper {
			break
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Text())
	}
	return b.String()
}

func trimLeadingSystem(messages []ir.Message) []ir.Message {
	i := 0
	for i < len(messages) && (messages[i].Role == ir.RoleSystem || messages[i].Role == ir.RoleDeveloper) {
		i++
	}
	return messages[i:]
}

// buildGeminiContents walks the conversation producing contents[] entries.
// Assistant tool_calls become functionCall parts; the tool messages that
// answer them are grouped into a following user entry of functionResponse
// parts, looked up by id against the preceding assistant turns.
func buildGeminiContents(messages []ir.Message) ([]any, error) {
	var contents []any
	toolNames := map[string]string{}

	i := 0
	for i < len(messages) {
		m := &messages[i]
		switch m.Role {
		case ir.RoleSystem, ir.RoleDeveloper:
			// A stray system message mid-conversation degrades to user text.
			contents = append(contents, map[string]any{
				"role":  "user",
				"parts": []any{map[string]any{"text": m.Text()}},
			})
			i++
		case ir.RoleUser:
			parts, err := buildUserParts(m)
			if err != nil {
				return nil, err
			}
			contents = append(contents, map[string]any{"role": "user", "parts": parts})
			i++
		case ir.RoleAssistant:
			parts := buildAssistantParts(m, toolNames)
			contents = append(contents, map[string]any{"role": "model", "parts": parts})
			i++
		case ir.RoleTool:
			var parts []any
			for i < len(messages) && messages[i].Role == ir.RoleTool {
				t := &messages[i]
				parts = append(parts, map[string]any{
					"functionResponse": map[string]any{
						"name":     toolNames[t.ToolCallID],
						"response": map[string]any{"result": t.Text()},
					},
				})
				i++
			}
			contents = append(contents, map[string]any{"role": "user", "parts": parts})
		default:
			return nil, fmt.Errorf("gemini request: unsupported role %q", m.Role)
		}
	}
	return contents, nil
}

func buildUserParts(m *ir.Message) ([]any, error) {
	var parts []any
	for _, p := range m.Parts {
		switch p.Type {
		case ir.ContentTypeText:
			parts = append(parts, map[string]any{"text": p.Text})
		case ir.ContentTypeImage:
			if p.Image == nil || p.Image.Data == "" {
				continue
			}
			parts = append(parts, map[string]any{
				"inlineData": map[string]any{
					"mimeType": p.Image.MimeType,
					"data":     p.Image.Data,
				},
				"thoughtSignature": ThoughtSignatureMarker,
			})
		case ir.ContentTypeFile:
			if p.File == nil {
				continue
			}
			mime := p.File.MimeType
			if mime == "" {
				mime = fileMimeTypes[strings.ToLower(path.Ext(p.File.Filename))]
			}
			if mime == "" {
				continue
			}
			parts = append(parts, map[string]any{
				"inlineData": map[string]any{
					"mimeType": mime,
					"data":     p.File.Data,
				},
			})
		}
	}
	if len(parts) == 0 {
		parts = []any{map[string]any{"text": ""}}
	}
	return parts, nil
}

func buildAssistantParts(m *ir.Message, toolNames map[string]string) []any {
	var parts []any
	if text := m.Text(); text != "" {
		parts = append(parts, map[string]any{"text": text})
	}
	for _, tc := range m.ToolCalls {
		toolNames[tc.ID] = tc.Name
		args := map[string]any{}
		if tc.Args != "" {
			_ = json.Unmarshal([]byte(tc.Args), &args)
		}
		parts = append(parts, map[string]any{
			"functionCall": map[string]any{
				"name": tc.Name,
				"args": args,
			},
			"thoughtSignature": ThoughtSignatureMarker,
		})
	}
	if len(parts) == 0 {
		parts = []any{map[string]any{"text": ""}}
	}
	return parts
}

// buildGeminiTools emits functionDeclarations plus pass-through tool nodes
// (google_search, code_execution, url_context) found in the raw request.
func buildGeminiTools(req *ir.ChatRequest, dialect schema.Dialect, declKey string) []any {
	var decls []any
	for _, t := range req.Tools {
		decl := map[string]any{
			"name":        t.Name,
			"description": t.Description,
		}
		if len(t.Parameters) > 0 {
			decl[declKey] = schema.SanitizeObject(t.Parameters, dialect)
		}
		decls = append(decls, decl)
	}

	var tools []any
	if len(decls) > 0 {
		tools = append(tools, map[string]any{"functionDeclarations": decls})
	}
	passthrough := []struct{ raw, node string }{
		{"google_search", "googleSearch"},
		{"code_execution", "codeExecution"},
		{"url_context", "urlContext"},
	}
	for _, pt := range passthrough {
		if hasRawTool(req.Raw, pt.raw) {
			tools = append(tools, map[string]any{pt.node: map[string]any{}})
		}
	}
	return tools
}

func hasRawTool(raw []byte, name string) bool {
	if len(raw) == 0 {
		return false
	}
	for _, tool := range gjson.GetBytes(raw, "tools").Array() {
		if tool.Get("type").String() == name || tool.Get(name).Exists() {
			return true
		}
	}
	return false
}

func buildGenerationConfig(req *ir.ChatRequest) map[string]any {
	gc := map[string]any{}
	if req.Temperature != nil {
		gc["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		gc["topP"] = *req.TopP
	}
	if req.TopK != nil {
		gc["topK"] = *req.TopK
	}
	if req.MaxTokens != nil {
		gc["maxOutputTokens"] = *req.MaxTokens
	}
	if len(req.Stop) > 0 {
		gc["stopSequences"] = req.Stop
	}
	if tc := thinkingConfig(req.ReasoningEffort); tc != nil {
		gc["thinkingConfig"] = tc
	}
	return gc
}

// thinkingConfig maps reasoning_effort onto the Gemini thinking knobs.
// "auto" means model-chosen budget; named levels pass through as-is.
func thinkingConfig(effort string) map[string]any {
	switch effort {
	case "":
		return nil
	case "auto":
		return map[string]any{"thinkingBudget": -1, "includeThoughts": true}
	default:
		return map[string]any{"thinkingLevel": effort, "includeThoughts": effort != "none"}
	}
}

func defaultSafetySettings() []any {
	categories := []string{
		"HARM_CATEGORY_HARASSMENT",
		"HARM_CATEGORY_HATE_SPEECH",
		"HARM_CATEGORY_SEXUALLY_EXPLICIT",
		"HARM_CATEGORY_DANGEROUS_CONTENT",
	}
	settings := make([]any, 0, len(categories)+1)
	for _, c := range categories {
		settings = append(settings, map[string]any{"category": c, "threshold": "OFF"})
	}
	settings = append(settings, map[string]any{"category": "HARM_CATEGORY_CIVIC_INTEGRITY", "threshold": "BLOCK_NONE"})
	return settings
}
