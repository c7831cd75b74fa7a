package from_ir

import (
	"testing"

	"github.com/tidwall/gjson"

	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

func floatPtr(f float64) *float64 { return &f }
func intPtr(n int) *int           { return &n }

func TestToGeminiCLIRequestEnvelope(t *testing.T) {
	req := &ir.ChatRequest{
		Model: "gemini-2.5-pro",
		Messages: []ir.Message{
			ir.TextMessage(ir.RoleSystem, "be brief"),
			ir.TextMessage(ir.RoleUser, "hello"),
		},
		Temperature: floatPtr(0.5),
		MaxTokens:   intPtr(256),
	}
	body, err := ToGeminiCLIRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	root := gjson.ParseBytes(body)

	if root.Get("model").String() != "gemini-2.5-pro" {
		t.Errorf("model = %q", root.Get("model").String())
	}
	if !root.Get("project").Exists() {
		t.Error("project field missing")
	}
	if got := root.Get("request.systemInstruction.parts.0.text").String(); got != "be brief" {
		t.Errorf("systemInstruction = %q", got)
	}
	contents := root.Get("request.contents").Array()
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1 (system trimmed)", len(contents))
	}
	if contents[0].Get("role").String() != "user" || contents[0].Get("parts.0.text").String() != "hello" {
		t.Errorf("content[0] = %s", contents[0].Raw)
	}
	if got := root.Get("request.generationConfig.temperature").Float(); got != 0.5 {
		t.Errorf("temperature = %v", got)
	}
	if got := root.Get("request.generationConfig.maxOutputTokens").Int(); got != 256 {
		t.Errorf("maxOutputTokens = %v", got)
	}
	if n := len(root.Get("request.safetySettings").Array()); n != 5 {
		t.Errorf("safetySettings = %d entries, want 5", n)
	}
}

func TestGeminiToolCallsAndResponses(t *testing.T) {
	req := &ir.ChatRequest{
		Model: "gemini-2.5-pro",
		Messages: []ir.Message{
			ir.TextMessage(ir.RoleUser, "weather?"),
			{
				Role:      ir.RoleAssistant,
				ToolCalls: []ir.ToolCall{{ID: "c1", Name: "get_weather", Args: `{"city":"Tokyo"}`}},
			},
			{
				Role:       ir.RoleTool,
				ToolCallID: "c1",
				Parts:      []ir.ContentPart{{Type: ir.ContentTypeText, Text: "21C"}},
			},
		},
	}
	body, err := ToGeminiCLIRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	root := gjson.ParseBytes(body)
	contents := root.Get("request.contents").Array()
	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}

	call := contents[1].Get("parts.0")
	if call.Get("functionCall.name").String() != "get_weather" {
		t.Errorf("functionCall = %s", call.Raw)
	}
	if call.Get("functionCall.args.city").String() != "Tokyo" {
		t.Errorf("args = %s", call.Get("functionCall.args").Raw)
	}
	if call.Get("thoughtSignature").String() != ThoughtSignatureMarker {
		t.Errorf("thoughtSignature = %q", call.Get("thoughtSignature").String())
	}

	resp := contents[2]
	if resp.Get("role").String() != "user" {
		t.Errorf("functionResponse role = %q", resp.Get("role").String())
	}
	fr := resp.Get("parts.0.functionResponse")
	if fr.Get("name").String() != "get_weather" || fr.Get("response.result").String() != "21C" {
		t.Errorf("functionResponse = %s", fr.Raw)
	}
}

func TestGeminiConsecutiveToolResultsGrouped(t *testing.T) {
	req := &ir.ChatRequest{
		Model: "gemini-2.5-pro",
		Messages: []ir.Message{
			ir.TextMessage(ir.RoleUser, "both please"),
			{
				Role: ir.RoleAssistant,
				ToolCalls: []ir.ToolCall{
					{ID: "c1", Name: "tool_a", Args: `{}`},
					{ID: "c2", Name: "tool_b", Args: `{}`},
				},
			},
			{Role: ir.RoleTool, ToolCallID: "c1", Parts: []ir.ContentPart{{Type: ir.ContentTypeText, Text: "A"}}},
			{Role: ir.RoleTool, ToolCallID: "c2", Parts: []ir.ContentPart{{Type: ir.ContentTypeText, Text: "B"}}},
		},
	}
	body, err := ToGeminiCLIRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	contents := gjson.GetBytes(body, "request.contents").Array()
	if len(contents) != 3 {
		t.Fatalf("contents = %d, want tool results grouped into one user turn", len(contents))
	}
	parts := contents[2].Get("parts").Array()
	if len(parts) != 2 {
		t.Fatalf("grouped parts = %d, want 2", len(parts))
	}
	if parts[0].Get("functionResponse.name").String() != "tool_a" ||
		parts[1].Get("functionResponse.name").String() != "tool_b" {
		t.Errorf("grouped responses = %s", contents[2].Raw)
	}
}

func TestGeminiToolDeclarations(t *testing.T) {
	req := &ir.ChatRequest{
		Model:    "gemini-2.5-pro",
		Messages: []ir.Message{ir.TextMessage(ir.RoleUser, "x")},
		Tools: []ir.ToolDefinition{{
			Name:        "get_weather",
			Description: "weather lookup",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"city": map[string]any{"type": "string"}},
			},
		}},
		Raw: []byte(`{"tools":[{"type":"function"},{"google_search":{}}]}`),
	}
	body, err := ToGeminiCLIRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	tools := gjson.GetBytes(body, "request.tools").Array()
	if len(tools) != 2 {
		t.Fatalf("tools = %d, want declarations + googleSearch", len(tools))
	}
	decl := tools[0].Get("functionDeclarations.0")
	if decl.Get("name").String() != "get_weather" {
		t.Errorf("declaration = %s", decl.Raw)
	}
	if !decl.Get("parameters").Exists() {
		t.Error("parameters key missing on declaration")
	}
	if !tools[1].Get("googleSearch").Exists() {
		t.Errorf("googleSearch passthrough missing: %s", tools[1].Raw)
	}
}

func TestGeminiThinkingConfig(t *testing.T) {
	tests := []struct {
		effort     string
		wantBudget int64
		wantLevel  string
		include    bool
		none       bool
	}{
		{effort: "", none: true},
		{effort: "auto", wantBudget: -1, include: true},
		{effort: "high", wantLevel: "high", include: true},
		{effort: "none", wantLevel: "none", include: false},
	}
	for _, tt := range tests {
		t.Run("effort="+tt.effort, func(t *testing.T) {
			req := &ir.ChatRequest{
				Model:           "gemini-2.5-pro",
				Messages:        []ir.Message{ir.TextMessage(ir.RoleUser, "x")},
				ReasoningEffort: tt.effort,
			}
			body, err := ToGeminiCLIRequest(req)
			if err != nil {
				t.Fatal(err)
			}
			tc := gjson.GetBytes(body, "request.generationConfig.thinkingConfig")
			if tt.none {
				if tc.Exists() {
					t.Fatalf("thinkingConfig present: %s", tc.Raw)
				}
				return
			}
			if tt.wantBudget != 0 && tc.Get("thinkingBudget").Int() != tt.wantBudget {
				t.Errorf("thinkingBudget = %v", tc.Get("thinkingBudget").Int())
			}
			if tt.wantLevel != "" && tc.Get("thinkingLevel").String() != tt.wantLevel {
				t.Errorf("thinkingLevel = %q", tc.Get("thinkingLevel").String())
			}
			if tc.Get("includeThoughts").Bool() != tt.include {
				t.Errorf("includeThoughts = %v, want %v", tc.Get("includeThoughts").Bool(), tt.include)
			}
		})
	}
}

func TestGeminiInlineAttachments(t *testing.T) {
	req := &ir.ChatRequest{
		Model: "gemini-2.5-pro",
		Messages: []ir.Message{{
			Role: ir.RoleUser,
			Parts: []ir.ContentPart{
				{Type: ir.ContentTypeImage, Image: &ir.ImagePart{MimeType: "image/png", Data: "aW1n"}},
				{Type: ir.ContentTypeFile, File: &ir.FilePart{Filename: "report.pdf", Data: "cGRm"}},
				{Type: ir.ContentTypeFile, File: &ir.FilePart{Filename: "binary.exe", Data: "eHg="}},
			},
		}},
	}
	body, err := ToGeminiCLIRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	parts := gjson.GetBytes(body, "request.contents.0.parts").Array()
	if len(parts) != 2 {
		t.Fatalf("parts = %d, want image + pdf (unknown extension dropped)", len(parts))
	}
	if parts[0].Get("inlineData.mimeType").String() != "image/png" {
		t.Errorf("image part = %s", parts[0].Raw)
	}
	if parts[1].Get("inlineData.mimeType").String() != "application/pdf" {
		t.Errorf("pdf part = %s", parts[1].Raw)
	}
}
