package from_ir

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

func TestToAntigravityRequestEnvelope(t *testing.T) {
	req := &ir.ChatRequest{
		Model:    "gemini-3-pro-preview",
		Messages: []ir.Message{ir.TextMessage(ir.RoleUser, "hello")},
	}
	body, err := ToAntigravityRequest(req, "my-project")
	if err != nil {
		t.Fatal(err)
	}
	root := gjson.ParseBytes(body)

	if root.Get("project").String() != "my-project" {
		t.Errorf("project = %q", root.Get("project").String())
	}
	if root.Get("requestType").String() != "agent" {
		t.Errorf("requestType = %q", root.Get("requestType").String())
	}
	if root.Get("userAgent").String() != "antigravity" {
		t.Errorf("userAgent = %q", root.Get("userAgent").String())
	}
	if !strings.HasPrefix(root.Get("requestId").String(), "agent-") {
		t.Errorf("requestId = %q", root.Get("requestId").String())
	}
	if !root.Get("request.sessionId").Exists() {
		t.Error("sessionId missing")
	}
}

func TestAntigravitySessionIDStable(t *testing.T) {
	messages := []ir.Message{ir.TextMessage(ir.RoleUser, "same question")}
	a := sessionID(messages)
	b := sessionID(messages)
	if a != b {
		t.Errorf("sessionID not stable: %d != %d", a, b)
	}
	if a < 0 {
		t.Errorf("sessionID negative: %d", a)
	}
	other := sessionID([]ir.Message{ir.TextMessage(ir.RoleUser, "different question")})
	if a == other {
		t.Error("different conversations share a session id")
	}
}

func TestSessionKey(t *testing.T) {
	messages := []ir.Message{
		ir.TextMessage(ir.RoleSystem, "sys"),
		ir.TextMessage(ir.RoleUser, "first user text"),
	}
	key := SessionKey(messages)
	if len(key) != 32 {
		t.Errorf("key length = %d, want 32 hex chars", len(key))
	}
	if key != SessionKey(messages) {
		t.Error("SessionKey not stable")
	}
	if SessionKey([]ir.Message{ir.TextMessage(ir.RoleSystem, "only system")}) != "" {
		t.Error("key for conversation without user text should be empty")
	}
}

func TestAntigravityIdentityPromptForClaude(t *testing.T) {
	req := &ir.ChatRequest{
		Model: "claude-sonnet-4-5",
		Messages: []ir.Message{
			ir.TextMessage(ir.RoleSystem, "user instructions"),
			ir.TextMessage(ir.RoleUser, "hello"),
		},
	}
	body, err := ToAntigravityRequest(req, "p")
	if err != nil {
		t.Fatal(err)
	}
	parts := gjson.GetBytes(body, "request.systemInstruction.parts").Array()
	if len(parts) < 3 {
		t.Fatalf("system parts = %d, want identity prompts + user text", len(parts))
	}
	if !strings.Contains(parts[0].Get("text").String(), "You are Antigravity") {
		t.Errorf("first part = %q", parts[0].Get("text").String())
	}
	if !strings.Contains(parts[1].Get("text").String(), "[ignore]") {
		t.Errorf("second part = %q", parts[1].Get("text").String())
	}
	if parts[2].Get("text").String() != "user instructions" {
		t.Errorf("user system text = %q", parts[2].Get("text").String())
	}

	mode := gjson.GetBytes(body, "request.toolConfig.functionCallingConfig.mode").String()
	if mode != "VALIDATED" {
		t.Errorf("functionCallingConfig.mode = %q", mode)
	}
}

func TestAntigravityDialectSelection(t *testing.T) {
	tests := []struct {
		model string
		want  bool
	}{
		{"claude-sonnet-4-5", true},
		{"gemini-3-pro-high", true},
		{"gemini-3-pro-preview", false},
		{"gemini-2.5-pro", false},
	}
	for _, tt := range tests {
		if got := AntigravityDialect(tt.model); got != tt.want {
			t.Errorf("AntigravityDialect(%q) = %v, want %v", tt.model, got, tt.want)
		}
	}
}

func TestAntigravitySchemaKeyRenamed(t *testing.T) {
	req := &ir.ChatRequest{
		Model:    "gemini-3-pro-preview",
		Messages: []ir.Message{ir.TextMessage(ir.RoleUser, "x")},
		Tools: []ir.ToolDefinition{{
			Name: "lookup",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"q": map[string]any{"type": "string"}},
			},
		}},
	}
	body, err := ToAntigravityRequest(req, "p")
	if err != nil {
		t.Fatal(err)
	}
	decl := gjson.GetBytes(body, "request.tools.0.functionDeclarations.0")
	if !decl.Get("parameters").Exists() {
		t.Errorf("declaration lacks parameters key: %s", decl.Raw)
	}
	if decl.Get("parametersJsonSchema").Exists() {
		t.Error("parametersJsonSchema key survived the rename")
	}
}
