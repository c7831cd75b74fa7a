package from_ir

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

func TestToCodexRequestBasic(t *testing.T) {
	req := &ir.ChatRequest{
		Model:  "gpt-5",
		Stream: true,
		Messages: []ir.Message{
			ir.TextMessage(ir.RoleSystem, "be brief"),
			ir.TextMessage(ir.RoleUser, "hello"),
		},
		MaxTokens: intPtr(512),
	}
	body, reverse, err := ToCodexRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	if len(reverse) != 0 {
		t.Errorf("reverse map = %v, want empty without tools", reverse)
	}
	root := gjson.ParseBytes(body)
	if root.Get("model").String() != "gpt-5" || !root.Get("stream").Bool() {
		t.Errorf("model/stream = %q/%v", root.Get("model").String(), root.Get("stream").Bool())
	}
	if root.Get("store").Bool() {
		t.Error("store should be false")
	}
	if root.Get("reasoning.effort").String() != "medium" {
		t.Errorf("default effort = %q", root.Get("reasoning.effort").String())
	}
	if root.Get("include.0").String() != "reasoning.encrypted_content" {
		t.Errorf("include = %s", root.Get("include").Raw)
	}
	if root.Get("max_output_tokens").Int() != 512 {
		t.Errorf("max_output_tokens = %v", root.Get("max_output_tokens").Int())
	}

	input := root.Get("input").Array()
	if len(input) != 2 {
		t.Fatalf("input = %d items", len(input))
	}
	if input[0].Get("role").String() != "developer" ||
		input[0].Get("content.0.type").String() != "input_text" {
		t.Errorf("developer item = %s", input[0].Raw)
	}
	if input[1].Get("role").String() != "user" ||
		input[1].Get("content.0.text").String() != "hello" {
		t.Errorf("user item = %s", input[1].Raw)
	}
}

func TestCodexReasoningEffort(t *testing.T) {
	tests := []struct {
		effort string
		want   string
	}{
		{"", "medium"},
		{"auto", "medium"},
		{"high", "high"},
		{"low", "low"},
	}
	for _, tt := range tests {
		req := &ir.ChatRequest{
			Model:           "gpt-5",
			Messages:        []ir.Message{ir.TextMessage(ir.RoleUser, "x")},
			ReasoningEffort: tt.effort,
		}
		body, _, err := ToCodexRequest(req)
		if err != nil {
			t.Fatal(err)
		}
		if got := gjson.GetBytes(body, "reasoning.effort").String(); got != tt.want {
			t.Errorf("effort %q -> %q, want %q", tt.effort, got, tt.want)
		}
	}
}

func TestCodexToolCallHistory(t *testing.T) {
	req := &ir.ChatRequest{
		Model: "gpt-5",
		Messages: []ir.Message{
			ir.TextMessage(ir.RoleUser, "weather?"),
			{
				Role:      ir.RoleAssistant,
				Parts:     []ir.ContentPart{{Type: ir.ContentTypeText, Text: "checking"}},
				ToolCalls: []ir.ToolCall{{ID: "call_1", Name: "get_weather", Args: `{"city":"Tokyo"}`}},
			},
			{
				Role:       ir.RoleTool,
				ToolCallID: "call_1",
				Parts:      []ir.ContentPart{{Type: ir.ContentTypeText, Text: "21C"}},
			},
		},
	}
	body, _, err := ToCodexRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	input := gjson.GetBytes(body, "input").Array()
	if len(input) != 4 {
		t.Fatalf("input = %d items, want user + assistant text + call + output", len(input))
	}
	if input[1].Get("content.0.type").String() != "output_text" {
		t.Errorf("assistant item = %s", input[1].Raw)
	}
	call := input[2]
	if call.Get("type").String() != "function_call" ||
		call.Get("call_id").String() != "call_1" ||
		call.Get("name").String() != "get_weather" {
		t.Errorf("function_call item = %s", call.Raw)
	}
	out := input[3]
	if out.Get("type").String() != "function_call_output" || out.Get("output").String() != "21C" {
		t.Errorf("output item = %s", out.Raw)
	}
}

func TestCodexToolNameShortening(t *testing.T) {
	long := "mcp__some-very-long-server-name-that-overflows-the-limit__search_documents"
	req := &ir.ChatRequest{
		Model:    "gpt-5",
		Messages: []ir.Message{ir.TextMessage(ir.RoleUser, "x")},
		Tools: []ir.ToolDefinition{
			{Name: long},
			{Name: "short_tool"},
		},
	}
	body, reverse, err := ToCodexRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	tools := gjson.GetBytes(body, "tools").Array()
	if len(tools) != 2 {
		t.Fatalf("tools = %d", len(tools))
	}
	short := tools[0].Get("name").String()
	if short != "mcp__search_documents" {
		t.Errorf("shortened name = %q", short)
	}
	if len(short) > ir.MaxToolNameLength {
		t.Errorf("shortened name still %d chars", len(short))
	}
	if reverse[short] != long {
		t.Errorf("reverse[%q] = %q, want original", short, reverse[short])
	}
	if _, ok := reverse["short_tool"]; ok {
		t.Error("unchanged name should not appear in reverse map")
	}
	if tools[1].Get("parameters.type").String() != "object" {
		t.Errorf("empty parameters not defaulted: %s", tools[1].Raw)
	}
}

func TestShortenToolNamesCollision(t *testing.T) {
	prefix := strings.Repeat("a", ir.MaxToolNameLength)
	tools := []ir.ToolDefinition{
		{Name: prefix + "_one"},
		{Name: prefix + "_two"},
		{Name: prefix + "_three"},
	}
	names := shortenToolNames(tools)
	seen := make(map[string]bool, len(names))
	for orig, short := range names {
		if len(short) > ir.MaxToolNameLength {
			t.Errorf("%q shortened to %d chars", orig, len(short))
		}
		if seen[short] {
			t.Errorf("duplicate short name %q", short)
		}
		seen[short] = true
	}
}

func TestCodexUnsupportedRole(t *testing.T) {
	req := &ir.ChatRequest{
		Model:    "gpt-5",
		Messages: []ir.Message{{Role: "wizard"}},
	}
	if _, _, err := ToCodexRequest(req); err == nil {
		t.Error("expected error for unsupported role")
	}
}
