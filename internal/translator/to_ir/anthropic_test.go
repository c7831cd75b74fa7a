package to_ir

import (
	"fmt"
	"testing"

	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

func TestParseAnthropicMessagesBasic(t *testing.T) {
	body := []byte(`{
		"model": "claude-sonnet-4-5",
		"max_tokens": 1024,
		"system": "Answer briefly.",
		"stop_sequences": ["STOP"],
		"messages": [{"role": "user", "content": "Hello"}]
	}`)
	req, err := ParseAnthropicMessages(body)
	if err != nil {
		t.Fatalf("ParseAnthropicMessages: %v", err)
	}
	if req.Model != "claude-sonnet-4-5" {
		t.Errorf("model = %q", req.Model)
	}
	if req.MaxTokens == nil || *req.MaxTokens != 1024 {
		t.Errorf("max_tokens = %v", req.MaxTokens)
	}
	if len(req.Stop) != 1 || req.Stop[0] != "STOP" {
		t.Errorf("stop = %v", req.Stop)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want system + user", len(req.Messages))
	}
	if req.Messages[0].Role != ir.RoleSystem || req.Messages[0].Text() != "Answer briefly." {
		t.Errorf("system = %+v", req.Messages[0])
	}
}

func TestParseAnthropicSystemPartArray(t *testing.T) {
	body := []byte(`{
		"model": "claude-sonnet-4-5",
		"system": [{"type":"text","text":"one"},{"type":"text","text":"two"}],
		"messages": [{"role":"user","content":"x"}]
	}`)
	req, err := ParseAnthropicMessages(body)
	if err != nil {
		t.Fatal(err)
	}
	if req.Messages[0].Text() != "one\ntwo" {
		t.Errorf("system text = %q", req.Messages[0].Text())
	}
}

func TestParseAnthropicToolUseAndResult(t *testing.T) {
	body := []byte(`{
		"model": "claude-sonnet-4-5",
		"messages": [
			{"role": "user", "content": "weather?"},
			{"role": "assistant", "content": [
				{"type": "text", "text": "checking"},
				{"type": "tool_use", "id": "toolu_1", "name": "get_weather", "input": {"city": "Tokyo"}}
			]},
			{"role": "user", "content": [
				{"type": "tool_result", "tool_use_id": "toolu_1", "content": [{"type":"text","text":"21C"}]}
			]}
		]
	}`)
	req, err := ParseAnthropicMessages(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(req.Messages) != 3 {
		t.Fatalf("messages = %d, want 3", len(req.Messages))
	}
	asst := req.Messages[1]
	if asst.Role != ir.RoleAssistant || len(asst.ToolCalls) != 1 {
		t.Fatalf("assistant = %+v", asst)
	}
	if asst.ToolCalls[0].ID != "toolu_1" || asst.ToolCalls[0].Args != `{"city": "Tokyo"}` {
		t.Errorf("tool call = %+v", asst.ToolCalls[0])
	}
	toolMsg := req.Messages[2]
	if toolMsg.Role != ir.RoleTool || toolMsg.ToolCallID != "toolu_1" || toolMsg.Text() != "21C" {
		t.Errorf("tool result = %+v", toolMsg)
	}
}

func TestParseAnthropicThinkingBudget(t *testing.T) {
	tests := []struct {
		budget int
		want   string
	}{
		{512, "low"},
		{4096, "medium"},
		{20000, "high"},
	}
	for _, tt := range tests {
		req, err := ParseAnthropicMessages([]byte(fmt.Sprintf(
			`{"model":"claude-sonnet-4-5","thinking":{"type":"enabled","budget_tokens":%d},"messages":[{"role":"user","content":"x"}]}`,
			tt.budget)))
		if err != nil {
			t.Fatal(err)
		}
		if req.ReasoningEffort != tt.want {
			t.Errorf("budget %d -> effort %q, want %q", tt.budget, req.ReasoningEffort, tt.want)
		}
	}
}

func TestParseAnthropicToolDefinitions(t *testing.T) {
	body := []byte(`{
		"model": "claude-sonnet-4-5",
		"messages": [{"role":"user","content":"x"}],
		"tools": [{"name": "search", "description": "web search",
			"input_schema": {"type":"object","properties":{"q":{"type":"string"}}}}]
	}`)
	req, err := ParseAnthropicMessages(body)
	if err != nil {
		t.Fatal(err)
	}
	if len(req.Tools) != 1 || req.Tools[0].Name != "search" {
		t.Fatalf("tools = %+v", req.Tools)
	}
	if req.Tools[0].Parameters["type"] != "object" {
		t.Errorf("input_schema = %v", req.Tools[0].Parameters)
	}
}
