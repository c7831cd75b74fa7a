package from_ir

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

func TestToKiroRequestBasic(t *testing.T) {
	req := &ir.ChatRequest{
		Model: "kiro-claude-sonnet-4-5",
		Messages: []ir.Message{
			ir.TextMessage(ir.RoleSystem, "be brief"),
			ir.TextMessage(ir.RoleUser, "hello"),
		},
	}
	body, err := ToKiroRequest(req, KiroOptions{ProfileArn: "arn:aws:codewhisperer:us-east-1:123:profile/x"})
	if err != nil {
		t.Fatal(err)
	}
	root := gjson.ParseBytes(body)
	if root.Get("profileArn").String() == "" {
		t.Error("profileArn missing")
	}
	state := root.Get("conversationState")
	if state.Get("chatTriggerType").String() != "MANUAL" {
		t.Errorf("chatTriggerType = %q", state.Get("chatTriggerType").String())
	}
	if state.Get("conversationId").String() == "" {
		t.Error("conversationId missing")
	}
	msg := state.Get("currentMessage.userInputMessage")
	if msg.Get("modelId").String() != "claude-sonnet-4-5" {
		t.Errorf("modelId = %q, want prefix stripped", msg.Get("modelId").String())
	}
	if msg.Get("origin").String() != "AI_EDITOR" {
		t.Errorf("origin = %q", msg.Get("origin").String())
	}
	content := msg.Get("content").String()
	if !strings.Contains(content, "be brief") || !strings.Contains(content, "hello") {
		t.Errorf("system text not folded into sole user turn: %q", content)
	}
	if state.Get("history").Exists() {
		t.Error("single-turn conversation should carry no history")
	}
}

func TestKiroHistoryFlattening(t *testing.T) {
	req := &ir.ChatRequest{
		Model: "kiro-claude-sonnet-4-5",
		Messages: []ir.Message{
			ir.TextMessage(ir.RoleUser, "first"),
			ir.TextMessage(ir.RoleAssistant, "answer one"),
			ir.TextMessage(ir.RoleUser, "second"),
			ir.TextMessage(ir.RoleUser, "second again"),
			ir.TextMessage(ir.RoleAssistant, "answer two"),
			ir.TextMessage(ir.RoleUser, "third"),
		},
	}
	body, err := ToKiroRequest(req, KiroOptions{})
	if err != nil {
		t.Fatal(err)
	}
	history := gjson.GetBytes(body, "conversationState.history").Array()
	if len(history) != 4 {
		t.Fatalf("history = %d entries, want user/assistant/user/assistant", len(history))
	}
	if history[0].Get("userInputMessage.content").String() != "first" {
		t.Errorf("history[0] = %s", history[0].Raw)
	}
	if history[1].Get("assistantResponseMessage.content").String() != "answer one" {
		t.Errorf("history[1] = %s", history[1].Raw)
	}
	// Consecutive same-role turns merge.
	merged := history[2].Get("userInputMessage.content").String()
	if merged != "second\nsecond again" {
		t.Errorf("merged user turn = %q", merged)
	}
	current := gjson.GetBytes(body, "conversationState.currentMessage.userInputMessage.content").String()
	if current != "third" {
		t.Errorf("current = %q", current)
	}
}

func TestKiroToolCallsAndResults(t *testing.T) {
	req := &ir.ChatRequest{
		Model: "kiro-claude-sonnet-4-5",
		Messages: []ir.Message{
			ir.TextMessage(ir.RoleUser, "weather?"),
			{
				Role:      ir.RoleAssistant,
				ToolCalls: []ir.ToolCall{{ID: "t1", Name: "get_weather", Args: `{"city":"Tokyo"}`}},
			},
			{
				Role:       ir.RoleTool,
				ToolCallID: "t1",
				Parts:      []ir.ContentPart{{Type: ir.ContentTypeText, Text: "21C"}},
			},
			ir.TextMessage(ir.RoleUser, "and tomorrow?"),
		},
		Tools: []ir.ToolDefinition{{Name: "get_weather", Description: "weather lookup"}},
	}
	body, err := ToKiroRequest(req, KiroOptions{})
	if err != nil {
		t.Fatal(err)
	}
	history := gjson.GetBytes(body, "conversationState.history").Array()
	if len(history) != 2 {
		t.Fatalf("history = %d entries", len(history))
	}
	uses := history[1].Get("assistantResponseMessage.toolUses").Array()
	if len(uses) != 1 || uses[0].Get("name").String() != "get_weather" ||
		uses[0].Get("input.city").String() != "Tokyo" {
		t.Errorf("toolUses = %s", history[1].Raw)
	}

	current := gjson.GetBytes(body, "conversationState.currentMessage.userInputMessage")
	results := current.Get("userInputMessageContext.toolResults").Array()
	if len(results) != 1 || results[0].Get("toolUseId").String() != "t1" ||
		results[0].Get("content.0.text").String() != "21C" {
		t.Errorf("toolResults = %s", current.Raw)
	}
	specs := current.Get("userInputMessageContext.tools").Array()
	if len(specs) != 1 || specs[0].Get("toolSpecification.name").String() != "get_weather" {
		t.Errorf("tool specs = %s", current.Get("userInputMessageContext.tools").Raw)
	}
}

func TestKiroToolCallsWithoutDeclarationsFlattenToText(t *testing.T) {
	req := &ir.ChatRequest{
		Model: "kiro-claude-sonnet-4-5",
		Messages: []ir.Message{
			ir.TextMessage(ir.RoleUser, "weather?"),
			{
				Role:      ir.RoleAssistant,
				ToolCalls: []ir.ToolCall{{ID: "t1", Name: "get_weather", Args: `{}`}},
			},
			{
				Role:       ir.RoleTool,
				ToolCallID: "t1",
				Parts:      []ir.ContentPart{{Type: ir.ContentTypeText, Text: "21C"}},
			},
		},
	}
	body, err := ToKiroRequest(req, KiroOptions{})
	if err != nil {
		t.Fatal(err)
	}
	history := gjson.GetBytes(body, "conversationState.history").Array()
	if len(history) != 2 {
		t.Fatalf("history = %d entries", len(history))
	}
	asst := history[1].Get("assistantResponseMessage")
	if asst.Get("toolUses").Exists() {
		t.Error("toolUses should flatten to text when no tools are declared")
	}
	if !strings.Contains(asst.Get("content").String(), "[Tool: get_weather]") {
		t.Errorf("assistant content = %q", asst.Get("content").String())
	}
	current := gjson.GetBytes(body, "conversationState.currentMessage.userInputMessage.content").String()
	if !strings.Contains(current, "[Tool Result]") || !strings.Contains(current, "21C") {
		t.Errorf("current = %q", current)
	}
}

func TestKiroToolNameTooLong(t *testing.T) {
	req := &ir.ChatRequest{
		Model:    "kiro-claude-sonnet-4-5",
		Messages: []ir.Message{ir.TextMessage(ir.RoleUser, "x")},
		Tools:    []ir.ToolDefinition{{Name: strings.Repeat("n", ir.MaxToolNameLength+1)}},
	}
	if _, err := ToKiroRequest(req, KiroOptions{}); err == nil {
		t.Error("expected error for oversized tool name")
	}
}

func TestKiroOversizedToolDescription(t *testing.T) {
	req := &ir.ChatRequest{
		Model:    "kiro-claude-sonnet-4-5",
		Messages: []ir.Message{ir.TextMessage(ir.RoleUser, "hello")},
		Tools: []ir.ToolDefinition{{
			Name:        "big_tool",
			Description: strings.Repeat("d", maxInlineToolDescription+1),
		}},
	}
	body, err := ToKiroRequest(req, KiroOptions{})
	if err != nil {
		t.Fatal(err)
	}
	spec := gjson.GetBytes(body, "conversationState.currentMessage.userInputMessage.userInputMessageContext.tools.0.toolSpecification")
	if !strings.Contains(spec.Get("description").String(), "## Tool: big_tool") {
		t.Errorf("inline description = %q, want pointer", spec.Get("description").String())
	}
	content := gjson.GetBytes(body, "conversationState.currentMessage.userInputMessage.content").String()
	if !strings.Contains(content, "## Tool: big_tool") {
		t.Error("appendix not folded into system text")
	}
}

func TestKiroFakeReasoning(t *testing.T) {
	req := &ir.ChatRequest{
		Model:    "kiro-claude-sonnet-4-5",
		Messages: []ir.Message{ir.TextMessage(ir.RoleUser, "hello")},
	}
	body, err := ToKiroRequest(req, KiroOptions{FakeReasoning: true})
	if err != nil {
		t.Fatal(err)
	}
	content := gjson.GetBytes(body, "conversationState.currentMessage.userInputMessage.content").String()
	if !strings.HasPrefix(content, thinkingInstruction) {
		t.Errorf("content = %q, want instruction folded first", content)
	}
	if !strings.Contains(content, thinkingModeBlock+"\nhello") {
		t.Errorf("content = %q, want thinking mode block before user text", content)
	}
}

func TestKiroConversationIDStable(t *testing.T) {
	messages := []ir.Message{
		ir.TextMessage(ir.RoleUser, "one"),
		ir.TextMessage(ir.RoleAssistant, "two"),
		ir.TextMessage(ir.RoleUser, "three"),
		ir.TextMessage(ir.RoleAssistant, "four"),
		ir.TextMessage(ir.RoleUser, "five"),
	}
	a := kiroConversationID(messages)
	if a != kiroConversationID(messages) {
		t.Error("conversation id not stable")
	}
	if len(a) != 16 {
		t.Errorf("conversation id length = %d, want 16", len(a))
	}
	other := kiroConversationID(messages[:1])
	if a == other {
		t.Error("different conversations share an id")
	}
	if kiroConversationID(nil) == kiroConversationID(nil) {
		t.Error("empty conversations should get fresh ids")
	}
}

func TestKiroTrailingAssistantAppendsContinue(t *testing.T) {
	req := &ir.ChatRequest{
		Model: "kiro-claude-sonnet-4-5",
		Messages: []ir.Message{
			ir.TextMessage(ir.RoleUser, "hello"),
			ir.TextMessage(ir.RoleAssistant, "partial"),
		},
	}
	body, err := ToKiroRequest(req, KiroOptions{})
	if err != nil {
		t.Fatal(err)
	}
	current := gjson.GetBytes(body, "conversationState.currentMessage.userInputMessage.content").String()
	if current != "Continue." {
		t.Errorf("current = %q, want synthetic continuation", current)
	}
}
