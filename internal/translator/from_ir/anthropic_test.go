package from_ir

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

func TestToAnthropicRequestBasic(t *testing.T) {
	req := &ir.ChatRequest{
		Model:  "claude-sonnet-4-5",
		Stream: true,
		Messages: []ir.Message{
			ir.TextMessage(ir.RoleSystem, "be brief"),
			ir.TextMessage(ir.RoleUser, "hello"),
		},
		Stop: []string{"HALT"},
	}
	body, err := ToAnthropicRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	root := gjson.ParseBytes(body)
	if root.Get("model").String() != "claude-sonnet-4-5" || !root.Get("stream").Bool() {
		t.Errorf("model/stream = %q/%v", root.Get("model").String(), root.Get("stream").Bool())
	}
	if root.Get("max_tokens").Int() != anthropicDefaultMaxTokens {
		t.Errorf("max_tokens = %v, want default", root.Get("max_tokens").Int())
	}
	if root.Get("system").String() != "be brief" {
		t.Errorf("system = %q", root.Get("system").String())
	}
	if root.Get("stop_sequences.0").String() != "HALT" {
		t.Errorf("stop_sequences = %s", root.Get("stop_sequences").Raw)
	}
	messages := root.Get("messages").Array()
	if len(messages) != 1 {
		t.Fatalf("messages = %d, want system trimmed", len(messages))
	}
	if messages[0].Get("content.0.text").String() != "hello" {
		t.Errorf("user content = %s", messages[0].Raw)
	}
}

func TestToAnthropicRequestThinkingBudget(t *testing.T) {
	tests := []struct {
		effort string
		budget int64
	}{
		{"", 0},
		{"none", 0},
		{"low", 1024},
		{"medium", 8192},
		{"high", 32768},
		{"auto", 32768},
	}
	for _, tt := range tests {
		req := &ir.ChatRequest{
			Model:           "claude-sonnet-4-5",
			Messages:        []ir.Message{ir.TextMessage(ir.RoleUser, "x")},
			ReasoningEffort: tt.effort,
		}
		body, err := ToAnthropicRequest(req)
		if err != nil {
			t.Fatal(err)
		}
		got := gjson.GetBytes(body, "thinking.budget_tokens").Int()
		if got != tt.budget {
			t.Errorf("effort %q -> budget %d, want %d", tt.effort, got, tt.budget)
		}
	}
}

func TestToAnthropicRequestToolHistory(t *testing.T) {
	req := &ir.ChatRequest{
		Model: "claude-sonnet-4-5",
		Messages: []ir.Message{
			ir.TextMessage(ir.RoleUser, "weather?"),
			{
				Role:      ir.RoleAssistant,
				Parts:     []ir.ContentPart{{Type: ir.ContentTypeText, Text: "checking"}},
				ToolCalls: []ir.ToolCall{{ID: "toolu_1", Name: "get_weather", Args: `{"city":"Tokyo"}`}},
			},
			{
				Role:       ir.RoleTool,
				ToolCallID: "toolu_1",
				Parts:      []ir.ContentPart{{Type: ir.ContentTypeText, Text: "21C"}},
			},
		},
		Tools: []ir.ToolDefinition{{Name: "get_weather", Description: "weather lookup"}},
	}
	body, err := ToAnthropicRequest(req)
	if err != nil {
		t.Fatal(err)
	}
	root := gjson.ParseBytes(body)
	messages := root.Get("messages").Array()
	if len(messages) != 3 {
		t.Fatalf("messages = %d", len(messages))
	}
	asst := messages[1].Get("content").Array()
	if len(asst) != 2 || asst[0].Get("type").String() != "text" {
		t.Fatalf("assistant content = %s", messages[1].Raw)
	}
	use := asst[1]
	if use.Get("type").String() != "tool_use" || use.Get("id").String() != "toolu_1" ||
		use.Get("input.city").String() != "Tokyo" {
		t.Errorf("tool_use = %s", use.Raw)
	}
	result := messages[2].Get("content.0")
	if result.Get("type").String() != "tool_result" ||
		result.Get("tool_use_id").String() != "toolu_1" ||
		result.Get("content").String() != "21C" {
		t.Errorf("tool_result = %s", result.Raw)
	}
	if root.Get("tools.0.input_schema.type").String() != "object" {
		t.Errorf("tool schema not defaulted: %s", root.Get("tools.0").Raw)
	}
}

func collectSSE(t *testing.T, st *AnthropicStreamState, events []ir.Event) string {
	t.Helper()
	var b strings.Builder
	for _, ev := range events {
		b.Write(ToAnthropicSSE(ev, st))
	}
	return b.String()
}

// sseEvents returns the event names in the order they appear in the stream.
func sseEvents(raw string) []string {
	var names []string
	for _, line := range strings.Split(raw, "\n") {
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
		}
	}
	return names
}

func TestAnthropicSSETextStream(t *testing.T) {
	st := NewAnthropicStreamState("msg_1", "claude-sonnet-4-5")
	raw := collectSSE(t, st, []ir.Event{
		{Type: ir.EventText, Text: "Hel"},
		{Type: ir.EventText, Text: "lo"},
		{Type: ir.EventUsage, Usage: &ir.Usage{PromptTokens: 10, CompletionTokens: 5}},
		{Type: ir.EventFinish, Finish: ir.FinishStop},
	})

	want := []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}
	got := sseEvents(raw)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %q, want %q\n%s", i, got[i], want[i], raw)
		}
	}
	if !strings.Contains(raw, `"stop_reason":"end_turn"`) {
		t.Errorf("stop_reason missing: %s", raw)
	}
	if !strings.Contains(raw, `"input_tokens":10`) || !strings.Contains(raw, `"output_tokens":5`) {
		t.Errorf("usage not carried into message_delta: %s", raw)
	}
}

func TestAnthropicSSEThinkingThenText(t *testing.T) {
	st := NewAnthropicStreamState("msg_1", "claude-sonnet-4-5")
	raw := collectSSE(t, st, []ir.Event{
		{Type: ir.EventReasoning, Reasoning: "pondering"},
		{Type: ir.EventText, Text: "answer"},
		{Type: ir.EventFinish, Finish: ir.FinishStop},
	})
	if !strings.Contains(raw, `"type":"thinking"`) {
		t.Errorf("thinking block missing: %s", raw)
	}
	if !strings.Contains(raw, `"thinking_delta"`) || !strings.Contains(raw, `"text_delta"`) {
		t.Errorf("deltas missing: %s", raw)
	}
	// Thinking closes at index 0, text opens at index 1.
	if !strings.Contains(raw, `"index":1`) {
		t.Errorf("text block did not advance the index: %s", raw)
	}
}

func TestAnthropicSSEToolCallForcesStopReason(t *testing.T) {
	st := NewAnthropicStreamState("msg_1", "claude-sonnet-4-5")
	raw := collectSSE(t, st, []ir.Event{
		{Type: ir.EventToolCallStart, ToolCallID: "toolu_1", ToolCallName: "get_weather", ToolCallArgs: `{"city":"Tokyo"}`},
		{Type: ir.EventFinish, Finish: ir.FinishStop},
	})
	if !strings.Contains(raw, `"type":"tool_use"`) {
		t.Errorf("tool_use block missing: %s", raw)
	}
	if !strings.Contains(raw, `"input_json_delta"`) {
		t.Errorf("input_json_delta missing: %s", raw)
	}
	if !strings.Contains(raw, `"stop_reason":"tool_use"`) {
		t.Errorf("stop_reason = %s", raw)
	}
}

func TestAnthropicSSEIncrementalToolArgs(t *testing.T) {
	st := NewAnthropicStreamState("msg_1", "claude-sonnet-4-5")
	raw := collectSSE(t, st, []ir.Event{
		{Type: ir.EventToolCallStart, ToolCallID: "toolu_1", ToolCallName: "get_weather"},
		{Type: ir.EventToolCallArgs, ToolCallArgs: `{"city":`},
		{Type: ir.EventToolCallArgs, ToolCallArgs: `"Tokyo"}`},
		{Type: ir.EventToolCallStart, ToolCallID: "toolu_2", ToolCallName: "get_time"},
		{Type: ir.EventToolCallArgs, ToolCallArgs: `{}`},
		{Type: ir.EventFinish, Finish: ir.FinishToolCalls},
	})

	want := []string{
		"message_start",
		"content_block_start",
		"content_block_delta",
		"content_block_delta",
		"content_block_stop",
		"content_block_start",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}
	got := sseEvents(raw)
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event[%d] = %q, want %q\n%s", i, got[i], want[i], raw)
		}
	}
	if !strings.Contains(raw, `"name":"get_time"`) {
		t.Errorf("second tool block missing: %s", raw)
	}
	// The second tool block opens at its own index, after the first closed.
	if !strings.Contains(raw, `"index":1`) {
		t.Errorf("second tool block did not advance the index: %s", raw)
	}
	if !strings.Contains(raw, `"stop_reason":"tool_use"`) {
		t.Errorf("stop_reason = %s", raw)
	}
}

func TestAnthropicSSEIncrementalToolThenFinishClosesBlock(t *testing.T) {
	st := NewAnthropicStreamState("msg_1", "claude-sonnet-4-5")
	raw := collectSSE(t, st, []ir.Event{
		{Type: ir.EventToolCallStart, ToolCallID: "toolu_1", ToolCallName: "get_weather"},
		{Type: ir.EventToolCallArgs, ToolCallArgs: `{"city":"Tokyo"}`},
		{Type: ir.EventFinish, Finish: ir.FinishToolCalls},
	})
	starts := strings.Count(raw, "event: content_block_start\n")
	stops := strings.Count(raw, "event: content_block_stop\n")
	if starts != 1 || stops != 1 {
		t.Errorf("start/stop frames = %d/%d, want balanced: %s", starts, stops, raw)
	}
	if strings.Index(raw, "event: content_block_stop") > strings.Index(raw, "event: message_delta") {
		t.Errorf("tool block closed after message_delta: %s", raw)
	}
}

func TestAnthropicSSEFinishOnce(t *testing.T) {
	st := NewAnthropicStreamState("msg_1", "claude-sonnet-4-5")
	first := ToAnthropicSSE(ir.Event{Type: ir.EventFinish, Finish: ir.FinishStop}, st)
	second := ToAnthropicSSE(ir.Event{Type: ir.EventFinish, Finish: ir.FinishStop}, st)
	if len(first) == 0 {
		t.Fatal("first finish emitted nothing")
	}
	if len(second) != 0 {
		t.Errorf("second finish emitted frames: %s", second)
	}
}

func TestToAnthropicResponseShape(t *testing.T) {
	body, err := ToAnthropicResponse("msg_1", "claude-sonnet-4-5", "hello", "thought",
		[]ir.ToolCall{{ID: "toolu_1", Name: "get_weather", Args: `{"city":"Tokyo"}`}},
		ir.FinishStop, ir.Usage{PromptTokens: 12, CompletionTokens: 7})
	if err != nil {
		t.Fatal(err)
	}
	root := gjson.ParseBytes(body)
	content := root.Get("content").Array()
	if len(content) != 3 {
		t.Fatalf("content = %d blocks", len(content))
	}
	if content[0].Get("type").String() != "thinking" ||
		content[1].Get("type").String() != "text" ||
		content[2].Get("type").String() != "tool_use" {
		t.Errorf("block order = %s", root.Get("content").Raw)
	}
	if root.Get("stop_reason").String() != "tool_use" {
		t.Errorf("stop_reason = %q", root.Get("stop_reason").String())
	}
	if root.Get("usage.input_tokens").Int() != 12 || root.Get("usage.output_tokens").Int() != 7 {
		t.Errorf("usage = %s", root.Get("usage").Raw)
	}
}
