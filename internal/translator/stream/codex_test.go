package stream

import (
	"testing"

	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

func feedCodex(t *testing.T, p *CodexProcessor, payloads ...string) []ir.Event {
	t.Helper()
	var events []ir.Event
	for _, payload := range payloads {
		evs, err := p.Process([]byte(payload))
		if err != nil {
			t.Fatalf("Process(%s): %v", payload, err)
		}
		events = append(events, evs...)
	}
	return events
}

func TestCodexProcessorTextFlow(t *testing.T) {
	p := NewCodexProcessor(nil)
	events := feedCodex(t, p,
		`{"type":"response.created","response":{"id":"resp_1","model":"gpt-5","created_at":1756000000}}`,
		`{"type":"response.output_text.delta","delta":"Hel"}`,
		`{"type":"response.output_text.delta","delta":"lo"}`,
		`{"type":"response.completed","response":{"usage":{"input_tokens":10,"output_tokens":5,"total_tokens":15,"output_tokens_details":{"reasoning_tokens":2},"input_tokens_details":{"cached_tokens":3}}}}`,
	)
	if len(events) != 5 {
		t.Fatalf("events = %d, want meta+2 text+usage+finish", len(events))
	}
	if events[0].Type != ir.EventMeta || events[0].Meta.ID != "resp_1" || events[0].Meta.Created != 1756000000 {
		t.Errorf("meta = %+v", events[0])
	}
	if events[1].Text != "Hel" || events[2].Text != "lo" {
		t.Errorf("text = %+v %+v", events[1], events[2])
	}
	u := events[3].Usage
	if u.PromptTokens != 10 || u.CompletionTokens != 5 || u.ReasoningTokens != 2 || u.CachedTokens != 3 {
		t.Errorf("usage = %+v", u)
	}
	if events[4].Finish != ir.FinishStop {
		t.Errorf("finish = %+v", events[4])
	}
}

func TestCodexProcessorReasoningSeparator(t *testing.T) {
	p := NewCodexProcessor(nil)
	events := feedCodex(t, p,
		`{"type":"response.reasoning_summary_text.delta","delta":"thinking"}`,
		`{"type":"response.reasoning_summary_text.done"}`,
	)
	if len(events) != 2 {
		t.Fatalf("events = %d", len(events))
	}
	if events[0].Reasoning != "thinking" {
		t.Errorf("reasoning = %+v", events[0])
	}
	if events[1].Reasoning != "\n\n" {
		t.Errorf("separator = %q", events[1].Reasoning)
	}

	// done without any preceding delta emits nothing
	fresh := NewCodexProcessor(nil)
	if evs := feedCodex(t, fresh, `{"type":"response.reasoning_summary_text.done"}`); len(evs) != 0 {
		t.Errorf("events = %+v, want none", evs)
	}
}

func TestCodexProcessorFunctionCall(t *testing.T) {
	p := NewCodexProcessor(map[string]string{"mcp__search": "mcp__long-server__search"})
	events := feedCodex(t, p,
		`{"type":"response.output_item.done","item":{"type":"function_call","call_id":"call_1","name":"mcp__search","arguments":"{\"q\":\"go\"}"}}`,
		`{"type":"response.output_item.done","item":{"type":"message"}}`,
		`{"type":"response.completed","response":{"usage":{}}}`,
	)
	if len(events) != 3 {
		t.Fatalf("events = %d, want call+usage+finish", len(events))
	}
	call := events[0]
	if call.Type != ir.EventToolCallStart || call.ToolCallID != "call_1" {
		t.Fatalf("call = %+v", call)
	}
	if call.ToolCallName != "mcp__long-server__search" {
		t.Errorf("name = %q, want original restored", call.ToolCallName)
	}
	if call.ToolCallArgs != `{"q":"go"}` {
		t.Errorf("args = %q", call.ToolCallArgs)
	}
	if events[2].Finish != ir.FinishToolCalls {
		t.Errorf("finish = %+v", events[2])
	}
}

func TestCodexProcessorFailed(t *testing.T) {
	p := NewCodexProcessor(nil)
	if _, err := p.Process([]byte(`{"type":"response.failed","response":{"error":{"message":"quota exceeded"}}}`)); err == nil {
		t.Fatal("expected error")
	}
	if _, err := p.Process([]byte(`{"type":"response.failed"}`)); err == nil {
		t.Fatal("expected error for empty failure")
	}
}

func TestCodexProcessorUnknownEventIgnored(t *testing.T) {
	p := NewCodexProcessor(nil)
	events := feedCodex(t, p, `{"type":"response.in_progress"}`, `{"no_type":true}`)
	if len(events) != 0 {
		t.Errorf("events = %+v, want none", events)
	}
}
