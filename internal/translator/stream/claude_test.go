package stream

import (
	"testing"

	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

func feedClaude(t *testing.T, p *ClaudeProcessor, payloads ...string) []ir.Event {
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

func TestClaudeProcessorTextStream(t *testing.T) {
	p := NewClaudeProcessor()
	events := feedClaude(t, p,
		`{"type":"message_start","message":{"id":"msg_1","model":"claude-sonnet-4-5","usage":{"input_tokens":25,"cache_read_input_tokens":5}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`,
		`{"type":"message_stop"}`,
	)
	if len(events) != 4 {
		t.Fatalf("events = %d, want meta+text+usage+finish", len(events))
	}
	if events[0].Meta.ID != "msg_1" || events[0].Meta.Model != "claude-sonnet-4-5" {
		t.Errorf("meta = %+v", events[0].Meta)
	}
	if events[1].Type != ir.EventText || events[1].Text != "Hello" {
		t.Errorf("text = %+v", events[1])
	}
	u := events[2].Usage
	if u.PromptTokens != 25 || u.CompletionTokens != 7 || u.TotalTokens != 32 || u.CachedTokens != 5 {
		t.Errorf("usage = %+v", u)
	}
	fin := events[3]
	if fin.Finish != ir.FinishStop || fin.NativeFinish != "end_turn" {
		t.Errorf("finish = %+v", fin)
	}
}

func TestClaudeProcessorThinkingDelta(t *testing.T) {
	p := NewClaudeProcessor()
	events := feedClaude(t, p,
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"hmm"}}`,
	)
	if len(events) != 1 || events[0].Type != ir.EventReasoning || events[0].Reasoning != "hmm" {
		t.Fatalf("events = %+v", events)
	}
}

func TestClaudeProcessorToolBlockIndexMapping(t *testing.T) {
	p := NewClaudeProcessor()
	events := feedClaude(t, p,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"get_weather"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"city\":"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"Tokyo\"}"}}`,
		`{"type":"content_block_start","index":2,"content_block":{"type":"tool_use","id":"toolu_2","name":"get_time"}}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":3}}`,
		`{"type":"message_stop"}`,
	)
	// text block start emits nothing; tool indices count tool blocks only
	if events[0].Type != ir.EventToolCallStart || events[0].ToolCallIndex != 0 || events[0].ToolCallID != "toolu_1" {
		t.Fatalf("first tool = %+v", events[0])
	}
	if events[1].Type != ir.EventToolCallArgs || events[1].ToolCallIndex != 0 || events[1].ToolCallArgs != `{"city":` {
		t.Errorf("first delta = %+v", events[1])
	}
	if events[3].Type != ir.EventToolCallStart || events[3].ToolCallIndex != 1 {
		t.Errorf("second tool = %+v", events[3])
	}
	fin := events[len(events)-1]
	if fin.Finish != ir.FinishToolCalls || fin.NativeFinish != "tool_use" {
		t.Errorf("finish = %+v", fin)
	}
}

func TestClaudeProcessorEmptyDeltasIgnored(t *testing.T) {
	p := NewClaudeProcessor()
	events := feedClaude(t, p,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":""}}`,
		`{"type":"content_block_delta","index":5,"delta":{"type":"input_json_delta","partial_json":"{}"}}`,
		`{"type":"ping"}`,
	)
	if len(events) != 0 {
		t.Errorf("events = %+v, want none", events)
	}
}
