package wire

import "github.com/tidwall/gjson"

// Codex response event types carried in the SSE payloads of the
// OpenAI Responses backend.
const (
	CodexEventCreated         = "response.created"
	CodexEventReasoningDelta  = "response.reasoning_summary_text.delta"
	CodexEventReasoningDone   = "response.reasoning_summary_text.done"
	CodexEventOutputTextDelta = "response.output_text.delta"
	CodexEventOutputItemDone  = "response.output_item.done"
	CodexEventCompleted       = "response.completed"
	CodexEventFailed          = "response.failed"
)

// CodexEventType extracts the type field of a Codex SSE payload.
// Unknown or missing types return an empty string; callers skip those.
func CodexEventType(payload []byte) string {
	return gjson.GetBytes(payload, "type").String()
}
