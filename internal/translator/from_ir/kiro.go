package from_ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/registry"
	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

// maxInlineToolDescription is the longest tool description Kiro accepts
// inline. Longer descriptions move to a system-prompt appendix and the tool
// keeps a short pointer.
const maxInlineToolDescription = 10000

// thinkingModeBlock is prepended to the current user text when fake
// reasoning is on; thinkingInstruction lands in the system prompt so the
// model wraps its reasoning in tags the response path can split out.
const (
	thinkingModeBlock = "<thinking_mode>interleaved</thinking_mode>"

	thinkingInstruction = "Before answering, reason step by step inside <thinking></thinking> tags, then give the final answer outside them."
)

// KiroOptions carries per-credential request settings.
type KiroOptions struct {
	ProfileArn    string
	FakeReasoning bool
}

// kiroMessage is the flattened intermediate the history builder walks:
// strictly alternating user and assistant turns.
type kiroMessage struct {
	role        ir.Role
	text        string
	images      []*ir.ImagePart
	toolCalls   []ir.ToolCall
	toolResults []ir.Message
}

// ToKiroRequest builds the CodeWhisperer conversationState envelope.
func ToKiroRequest(req *ir.ChatRequest, opts KiroOptions) ([]byte, error) {
	for _, t := range req.Tools {
		if len(t.Name) > ir.MaxToolNameLength {
			return nil, fmt.Errorf("tool name %q exceeds %d characters", t.Name, ir.MaxToolNameLength)
		}
	}

	system := leadingSystemText(req.Messages)
	messages := trimLeadingSystem(req.Messages)

	tools, appendix := kiroTools(req.Tools)
	if appendix != "" {
		if system != "" {
			system += "\n\n"
		}
		system += appendix
	}
	if opts.FakeReasoning {
		if system != "" {
			system += "\n\n"
		}
		system += thinkingInstruction
	}

	flat := flattenKiroHistory(messages, len(req.Tools) == 0)
	if len(flat) == 0 || flat[len(flat)-1].role != ir.RoleUser {
		flat = append(flat, kiroMessage{role: ir.RoleUser, text: "Continue."})
	}

	current := flat[len(flat)-1]
	history := flat[:len(flat)-1]

	currentText := current.text
	if opts.FakeReasoning {
		currentText = thinkingModeBlock + "\n" + currentText
	}
	if len(history) == 0 && system != "" {
		currentText = system + "\n\n" + currentText
	}

	currentMsg := kiroUserInputMessage(currentText, current, req.Model, tools)
	var historyEntries []any
	for i, m := range history {
		if m.role == ir.RoleUser {
			text := m.text
			if i == 0 && system != "" {
				text = system + "\n\n" + text
			}
			historyEntries = append(historyEntries, map[string]any{
				"userInputMessage": kiroUserInputMessage(text, m, req.Model, nil)["userInputMessage"],
			})
			continue
		}
		assistant := map[string]any{"content": m.text}
		if len(m.toolCalls) > 0 {
			var uses []any
			for _, tc := range m.toolCalls {
				input := map[string]any{}
				if tc.Args != "" {
					_ = json.Unmarshal([]byte(tc.Args), &input)
				}
				uses = append(uses, map[string]any{
					"toolUseId": tc.ID,
					"name":      tc.Name,
					"input":     input,
				})
			}
			assistant["toolUses"] = uses
		}
		historyEntries = append(historyEntries, map[string]any{"assistantResponseMessage": assistant})
	}

	state := map[string]any{
		"chatTriggerType": "MANUAL",
		"conversationId":  kiroConversationID(messages),
		"currentMessage":  currentMsg,
	}
	if len(historyEntries) > 0 {
		state["history"] = historyEntries
	}

	root := map[string]any{"conversationState": state}
	if opts.ProfileArn != "" {
		root["profileArn"] = opts.ProfileArn
	}
	return json.Marshal(root)
}

func kiroUserInputMessage(text string, m kiroMessage, model string, tools []any) map[string]any {
	msg := map[string]any{
		"content": text,
		"modelId": registry.StripKiroPrefix(model),
		"origin":  "AI_EDITOR",
	}
	if len(m.images) > 0 {
		var images []any
		for _, img := range m.images {
			format := strings.TrimPrefix(img.MimeType, "image/")
			images = append(images, map[string]any{
				"format": format,
				"source": map[string]any{"bytes": img.Data},
			})
		}
		msg["images"] = images
	}

	ctx := map[string]any{}
	if len(tools) > 0 {
		ctx["tools"] = tools
	}
	if len(m.toolResults) > 0 {
		var results []any
		for i := range m.toolResults {
			t := &m.toolResults[i]
			results = append(results, map[string]any{
				"toolUseId": t.ToolCallID,
				"content":   []any{map[string]any{"text": t.Text()}},
				"status":    "success",
			})
		}
		ctx["toolResults"] = results
	}
	if len(ctx) > 0 {
		msg["userInputMessageContext"] = ctx
	}
	return map[string]any{"userInputMessage": msg}
}

// flattenKiroHistory reduces the conversation to alternating user and
// assistant turns. Tool messages attach to the next user turn as tool
// results; when the request carries no tool declarations (or the assistant
// turn that issued the calls is absent) calls and results flatten to text.
func flattenKiroHistory(messages []ir.Message, noTools bool) []kiroMessage {
	issuedCalls := map[string]bool{}
	for i := range messages {
		for _, tc := range messages[i].ToolCalls {
			issuedCalls[tc.ID] = true
		}
	}

	var out []kiroMessage
	push := func(m kiroMessage) {
		if len(out) > 0 && out[len(out)-1].role == m.role {
			last := &out[len(out)-1]
			if m.text != "" {
				if last.text != "" {
					last.text += "\n"
				}
				last.text += m.text
			}
			last.images = append(last.images, m.images...)
			last.toolCalls = append(last.toolCalls, m.toolCalls...)
			last.toolResults = append(last.toolResults, m.toolResults...)
			return
		}
		out = append(out, m)
	}

	var pendingResults []ir.Message
	flushResults := func(target *kiroMessage) {
		target.toolResults = append(target.toolResults, pendingResults...)
		pendingResults = nil
	}

	for i := range messages {
		m := &messages[i]
		switch m.Role {
		case ir.RoleSystem, ir.RoleDeveloper:
			push(kiroMessage{role: ir.RoleUser, text: m.Text()})
		case ir.RoleUser:
			km := kiroMessage{role: ir.RoleUser, text: m.Text()}
			for _, p := range m.Parts {
				if p.Type == ir.ContentTypeImage && p.Image != nil {
					km.images = append(km.images, p.Image)
				}
			}
			flushResults(&km)
			push(km)
		case ir.RoleAssistant:
			km := kiroMessage{role: ir.RoleAssistant, text: m.Text()}
			if noTools {
				for _, tc := range m.ToolCalls {
					if km.text != "" {
						km.text += "\n"
					}
					km.text += fmt.Sprintf("[Tool: %s]\n%s", tc.Name, tc.Args)
				}
			} else {
				km.toolCalls = m.ToolCalls
			}
			push(km)
		case ir.RoleTool:
			if noTools || !issuedCalls[m.ToolCallID] {
				push(kiroMessage{role: ir.RoleUser, text: "[Tool Result]\n" + m.Text()})
				continue
			}
			pendingResults = append(pendingResults, *m)
		}
	}
	if len(pendingResults) > 0 {
		km := kiroMessage{role: ir.RoleUser}
		flushResults(&km)
		push(km)
	}
	return out
}

// kiroTools builds toolSpecification entries. Oversized descriptions are
// moved into the returned system-prompt appendix.
func kiroTools(defs []ir.ToolDefinition) ([]any, string) {
	if len(defs) == 0 {
		return nil, ""
	}
	var tools []any
	var appendix strings.Builder
	for _, t := range defs {
		desc := t.Description
		if len(desc) > maxInlineToolDescription {
			if appendix.Len() > 0 {
				appendix.WriteString("\n\n")
			}
			fmt.Fprintf(&appendix, "## Tool: %s\n%s", t.Name, desc)
			desc = fmt.Sprintf("[Full documentation in system prompt under '## Tool: %s']", t.Name)
		}
		schema := t.Parameters
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, map[string]any{
			"toolSpecification": map[string]any{
				"name":        t.Name,
				"description": desc,
				"inputSchema": map[string]any{"json": schema},
			},
		})
	}
	return tools, appendix.String()
}

// kiroConversationID hashes the first three and last message (role plus the
// first 100 chars of content) so retries of the same conversation reuse the
// id. Empty conversations get a fresh UUID.
func kiroConversationID(messages []ir.Message) string {
	if len(messages) == 0 {
		return uuid.NewString()
	}
	type probe struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	var probes []probe
	add := func(m *ir.Message) {
		text := m.Text()
		if len(text) > 100 {
			text = text[:100]
		}
		probes = append(probes, probe{Role: string(m.Role), Content: text})
	}
	for i := 0; i < len(messages) && i < 3; i++ {
		add(&messages[i])
	}
	if len(messages) > 3 {
		add(&messages[len(messages)-1])
	}
	raw, _ := json.Marshal(probes)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:16]
}
