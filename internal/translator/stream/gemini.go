package stream

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/llm-gate/llm-gate/internal/sigcache"
	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

// GeminiProcessor parses Cloud Code Assist streamGenerateContent payloads.
// Antigravity shares the shape; only the prompt-token accounting differs
// because its usageMetadata already includes the cached prefix.
type GeminiProcessor struct {
	ids            *IDSource
	subtractCached bool

	// Sigs and Session, when set, record the thought signatures the model
	// attaches to its parts so follow-up requests can replay them.
	Sigs    *sigcache.Cache
	Session string

	toolIndex int
	created   int64
}

// NewGeminiCLIProcessor builds the processor for the gemini provider.
func NewGeminiCLIProcessor(ids *IDSource) *GeminiProcessor {
	return &GeminiProcessor{ids: ids}
}

// NewAntigravityProcessor builds the processor for the antigravity provider.
func NewAntigravityProcessor(ids *IDSource) *GeminiProcessor {
	return &GeminiProcessor{ids: ids, subtractCached: true}
}

// Process parses one SSE data payload.
func (p *GeminiProcessor) Process(payload []byte) ([]ir.Event, error) {
	root := gjson.ParseBytes(payload)
	if r := root.Get("response"); r.Exists() {
		root = r
	}

	var events []ir.Event
	if ct := root.Get("createTime"); ct.Exists() {
		if t, err := time.Parse(time.RFC3339Nano, ct.String()); err == nil && t.Unix() != p.created {
			p.created = t.Unix()
			events = append(events, ir.Event{Type: ir.EventMeta, Meta: &ir.Meta{
				ID:      root.Get("responseId").String(),
				Model:   root.Get("modelVersion").String(),
				Created: p.created,
			}})
		}
	}

	candidate := root.Get("candidates.0")
	for _, part := range candidate.Get("content.parts").Array() {
		switch {
		case part.Get("thought").Bool():
			p.recordSignature(part, "", root.Get("modelVersion").String())
			if text := part.Get("text").String(); text != "" {
				events = append(events, ir.Event{Type: ir.EventReasoning, Reasoning: text})
			}
		case part.Get("functionCall").Exists():
			fc := part.Get("functionCall")
			name := fc.Get("name").String()
			args := fc.Get("args").Raw
			if args == "" {
				args = "{}"
			}
			id := p.ids.Next(name)
			p.recordSignature(part, id, root.Get("modelVersion").String())
			events = append(events, ir.Event{
				Type:          ir.EventToolCallStart,
				ToolCallIndex: p.toolIndex,
				ToolCallID:    id,
				ToolCallName:  name,
				ToolCallArgs:  args,
			})
			p.toolIndex++
		case part.Get("inlineData").Exists():
			data := part.Get("inlineData")
			events = append(events, ir.Event{
				Type:      ir.EventImage,
				ImageMime: data.Get("mimeType").String(),
				ImageData: data.Get("data").String(),
			})
		case part.Get("text").Exists():
			if text := part.Get("text").String(); text != "" {
				events = append(events, ir.Event{Type: ir.EventText, Text: text})
			}
		}
	}

	if um := root.Get("usageMetadata"); um.Exists() {
		events = append(events, ir.Event{Type: ir.EventUsage, Usage: p.usage(um)})
	}
	if fr := candidate.Get("finishReason"); fr.Exists() {
		native := fr.String()
		events = append(events, ir.Event{
			Type:         ir.EventFinish,
			Finish:       ir.MapGeminiFinish(native),
			NativeFinish: native,
		})
	}
	return events, nil
}

// Done implements Processor; Gemini carries everything in-band.
func (p *GeminiProcessor) Done() []ir.Event { return nil }

func (p *GeminiProcessor) recordSignature(part gjson.Result, toolID, family string) {
	if p.Sigs == nil {
		return
	}
	sig := part.Get("thoughtSignature").String()
	if sig == "" {
		return
	}
	if toolID != "" {
		p.Sigs.PutTool(toolID, sig)
	}
	if p.Session != "" {
		p.Sigs.PutSession(p.Session, sig)
	}
	if family != "" {
		p.Sigs.PutFamily(sig, family)
	}
}

func (p *GeminiProcessor) usage(um gjson.Result) *ir.Usage {
	prompt := int(um.Get("promptTokenCount").Int())
	thoughts := int(um.Get("thoughtsTokenCount").Int())
	cached := int(um.Get("cachedContentTokenCount").Int())

	u := &ir.Usage{
		CompletionTokens: int(um.Get("candidatesTokenCount").Int()),
		TotalTokens:      int(um.Get("totalTokenCount").Int()),
		ReasoningTokens:  thoughts,
	}
	if p.subtractCached {
		u.PromptTokens = prompt - cached + thoughts
		u.CachedTokens = cached
	} else {
		u.PromptTokens = prompt + thoughts
	}
	return u
}
