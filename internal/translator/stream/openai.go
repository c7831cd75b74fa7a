package stream

import (
	"strings"
	"time"

	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/thinking"
	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

// Chunk is the outbound chat.completion.chunk shape.
type Chunk struct {
	ID      string     `json:"id"`
	Object  string     `json:"object"`
	Created int64      `json:"created"`
	Model   string     `json:"model"`
	Choices []Choice   `json:"choices"`
	Usage   *UsageJSON `json:"usage,omitempty"`
}

// Choice is the single streamed choice; the gateway never fans out n>1.
type Choice struct {
	Index              int     `json:"index"`
	Delta              Delta   `json:"delta"`
	FinishReason       *string `json:"finish_reason,omitempty"`
	NativeFinishReason string  `json:"native_finish_reason,omitempty"`
}

// Delta carries the incremental payload.
type Delta struct {
	Role             string          `json:"role,omitempty"`
	Content          string          `json:"content,omitempty"`
	ReasoningContent string          `json:"reasoning_content,omitempty"`
	ToolCalls        []ToolCallDelta `json:"tool_calls,omitempty"`
	Images           []ImageDelta    `json:"images,omitempty"`
}

// ToolCallDelta is one incremental tool_calls entry.
type ToolCallDelta struct {
	Index    int           `json:"index"`
	ID       string        `json:"id,omitempty"`
	Type     string        `json:"type,omitempty"`
	Function FunctionDelta `json:"function"`
}

// FunctionDelta carries the name (first frame) and argument bytes.
type FunctionDelta struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments"`
}

// ImageDelta is an inline image emitted by image-capable models.
type ImageDelta struct {
	Type     string   `json:"type"`
	ImageURL ImageURL `json:"image_url"`
	Index    int      `json:"index"`
}

// ImageURL wraps the data URL.
type ImageURL struct {
	URL string `json:"url"`
}

// UsageJSON is the OpenAI usage block.
type UsageJSON struct {
	PromptTokens            int             `json:"prompt_tokens"`
	CompletionTokens        int             `json:"completion_tokens"`
	TotalTokens             int             `json:"total_tokens"`
	PromptTokensDetails     *PromptDetails  `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *CompletionInfo `json:"completion_tokens_details,omitempty"`
}

// PromptDetails reports prompt-side token splits.
type PromptDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// CompletionInfo reports completion-side token splits.
type CompletionInfo struct {
	ReasoningTokens int `json:"reasoning_tokens"`
}

func usageJSON(u *ir.Usage) *UsageJSON {
	if u == nil {
		return nil
	}
	out := &UsageJSON{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
	if u.CachedTokens > 0 {
		out.PromptTokensDetails = &PromptDetails{CachedTokens: u.CachedTokens}
	}
	if u.ReasoningTokens > 0 {
		out.CompletionTokensDetails = &CompletionInfo{ReasoningTokens: u.ReasoningTokens}
	}
	return out
}

// DoneFrame terminates every OpenAI SSE stream.
var DoneFrame = []byte("data: [DONE]\n\n")

// Frame renders one SSE data frame.
func Frame(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+8)
	out = append(out, "data: "...)
	out = append(out, payload...)
	out = append(out, '\n', '\n')
	return out
}

// Emitter renders unified events as chat.completion.chunk SSE frames.
// When a thinking parser is attached, text events route through it first so
// tag-wrapped reasoning comes out as reasoning_content.
type Emitter struct {
	id      string
	model   string
	created int64

	parser *thinking.Parser

	roleSent   bool
	sawTool    bool
	finishSent bool
	usage      *ir.Usage
}

// NewEmitter builds an emitter stamped with the given response identity.
func NewEmitter(id, model string, parser *thinking.Parser) *Emitter {
	return &Emitter{id: id, model: model, created: time.Now().Unix(), parser: parser}
}

// Emit renders one event as zero or more SSE frames.
func (e *Emitter) Emit(ev ir.Event) [][]byte {
	switch ev.Type {
	case ir.EventMeta:
		if ev.Meta.ID != "" {
			e.id = ev.Meta.ID
		}
		if ev.Meta.Model != "" {
			e.model = ev.Meta.Model
		}
		if ev.Meta.Created != 0 {
			e.created = ev.Meta.Created
		}
		return nil
	case ir.EventText:
		if e.parser == nil {
			return e.frames(e.textChunk(ev.Text, ""))
		}
		return e.thinkingFrames(e.parser.Feed(ev.Text))
	case ir.EventReasoning:
		return e.frames(e.textChunk("", ev.Reasoning))
	case ir.EventToolCallStart:
		e.sawTool = true
		return e.frames(e.chunk(Delta{ToolCalls: []ToolCallDelta{{
			Index:    ev.ToolCallIndex,
			ID:       ev.ToolCallID,
			Type:     "function",
			Function: FunctionDelta{Name: ev.ToolCallName, Arguments: ev.ToolCallArgs},
		}}}))
	case ir.EventToolCallArgs:
		return e.frames(e.chunk(Delta{ToolCalls: []ToolCallDelta{{
			Index:    ev.ToolCallIndex,
			Function: FunctionDelta{Arguments: ev.ToolCallArgs},
		}}}))
	case ir.EventImage:
		url := "data:" + ev.ImageMime + ";base64," + ev.ImageData
		return e.frames(e.chunk(Delta{Images: []ImageDelta{{
			Type:     "image_url",
			ImageURL: ImageURL{URL: url},
		}}}))
	case ir.EventUsage:
		if ev.Usage != nil {
			u := *ev.Usage
			e.usage = &u
		}
		if e.finishSent {
			c := e.newChunk(Delta{})
			c.Usage = usageJSON(e.usage)
			return e.frames(c)
		}
		return nil
	case ir.EventFinish:
		if e.finishSent {
			return nil
		}
		var out [][]byte
		if e.parser != nil {
			out = e.thinkingFrames(e.parser.Flush())
		}
		e.finishSent = true
		reason := string(ev.Finish)
		if e.sawTool {
			reason = string(ir.FinishToolCalls)
		} else if reason == "" {
			reason = strings.ToLower(ev.NativeFinish)
		}
		c := e.newChunk(Delta{})
		c.Choices[0].FinishReason = &reason
		c.Choices[0].NativeFinishReason = ev.NativeFinish
		c.Usage = usageJSON(e.usage)
		return append(out, e.render(c))
	}
	return nil
}

func (e *Emitter) thinkingFrames(events []thinking.Event) [][]byte {
	var out [][]byte
	for _, te := range events {
		out = append(out, e.render(e.textChunk(te.Content, te.Reasoning)))
	}
	return out
}

func (e *Emitter) textChunk(content, reasoning string) Chunk {
	return e.chunk(Delta{Content: content, ReasoningContent: reasoning})
}

// chunk builds a payload chunk, stamping the assistant role on the first one.
func (e *Emitter) chunk(d Delta) Chunk {
	if !e.roleSent {
		e.roleSent = true
		d.Role = "assistant"
	}
	return e.newChunk(d)
}

func (e *Emitter) newChunk(d Delta) Chunk {
	return Chunk{
		ID:      e.id,
		Object:  "chat.completion.chunk",
		Created: e.created,
		Model:   e.model,
		Choices: []Choice{{Index: 0, Delta: d}},
	}
}

func (e *Emitter) render(c Chunk) []byte {
	raw, _ := json.Marshal(c)
	return Frame(raw)
}

func (e *Emitter) frames(c Chunk) [][]byte {
	return [][]byte{e.render(c)}
}

// Collector reduces a drained stream to a single chat.completion object for
// the non-stream API.
type Collector struct {
	id      string
	model   string
	created int64

	parser *thinking.Parser

	text      strings.Builder
	reasoning strings.Builder
	tools     []ir.ToolCall
	toolIdx   map[int]int
	usage     *ir.Usage
	finish    ir.FinishReason
	native    string
}

// NewCollector builds a collector stamped with the given response identity.
func NewCollector(id, model string, parser *thinking.Parser) *Collector {
	return &Collector{id: id, model: model, created: time.Now().Unix(), parser: parser, toolIdx: map[int]int{}}
}

// Add folds one event into the collected result.
func (c *Collector) Add(ev ir.Event) {
	switch ev.Type {
	case ir.EventMeta:
		if ev.Meta.ID != "" {
			c.id = ev.Meta.ID
		}
		if ev.Meta.Model != "" {
			c.model = ev.Meta.Model
		}
		if ev.Meta.Created != 0 {
			c.created = ev.Meta.Created
		}
	case ir.EventText:
		if c.parser == nil {
			c.text.WriteString(ev.Text)
			return
		}
		c.addThinking(c.parser.Feed(ev.Text))
	case ir.EventReasoning:
		c.reasoning.WriteString(ev.Reasoning)
	case ir.EventToolCallStart:
		c.toolIdx[ev.ToolCallIndex] = len(c.tools)
		c.tools = append(c.tools, ir.ToolCall{ID: ev.ToolCallID, Name: ev.ToolCallName, Args: ev.ToolCallArgs})
	case ir.EventToolCallArgs:
		if i, ok := c.toolIdx[ev.ToolCallIndex]; ok {
			c.tools[i].Args += ev.ToolCallArgs
		}
	case ir.EventUsage:
		if ev.Usage != nil {
			u := *ev.Usage
			c.usage = &u
		}
	case ir.EventFinish:
		if c.parser != nil {
			c.addThinking(c.parser.Flush())
			c.parser = nil
		}
		c.finish = ev.Finish
		c.native = ev.NativeFinish
	}
}

func (c *Collector) addThinking(events []thinking.Event) {
	for _, te := range events {
		c.text.WriteString(te.Content)
		c.reasoning.WriteString(te.Reasoning)
	}
}

// Text returns the collected visible text.
func (c *Collector) Text() string { return c.text.String() }

// Reasoning returns the collected reasoning text.
func (c *Collector) Reasoning() string { return c.reasoning.String() }

// ToolCalls returns the collected tool calls.
func (c *Collector) ToolCalls() []ir.ToolCall { return c.tools }

// Finish returns the effective finish reason.
func (c *Collector) Finish() ir.FinishReason {
	if len(c.tools) > 0 {
		return ir.FinishToolCalls
	}
	if c.finish == "" {
		return ir.FinishStop
	}
	return c.finish
}

// Usage returns the collected usage, or a zero value when none arrived.
func (c *Collector) Usage() ir.Usage {
	if c.usage == nil {
		return ir.Usage{}
	}
	return *c.usage
}

// Response renders the final chat.completion object.
func (c *Collector) Response() ([]byte, error) {
	message := map[string]any{
		"role":    "assistant",
		"content": c.text.String(),
	}
	if r := c.reasoning.String(); r != "" {
		message["reasoning_content"] = r
	}
	if len(c.tools) > 0 {
		var calls []any
		for _, tc := range c.tools {
			calls = append(calls, map[string]any{
				"id":   tc.ID,
				"type": "function",
				"function": map[string]any{
					"name":      tc.Name,
					"arguments": tc.Args,
				},
			})
		}
		message["tool_calls"] = calls
	}
	choice := map[string]any{
		"index":         0,
		"message":       message,
		"finish_reason": string(c.Finish()),
	}
	if c.native != "" {
		choice["native_finish_reason"] = c.native
	}
	root := map[string]any{
		"id":      c.id,
		"object":  "chat.completion",
		"created": c.created,
		"model":   c.model,
		"choices": []any{choice},
	}
	if u := usageJSON(c.usage); u != nil {
		root["usage"] = u
	}
	return json.Marshal(root)
}
