// Package usage estimates token counts locally. The gateway serves the
// Gemini countTokens action without an upstream call, and the Kiro
// translator needs a prompt estimate because CodeWhisperer reports only a
// remaining-context percentage.
package usage

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/translator/ir"
)

// Per-message framing overhead and the reply priming tokens, borrowed from
// the cl100k chat format. Close enough for non-OpenAI models too.
const (
	tokensPerMessage = 4
	tokensPerReply   = 3
)

// ImageTokens is the fixed cost of one inline image.
const ImageTokens = 258

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func getCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.O200kBase)
		if err != nil {
			return
		}
		codec = c
	})
	return codec
}

// CountText returns the token count of text. Falls back to a bytes/4
// heuristic when the encoder cannot load.
func CountText(text string) int {
	if text == "" {
		return 0
	}
	if c := getCodec(); c != nil {
		if n, err := c.Count(text); err == nil {
			return n
		}
	}
	return len(text)/4 + 1
}

// CountRequest estimates the prompt tokens of a unified request: message
// text, tool calls and results, inline images, and tool declarations.
func CountRequest(req *ir.ChatRequest) int {
	if req == nil || len(req.Messages) == 0 {
		return 0
	}

	total := tokensPerReply
	for i := range req.Messages {
		total += tokensPerMessage + countMessage(&req.Messages[i])
	}
	for _, tool := range req.Tools {
		total += CountText(tool.Name) + CountText(tool.Description)
		if len(tool.Parameters) > 0 {
			if raw, err := json.Marshal(tool.Parameters); err == nil {
				total += CountText(string(raw))
			}
		}
	}
	return total
}

func countMessage(m *ir.Message) int {
	n := 0
	for _, p := range m.Parts {
		switch p.Type {
		case ir.ContentTypeText:
			n += CountText(p.Text)
		case ir.ContentTypeImage:
			n += ImageTokens
		case ir.ContentTypeFile:
			if p.File != nil {
				n += CountText(p.File.Filename) + len(p.File.Data)/4
			}
		case ir.ContentTypeToolResult:
			if p.ToolResult != nil {
				n += CountText(p.ToolResult.Result)
			}
		}
	}
	for _, tc := range m.ToolCalls {
		n += CountText(tc.Name) + CountText(tc.Args)
	}
	return n
}
