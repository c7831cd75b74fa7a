package gateway

import (
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/llm-gate/llm-gate/internal/logging"
	"github.com/llm-gate/llm-gate/internal/registry"
	"github.com/llm-gate/llm-gate/internal/store"
	"github.com/llm-gate/llm-gate/internal/thinking"
	"github.com/llm-gate/llm-gate/internal/translator/from_ir"
	"github.com/llm-gate/llm-gate/internal/translator/ir"
	"github.com/llm-gate/llm-gate/internal/translator/stream"
	"github.com/llm-gate/llm-gate/internal/translator/to_ir"
	"github.com/llm-gate/llm-gate/internal/wire"
)

const maxRequestBody = 32 << 20

func readBody(c *gin.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request.Body, maxRequestBody))
}

// handleChatCompletions serves POST /v1/chat/completions.
func (s *Server) handleChatCompletions(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		writeError(c, errBadRequest("read body: %v", err))
		return
	}
	req, err := to_ir.ParseOpenAIChat(body)
	if err != nil {
		writeError(c, errBadRequest("%v", err))
		return
	}
	s.serveChat(c, req, "openai")
}

// handleMessages serves POST /v1/messages through the Anthropic bridge.
func (s *Server) handleMessages(c *gin.Context) {
	body, err := readBody(c)
	if err != nil {
		writeError(c, errBadRequest("read body: %v", err))
		return
	}
	req, err := to_ir.ParseAnthropicMessages(body)
	if err != nil {
		writeError(c, errBadRequest("%v", err))
		return
	}
	s.serveChat(c, req, "anthropic")
}

// handleCompletionsStub rejects the legacy completions API with a pointer
// to the chat endpoint.
func (s *Server) handleCompletionsStub(c *gin.Context) {
	writeError(c, &apiError{
		Status:  http.StatusNotImplemented,
		Type:    "invalid_request_error",
		Message: "the legacy completions API is not supported; use /v1/chat/completions",
	})
}

// serveChat dispatches a unified request and renders the response in the
// inbound protocol.
func (s *Server) serveChat(c *gin.Context, req *ir.ChatRequest, protocol string) {
	start := time.Now()
	at, provider, err := s.dispatch(c.Request.Context(), req)
	if err != nil {
		s.logRequest(c, req, provider, protocol, "", start, ir.Usage{}, true)
		writeError(c, err)
		return
	}
	authID := at.cred.Email
	if authID == "" {
		authID = filepath.Base(at.cred.Path)
	}

	var u ir.Usage
	var relayErr error
	switch {
	case req.Stream && protocol == "anthropic":
		u, relayErr = s.relayAnthropic(c, at, req.Model)
	case req.Stream:
		u, relayErr = s.relayOpenAI(c, at, req.Model)
	case protocol == "anthropic":
		u, relayErr = s.collectAnthropic(c, at, req.Model)
	default:
		u, relayErr = s.collectOpenAI(c, at, req.Model)
	}
	at.Close(relayErr == nil)
	s.logRequest(c, req, provider, protocol, authID, start, u, relayErr != nil)
}

// relayOpenAI streams chat.completion.chunk frames to the client.
func (s *Server) relayOpenAI(c *gin.Context, at *attempt, model string) (ir.Usage, error) {
	emitter := stream.NewEmitter("chatcmpl-"+uuid.NewString(), model, thinking.NewParser(s.cfg.Reasoning))
	u, err := s.relay(c, at, func(ev ir.Event) [][]byte {
		return emitter.Emit(ev)
	})
	if err == nil {
		writeFrames(c, [][]byte{stream.DoneFrame})
	}
	return u, err
}

// relayAnthropic streams Messages API SSE frames to the client.
func (s *Server) relayAnthropic(c *gin.Context, at *attempt, model string) (ir.Usage, error) {
	st := from_ir.NewAnthropicStreamState("msg_"+uuid.NewString(), model)
	return s.relay(c, at, func(ev ir.Event) [][]byte {
		if frame := from_ir.ToAnthropicSSE(ev, st); frame != nil {
			return [][]byte{frame}
		}
		return nil
	})
}

// relay pumps upstream bytes through the framer and processor, rendering
// each unified event with emit. Returns the usage seen on the stream.
// A mid-stream upstream error truncates the response: frames already
// flushed stand, and no error frame is injected.
func (s *Server) relay(c *gin.Context, at *attempt, emit func(ir.Event) [][]byte) (ir.Usage, error) {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	var u ir.Usage
	handle := func(ev ir.Event) {
		if ev.Type == ir.EventUsage && ev.Usage != nil {
			u = *ev.Usage
		}
		writeFrames(c, emit(ev))
	}

	err := drain(at, handle)
	if err != nil {
		logging.Warnf("upstream stream truncated: %v", err)
	}
	c.Writer.Flush()
	return u, err
}

// collectOpenAI drains the stream into a single chat.completion object.
func (s *Server) collectOpenAI(c *gin.Context, at *attempt, model string) (ir.Usage, error) {
	collector := stream.NewCollector("chatcmpl-"+uuid.NewString(), model, thinking.NewParser(s.cfg.Reasoning))
	if err := drain(at, collector.Add); err != nil {
		writeError(c, err)
		return collector.Usage(), err
	}
	resp, err := collector.Response()
	if err != nil {
		writeError(c, err)
		return collector.Usage(), err
	}
	c.Data(http.StatusOK, "application/json", resp)
	return collector.Usage(), nil
}

// collectAnthropic drains the stream into a single Messages API object.
func (s *Server) collectAnthropic(c *gin.Context, at *attempt, model string) (ir.Usage, error) {
	collector := stream.NewCollector("msg_"+uuid.NewString(), model, thinking.NewParser(s.cfg.Reasoning))
	if err := drain(at, collector.Add); err != nil {
		writeError(c, err)
		return collector.Usage(), err
	}
	resp, err := from_ir.ToAnthropicResponse(
		"msg_"+uuid.NewString(), model,
		collector.Text(), collector.Reasoning(), collector.ToolCalls(),
		collector.Finish(), collector.Usage(),
	)
	if err != nil {
		writeError(c, err)
		return collector.Usage(), err
	}
	c.Data(http.StatusOK, "application/json", resp)
	return collector.Usage(), nil
}

// drain reads the upstream body to completion, feeding the framer and the
// processor and handing every unified event to handle.
func drain(at *attempt, handle func(ir.Event)) error {
	dec := &wire.SSEDecoder{}
	buf := make([]byte, 32*1024)
	for {
		n, readErr := at.body.Read(buf)
		if n > 0 {
			var payloads [][]byte
			if at.sse {
				payloads = dec.Feed(buf[:n])
			} else {
				payloads = [][]byte{buf[:n]}
			}
			for _, payload := range payloads {
				events, err := at.proc.Process(payload)
				if err != nil {
					return err
				}
				for _, ev := range events {
					handle(ev)
				}
			}
		}
		if readErr == io.EOF || (at.sse && dec.Done()) {
			break
		}
		if readErr != nil {
			return readErr
		}
	}
	for _, ev := range at.proc.Done() {
		handle(ev)
	}
	return nil
}

func writeFrames(c *gin.Context, frames [][]byte) {
	if len(frames) == 0 {
		return
	}
	for _, frame := range frames {
		_, _ = c.Writer.Write(frame)
	}
	c.Writer.Flush()
}

// logRequest records one request-log row.
func (s *Server) logRequest(c *gin.Context, req *ir.ChatRequest, provider registry.Provider, protocol, authID string, start time.Time, u ir.Usage, failed bool) {
	if s.logs == nil {
		return
	}
	s.logs.Log(store.RequestLog{
		Provider:        string(provider),
		Model:           req.Model,
		APIKey:          c.GetString("api_key"),
		AuthID:          authID,
		Source:          protocol,
		RequestedAt:     start,
		Failed:          failed,
		InputTokens:     int64(u.PromptTokens),
		OutputTokens:    int64(u.CompletionTokens),
		ReasoningTokens: int64(u.ReasoningTokens),
		CachedTokens:    int64(u.CachedTokens),
		TotalTokens:     int64(u.TotalTokens),
		LatencyMS:       time.Since(start).Milliseconds(),
	})
}
