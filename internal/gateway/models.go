package gateway

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llm-gate/llm-gate/internal/auth"
	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/logging"
	"github.com/llm-gate/llm-gate/internal/registry"
	"github.com/llm-gate/llm-gate/internal/upstream"
	"github.com/llm-gate/llm-gate/internal/usage"
	"github.com/llm-gate/llm-gate/internal/wire"
)

// handleListModels serves GET /v1/models in the OpenAI list shape. Only
// models whose provider has at least one credential are advertised.
func (s *Server) handleListModels(c *gin.Context) {
	type model struct {
		ID      string `json:"id"`
		Object  string `json:"object"`
		Created int64  `json:"created"`
		OwnedBy string `json:"owned_by"`
	}
	models := s.availableModels(c.Request.Context())
	data := make([]model, 0, len(models))
	for _, m := range models {
		data = append(data, model{ID: m.ID, Object: "model", Created: m.Created, OwnedBy: string(m.Provider)})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

// handleListModelsGemini serves GET /v1beta/models in the Gemini list shape.
func (s *Server) handleListModelsGemini(c *gin.Context) {
	type model struct {
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
		Description string `json:"description"`
	}
	models := s.availableModels(c.Request.Context())
	out := make([]model, 0, len(models))
	for _, m := range models {
		out = append(out, model{Name: "models/" + m.ID, DisplayName: m.DisplayName, Description: m.Description})
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

// availableModels merges the static catalog with the dynamically discovered
// Kiro list, filtered to providers that have credentials.
func (s *Server) availableModels(ctx context.Context) []registry.ModelInfo {
	providers := s.auth.Providers()
	models := registry.Models(providers)
	if !providers[registry.ProviderKiro] {
		return models
	}

	dynamic := s.kiroModelList(ctx)
	if dynamic == nil {
		return models
	}
	out := models[:0]
	for _, m := range models {
		if m.Provider != registry.ProviderKiro {
			out = append(out, m)
		}
	}
	return append(out, dynamic...)
}

// kiroModelList fetches the CodeWhisperer model list, caching it for an
// hour. Returns nil when the fetch fails, leaving the static entries in place.
func (s *Server) kiroModelList(ctx context.Context) []registry.ModelInfo {
	if cached, ok := s.kiroModels.Get(); ok {
		return cached
	}

	cred, err := s.nextCredential(registry.ProviderKiro)
	if err != nil {
		return nil
	}
	cred, err = s.refresher.Fresh(ctx, cred)
	if err != nil {
		logging.Warnf("kiro model list refresh: %v", err)
		return nil
	}

	body, _ := json.Marshal(map[string]string{
		"origin":     "AI_EDITOR",
		"profileArn": cred.ProfileArn,
	})
	rc, err := upstream.Do(ctx, s.client, upstream.Request{
		URL:     upstream.KiroModelsURL(cred.Region),
		Body:    body,
		Headers: upstream.KiroModelsHeaders(cred.Token.AccessToken),
	})
	if err != nil {
		logging.Warnf("kiro model list fetch: %v", err)
		return nil
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, 1<<20))
	if err != nil {
		return nil
	}

	var models []registry.ModelInfo
	for _, m := range gjson.GetBytes(raw, "models").Array() {
		id := m.Get("modelId").String()
		if id == "" {
			continue
		}
		if !strings.HasPrefix(id, "kiro-") {
			id = "kiro-" + id
		}
		models = append(models, registry.ModelInfo{
			ID:          id,
			DisplayName: m.Get("modelName").String(),
			Description: m.Get("description").String(),
			Provider:    registry.ProviderKiro,
		})
	}
	if len(models) == 0 {
		return nil
	}
	s.kiroModels.Put(models)
	return models
}

// handleGeminiAction serves POST /v1beta/models/{model}:{action} for Gemini
// native clients. generateContent and streamGenerateContent pass the inbound
// body through the Cloud Code envelope untranslated; countTokens is answered
// locally.
func (s *Server) handleGeminiAction(c *gin.Context) {
	param := c.Param("action")
	sep := strings.LastIndex(param, ":")
	if sep < 0 {
		writeError(c, errBadRequest("expected model:action, got %q", param))
		return
	}
	model, action := param[:sep], param[sep+1:]

	body, err := readBody(c)
	if err != nil {
		writeError(c, errBadRequest("read body: %v", err))
		return
	}

	switch action {
	case "countTokens":
		c.JSON(http.StatusOK, gin.H{"totalTokens": countGeminiTokens(body)})
	case "generateContent":
		s.geminiPassthrough(c, model, body, false)
	case "streamGenerateContent":
		s.geminiPassthrough(c, model, body, true)
	default:
		writeError(c, errBadRequest("unsupported action %q", action))
	}
}

// countGeminiTokens estimates the token count of a generateContent body.
// Inline images cost the fixed per-image price.
func countGeminiTokens(body []byte) int {
	total := 0
	for _, content := range gjson.GetBytes(body, "contents").Array() {
		for _, part := range content.Get("parts").Array() {
			if text := part.Get("text").String(); text != "" {
				total += usage.CountText(text)
			}
			if part.Get("inlineData").Exists() {
				total += usage.ImageTokens
			}
		}
	}
	for _, part := range gjson.GetBytes(body, "systemInstruction.parts").Array() {
		total += usage.CountText(part.Get("text").String())
	}
	return total
}

// geminiPassthrough wraps the raw inbound body in the Cloud Code envelope,
// forwards it, and unwraps the response field from each upstream payload.
// Only Cloud Code models are eligible; Antigravity and non-Gemini models
// need the translated path.
func (s *Server) geminiPassthrough(c *gin.Context, model string, body []byte, stream bool) {
	provider, ok := registry.ProviderForModel(model)
	if !ok {
		writeError(c, errUnknownModel(model))
		return
	}
	if provider != registry.ProviderGemini {
		writeError(c, errBadRequest("model %q is not served on the Gemini native surface", model))
		return
	}

	at, err := s.connect(c.Request.Context(), provider, func(cred *auth.Credential) (*attempt, error) {
		envelope, err := sjson.SetRawBytes([]byte(`{}`), "request", body)
		if err != nil {
			return nil, errBadRequest("%v", err)
		}
		envelope, _ = sjson.SetBytes(envelope, "model", model)
		if cred.ProjectID != "" {
			envelope, _ = sjson.SetBytes(envelope, "project", cred.ProjectID)
		}
		rc, err := upstream.Do(c.Request.Context(), s.client, upstream.Request{
			URL:     upstream.GeminiURL(stream),
			Body:    envelope,
			Headers: upstream.GeminiHeaders(cred.Token.AccessToken),
			Stream:  stream,
		})
		if err != nil {
			return nil, err
		}
		return &attempt{body: rc, sse: stream}, nil
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if stream {
		err = relayGeminiSSE(c, at.body)
		at.Close(err == nil)
		return
	}

	raw, err := io.ReadAll(io.LimitReader(at.body, maxRequestBody))
	at.Close(err == nil)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json", unwrapResponse(raw))
}

// relayGeminiSSE forwards upstream SSE payloads, unwrapping the Cloud Code
// response envelope from each.
func relayGeminiSSE(c *gin.Context, body io.Reader) error {
	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)

	dec := &wire.SSEDecoder{}
	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			for _, payload := range dec.Feed(buf[:n]) {
				frame := append([]byte("data: "), unwrapResponse(payload)...)
				frame = append(frame, '\n', '\n')
				_, _ = c.Writer.Write(frame)
			}
			c.Writer.Flush()
		}
		if readErr == io.EOF || dec.Done() {
			return nil
		}
		if readErr != nil {
			logging.Warnf("gemini passthrough truncated: %v", readErr)
			return readErr
		}
	}
}

// unwrapResponse strips the Cloud Code wrapper, returning the inner
// response object when present.
func unwrapResponse(payload []byte) []byte {
	if inner := gjson.GetBytes(payload, "response"); inner.Exists() {
		return []byte(inner.Raw)
	}
	return payload
}
