package gateway

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/llm-gate/llm-gate/internal/auth"
	"github.com/llm-gate/llm-gate/internal/config"
)

func newTestServer(t *testing.T, apiKeys ...string) *Server {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.APIKeys = apiKeys
	cfg.RequestRetry = 0
	store, err := auth.NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return New(cfg, store, nil, http.DefaultClient)
}

func doRequest(t *testing.T, s *Server, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/", "/healthz"} {
		w := doRequest(t, s, http.MethodGet, path, "", nil)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s = %d", path, w.Code)
		}
	}
}

func TestRequireAPIKey(t *testing.T) {
	s := newTestServer(t, "sk-test")

	tests := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"missing key", "/v1/models", nil, http.StatusUnauthorized},
		{"wrong key", "/v1/models", map[string]string{"Authorization": "Bearer sk-wrong"}, http.StatusUnauthorized},
		{"bearer", "/v1/models", map[string]string{"Authorization": "Bearer sk-test"}, http.StatusOK},
		{"x-api-key", "/v1/models", map[string]string{"x-api-key": "sk-test"}, http.StatusOK},
		{"x-goog-api-key", "/v1/models", map[string]string{"x-goog-api-key": "sk-test"}, http.StatusOK},
		{"query param", "/v1/models?key=sk-test", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, http.MethodGet, tt.path, "", tt.header)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
		})
	}

	t.Run("health skips auth", func(t *testing.T) {
		if w := doRequest(t, s, http.MethodGet, "/healthz", "", nil); w.Code != http.StatusOK {
			t.Errorf("healthz = %d", w.Code)
		}
	})
}

func TestNoAPIKeysConfiguredAllowsAll(t *testing.T) {
	s := newTestServer(t)
	if w := doRequest(t, s, http.MethodGet, "/v1/models", "", nil); w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
}

func TestListModelsEmptyWithoutCredentials(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/v1/models", "", nil)
	root := gjson.ParseBytes(w.Body.Bytes())
	if root.Get("object").String() != "list" {
		t.Errorf("object = %q", root.Get("object").String())
	}
	if n := len(root.Get("data").Array()); n != 0 {
		t.Errorf("models = %d, want none without credentials", n)
	}
}

func TestListModelsGeminiShape(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/v1beta/models", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !gjson.ParseBytes(w.Body.Bytes()).Get("models").IsArray() {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestChatCompletionsErrors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name     string
		body     string
		want     int
		wantType string
	}{
		{"invalid json", `{"model": `, http.StatusBadRequest, "invalid_request_error"},
		{"unknown model", `{"model":"mystery-9000","messages":[{"role":"user","content":"x"}]}`, http.StatusBadRequest, "invalid_request_error"},
		{"no credential", `{"model":"gemini-2.5-pro","messages":[{"role":"user","content":"x"}]}`, http.StatusUnauthorized, "authentication_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, http.MethodPost, "/v1/chat/completions", tt.body, nil)
			if w.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.want, w.Body.String())
			}
			root := gjson.ParseBytes(w.Body.Bytes())
			if root.Get("error.type").String() != tt.wantType {
				t.Errorf("error type = %q, body = %s", root.Get("error.type").String(), w.Body.String())
			}
			if root.Get("error.code").Int() != int64(tt.want) {
				t.Errorf("error code = %d", root.Get("error.code").Int())
			}
		})
	}
}

func TestMessagesUnknownModel(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(t, s, http.MethodPost, "/v1/messages",
		`{"model":"mystery-9000","messages":[{"role":"user","content":"x"}]}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d: %s", w.Code, w.Body.String())
	}
}

func TestLegacyCompletionsRejected(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(t, s, http.MethodPost, "/v1/completions", `{"model":"gpt-5","prompt":"x"}`, nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status = %d", w.Code)
	}
}

func TestGeminiCountTokens(t *testing.T) {
	s := newTestServer(t)
	body := `{"contents":[{"parts":[{"text":"How much wood would a woodchuck chuck?"}]}],
		"systemInstruction":{"parts":[{"text":"Answer briefly."}]}}`
	w := doRequest(t, s, http.MethodPost, "/v1beta/models/gemini-2.5-pro:countTokens", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if got := gjson.ParseBytes(w.Body.Bytes()).Get("totalTokens").Int(); got <= 0 {
		t.Errorf("totalTokens = %d", got)
	}
}

func TestGeminiActionErrors(t *testing.T) {
	s := newTestServer(t)
	tests := []struct {
		name string
		path string
	}{
		{"missing separator", "/v1beta/models/gemini-2.5-pro"},
		{"unknown action", "/v1beta/models/gemini-2.5-pro:transmogrify"},
		{"non-gemini model on native surface", "/v1beta/models/claude-sonnet-4-5:generateContent"},
		{"unknown model", "/v1beta/models/mystery:generateContent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, s, http.MethodPost, tt.path, `{"contents":[]}`, nil)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d: %s", w.Code, w.Body.String())
			}
		})
	}
}

func TestOAuthCallbackLanding(t *testing.T) {
	s := newTestServer(t)
	w := doRequest(t, s, http.MethodGet, "/oauth2callback", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "No login in progress") {
		t.Errorf("body = %q", w.Body.String())
	}
}
