package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/llm-gate/llm-gate/internal/auth"
	"github.com/llm-gate/llm-gate/internal/logging"
	"github.com/llm-gate/llm-gate/internal/oauth"
	"github.com/llm-gate/llm-gate/internal/registry"
	"github.com/llm-gate/llm-gate/internal/resilience"
	"github.com/llm-gate/llm-gate/internal/translator/from_ir"
	"github.com/llm-gate/llm-gate/internal/translator/ir"
	"github.com/llm-gate/llm-gate/internal/translator/stream"
	"github.com/llm-gate/llm-gate/internal/upstream"
	"github.com/llm-gate/llm-gate/internal/usage"
)

// attempt is one successfully opened upstream response, ready to relay.
// done reports the final stream outcome to the provider's breaker.
type attempt struct {
	body io.ReadCloser
	proc stream.Processor
	cred *auth.Credential
	sse  bool
	done func(success bool)
}

// Close releases the upstream body and settles the breaker outcome.
func (a *attempt) Close(success bool) {
	a.body.Close()
	if a.done != nil {
		a.done(success)
		a.done = nil
	}
}

// nextCredential picks a usable credential for the provider, honoring the
// configured selection strategy.
func (s *Server) nextCredential(p registry.Provider) (*auth.Credential, error) {
	creds := s.auth.List(p)
	usable := creds[:0]
	for _, c := range creds {
		if c.Usable() {
			usable = append(usable, c)
		}
	}
	if len(usable) == 0 {
		return nil, errAuthMissing(p)
	}
	if s.cfg.Selection == "fill-first" {
		return usable[0], nil
	}
	n := s.rr[p].Add(1)
	return usable[(n-1)%uint64(len(usable))], nil
}

// retryable decides whether an attempt error is worth trying the next
// credential: transport failures, 429s and 5xx responses are; everything
// the client caused is not.
func retryable(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return false
	}
	var he *upstream.HTTPError
	if errors.As(err, &he) {
		return he.Status == http.StatusTooManyRequests || he.Status >= 500 ||
			he.Status == http.StatusUnauthorized || he.Status == http.StatusForbidden
	}
	if errors.Is(err, upstream.ErrFirstTokenTimeout) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// connect opens an upstream response for the request, rotating credentials
// under the retry policy.
func (s *Server) connect(ctx context.Context, provider registry.Provider, open func(*auth.Credential) (*attempt, error)) (*attempt, error) {
	exec := resilience.NewExecutor[*attempt](resilience.RetryConfig{
		MaxRetries:  s.cfg.RequestRetry,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    s.cfg.MaxRetryInterval.Std(),
		JitterDelay: 250 * time.Millisecond,
		ShouldRetry: retryable,
	})
	return exec.Execute(ctx, func() (*attempt, error) {
		cred, err := s.nextCredential(provider)
		if err != nil {
			return nil, err
		}
		fresh, err := s.refresher.Fresh(ctx, cred)
		if err != nil {
			logging.Warnf("refresh failed for %s credential %s: %v", provider, cred.Path, err)
			return nil, fmt.Errorf("credential refresh: %w", err)
		}

		done, err := s.breakers[provider].Allow()
		if err != nil {
			return nil, fmt.Errorf("provider %s unavailable: %w", provider, err)
		}
		at, err := open(fresh)
		if err != nil {
			done(false)
			return nil, err
		}
		at.done = done
		at.cred = fresh
		return at, nil
	})
}

// dispatch translates req for its provider, opens the upstream stream, and
// returns the attempt plus the provider that served it.
func (s *Server) dispatch(ctx context.Context, req *ir.ChatRequest) (*attempt, registry.Provider, error) {
	provider, ok := registry.ProviderForModel(req.Model)
	if !ok {
		return nil, "", errUnknownModel(req.Model)
	}
	at, err := s.connect(ctx, provider, func(cred *auth.Credential) (*attempt, error) {
		return s.openProvider(ctx, req, provider, cred)
	})
	return at, provider, err
}

// openProvider builds the provider envelope and performs the HTTP call.
// All providers are driven through their streaming endpoint; non-stream
// clients get the drained collection.
func (s *Server) openProvider(ctx context.Context, req *ir.ChatRequest, provider registry.Provider, cred *auth.Credential) (*attempt, error) {
	switch provider {
	case registry.ProviderGemini:
		return s.openGemini(ctx, req, cred)
	case registry.ProviderAntigravity:
		return s.openAntigravity(ctx, req, cred)
	case registry.ProviderClaude:
		return s.openClaude(ctx, req, cred)
	case registry.ProviderCodex:
		return s.openCodex(ctx, req, cred)
	case registry.ProviderKiro:
		return s.openKiro(ctx, req, cred)
	}
	return nil, errBadRequest("unsupported provider %q", provider)
}

func (s *Server) openGemini(ctx context.Context, req *ir.ChatRequest, cred *auth.Credential) (*attempt, error) {
	body, err := from_ir.ToGeminiCLIRequest(req)
	if err != nil {
		return nil, errBadRequest("%v", err)
	}
	if cred.ProjectID != "" {
		body, _ = sjson.SetBytes(body, "project", cred.ProjectID)
	}
	session := from_ir.SessionKey(req.Messages)
	body = s.replaySignatures(body, session)

	rc, err := upstream.Do(ctx, s.client, upstream.Request{
		URL:     upstream.GeminiURL(true),
		Body:    body,
		Headers: upstream.GeminiHeaders(cred.Token.AccessToken),
		Stream:  true,
	})
	if err != nil {
		return nil, err
	}
	proc := stream.NewGeminiCLIProcessor(s.ids)
	proc.Sigs = s.sigs
	proc.Session = session
	return &attempt{body: rc, proc: proc, sse: true}, nil
}

func (s *Server) openAntigravity(ctx context.Context, req *ir.ChatRequest, cred *auth.Credential) (*attempt, error) {
	project := cred.ProjectID
	if project == "" {
		resolved, err := oauth.ResolveProject(ctx, s.client, cred.Token.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("antigravity project bootstrap: %w", err)
		}
		project = resolved
		cred.ProjectID = resolved
		if err := s.auth.Save(cred); err != nil {
			logging.Warnf("persist resolved project for %s: %v", cred.Path, err)
		}
	}

	body, err := from_ir.ToAntigravityRequest(req, project)
	if err != nil {
		return nil, errBadRequest("%v", err)
	}
	session := from_ir.SessionKey(req.Messages)
	body = s.replaySignatures(body, session)

	rc, err := upstream.Do(ctx, s.client, upstream.Request{
		URL:     upstream.AntigravityURL(),
		Body:    body,
		Headers: upstream.AntigravityHeaders(cred.Token.AccessToken),
		Stream:  true,
	})
	if err != nil {
		return nil, err
	}
	proc := stream.NewAntigravityProcessor(s.ids)
	proc.Sigs = s.sigs
	proc.Session = session
	return &attempt{body: rc, proc: proc, sse: true}, nil
}

func (s *Server) openClaude(ctx context.Context, req *ir.ChatRequest, cred *auth.Credential) (*attempt, error) {
	body, err := from_ir.ToAnthropicRequest(req)
	if err != nil {
		return nil, errBadRequest("%v", err)
	}
	body, _ = sjson.SetBytes(body, "stream", true)

	rc, err := upstream.Do(ctx, s.client, upstream.Request{
		URL:     upstream.ClaudeURL(),
		Body:    body,
		Headers: upstream.ClaudeHeaders(cred.Token.AccessToken),
		Stream:  true,
	})
	if err != nil {
		return nil, err
	}
	return &attempt{body: rc, proc: stream.NewClaudeProcessor(), sse: true}, nil
}

func (s *Server) openCodex(ctx context.Context, req *ir.ChatRequest, cred *auth.Credential) (*attempt, error) {
	body, toolNames, err := from_ir.ToCodexRequest(req)
	if err != nil {
		return nil, errBadRequest("%v", err)
	}
	body, _ = sjson.SetBytes(body, "stream", true)

	rc, err := upstream.Do(ctx, s.client, upstream.Request{
		URL:     upstream.CodexURL(),
		Body:    body,
		Headers: upstream.CodexHeaders(cred.Token.AccessToken, ""),
		Stream:  true,
	})
	if err != nil {
		return nil, err
	}
	return &attempt{body: rc, proc: stream.NewCodexProcessor(toolNames), sse: true}, nil
}

// openKiro performs the CodeWhisperer call with the first-token watchdog:
// a response that produces no bytes within the timeout is abandoned and
// retried before any client frame is flushed.
func (s *Server) openKiro(ctx context.Context, req *ir.ChatRequest, cred *auth.Credential) (*attempt, error) {
	body, err := from_ir.ToKiroRequest(req, from_ir.KiroOptions{
		ProfileArn:    cred.ProfileArn,
		FakeReasoning: s.cfg.Reasoning.FakeReasoning,
	})
	if err != nil {
		return nil, errBadRequest("%v", err)
	}

	var lastErr error
	for tries := 0; tries <= s.cfg.FirstTokenMaxRetries; tries++ {
		rc, err := upstream.Do(ctx, s.client, upstream.Request{
			URL:     upstream.KiroURL(cred.Region),
			Body:    body,
			Headers: upstream.KiroHeaders(cred.Token.AccessToken),
			Stream:  true,
		})
		if err != nil {
			return nil, err
		}

		reader, err := upstream.WaitFirstByte(rc, s.cfg.FirstTokenTimeout)
		if err != nil {
			rc.Close()
			if errors.Is(err, upstream.ErrFirstTokenTimeout) {
				lastErr = err
				logging.Warnf("kiro produced no bytes within %s (attempt %d)", s.cfg.FirstTokenTimeout, tries+1)
				continue
			}
			return nil, err
		}

		proc := stream.NewKiroProcessor(s.ids)
		proc.PromptFallback = usage.CountRequest(req)
		return &attempt{body: readCloser{reader, rc}, proc: proc, sse: false}, nil
	}
	return nil, lastErr
}

// readCloser pairs the replaying reader with the original body's closer.
type readCloser struct {
	io.Reader
	io.Closer
}

// replaySignatures swaps the placeholder thought signature on functionCall
// parts for the real one cached for this conversation, when known.
func (s *Server) replaySignatures(body []byte, session string) []byte {
	if s.sigs == nil || session == "" {
		return body
	}
	sig, ok := s.sigs.Session(session)
	if !ok {
		return body
	}
	for ci, content := range gjson.GetBytes(body, "request.contents").Array() {
		for pi, part := range content.Get("parts").Array() {
			if part.Get("thoughtSignature").String() != from_ir.ThoughtSignatureMarker {
				continue
			}
			if !part.Get("functionCall").Exists() {
				continue
			}
			path := fmt.Sprintf("request.contents.%d.parts.%d.thoughtSignature", ci, pi)
			if updated, err := sjson.SetBytes(body, path, sig); err == nil {
				body = updated
			}
		}
	}
	return body
}
