package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// HTTPError carries the provider's status and body for the 502 path.
type HTTPError struct {
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, truncate(e.Body, 512))
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// Request is one provider call, already translated.
type Request struct {
	URL     string
	Body    []byte
	Headers http.Header
	Stream  bool
}

// Do sends the request and returns the decoded response body reader. The
// caller owns closing it. Non-2xx responses come back as *HTTPError.
func Do(ctx context.Context, client *http.Client, req Request) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept-Encoding", "gzip, br")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "application/json")
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Set(k, v)
		}
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}

	body, err := decodeBody(resp)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(body, 1<<20))
		body.Close()
		return nil, &HTTPError{Status: resp.StatusCode, Body: raw}
	}
	return body, nil
}

// decodeBody unwraps gzip and brotli content encodings. net/http only does
// this transparently when it set the Accept-Encoding header itself.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get("Content-Encoding") {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		return &wrappedBody{Reader: gz, closer: resp.Body}, nil
	case "br":
		return &wrappedBody{Reader: brotli.NewReader(resp.Body), closer: resp.Body}, nil
	default:
		return resp.Body, nil
	}
}

type wrappedBody struct {
	io.Reader
	closer io.Closer
}

func (w *wrappedBody) Close() error { return w.closer.Close() }
