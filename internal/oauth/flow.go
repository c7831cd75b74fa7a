package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/llm-gate/llm-gate/internal/browser"
	"github.com/llm-gate/llm-gate/internal/json"
	"github.com/llm-gate/llm-gate/internal/logging"
)

// Options configures a login flow.
type Options struct {
	// NoBrowser prints the authorization URL instead of opening it.
	NoBrowser bool
	// Client is used for token and metadata calls. nil means the default
	// client.
	Client *http.Client
	// GoogleClientID and GoogleClientSecret override the built-in Google
	// client pair for the gemini flow.
	GoogleClientID     string
	GoogleClientSecret string
	// GatewayPort hosts the antigravity callback.
	GatewayPort int
}

func (o Options) httpClient() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return http.DefaultClient
}

// openAuthURL opens the URL in the browser or prints it for manual use.
func openAuthURL(url string, noBrowser bool) {
	if noBrowser || !browser.IsAvailable() {
		fmt.Printf("Visit the following URL to continue authentication:\n%s\n", url)
		return
	}
	if err := browser.OpenURL(url); err != nil {
		logging.Warnf("failed to open browser: %v", err)
		fmt.Printf("Visit the following URL to continue authentication:\n%s\n", url)
	}
}

// fetchJSON GETs a URL with a bearer token and decodes the body.
func fetchJSON(ctx context.Context, client *http.Client, url, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return json.Unmarshal(raw, out)
}
