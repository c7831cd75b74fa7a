package upstream

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/llm-gate/llm-gate/internal/json"
)

const (
	cloudCodeBaseURL = "https://cloudcode-pa.googleapis.com"

	claudeMessagesURL = "https://api.anthropic.com/v1/messages"

	codexResponsesURL = "https://chatgpt.com/backend-api/codex/responses"

	anthropicVersion   = "2023-06-01"
	anthropicOAuthBeta = "oauth-2025-04-20"

	geminiCLIUserAgent   = "GeminiCLI/0.1.5 (linux; amd64)"
	antigravityUserAgent = "antigravity/1.15.8 linux/amd64"
	antigravityAPIClient = "google-cloud-sdk vscode_cloudshelleditor/0.1"
)

// GeminiURL returns the Cloud Code generateContent endpoint.
func GeminiURL(stream bool) string {
	if stream {
		return cloudCodeBaseURL + "/v1internal:streamGenerateContent?alt=sse"
	}
	return cloudCodeBaseURL + "/v1internal:generateContent"
}

// GeminiHeaders builds the gemini-cli request headers.
func GeminiHeaders(accessToken string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	h.Set("User-Agent", geminiCLIUserAgent)
	return h
}

// AntigravityURL returns the agent endpoint; Antigravity always streams,
// the non-stream API drains the same stream.
func AntigravityURL() string {
	return cloudCodeBaseURL + "/v1internal:streamGenerateContent?alt=sse"
}

// AntigravityHeaders builds the IDE-shaped headers the agent endpoint
// validates.
func AntigravityHeaders(accessToken string) http.Header {
	metadata, _ := json.Marshal(map[string]string{
		"ideType":    "IDE_UNSPECIFIED",
		"platform":   "PLATFORM_UNSPECIFIED",
		"pluginType": "GEMINI",
	})
	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	h.Set("User-Agent", antigravityUserAgent)
	h.Set("X-Goog-Api-Client", antigravityAPIClient)
	h.Set("Client-Metadata", string(metadata))
	return h
}

// ClaudeURL returns the Messages endpoint.
func ClaudeURL() string { return claudeMessagesURL }

// ClaudeHeaders builds headers for OAuth-token access to the Messages API.
func ClaudeHeaders(accessToken string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	h.Set("anthropic-version", anthropicVersion)
	h.Set("anthropic-beta", anthropicOAuthBeta)
	return h
}

// CodexURL returns the Responses endpoint behind the ChatGPT backend.
func CodexURL() string { return codexResponsesURL }

// CodexHeaders builds the Responses API headers. accountID comes from the
// credential when known.
func CodexHeaders(accessToken, accountID string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	h.Set("OpenAI-Beta", "responses=experimental")
	h.Set("session_id", uuid.NewString())
	if accountID != "" {
		h.Set("chatgpt-account-id", accountID)
	}
	return h
}

// KiroURL returns the region-scoped CodeWhisperer endpoint.
func KiroURL(region string) string {
	if region == "" {
		region = "us-east-1"
	}
	return "https://codewhisperer." + region + ".amazonaws.com/generateAssistantResponse"
}

// KiroHeaders builds the CodeWhisperer headers.
func KiroHeaders(accessToken string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	h.Set("Content-Type", "application/x-amz-json-1.0")
	h.Set("X-Amz-Target", "AmazonCodeWhispererService.GenerateAssistantResponse")
	return h
}

// KiroModelsURL returns the region-scoped model-listing endpoint.
func KiroModelsURL(region string) string {
	if region == "" {
		region = "us-east-1"
	}
	return "https://codewhisperer." + region + ".amazonaws.com/ListAvailableModels"
}

// KiroModelsHeaders builds the ListAvailableModels headers.
func KiroModelsHeaders(accessToken string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+accessToken)
	h.Set("Content-Type", "application/x-amz-json-1.0")
	h.Set("X-Amz-Target", "AmazonCodeWhispererService.ListAvailableModels")
	return h
}
