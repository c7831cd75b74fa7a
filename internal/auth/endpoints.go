package auth

// OAuth endpoints and the public desktop-client ids each provider issues
// tokens against.
const (
	GoogleTokenURL    = "https://oauth2.googleapis.com/token"
	AnthropicTokenURL = "https://console.anthropic.com/v1/oauth/token"
	OpenAITokenURL    = "https://auth.openai.com/oauth/token"

	KiroSocialRefreshURL = "https://prod.us-east-1.auth.desktop.kiro.dev/refreshToken"

	GeminiClientID     = "681255809395-oo8ft2oprdrnp9e3aqf6av3hmdib135j.apps.googleusercontent.com"
	GeminiClientSecret = "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"

	AntigravityClientID     = "1071006060591-tmhssin2h21lcre235vtolojh4g403ep.apps.googleusercontent.com"
	AntigravityClientSecret = "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"

	AnthropicClientID = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"

	OpenAIClientID = "app_EMoamEEZ73f0CkXaXp7hrann"
)

// KiroIdCTokenURL builds the region-scoped IdC token endpoint.
func KiroIdCTokenURL(region string) string {
	if region == "" {
		region = "us-east-1"
	}
	return "https://oidc." + region + ".amazonaws.com/token"
}
