package config

import (
	"os"
	"strconv"
	"strings"
)

// ThinkingHandling selects what happens to text found inside thinking tags.
type ThinkingHandling string

const (
	// ThinkingAsReasoning routes tagged text into the reasoning_content channel.
	ThinkingAsReasoning ThinkingHandling = "as_reasoning_content"
	// ThinkingRemove drops tagged text entirely.
	ThinkingRemove ThinkingHandling = "remove"
	// ThinkingPass re-emits text with the original tags intact.
	ThinkingPass ThinkingHandling = "pass"
	// ThinkingStripTags emits the text as plain content with tags removed.
	ThinkingStripTags ThinkingHandling = "strip_tags"
)

// ReasoningConfig controls the thinking-tag parser and the Kiro
// fake-reasoning prompt injection.
type ReasoningConfig struct {
	// FakeReasoning enables the <thinking_mode> injection for providers
	// without native reasoning output (Kiro).
	FakeReasoning bool
	// MaxTokens is the reasoning budget advertised in the injected prompt.
	MaxTokens int
	// Handling selects the output mode for extracted thinking spans.
	Handling ThinkingHandling
	// InitialBufferSize is how many bytes are buffered before deciding
	// whether the response opens with a thinking tag.
	InitialBufferSize int
}

func defaultReasoningConfig() ReasoningConfig {
	return ReasoningConfig{
		FakeReasoning:     false,
		MaxTokens:         2000,
		Handling:          ThinkingAsReasoning,
		InitialBufferSize: 20,
	}
}

func (r *ReasoningConfig) applyEnv() {
	if v := os.Getenv("FAKE_REASONING"); v != "" {
		r.FakeReasoning = parseBool(v)
	}
	if v := os.Getenv("FAKE_REASONING_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			r.MaxTokens = n
		}
	}
	if v := os.Getenv("FAKE_REASONING_HANDLING"); v != "" {
		switch ThinkingHandling(strings.ToLower(v)) {
		case ThinkingAsReasoning, ThinkingRemove, ThinkingPass, ThinkingStripTags:
			r.Handling = ThinkingHandling(strings.ToLower(v))
		}
	}
	if v := os.Getenv("FAKE_REASONING_INITIAL_BUFFER_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			r.InitialBufferSize = n
		}
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on", "enable", "enabled":
		return true
	}
	return false
}
