// Package cli defines the llm-gate command tree.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/llm-gate/llm-gate/internal/cli/login"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "llm-gate",
	Short: "Local multi-provider LLM API gateway",
	Long: `llm-gate exposes OpenAI, Anthropic and Gemini compatible endpoints on
localhost and forwards requests to Gemini CLI, Claude, Codex, Antigravity
and Kiro accounts authenticated via OAuth.

Running without a subcommand starts the server.`,
	RunE: func(c *cobra.Command, args []string) error {
		return runServe(c)
	},
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML or JSON with comments)")
	rootCmd.PersistentFlags().Bool("no-browser", false, "print OAuth URLs instead of opening a browser")
	rootCmd.AddCommand(login.LoginCmd)
}
