package login

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llm-gate/llm-gate/internal/oauth"
)

var codexCmd = &cobra.Command{
	Use:   "codex",
	Short: "Login to OpenAI Codex",
	Long: `Login to OpenAI Codex using the ChatGPT OAuth flow.

Opens a browser for the ChatGPT sign-in flow, receives the callback on
localhost, and saves the credential.`,
	RunE: func(c *cobra.Command, args []string) error {
		env, err := setup(c)
		if err != nil {
			return err
		}
		cred, err := oauth.LoginCodex(c.Context(), env.store, env.sessions, env.opts)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s\n", cred.Email)
		return nil
	},
}

func init() {
	LoginCmd.AddCommand(codexCmd)
}
