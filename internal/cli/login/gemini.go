package login

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llm-gate/llm-gate/internal/oauth"
)

var geminiCmd = &cobra.Command{
	Use:   "gemini",
	Short: "Login to Google Gemini",
	Long: `Login to Google Gemini using OAuth authentication.

Opens a browser for the Google sign-in flow and saves the resulting
credential under the auth directory. Use --no-browser to print the
authorization URL instead.`,
	RunE: func(c *cobra.Command, args []string) error {
		env, err := setup(c)
		if err != nil {
			return err
		}
		cred, err := oauth.LoginGemini(c.Context(), env.store, env.sessions, env.opts)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s\n", cred.Email)
		return nil
	},
}

func init() {
	LoginCmd.AddCommand(geminiCmd)
}
