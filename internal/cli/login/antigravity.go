package login

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llm-gate/llm-gate/internal/oauth"
)

var antigravityCmd = &cobra.Command{
	Use:   "antigravity",
	Short: "Login to Google Antigravity",
	Long: `Login to Google Antigravity using OAuth authentication.

Runs the Google sign-in flow against the Antigravity client, resolves the
Cloud Code project (onboarding the account when needed), and saves the
credential.`,
	RunE: func(c *cobra.Command, args []string) error {
		env, err := setup(c)
		if err != nil {
			return err
		}
		cred, err := oauth.LoginAntigravity(c.Context(), env.store, env.sessions, env.opts)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s (project %s)\n", cred.Email, cred.ProjectID)
		return nil
	},
}

func init() {
	LoginCmd.AddCommand(antigravityCmd)
}
