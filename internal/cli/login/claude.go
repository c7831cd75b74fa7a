package login

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llm-gate/llm-gate/internal/oauth"
)

var claudeCmd = &cobra.Command{
	Use:   "claude",
	Short: "Login to Anthropic Claude",
	Long: `Login to Anthropic Claude using OAuth authentication.

Opens the Anthropic authorize page and waits for the pasted code#state
pair, then saves the credential.`,
	RunE: func(c *cobra.Command, args []string) error {
		env, err := setup(c)
		if err != nil {
			return err
		}
		cred, err := oauth.LoginAnthropic(c.Context(), env.store, env.sessions, env.opts)
		if err != nil {
			return err
		}
		fmt.Printf("Logged in as %s\n", cred.Email)
		return nil
	},
}

func init() {
	LoginCmd.AddCommand(claudeCmd)
}
