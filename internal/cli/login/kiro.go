package login

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/llm-gate/llm-gate/internal/oauth"
)

var kiroCmd = &cobra.Command{
	Use:   "kiro",
	Short: "Import Kiro credentials",
	Long: `Import Kiro (Amazon Q / CodeWhisperer) credentials.

Reads the token cache the Kiro IDE writes under ~/.aws/sso/cache and saves
it as a gateway credential. Sign in with the Kiro IDE first.`,
	RunE: func(c *cobra.Command, args []string) error {
		env, err := setup(c)
		if err != nil {
			return err
		}
		cred, err := oauth.ImportKiro(env.store)
		if err != nil {
			return err
		}
		fmt.Printf("Imported kiro credential (%s, region %s)\n", cred.AuthMethod, cred.Region)
		return nil
	},
}

func init() {
	LoginCmd.AddCommand(kiroCmd)
}
