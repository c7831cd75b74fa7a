// Package login holds the per-provider login subcommands.
package login

import (
	"github.com/spf13/cobra"

	"github.com/llm-gate/llm-gate/internal/auth"
	"github.com/llm-gate/llm-gate/internal/config"
	"github.com/llm-gate/llm-gate/internal/oauth"
	"github.com/llm-gate/llm-gate/internal/upstream"
)

// LoginCmd is the parent of the per-provider login commands.
var LoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate with an upstream provider",
}

// loginEnv is the shared setup every login command needs.
type loginEnv struct {
	cfg      *config.Config
	store    *auth.Store
	sessions *oauth.Sessions
	opts     oauth.Options
}

func setup(c *cobra.Command) (*loginEnv, error) {
	cfgPath, _ := c.Flags().GetString("config")
	noBrowser, _ := c.Flags().GetBool("no-browser")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	store, err := auth.NewStore(cfg.AuthDir)
	if err != nil {
		return nil, err
	}
	client, err := upstream.NewClient(cfg.ProxyURL)
	if err != nil {
		return nil, err
	}
	return &loginEnv{
		cfg:      cfg,
		store:    store,
		sessions: oauth.NewSessions(),
		opts: oauth.Options{
			NoBrowser:          noBrowser,
			Client:             client,
			GoogleClientID:     cfg.GoogleClientID,
			GoogleClientSecret: cfg.GoogleClientSecret,
			GatewayPort:        cfg.Port,
		},
	}, nil
}
