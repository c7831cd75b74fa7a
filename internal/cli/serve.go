package cli

import (
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/llm-gate/llm-gate/internal/auth"
	"github.com/llm-gate/llm-gate/internal/config"
	"github.com/llm-gate/llm-gate/internal/gateway"
	"github.com/llm-gate/llm-gate/internal/logging"
	"github.com/llm-gate/llm-gate/internal/quota"
	"github.com/llm-gate/llm-gate/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the llm-gate server",
	Long: `Start the API gateway server.

Loads the configuration, scans the auth directory for credentials, and
serves the OpenAI, Anthropic and Gemini compatible endpoints until
interrupted.`,
	RunE: func(c *cobra.Command, args []string) error {
		return runServe(c)
	},
}

func runServe(c *cobra.Command) error {
	// A missing .env is not an error; the file only supplies overrides.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	logging.Configure(logging.Options{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})

	ctx, stop := signal.NotifyContext(c.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	authStore, err := auth.NewStore(cfg.AuthDir)
	if err != nil {
		return err
	}
	go func() {
		if err := authStore.Watch(ctx); err != nil {
			logging.Warnf("auth dir watch: %v", err)
		}
	}()

	client, err := gateway.NewUpstreamClient(cfg)
	if err != nil {
		return err
	}

	logs, err := store.Open(ctx, cfg.Usage)
	if err != nil {
		logging.Warnf("request log store disabled: %v", err)
		logs = nil
	} else {
		defer logs.Close()
	}

	srv := gateway.New(cfg, authStore, logs, client)

	go (&quota.Refresher{
		Auth:     authStore,
		Tokens:   srv.TokenRefresher(),
		Client:   client,
		Logs:     logs,
		Interval: cfg.QuotaRefreshInterval.Std(),
	}).Run(ctx)

	return srv.Run(ctx)
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "override the configured listen port")
	rootCmd.AddCommand(serveCmd)
}
