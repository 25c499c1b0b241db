package commands

// Root command for Cobra CLI
// Loads configuration and initializes logging before any subcommand runs
// Registers all subcommands (health, agents, routes, auth)

import (
	"context"

	"partyserver-client/internal/infra/config"
	"partyserver-client/internal/infra/log"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// commands annotated offline never call the server and do not need a base URL
const offlineAnnotation = "offline"

// cli carries state shared by all subcommands of one invocation
type cli struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	app := &cli{}

	rootCmd := &cobra.Command{
		Use:   "partyserver",
		Short: "PartyServer client - health checks and trading agent management",
		Long: `PartyServer client talks to the PartyServer JSON API: checks service health,
starts, stops and validates trading agents, and reads agent status and trade history.
Admin routes use the token and wallet address from flags, environment or the saved credential file.`,
		Version:           "1.0.0",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: app.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Sync()
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default ./config.yaml)")
	flags.String("env-file", "", "dotenv file (default .env)")
	flags.String("base-url", "", "PartyServer base URL (PARTYSERVER_BASE_URL)")
	flags.Int("timeout-ms", 0, "per-call timeout in milliseconds (default 300000)")
	flags.String("token", "", "admin bearer token (ADMIN_TOKEN)")
	flags.String("wallet", "", "admin wallet address (ADMIN_WALLET_ADDRESS)")
	flags.String("data-dir", "", "directory of the saved credential file (default data_in)")
	flags.String("out-dir", "", "directory for saved responses (default data_out)")
	flags.String("log-dir", "", "directory for client.log (default logs)")
	flags.String("log-level", "", "file log level: debug, info, warn, error (default info)")
	flags.Int("retries", 0, "retry transport failures, timeouts, 429 and 5xx up to N times")

	rootCmd.AddCommand(newHealthCmd(app))
	rootCmd.AddCommand(newAgentsCmd(app))
	rootCmd.AddCommand(newRoutesCmd())
	rootCmd.AddCommand(newAuthCmd(app))
	return rootCmd
}

// Execute runs the CLI, ctx cancellation aborts in-flight calls
func Execute(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func (a *cli) setup(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.LoadConfig(config.LoadOptions{
		ConfigFile: configFile,
		EnvFile:    envFile,
		Flags:      cmd.Flags(),
		Offline:    isOffline(cmd),
	})
	if err != nil {
		return err
	}

	if err := log.Init(log.Options{Dir: cfg.App.LogDir, Level: cfg.App.LogLevel, Console: true}); err != nil {
		return err
	}
	a.cfg = cfg
	log.LogInfo("Configuration loaded",
		zap.String("command", cmd.CommandPath()),
		zap.String("base_url", cfg.API.BaseURL),
		zap.Int("timeout_ms", cfg.API.TimeoutMs),
		zap.Int("retries", cfg.Retry.MaxRetries),
		zap.Bool("route_rate_limits", cfg.API.RouteRateLimits))
	return nil
}

func isOffline(cmd *cobra.Command) bool {
	if cmd.Name() == "help" {
		return true
	}
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[offlineAnnotation] == "true" {
			return true
		}
	}
	return false
}
