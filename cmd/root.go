// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nextron-mcp/internal/config"
	"github.com/xkilldash9x/nextron-mcp/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// dotEnvFile is loaded before configuration is read. Variables already set in
// the environment win.
const dotEnvFile = ".env"

var cfgFile string

// NewRootCommand builds the command tree. A fresh tree is created per execution
// so flag state never leaks between runs.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "nextron-mcp",
		Short:         "MCP tool server that drives the Nextron sales portal through a headless browser.",
		Long: `MCP tool server that drives the Nextron sales portal through a headless browser.

Without a subcommand it behaves like "serve" using the configured transport (stdio by default).`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v); err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.NewDefaultConfig().Logger())
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			logger := observability.GetLogger()
			logger.Info("Starting nextron-mcp", zap.String("version", Version))
			logCredentials(logger, cfg.Portal())

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	// Launched bare, the binary serves with the configured transport.
	serveCmd := newServeCmd()
	rootCmd.Args = cobra.NoArgs
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

// initializeConfig layers the .env file and an optional YAML file under the
// defaults already set on v.
func initializeConfig(v *viper.Viper) error {
	if err := gotenv.Load(dotEnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error reading %s: %w", dotEnvFile, err)
	}

	if cfgFile != "" {
		path, err := homedir.Expand(cfgFile)
		if err != nil {
			return fmt.Errorf("expanding config path %q: %w", cfgFile, err)
		}
		// An explicit path must exist; only the default lookup may come up empty.
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}
	return nil
}

func logCredentials(logger *zap.Logger, portal config.PortalConfig) {
	if !portal.HasCredentials() {
		logger.Warn("Portal credentials not configured; login calls must pass email and password.",
			zap.Bool("email_set", portal.Email != ""),
			zap.Bool("password_set", portal.Password != ""))
		return
	}
	logger.Info("Portal credentials configured.",
		zap.String("email", portal.Email),
		observability.Secret("password", portal.Password))
}

// getConfigFromContext returns the configuration stored by the root command.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}
