// File: cmd/root.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/pilot/internal/config"
	"github.com/xkilldash9x/pilot/internal/observability"
	"github.com/xkilldash9x/pilot/internal/service"
)

type contextKey string

const configKey contextKey = "config"

var (
	cfgFile string

	// newComponentFactory is replaced in tests to run without Chrome or Docker.
	newComponentFactory = service.NewComponentFactory
)

// flagKeys maps command flags onto configuration keys. A flag only
// overrides the configuration when it was set explicitly.
var flagKeys = map[string]string{
	"addr":      "server.addr",
	"desktop":   "desktop.enabled",
	"container": "desktop.container",
	"headless":  "browser.headless",
	"remote":    "browser.remote_url",
	"log-level": "logger.level",
}

// NewRootCommand creates a fresh command tree. Each call is independent, so
// flags never leak between executions.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pilot",
		Short:         "Pilot executes model-issued UI directives against a browser or a desktop.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			// 1. Configuration sources: .env, file, environment, flags.
			if err := initializeConfig(cmd, v); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "pilot"})
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			// 2. Logs go to stderr so stdout carries command output only.
			observability.Initialize(cfg.Logger, zapcore.Lock(os.Stderr))
			observability.GetLogger().Debug("Starting pilot", zap.String("version", Version))

			// 3. Hand the validated config to the subcommand.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml or ~/.pilot/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error). (Overrides config/env)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newExecCmd())
	rootCmd.AddCommand(newParseCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree with a signal-aware context.
func Execute(ctx context.Context) error {
	err := NewRootCommand().ExecuteContext(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	observability.Sync()
	return err
}

// initializeConfig reads the .env file, the config file and PILOT_*
// environment variables into v, then applies explicit flags.
func initializeConfig(cmd *cobra.Command, v *viper.Viper) error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".pilot"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			v.Set(key, f.Value.String())
		}
	}
	return nil
}

// configFromContext returns the configuration stored by the root command.
func configFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not found in command context")
	}
	return cfg, nil
}
