package main

import (
	"fmt"
	"strings"

	"birthday-wall/backend/internal/client"
	"birthday-wall/backend/pkg/logger"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "BIRTHDAYCTL"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "birthdayctl",
		Short:         "Maintenance tool for the birthday wall",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Config file path (optional).")
	flags.String("api-url", "http://localhost:8081", "Base URL of the wall API.")
	flags.String("token", "", "Admin bearer token for restore operations.")
	flags.String("backup-dir", "backups", "Directory for backups written before destructive operations.")
	flags.String("log-level", "info", "Log level (debug, info, warn, error).")
	for _, name := range []string{"config", "api-url", "token", "backup-dir", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newDedupeCmd())
	cmd.AddCommand(newReconcileCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newOptimizeImagesCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newExtractHTMLCmd())
	cmd.AddCommand(newTokenCmd())
	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newHashPasswordCmd())

	return cmd
}

func initConfig() error {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	// The server's own variable works too, so one .env serves both
	_ = viper.BindEnv("jwt-secret", envPrefix+"_JWT_SECRET", "JWT_SECRET")

	cfgFile := strings.TrimSpace(viper.GetString("config"))
	if cfgFile == "" {
		return nil
	}
	viper.SetConfigFile(cfgFile)
	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	return nil
}

func apiClient() *client.Client {
	return client.New(viper.GetString("api-url"), client.WithToken(viper.GetString("token")))
}

func cliLogger(cmd *cobra.Command) *logger.Logger {
	return logger.New(logger.Config{
		Level:  viper.GetString("log-level"),
		JSON:   false,
		Output: cmd.ErrOrStderr(),
	})
}
