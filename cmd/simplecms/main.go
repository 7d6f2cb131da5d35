package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-cms/pkg/simplecms/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// NewRootCommand builds the simplecms command tree
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "simplecms",
		Short: "Career-center CMS for articles, news and announcements",
		Long: `simplecms manages articles, news and announcements with optional
file attachments kept consistent with their storage backend.

Configuration comes from an optional config file and the environment
(DATABASE_URL, STORAGE_URL, PORT, ...). Environment values win.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (yaml, json, toml or .env)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		NewServeCommand(),
		NewMigrateCommand(),
		NewReconcileCommand(),
		NewSeedCommand(),
	)
	return rootCmd
}

// loadConfig reads the config file when given, then the environment, then
// flag overrides.
func loadConfig(cmd *cobra.Command, extra ...config.Option) (*config.ServerConfig, error) {
	var opts []config.Option
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	opts = append(opts, config.WithEnv())
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		opts = append(opts, config.WithLogLevel(level))
	}
	opts = append(opts, extra...)

	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
