package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-cms/pkg/simplecms/presets"
)

// NewSeedCommand loads sample records into the configured store
func NewSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create sample articles, news and announcements",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			rt, err := cfg.Build(cmd.Context(), cfg.NewLogger(os.Stderr))
			if err != nil {
				return fmt.Errorf("failed to build service: %w", err)
			}
			defer rt.Close()

			if err := presets.SeedFixtures(cmd.Context(), rt.Service); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sample records created")
			return nil
		},
	}
}
