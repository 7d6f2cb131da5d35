package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/scan"
)

type reconcileFunc func(s *scan.Scanner, ctx context.Context, resource string) (*simplecms.ReconcileReport, error)

// NewReconcileCommand finds and repairs attachment references whose blob is gone
func NewReconcileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Check attachment references against the blob store",
	}
	cmd.PersistentFlags().Bool("json", false, "output JSON")

	cmd.AddCommand(
		newReconcileSubcommand("check", "List records whose attachment blob is missing", (*scan.Scanner).CheckAttachments),
		newReconcileSubcommand("repair", "Clear attachment references whose blob is missing", (*scan.Scanner).RepairDangling),
	)
	return cmd
}

func newReconcileSubcommand(use, short string, run reconcileFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [resource...]",
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			logger := cfg.NewLogger(os.Stderr)

			rt, err := cfg.Build(cmd.Context(), logger)
			if err != nil {
				return fmt.Errorf("failed to build service: %w", err)
			}
			defer rt.Close()

			resources := args
			if len(resources) == 0 {
				for _, r := range rt.Service.Resources() {
					resources = append(resources, r.Name)
				}
			}

			scanner := scan.New(rt.Service, logger)
			var reports []*simplecms.ReconcileReport
			var errs []error
			for _, resource := range resources {
				report, err := run(scanner, cmd.Context(), resource)
				if report != nil {
					reports = append(reports, report)
				}
				if err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", resource, err))
				}
			}

			asJSON, _ := cmd.Flags().GetBool("json")
			if err := writeReports(cmd.OutOrStdout(), reports, asJSON); err != nil {
				return err
			}
			return errors.Join(errs...)
		},
	}
}

func writeReports(w io.Writer, reports []*simplecms.ReconcileReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(reports)
	}
	for _, report := range reports {
		fmt.Fprintf(w, "%s: scanned %d, dangling %d\n", report.Resource, report.Scanned, len(report.Dangling))
		for _, d := range report.Dangling {
			fmt.Fprintf(w, "  %s %s\n", d.RecordID, d.Path)
		}
	}
	return nil
}
