package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/entity-harvester/internal/report"
)

func newHarvestCmd() *cobra.Command {
	var (
		ids    []string
		format string
		output string
		strict bool
	)
	cmd := &cobra.Command{
		Use:   "harvest <entity name>",
		Short: "Run harvesters against an entity and print a report",
		Long: `Runs the requested harvesters (every enabled harvester by default)
concurrently against the entity, stores their artifacts, and prints one
result per harvester as JSON or Markdown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			batch, err := appInstance.Harvest(cmd.Context(), args[0], ids)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("create report file: %w", err)
				}
				defer func() {
					if cerr := f.Close(); cerr != nil {
						appInstance.Logger().Warn("close report file", zap.Error(cerr))
					}
				}()
				out = f
			}
			if err := writeReport(out, format, batch); err != nil {
				return err
			}

			succeeded, failed := batch.Counts()
			appInstance.Logger().Info("harvest finished",
				zap.String("entity", batch.Entity),
				zap.Int("succeeded", succeeded),
				zap.Int("failed", failed),
			)
			if strict && failed > 0 {
				return fmt.Errorf("%d of %d harvesters failed", failed, len(batch.Results))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&ids, "harvesters", "H", nil, "harvester ids to run (default: all enabled)")
	cmd.Flags().StringVarP(&format, "format", "f", "json", "report format: json or markdown")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to a file instead of stdout")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when any harvester fails")
	return cmd
}

func writeReport(out io.Writer, format string, batch report.Batch) error {
	w, err := report.NewWriter(format, out)
	if err != nil {
		return err
	}
	return w.Write(batch)
}
