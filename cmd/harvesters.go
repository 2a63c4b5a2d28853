package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/entity-harvester/internal/report"
)

func newHarvestersCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "harvesters",
		Short: "List registered harvesters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			infos := appInstance.Registry().List()
			switch format {
			case report.FormatMarkdown, "md":
				return report.WriteHarvesters(cmd.OutOrStdout(), infos)
			case report.FormatJSON:
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(infos); err != nil {
					return fmt.Errorf("encode harvesters: %w", err)
				}
				return nil
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", report.FormatMarkdown, "output format: markdown or json")
	return cmd
}
