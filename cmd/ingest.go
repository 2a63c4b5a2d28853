package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <entity name> <file>",
		Short: "Extract a CSV, JSON or text document and store it for an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			got, err := appInstance.Ingest(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			appInstance.Logger().Info("document ingested",
				zap.String("document", got.Document),
				zap.Int("tables", len(got.Tables)),
			)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(got); err != nil {
				return fmt.Errorf("encode ingest result: %w", err)
			}
			return nil
		},
	}
}
