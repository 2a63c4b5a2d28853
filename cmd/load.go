package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/entity-harvester/internal/artifact"
	"github.com/JakeFAU/entity-harvester/internal/entity"
)

func newLoadCmd() *cobra.Command {
	var (
		category string
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "load <entity name>",
		Short: "Print stored artifacts for an entity",
		Long: `Prints the newest artifact stored for the entity in one category.
Pass --all to print every stored version, oldest first.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cat, err := entity.ParseCategory(category)
			if err != nil {
				return err
			}
			artifacts, err := appInstance.Load(cmd.Context(), args[0], cat, !all)
			if err != nil {
				return err
			}
			if artifacts == nil {
				artifacts = []artifact.Artifact{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(artifacts); err != nil {
				return fmt.Errorf("encode artifacts: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", string(entity.CategoryNews), "artifact category")
	cmd.Flags().BoolVar(&all, "all", false, "print every stored version instead of only the newest")
	return cmd
}
