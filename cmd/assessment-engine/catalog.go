package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/terra-clan/assessment-engine/internal/catalog"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect assessment catalog files",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate [dir]",
	Short: "Validate every assessment file in a catalog directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := envOr("CATALOG_DIR", "./catalog")
		if len(args) == 1 {
			dir = args[0]
		}

		loader, err := catalog.NewLoader()
		if err != nil {
			return err
		}

		results, err := loader.ValidateDir(dir)
		if err != nil {
			return fmt.Errorf("failed to scan %s: %w", dir, err)
		}

		out := cmd.OutOrStdout()
		failed := 0
		for _, res := range results {
			if res.Err != nil {
				failed++
				fmt.Fprintf(out, "FAIL %s: %v\n", res.Path, res.Err)
				continue
			}
			fmt.Fprintf(out, "ok   %s (%s)\n", res.Path, res.ID)
		}

		if failed > 0 {
			return fmt.Errorf("%d of %d catalog files are invalid", failed, len(results))
		}
		fmt.Fprintf(out, "%d catalog files valid\n", len(results))
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
}
