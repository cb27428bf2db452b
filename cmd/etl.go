package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newETLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "etl",
		Short: "Run one fetch, normalize and reconcile cycle, then exit",
		Long: `Fetches the configured dataset once, normalizes every record, and writes the
batch to the reconciliation store. The run summary is printed as JSON.`,
		RunE: runETL,
	}
}

func runETL(cmd *cobra.Command, _ []string) error {
	appInstance, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	res, err := appInstance.RunETL(cmd.Context())
	if err != nil {
		return fmt.Errorf("etl: %w", err)
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("write etl summary: %w", err)
	}
	return nil
}
