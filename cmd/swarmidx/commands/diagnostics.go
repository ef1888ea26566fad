package commands

import (
	"github.com/spf13/cobra"
)

// diagnosticsCmd lists recorded decode/attribution faults (supplement
// D.2), most recent first.
func (a *app) diagnosticsCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "diagnostics",
		Short: "List recorded decode and attribution diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := a.store.Diagnostics(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printJSON(rows)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum rows to return")
	return cmd
}
