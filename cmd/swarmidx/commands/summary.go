package commands

import (
	"time"

	"github.com/spf13/cobra"

	"swarm-indexer/internal/storage"
	"swarm-indexer/internal/types"
)

// summaryCmd projects event counts by kind/family/time-window/batch-id
// prefix (§4.7).
func (a *app) summaryCmd() *cobra.Command {
	var (
		from, to      string
		family        string
		eventKind     string
		batchIDPrefix string
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Summarise ingested events",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := storage.SummaryFilter{}
			if from != "" {
				t, err := time.Parse(time.RFC3339, from)
				if err != nil {
					return err
				}
				filter.From = t
			}
			if to != "" {
				t, err := time.Parse(time.RFC3339, to)
				if err != nil {
					return err
				}
				filter.To = t
			} else {
				filter.To = time.Now()
			}
			if family != "" {
				f := types.ContractFamily(family)
				filter.Family = &f
			}
			if eventKind != "" {
				filter.EventKind = &eventKind
			}
			if batchIDPrefix != "" {
				filter.BatchIDPrefix = &batchIDPrefix
			}

			rows, err := a.query.Summary(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(rows)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "RFC3339 window start (default: epoch)")
	cmd.Flags().StringVar(&to, "to", "", "RFC3339 window end (default: now)")
	cmd.Flags().StringVar(&family, "family", "", "filter by contract family")
	cmd.Flags().StringVar(&eventKind, "event-kind", "", "filter by event kind")
	cmd.Flags().StringVar(&batchIDPrefix, "batch-id-prefix", "", "filter by batch id prefix")
	return cmd
}
