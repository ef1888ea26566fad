package commands

import (
	"github.com/spf13/cobra"

	"swarm-indexer/internal/ingest"
	"swarm-indexer/internal/types"
)

// ingestCmd scans an explicit, historical block range (§6 "ingest a
// historical range").
func (a *app) ingestCmd() *cobra.Command {
	var from, to uint64
	var force bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a historical block range",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.ingest.Scan(cmd.Context(), types.BlockNumber(from), types.BlockNumber(to), ingest.ScanOptions{Force: force})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "first block (inclusive)")
	cmd.Flags().Uint64Var(&to, "to", 0, "last block (inclusive)")
	cmd.Flags().BoolVar(&force, "force", false, "re-fetch chunks already recorded in the chunk cache")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// syncCmd ingests once, incrementally, from the last synced block up to
// the current tip minus the configured safety depth (§6 "ingest
// incrementally to tip").
func (a *app) syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Ingest once, from the last synced block to the chain tip",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tip, err := a.chain.BlockNumber(ctx)
			if err != nil {
				return err
			}
			if uint64(tip) < a.cfg.Blockchain.SafetyDepth {
				return printJSON(ingest.Result{})
			}
			safeTip := tip - types.BlockNumber(a.cfg.Blockchain.SafetyDepth)

			last, ok, err := a.store.LastSyncedBlock(ctx)
			if err != nil {
				return err
			}
			from := types.BlockNumber(0)
			if ok {
				from = last + 1
			}
			if from > safeTip {
				return printJSON(ingest.Result{LastSyncedBlock: last})
			}

			result, err := a.ingest.Scan(ctx, from, safeTip, ingest.ScanOptions{})
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}
