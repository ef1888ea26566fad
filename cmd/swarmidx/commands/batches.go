package commands

import (
	"time"

	"github.com/spf13/cobra"

	"swarm-indexer/internal/query"
	"swarm-indexer/internal/types"
)

// batchesCmd projects each batch's TTL status against a caller-supplied
// current price (§4.7).
func (a *app) batchesCmd() *cobra.Command {
	var (
		price  uint64
		sortBy string
	)

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List batch TTL status",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseSortKey(sortBy)
			if err != nil {
				return err
			}
			rows, err := a.query.BatchStatus(cmd.Context(), types.FromUint64(price), time.Now(), key)
			if err != nil {
				return err
			}
			return printJSON(rows)
		},
	}
	cmd.Flags().Uint64Var(&price, "price", 0, "current price per chunk per block")
	cmd.Flags().StringVar(&sortBy, "sort-by", "expiry_at", "depth|chunks|ttl_blocks|ttl_days|expiry_at")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func parseSortKey(s string) (query.BatchSortKey, error) {
	switch s {
	case "depth":
		return query.SortByDepth, nil
	case "chunks":
		return query.SortByChunks, nil
	case "ttl_blocks":
		return query.SortByTTLBlocks, nil
	case "ttl_days":
		return query.SortByTTLDays, nil
	case "expiry_at", "":
		return query.SortByExpiryAt, nil
	default:
		return "", fatalf("unknown --sort-by value %q", s)
	}
}
