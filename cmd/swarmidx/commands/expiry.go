package commands

import (
	"time"

	"github.com/spf13/cobra"

	"swarm-indexer/internal/expiry"
	"swarm-indexer/internal/types"
)

// expiryCmd aggregates expiring capacity into day/week/month buckets and
// optionally runs the on-chain balance refresh sweep first (§4.6, §4.7).
func (a *app) expiryCmd() *cobra.Command {
	var (
		price        uint64
		period       string
		refresh      bool
		postageStamp string
	)

	cmd := &cobra.Command{
		Use:   "expiry",
		Short: "Aggregate expiring storage capacity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if refresh {
				addr := types.Address(postageStamp)
				if !addr.Valid() {
					if configured, ok := a.cfg.PostageStampAddress(); ok {
						addr = configured
					} else {
						return fatalf("--refresh requires --postage-stamp or a configured PostageStamp contract")
					}
				}
				if _, err := a.expiry.Refresh(ctx, addr); err != nil {
					return err
				}
			}

			p, err := parsePeriod(period)
			if err != nil {
				return err
			}
			buckets, err := a.query.ExpiryAnalytics(ctx, types.FromUint64(price), time.Now(), p)
			if err != nil {
				return err
			}
			return printJSON(buckets)
		},
	}
	cmd.Flags().Uint64Var(&price, "price", 0, "current price per chunk per block")
	cmd.Flags().StringVar(&period, "period", "day", "day|week|month")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "sweep on-chain remaining balances before aggregating")
	cmd.Flags().StringVar(&postageStamp, "postage-stamp", "", "PostageStamp contract address (defaults to the registry's active one)")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func parsePeriod(s string) (expiry.Period, error) {
	switch s {
	case "day", "":
		return expiry.PeriodDay, nil
	case "week":
		return expiry.PeriodWeek, nil
	case "month":
		return expiry.PeriodMonth, nil
	default:
		return "", fatalf("unknown --period value %q", s)
	}
}
