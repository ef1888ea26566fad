package commands

import (
	"github.com/spf13/cobra"

	"swarm-indexer/internal/types"
)

// addressesCmd projects the owner/payer/sender role summary per address
// (§4.7, §4.8), with an optional single-address detail lookup and an
// optional top_funders refresh sweep (supplement D.3) before reporting.
func (a *app) addressesCmd() *cobra.Command {
	var (
		refresh bool
		address string
	)

	cmd := &cobra.Command{
		Use:   "addresses",
		Short: "Summarise address roles and delegation",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if refresh {
				if _, err := a.refreshTopFunders(); err != nil {
					return err
				}
			}

			if address != "" {
				addr, ok := types.NewAddress(address)
				if !ok {
					return fatalf("invalid --address %q", address)
				}
				rec, found, err := a.query.AddressDetail(ctx, addr)
				if err != nil {
					return err
				}
				if !found {
					return printJSON(nil)
				}
				return printJSON(rec)
			}

			rows, err := a.query.AddressSummary(ctx)
			if err != nil {
				return err
			}
			return printJSON(rows)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "recompute every address's top_funders list first")
	cmd.Flags().StringVar(&address, "address", "", "report one address's full record instead of the summary")
	return cmd
}
