package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"swarm-indexer/internal/follow"
)

// followCmd runs the follow loop until SIGINT/SIGTERM, at which point the
// in-flight tick is allowed to finish before the process exits (§4.9).
func (a *app) followCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "follow",
		Short: "Poll the chain tip and ingest continuously",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			loop := a.newFollowLoop()
			err := loop.Run(ctx, follow.RunOptions{
				OnTick: func(tick follow.TickResult) {
					if tick.Scanned {
						_ = printJSON(tick.Result)
					}
				},
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}
