package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/marketlens/backend/internal/stream"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the live signal stream in the terminal",
	Long: `Connect to the producer's signal stream, scope it to the watchlist
and print the merged table on every update. Ctrl+C stops.

Example:
  go run ./cmd/marketlens watch
  go run ./cmd/marketlens watch --all`,
	RunE: runWatch,
}

var watchAll bool

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchAll, "all", false, "do not scope signals to the watchlist")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	board := stream.NewSignalBoard(stream.BoardConfig{
		HistoryLen:          c.cfg.Stream.HistoryLen,
		Rules:               c.rules,
		LowConfidenceCutoff: c.policy.Classifier.LowConfidenceCutoff,
	}, c.log)

	if !watchAll {
		snap, err := c.watchlist.Sync(ctx)
		if err != nil {
			return err
		}
		board.SetScope(snap.Symbols())
		fmt.Printf("Watching %v\n", snap.Symbols())
	}

	client := stream.NewClient(stream.ClientConfig{
		Name:        "signals",
		URL:         c.cfg.StreamURL(c.cfg.Stream.SignalsPath),
		BackoffBase: c.cfg.Stream.BackoffBase,
		BackoffMax:  c.cfg.Stream.BackoffMax,
		OnStateChange: func(name string, from, to stream.State) {
			fmt.Printf("[%s] %s → %s\n", name, from, to)
		},
	}, board.Handle, c.log)

	updates, unsubscribe := board.Subscribe()
	defer unsubscribe()

	errCh := make(chan error, 1)
	go func() { errCh <- client.Run(ctx) }()

	for {
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case snap := <-updates:
			printSnapshot(snap)
		}
	}
}

func printSnapshot(snap stream.SignalSnapshot) {
	PrintHeader(fmt.Sprintf("Signals v%d at %s", snap.Version, snap.UpdatedAt.Format("15:04:05")))
	PrintSignalTable(snap.Signals)
	for _, s := range snap.Signals {
		if s.Advisory != "" {
			PrintWarning(fmt.Sprintf("%s: %s", s.Ticker, s.Advisory))
		}
	}
}
