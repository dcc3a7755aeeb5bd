package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

// watchlistCmd represents the watchlist command
var watchlistCmd = &cobra.Command{
	Use:   "watchlist",
	Short: "Manage the watchlist",
	Long: `List or change the tracked tickers. The producing service owns the
list; changes go through it.

Subcommands:
  list    - Show the watchlist
  add     - Add a ticker
  remove  - Remove a ticker

Example:
  go run ./cmd/marketlens watchlist list
  go run ./cmd/marketlens watchlist add RELIANCE.NS
  go run ./cmd/marketlens watchlist remove TCS.NS`,
}

var (
	watchlistListCmd = &cobra.Command{
		Use:   "list",
		Short: "Show the watchlist",
		RunE:  runWatchlistList,
	}

	watchlistAddCmd = &cobra.Command{
		Use:   "add [ticker]",
		Short: "Add a ticker",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatchlistAdd,
	}

	watchlistRemoveCmd = &cobra.Command{
		Use:   "remove [ticker]",
		Short: "Remove a ticker",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatchlistRemove,
	}
)

func init() {
	rootCmd.AddCommand(watchlistCmd)
	watchlistCmd.AddCommand(watchlistListCmd, watchlistAddCmd, watchlistRemoveCmd)
}

func runWatchlistList(cmd *cobra.Command, args []string) error {
	c, err := newCore(cmd.Context())
	if err != nil {
		return err
	}
	defer c.close()

	snap, err := c.watchlist.Sync(cmd.Context())
	if err != nil {
		return err
	}
	printWatchlist(snap)
	return nil
}

func runWatchlistAdd(cmd *cobra.Command, args []string) error {
	return mutateWatchlist(cmd, args[0], true)
}

func runWatchlistRemove(cmd *cobra.Command, args []string) error {
	return mutateWatchlist(cmd, args[0], false)
}

func mutateWatchlist(cmd *cobra.Command, ticker string, add bool) error {
	ctx := cmd.Context()
	c, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	if _, err := c.watchlist.Sync(ctx); err != nil {
		return err
	}

	var snap contracts.WatchlistSnapshot
	verb := "Added"
	if add {
		snap, err = c.watchlist.Add(ctx, ticker)
	} else {
		verb = "Removed"
		snap, err = c.watchlist.Remove(ctx, ticker)
	}
	if err != nil {
		PrintError(err.Error())
		return err
	}

	PrintSuccess(fmt.Sprintf("%s %s", verb, contracts.NormalizeSymbol(ticker)))
	printWatchlist(snap)
	return nil
}

func printWatchlist(snap contracts.WatchlistSnapshot) {
	PrintHeader(fmt.Sprintf("Watchlist %s (%d/%d)", snap.ID, snap.Len(), contracts.MaxWatchlistSize))
	for i, s := range snap.Symbols() {
		fmt.Printf("   %d. %s\n", i+1, s)
	}
	if snap.Len() == 0 {
		fmt.Println("   (empty)")
	}
}
