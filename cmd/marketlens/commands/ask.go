package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/marketlens/backend/internal/contracts"
	"github.com/wonny/marketlens/backend/internal/recommend"
)

// askCmd represents the ask command
var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask for recommendations on the watchlist",
	Long: `Send one question to the producing service and print the
classified, trust-labelled recommendation envelope.

Example:
  go run ./cmd/marketlens ask "How does my watchlist look?"
  go run ./cmd/marketlens ask --tickers RELIANCE.NS,TCS.NS "Any red flags?"
  go run ./cmd/marketlens ask --json "Summarize banks"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	askTickers   []string
	askWebSearch bool
	askJSON      bool
	askTimeout   time.Duration
)

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().StringSliceVar(&askTickers, "tickers", nil, "restrict to these watchlist tickers")
	askCmd.Flags().BoolVar(&askWebSearch, "web-search", false, "let the producer search the web")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the raw envelope as JSON")
	askCmd.Flags().DurationVar(&askTimeout, "timeout", 60*time.Second, "overall request timeout")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), askTimeout)
	defer cancel()

	c, err := newCore(ctx)
	if err != nil {
		return err
	}
	defer c.close()

	if _, err := c.watchlist.Sync(ctx); err != nil {
		return err
	}

	env, err := c.builder(nil).Build(ctx, recommend.Request{
		Query:       strings.Join(args, " "),
		WatchlistID: c.watchlist.ID(),
		Tickers:     askTickers,
		WebSearch:   askWebSearch,
	})
	if err != nil {
		PrintError(err.Error())
		return err
	}

	if askJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}
	printEnvelope(env)
	return nil
}

func printEnvelope(env *contracts.RecommendationEnvelope) {
	PrintHeader(env.Query)
	fmt.Println(env.Summary)
	PrintSeparator()

	signals := make([]contracts.Signal, len(env.Recommendations))
	for i, r := range env.Recommendations {
		signals[i] = r.Signal
	}
	PrintSignalTable(signals)

	for _, r := range env.Recommendations {
		if r.Rationale == "" && len(r.Drivers) == 0 {
			continue
		}
		fmt.Printf("\n%s\n", r.Ticker)
		if r.Rationale != "" {
			fmt.Printf("   %s\n", r.Rationale)
		}
		for _, d := range r.Drivers {
			mark := "UNVERIFIED"
			if d.Verified {
				mark = "VERIFIED"
			}
			fmt.Printf("   • [%s] %s (trust %.2f)\n", mark, d.Source, d.SourceTrust)
		}
	}

	PrintSeparator()
	w := env.Explainability.Ensemble
	PrintKeyValue("Confidence", fmt.Sprintf("%.2f", env.GlobalConfidence), 12)
	PrintKeyValue("Weights", fmt.Sprintf("finbert %.2f / llm %.2f / lexicon %.2f", w.FinBERT, w.LLM, w.Lexicon), 12)
	if env.Explainability.UncertaintyReason != "" {
		PrintKeyValue("Uncertainty", env.Explainability.UncertaintyReason, 12)
	}
	PrintKeyValue("Policy", env.Explainability.PolicyHash, 12)
	PrintKeyValue("Chat ID", env.ChatID, 12)
	fmt.Println()
	PrintWarning(env.Disclaimer)
}
