package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/marketlens/backend/internal/policy"
)

// policyCmd represents the policy command
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect the signal policy",
}

var policyCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Validate a policy file and print its hash",
	Long: `Load a policy YAML, validate it and print the effective values and
hash that envelopes will cite. Without a file the built-in policy is used.

Example:
  go run ./cmd/marketlens policy check config/policy.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPolicyCheck,
}

func init() {
	rootCmd.AddCommand(policyCmd)
	policyCmd.AddCommand(policyCheckCmd)
}

func runPolicyCheck(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	p, _, err := policy.Load(path)
	if err != nil {
		PrintError(err.Error())
		return err
	}
	hash, err := policy.Hash(p)
	if err != nil {
		return err
	}

	title := "Built-in policy"
	if path != "" {
		title = path
	}
	PrintHeader(title)
	PrintKeyValue("Version", p.Version, 12)
	PrintKeyValue("Hash", hash, 12)
	PrintKeyValue("Weights", fmt.Sprintf("finbert %.2f / llm %.2f / lexicon %.2f", p.Ensemble.FinBERT, p.Ensemble.LLM, p.Ensemble.Lexicon), 12)
	PrintKeyValue("Threshold", fmt.Sprintf("%.2f (%s)", p.Classifier.Threshold, p.Classifier.Convention), 12)
	PrintKeyValue("Low conf", fmt.Sprintf("< %.2f", p.Classifier.LowConfidenceCutoff), 12)
	PrintKeyValue("Verified", fmt.Sprintf("%v", p.Evidence.VerifiedClasses), 12)
	PrintSeparator()

	warnings := policy.Warnings(p)
	for _, w := range warnings {
		PrintWarning(fmt.Sprintf("%s: %s", w.Code, w.Message))
	}
	if len(warnings) == 0 {
		PrintSuccess("Policy is valid")
	}
	return nil
}
