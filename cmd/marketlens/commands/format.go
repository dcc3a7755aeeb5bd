package commands

import (
	"fmt"
	"strings"

	"github.com/wonny/marketlens/backend/internal/contracts"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// Every command prints through these helpers
// ═══════════════════════════════════════════════════════════

// PrintHeader prints a boxed section header
func PrintHeader(title string) {
	fmt.Println()
	fmt.Println("═══════════════════════════════════════════════════════════")
	fmt.Printf("  %s\n", title)
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintSeparator prints a visual separator
func PrintSeparator() {
	fmt.Println("───────────────────────────────────────────────────────────")
}

// PrintWarning prints a warning message
func PrintWarning(message string) {
	fmt.Printf("⚠️  %s\n", message)
}

// PrintSuccess prints a success message
func PrintSuccess(message string) {
	fmt.Printf("✅ %s\n", message)
}

// PrintError prints an error message
func PrintError(message string) {
	fmt.Printf("❌ %s\n", message)
}

// PrintTableHeader prints a table header
func PrintTableHeader(columns []string, widths []int) {
	PrintTableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Println(strings.Repeat("─", totalWidth))
}

// PrintTableRow prints a table row
func PrintTableRow(values []string, widths []int) {
	for i, val := range values {
		fmt.Printf("%-*s", widths[i], val)
		if i < len(values)-1 {
			fmt.Print("  ")
		}
	}
	fmt.Println()
}

// PrintKeyValue prints key-value pairs
func PrintKeyValue(key string, value string, keyWidth int) {
	fmt.Printf("   %-*s : %s\n", keyWidth, key, value)
}

var signalWidths = []int{14, 8, 6, 6, 6, 20}

// PrintSignalTable prints one row per signal
func PrintSignalTable(signals []contracts.Signal) {
	PrintTableHeader([]string{"TICKER", "TYPE", "ACTION", "SCORE", "CONF", "TRUST"}, signalWidths)
	for _, s := range signals {
		trust := strings.Join(s.Trust.Labels(), "+")
		if s.LowConfidence {
			trust += " (low conf)"
		}
		PrintTableRow([]string{
			s.Ticker,
			string(s.Type),
			string(s.Action),
			fmt.Sprintf("%.3f", s.Score),
			fmt.Sprintf("%.2f", s.Confidence),
			trust,
		}, signalWidths)
	}
}
