// Command qactl runs the business-day and SOPA deadline calculations offline.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Global flags
var (
	jsonOutput bool
	nowFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "qactl",
	Short: "Business-day and SOPA deadline calculator",
	Long: `qactl answers the date questions the QA workflow asks, without a server.

Dates accept YYYY-MM-DD or natural language relative to --now.

Examples:
  qactl add-days "next friday" 10          # ten business days later
  qactl working-days 2026-03-04 2026-03-09 # notice given for a hold point
  qactl deadlines --region QLD 2026-03-02  # certification and payment due dates
  qactl regions                            # supported jurisdictions`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&nowFlag, "now", "", "Reference date for relative expressions and due classification (default today)")

	rootCmd.AddCommand(addDaysCmd)
	rootCmd.AddCommand(workingDaysCmd)
	rootCmd.AddCommand(deadlinesCmd)
	rootCmd.AddCommand(regionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: "+err.Error())
		os.Exit(1)
	}
}

// referenceTime --now resolved against the wall clock
func referenceTime() (time.Time, error) {
	if nowFlag == "" {
		return time.Now(), nil
	}
	return parseDate(nowFlag, time.Now())
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
