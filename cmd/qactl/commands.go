package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/engine"
	"github.com/bitfantasy/siteqa/internal/qa/entity"
	"github.com/spf13/cobra"
)

var addDaysCmd = &cobra.Command{
	Use:   "add-days <date> <n>",
	Short: "Add n business days to a date (weekends skipped)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		now, err := referenceTime()
		if err != nil {
			return err
		}
		start, err := parseDate(args[0], now)
		if err != nil {
			return err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 0 {
			return fmt.Errorf("n must be a non-negative integer, got %q", args[1])
		}
		result := engine.AddBusinessDays(start, n)
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"start":         start.Format(dateLayout),
				"business_days": n,
				"result":        result.Format(dateLayout),
				"weekday":       result.Weekday().String(),
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", result.Format(dateLayout), result.Weekday())
		return nil
	},
}

var minNotice int

var workingDaysCmd = &cobra.Command{
	Use:   "working-days <from> <to>",
	Short: "Business days d with from < d <= to, checked against a minimum notice",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		now, err := referenceTime()
		if err != nil {
			return err
		}
		from, err := parseDate(args[0], now)
		if err != nil {
			return err
		}
		to, err := parseDate(args[1], now)
		if err != nil {
			return err
		}
		days := engine.WorkingDaysBetween(from, to)
		sufficient := days >= minNotice
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"from":                from.Format(dateLayout),
				"to":                  to.Format(dateLayout),
				"working_days":        days,
				"calendar_days":       engine.CalendarDaysBetween(from, to),
				"minimum_notice_days": minNotice,
				"sufficient_notice":   sufficient,
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d working day(s)\n", days)
		if !sufficient {
			fmt.Fprintf(cmd.OutOrStdout(), "short notice: %d working day(s) required\n", minNotice)
		}
		return nil
	},
}

var (
	deadlineRegion string
	deadlineStatus string
)

var deadlinesCmd = &cobra.Command{
	Use:   "deadlines <submitted-date>",
	Short: "SOPA certification and payment due dates for a claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		now, err := referenceTime()
		if err != nil {
			return err
		}
		submitted, err := parseDate(args[0], now)
		if err != nil {
			return err
		}
		if !engine.ValidClaimStatus(deadlineStatus) {
			return fmt.Errorf("unknown claim status %q", deadlineStatus)
		}
		claim := entity.Claim{Status: deadlineStatus, SubmittedAt: &submitted}
		d := engine.DeadlinesFor(claim, deadlineRegion, now)
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), d)
		}
		out := cmd.OutOrStdout()
		if d.RegionFallback {
			fmt.Fprintf(out, "unknown region %q, using %s\n", deadlineRegion, d.Region)
		}
		fmt.Fprintf(out, "Region:        %s (%d/%d business days)\n", d.Region, d.ResponseTimeDays, d.PaymentTimeDays)
		printDue(out, "Certification", d.CertificationDue, d.CertificationStatus)
		printDue(out, "Payment", d.PaymentDue, d.PaymentStatus)
		return nil
	},
}

func printDue(out io.Writer, label string, due *time.Time, st *engine.DueStatus) {
	if due == nil {
		fmt.Fprintf(out, "%-14s -\n", label+":")
		return
	}
	line := fmt.Sprintf("%-14s %s", label+":", due.Format(dateLayout))
	if st != nil {
		line += " (" + st.Label + ")"
	}
	fmt.Fprintln(out, line)
}

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "List supported SOPA jurisdictions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), engine.Regions)
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CODE\tRESPONSE\tPAYMENT\tACT")
		for _, r := range engine.Regions {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", r.Code, r.ResponseTimeDays, r.PaymentTimeDays, r.Act)
		}
		return tw.Flush()
	},
}

func init() {
	workingDaysCmd.Flags().IntVar(&minNotice, "min-notice", engine.DefaultMinimumNoticeDays, "Minimum working days notice")
	deadlinesCmd.Flags().StringVar(&deadlineRegion, "region", "NSW", "SOPA region code")
	deadlinesCmd.Flags().StringVar(&deadlineStatus, "status", entity.ClaimStatusSubmitted, "Claim status used for due classification")
}
