package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bnema/meeting-alertd/internal/calendar"
	"github.com/bnema/meeting-alertd/internal/scheduler"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show token health and the next meetings",
	Long: `One-shot check: probes the server to confirm the stored token is still
accepted, fetches the current window, and prints the classification the
daemon would act on.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	mgr, err := newTokenManager(false)
	if err != nil {
		return err
	}

	if !mgr.HasValidToken(ctx) {
		fmt.Println("Token: invalid or missing. Run 'meeting-alertd auth'.")
		return nil
	}
	fmt.Println("Token: valid (confirmed by server)")

	source := calendar.NewGoogleSource(mgr)
	now := time.Now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	events, err := source.Fetch(ctx, now, startOfToday.AddDate(0, 0, 2))
	if err != nil {
		return fmt.Errorf("failed to fetch events: %w", err)
	}

	kept := events[:0:0]
	for i := range events {
		if !events[i].IsCancelled() {
			kept = append(kept, events[i])
		}
	}

	c := scheduler.Classify(kept, now,
		time.Duration(cfg.Alerts.LookaheadWindowMinutes)*time.Minute,
		time.Duration(cfg.Alerts.NearDeltaMinutes)*time.Minute)

	if len(c.InProgress) == 0 && len(c.Upcoming) == 0 {
		fmt.Println("No meetings in the current window.")
		return nil
	}

	if len(c.InProgress) > 0 {
		fmt.Println("\nIn progress:")
		for i := range c.InProgress {
			e := c.InProgress[i]
			fmt.Printf("  %s  %s\n", e.TimeRange(), e.Subject)
		}
	}

	if len(c.Next) > 0 {
		fmt.Println("\nNext meetings:")
		for i := range c.Next {
			e := c.Next[i]
			fmt.Printf("  %s  %s (in %d min)\n", e.TimeRange(), e.Subject, e.MinutesToStart(now))
		}
	}

	if more := len(c.Upcoming) - len(c.Next); more > 0 {
		fmt.Printf("\n... and %d more upcoming\n", more)
	}

	return nil
}
