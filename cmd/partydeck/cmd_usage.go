package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var usageDays int

func runUsage(cmd *cobra.Command, args []string) error {
	d, err := openDeck()
	if err != nil {
		return err
	}
	defer d.Close()

	t := d.UsageTracker()

	week := t.Weekly()
	fmt.Printf("Week %s — %s\n", week.WeekStart, week.WeekEnd)
	fmt.Printf("  sessions %d · messages %d · tokens %d · active %dm\n\n",
		week.TotalSessions, week.TotalMessages, week.TotalTokens, week.TotalMinutes)

	fmt.Printf("Last %d days:\n", usageDays)
	for _, day := range t.Daily(usageDays) {
		fmt.Printf("  %s  sessions %-3d messages %-4d tokens %-8d active %dm\n",
			day.Date, day.Sessions, day.Messages, day.EstimatedTokens, day.ActiveMinutes)
	}

	if s := t.CurrentSession(); s != nil {
		fmt.Printf("\nOpen session since %s: %d messages, %d tokens\n",
			s.StartTime.Format("15:04"), s.Messages, s.Tokens)
	}
	return nil
}
