package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/clarityread/readaloud/tts/stats"
)

const barWidth = 30

var statsDays int

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show how much time was spent reading aloud",
	Long:    paragraph(fmt.Sprintf("\nShow the %s reading time and a per-day breakdown.", keyword("total"))),
	Example: paragraph("readaloud stats\nreadaloud stats --days 30"),
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		store, err := stats.Open(readCfg.Stats.Path)
		if err != nil {
			return fmt.Errorf("unable to open stats database: %w", err)
		}
		defer store.Close() //nolint:errcheck

		ctx := cmd.Context()
		total, err := store.Total(ctx)
		if err != nil {
			return fmt.Errorf("unable to read stats: %w", err)
		}
		days, err := store.Daily(ctx, statsDays)
		if err != nil {
			return fmt.Errorf("unable to read stats: %w", err)
		}

		printStats(cmd.OutOrStdout(), total, days, time.Now())
		return nil
	},
}

func init() {
	statsCmd.Flags().IntVarP(&statsDays, "days", "d", 7, "number of days to show")
}

func printStats(w io.Writer, total time.Duration, days []stats.Day, now time.Time) {
	fmt.Fprintf(w, "Total reading time: %s (%s seconds)\n", //nolint:errcheck
		keyword(formatDuration(total)), humanize.Comma(int64(total/time.Second)))
	if len(days) == 0 {
		fmt.Fprintln(w, "No reading recorded in this period.") //nolint:errcheck
		return
	}

	most := 0
	for _, d := range days {
		most = max(most, d.Seconds)
	}
	fmt.Fprintln(w) //nolint:errcheck
	for _, d := range days {
		bar := 0
		if most > 0 {
			bar = max(1, d.Seconds*barWidth/most)
		}
		fmt.Fprintf(w, "%s %-14s %-*s %s\n", //nolint:errcheck
			d.Date.Format("Mon Jan _2"),
			dayLabel(d.Date, now),
			barWidth, strings.Repeat("█", bar),
			formatDuration(time.Duration(d.Seconds)*time.Second))
	}
}

func dayLabel(date, now time.Time) string {
	today := startOfDay(now)
	if !date.Before(today) {
		return "today"
	}
	return humanize.RelTime(date, today, "ago", "from now")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
