// Command report prints the last week's activity report from a warden
// database without talking to Telegram. Useful for checking what the next
// digest will say.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"repost-warden/internal/stats"
	"repost-warden/internal/store"
)

func main() {
	_ = godotenv.Load(".env")

	dbPath := flag.String("db", "warden.db", "Path to the warden database")
	days := flag.Int("days", 7, "Window length in days, ending now")
	topN := flag.Int("top", 5, "Contributors to list")
	topM := flag.Int("offenders", 3, "Offenders to list")
	flag.Parse()

	st, err := store.Open(*dbPath)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	end := time.Now().UTC()
	start := end.Add(-time.Duration(*days) * 24 * time.Hour)

	agg := stats.New(st, *topN, *topM)
	report, err := agg.WeeklyReport(context.Background(), start, end)
	if err != nil {
		log.Fatalf("build report: %v", err)
	}

	fmt.Printf("Window: %s - %s\n\n", start.Format(time.RFC3339), end.Format(time.RFC3339))

	fmt.Println("Top contributors:")
	for i, c := range report.TopContributors {
		fmt.Printf("  %d. %s (%d): %d messages\n", i+1, c.User.DisplayName, c.User.ID, c.Messages)
		for kind, count := range c.ByKind {
			fmt.Printf("       %s: %d\n", kind, count)
		}
	}

	fmt.Println("\nMedia breakdown:")
	for kind, count := range report.MediaBreakdown {
		fmt.Printf("  %s: %d\n", kind, count)
	}

	fmt.Println("\nTop offenders:")
	for i, o := range report.TopOffenders {
		fmt.Printf("  %d. %s (%d): %d duplicates\n", i+1, o.User.DisplayName, o.User.ID, o.Duplicates)
	}

	if report.TopEngagement != nil {
		fmt.Printf("\nMost reactions: %s (%d): %d\n",
			report.TopEngagement.User.DisplayName, report.TopEngagement.User.ID, report.TopEngagement.Reactions)
	}
}
