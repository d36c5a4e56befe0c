// Package stats derives windowed reports from the stored event log. Reports
// are pure functions of the log: running the same window twice yields the
// same report.
package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"

	"repost-warden/internal/model"
	"repost-warden/internal/store"
)

type Aggregator struct {
	store           *store.Store
	topContributors int
	topOffenders    int
}

func New(st *store.Store, topContributors, topOffenders int) *Aggregator {
	return &Aggregator{
		store:           st,
		topContributors: topContributors,
		topOffenders:    topOffenders,
	}
}

// WeeklyReport aggregates the event log over [start, end): top contributors
// by total messages, media breakdown by kind, top duplicate offenders, and
// the single most-reacted-to author if any reaction counts were fed in.
// A failed query surfaces as an error; no partial report is returned.
func (a *Aggregator) WeeklyReport(ctx context.Context, start, end time.Time) (*model.Report, error) {
	contributions, err := a.store.ContributionsInWindow(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate contributions: %w", err)
	}
	offenses, err := a.store.OffenseCountsInWindow(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate offenses: %w", err)
	}
	reactions, err := a.store.ReactionTotalsInWindow(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate reactions: %w", err)
	}

	report := &model.Report{
		WindowStart:     start,
		WindowEnd:       end,
		TopContributors: topContributors(contributions, a.topContributors),
		MediaBreakdown:  mediaBreakdown(contributions),
		TopOffenders:    topOffenders(offenses, a.topOffenders),
		TopEngagement:   topEngagement(reactions),
	}
	return report, nil
}

// LastWeek returns the [now-7d, now) window for the scheduled digest.
func LastWeek(now time.Time) (time.Time, time.Time) {
	return now.Add(-7 * 24 * time.Hour), now
}

func topContributors(contributions []store.Contribution, n int) []model.ContributorStat {
	byUser := lo.GroupBy(contributions, func(c store.Contribution) int64 { return c.User.ID })

	ranked := lo.MapToSlice(byUser, func(_ int64, cells []store.Contribution) model.ContributorStat {
		stat := model.ContributorStat{
			User:   cells[0].User,
			ByKind: make(map[model.MediaKind]int64, len(cells)),
		}
		for _, c := range cells {
			stat.Messages += c.Count
			stat.ByKind[c.Kind] += c.Count
		}
		return stat
	})

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Messages > ranked[j].Messages
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func mediaBreakdown(contributions []store.Contribution) map[model.MediaKind]int64 {
	breakdown := make(map[model.MediaKind]int64)
	for _, c := range contributions {
		if c.Kind == model.KindText {
			continue
		}
		breakdown[c.Kind] += c.Count
	}
	return breakdown
}

func topOffenders(offenses []model.OffenderStat, m int) []model.OffenderStat {
	ranked := append([]model.OffenderStat(nil), offenses...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Duplicates > ranked[j].Duplicates
	})
	if len(ranked) > m {
		ranked = ranked[:m]
	}
	return ranked
}

func topEngagement(reactions []model.EngagementStat) *model.EngagementStat {
	if len(reactions) == 0 {
		return nil
	}
	best := lo.MaxBy(reactions, func(a, b model.EngagementStat) bool {
		return a.Reactions > b.Reactions
	})
	return &best
}
