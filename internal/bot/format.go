package bot

import (
	"fmt"
	"sort"
	"strings"

	"repost-warden/internal/model"
)

const helpText = `I watch this group for re-posted media and keep engagement stats.

/stats - your own message and duplicate counters
/report - activity report for the last 7 days
/chatid - show this chat's id
/help - this message`

func formatDuplicateNotice(n *model.DuplicateNotice) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Already posted by %s on %s.",
		posterName(n.OriginalPoster), n.OriginalPostedAt.Format("2 Jan 2006 15:04"))
	if link := messageLink(n.OriginalOrigin); link != "" {
		fmt.Fprintf(&sb, "\nOriginal: %s", link)
	}
	return sb.String()
}

// messageLink builds a t.me back-link. Only supergroup chat ids (the -100
// prefix form) have public message links.
func messageLink(o model.Origin) string {
	const supergroupOffset = -1000000000000
	if o.ChatID > supergroupOffset {
		return ""
	}
	return fmt.Sprintf("https://t.me/c/%d/%d", -(o.ChatID - supergroupOffset), o.MessageID)
}

func formatUserStats(st *model.UserStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Stats for %s\n", posterName(st.User))
	fmt.Fprintf(&sb, "Messages: %d\n", st.TotalMessages)
	for _, kind := range sortedKinds(st.ByKind) {
		fmt.Fprintf(&sb, "  %s: %d\n", kind, st.ByKind[kind])
	}
	fmt.Fprintf(&sb, "Duplicates posted: %d\n", st.DuplicatesPosted)
	fmt.Fprintf(&sb, "First seen: %s", st.FirstSeen.Format("2 Jan 2006"))
	return sb.String()
}

func formatReport(r *model.Report) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Weekly digest (%s - %s)\n",
		r.WindowStart.Format("2 Jan"), r.WindowEnd.Format("2 Jan 2006"))

	if len(r.TopContributors) == 0 {
		sb.WriteString("\nNo activity this week.")
		return sb.String()
	}

	sb.WriteString("\nTop contributors:\n")
	for i, c := range r.TopContributors {
		fmt.Fprintf(&sb, "%d. %s - %d messages\n", i+1, posterName(c.User), c.Messages)
	}

	if len(r.MediaBreakdown) > 0 {
		sb.WriteString("\nMedia posted:\n")
		for _, kind := range sortedKinds(r.MediaBreakdown) {
			fmt.Fprintf(&sb, "  %s: %d\n", kind, r.MediaBreakdown[kind])
		}
	}

	if len(r.TopOffenders) > 0 {
		sb.WriteString("\nRepost offenders:\n")
		for i, o := range r.TopOffenders {
			fmt.Fprintf(&sb, "%d. %s - %d reposts\n", i+1, posterName(o.User), o.Duplicates)
		}
	}

	if r.TopEngagement != nil {
		fmt.Fprintf(&sb, "\nMost reactions: %s (%d)",
			posterName(r.TopEngagement.User), r.TopEngagement.Reactions)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func posterName(id model.Identity) string {
	if id.DisplayName != "" {
		return id.DisplayName
	}
	return fmt.Sprintf("user %d", id.ID)
}

func sortedKinds(m map[model.MediaKind]int64) []model.MediaKind {
	kinds := make([]model.MediaKind, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
