package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"repost-warden/internal/model"
)

// BumpActivity updates the per-user rollup for one accepted message (text or
// media). Both the totals row and the per-kind counter are maintained in a
// single transaction so the view never goes half-updated.
func (s *Store) BumpActivity(ctx context.Context, user model.Identity, kind model.MediaKind, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stats tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertUserRow(ctx, tx, user, at); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE user_stats SET total_messages = total_messages + 1, last_active = ?, display_name = ?
		WHERE user_id = ?`,
		at.Unix(), user.DisplayName, user.ID); err != nil {
		return fmt.Errorf("bump total messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_kind_counts (user_id, kind, count) VALUES (?, ?, 1)
		ON CONFLICT (user_id, kind) DO UPDATE SET count = count + 1`,
		user.ID, string(kind)); err != nil {
		return fmt.Errorf("bump kind count: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stats tx: %w", err)
	}
	return nil
}

// BumpDuplicate updates the per-user rollup for one duplicate offense.
// Duplicates do not count toward total_messages.
func (s *Store) BumpDuplicate(ctx context.Context, user model.Identity, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin stats tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := upsertUserRow(ctx, tx, user, at); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE user_stats SET duplicates_posted = duplicates_posted + 1, last_active = ?, display_name = ?
		WHERE user_id = ?`,
		at.Unix(), user.DisplayName, user.ID); err != nil {
		return fmt.Errorf("bump duplicates: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit stats tx: %w", err)
	}
	return nil
}

func upsertUserRow(ctx context.Context, tx *sql.Tx, user model.Identity, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO user_stats (user_id, display_name, first_seen, last_active)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`,
		user.ID, user.DisplayName, at.Unix(), at.Unix())
	if err != nil {
		return fmt.Errorf("ensure user row: %w", err)
	}
	return nil
}

// ErrUnknownUser is returned by GetUserStats for users with no recorded
// activity.
var ErrUnknownUser = errors.New("no stats recorded for user")

// GetUserStats returns the all-time rollup for one user.
func (s *Store) GetUserStats(ctx context.Context, userID int64) (*model.UserStats, error) {
	var (
		st         model.UserStats
		firstSeen  int64
		lastActive int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, display_name, total_messages, duplicates_posted, first_seen, last_active
		FROM user_stats WHERE user_id = ?`, userID).
		Scan(&st.User.ID, &st.User.DisplayName, &st.TotalMessages, &st.DuplicatesPosted, &firstSeen, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("read user stats: %w", err)
	}
	st.FirstSeen = time.Unix(firstSeen, 0).UTC()
	st.LastActive = time.Unix(lastActive, 0).UTC()

	st.ByKind = make(map[model.MediaKind]int64)
	rows, err := s.db.QueryContext(ctx,
		"SELECT kind, count FROM user_kind_counts WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("read kind counts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			kind  string
			count int64
		)
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, fmt.Errorf("scan kind count: %w", err)
		}
		st.ByKind[model.MediaKind(kind)] = count
	}
	return &st, rows.Err()
}

// Contribution is one (user, kind, count) cell of a report window.
type Contribution struct {
	User  model.Identity
	Kind  model.MediaKind
	Count int64
}

// ContributionsInWindow aggregates accepted posts (media and text) per user
// and kind over [start, end).
func (s *Store) ContributionsInWindow(ctx context.Context, start, end time.Time) ([]Contribution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT poster_id, poster_name, kind, COUNT(*)
		FROM fingerprints WHERE posted_at >= ? AND posted_at < ?
		GROUP BY poster_id, poster_name, kind
		UNION ALL
		SELECT author_id, author_name, 'text', COUNT(*)
		FROM text_messages WHERE posted_at >= ? AND posted_at < ?
		GROUP BY author_id, author_name`,
		start.Unix(), end.Unix(), start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("window contributions: %w", err)
	}
	defer rows.Close()

	var out []Contribution
	for rows.Next() {
		var (
			c    Contribution
			kind string
		)
		if err := rows.Scan(&c.User.ID, &c.User.DisplayName, &kind, &c.Count); err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		c.Kind = model.MediaKind(kind)
		out = append(out, c)
	}
	return out, rows.Err()
}

// OffenseCountsInWindow counts duplicate events per offender over [start, end).
func (s *Store) OffenseCountsInWindow(ctx context.Context, start, end time.Time) ([]model.OffenderStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT offender_id, offender_name, COUNT(*)
		FROM duplicate_events WHERE posted_at >= ? AND posted_at < ?
		GROUP BY offender_id, offender_name`,
		start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("window offenses: %w", err)
	}
	defer rows.Close()

	var out []model.OffenderStat
	for rows.Next() {
		var o model.OffenderStat
		if err := rows.Scan(&o.User.ID, &o.User.DisplayName, &o.Duplicates); err != nil {
			return nil, fmt.Errorf("scan offense: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ReactionTotalsInWindow sums stored reaction counts per message author for
// messages posted in [start, end). Reactions are keyed by message, so the
// author is resolved through the event logs; duplicate re-posts attribute
// their reactions to the offender, like any other message they sent.
func (s *Store) ReactionTotalsInWindow(ctx context.Context, start, end time.Time) ([]model.EngagementStat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.author_id, m.author_name, SUM(r.total)
		FROM reaction_counts r
		JOIN (
			SELECT poster_id AS author_id, poster_name AS author_name, chat_id, message_id, posted_at FROM fingerprints
			UNION ALL
			SELECT author_id, author_name, chat_id, message_id, posted_at FROM text_messages
			UNION ALL
			SELECT offender_id AS author_id, offender_name AS author_name, chat_id, message_id, posted_at FROM duplicate_events
		) m ON m.chat_id = r.chat_id AND m.message_id = r.message_id
		WHERE m.posted_at >= ? AND m.posted_at < ?
		GROUP BY m.author_id, m.author_name`,
		start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("window reactions: %w", err)
	}
	defer rows.Close()

	var out []model.EngagementStat
	for rows.Next() {
		var e model.EngagementStat
		if err := rows.Scan(&e.User.ID, &e.User.DisplayName, &e.Reactions); err != nil {
			return nil, fmt.Errorf("scan engagement: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
