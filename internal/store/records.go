package store

import (
	"context"
	"fmt"
	"time"

	"repost-warden/internal/model"
)

// InsertFingerprint appends a new fingerprint record and assigns its ID.
func (s *Store) InsertFingerprint(ctx context.Context, rec *model.FingerprintRecord) error {
	if rec == nil || len(rec.Fingerprint.Bits) == 0 {
		return fmt.Errorf("fingerprint record requires fingerprint bits")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO fingerprints (algo, bits, kind, poster_id, poster_name, chat_id, message_id, posted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(rec.Fingerprint.Algo), rec.Fingerprint.Hex(), string(rec.Kind),
		rec.Poster.ID, rec.Poster.DisplayName,
		rec.Origin.ChatID, rec.Origin.MessageID, rec.PostedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert fingerprint: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("fingerprint insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// ListFingerprints returns every stored fingerprint record in insertion
// order. Used to warm the similarity index at startup.
func (s *Store) ListFingerprints(ctx context.Context) ([]*model.FingerprintRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, algo, bits, kind, poster_id, poster_name, chat_id, message_id, posted_at
		FROM fingerprints ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	defer rows.Close()

	var out []*model.FingerprintRecord
	for rows.Next() {
		var (
			rec      model.FingerprintRecord
			algo     string
			bitsHex  string
			kind     string
			postedAt int64
		)
		if err := rows.Scan(&rec.ID, &algo, &bitsHex, &kind,
			&rec.Poster.ID, &rec.Poster.DisplayName,
			&rec.Origin.ChatID, &rec.Origin.MessageID, &postedAt); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		fp, err := model.ParseFingerprint(model.HashAlgo(algo), bitsHex)
		if err != nil {
			return nil, fmt.Errorf("parse fingerprint %d: %w", rec.ID, err)
		}
		rec.Fingerprint = fp
		rec.Kind = model.MediaKind(kind)
		rec.PostedAt = time.Unix(postedAt, 0).UTC()
		out = append(out, &rec)
	}
	return out, rows.Err()
}

// AppendDuplicateEvent records a re-post of an existing fingerprint.
func (s *Store) AppendDuplicateEvent(ctx context.Context, ev *model.DuplicateEvent) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO duplicate_events (fingerprint_id, offender_id, offender_name, chat_id, message_id, posted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.FingerprintID, ev.Offender.ID, ev.Offender.DisplayName,
		ev.Origin.ChatID, ev.Origin.MessageID, ev.PostedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert duplicate event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("duplicate event insert id: %w", err)
	}
	ev.ID = id
	return nil
}

// AppendTextMessage records a plain text message for windowed statistics.
func (s *Store) AppendTextMessage(ctx context.Context, rec *model.TextMessageRecord) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO text_messages (author_id, author_name, chat_id, message_id, posted_at)
		VALUES (?, ?, ?, ?, ?)`,
		rec.Author.ID, rec.Author.DisplayName,
		rec.Origin.ChatID, rec.Origin.MessageID, rec.PostedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert text message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("text message insert id: %w", err)
	}
	rec.ID = id
	return nil
}

// UpsertReactionCount stores the latest total reaction count for a message.
// The platform layer feeds these in asynchronously; last write wins. Counts
// are recorded for any message, including duplicate re-posts.
func (s *Store) UpsertReactionCount(ctx context.Context, origin model.Origin, total int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reaction_counts (chat_id, message_id, total, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (chat_id, message_id) DO UPDATE SET total = excluded.total, updated_at = excluded.updated_at`,
		origin.ChatID, origin.MessageID, total, at.Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert reaction count: %w", err)
	}
	return nil
}
