// Package engine orchestrates duplicate detection for inbound events:
// hash, query the similarity index, then either record the duplicate or
// insert the new fingerprint and count it. Each event is independent; a
// failure aborts that event only.
package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"repost-warden/internal/fingerprint"
	"repost-warden/internal/index"
	"repost-warden/internal/model"
	"repost-warden/internal/store"
)

type Status string

const (
	StatusAccepted  Status = "accepted"
	StatusDuplicate Status = "duplicate"
	StatusIgnored   Status = "ignored"
)

// Decision is the terminal state of one inbound event. Notice is set only
// for duplicates and carries what the transport layer needs to reply.
type Decision struct {
	Status   Status
	Original *model.FingerprintRecord
	Notice   *model.DuplicateNotice
}

// Archiver stores raw media bytes of accepted posts for later review.
// Archival is best-effort and happens off the event path.
type Archiver interface {
	PutMedia(ctx context.Context, rec *model.FingerprintRecord, buf []byte) error
}

type Engine struct {
	idx       *index.Index
	store     *store.Store
	threshold int
	archive   Archiver // nil when archival is disabled
	log       zerolog.Logger
}

func New(idx *index.Index, st *store.Store, threshold int, archive Archiver, log zerolog.Logger) *Engine {
	return &Engine{
		idx:       idx,
		store:     st,
		threshold: threshold,
		archive:   archive,
		log:       log.With().Str("component", "engine").Logger(),
	}
}

// Process classifies and records one inbound event. Text events bypass
// hashing and only feed the statistics tables; unknown kinds are ignored
// without a trace. Errors are scoped to the event: the caller logs and
// moves on to the next one.
func (e *Engine) Process(ctx context.Context, ev model.InboundEvent) (Decision, error) {
	switch {
	case ev.Kind == model.KindText:
		return e.processText(ctx, ev)
	case ev.Kind.IsMedia():
		return e.processMedia(ctx, ev)
	default:
		return Decision{Status: StatusIgnored}, nil
	}
}

// RecordReactions accepts a reaction-count update from the platform layer.
func (e *Engine) RecordReactions(ctx context.Context, origin model.Origin, total int64, at time.Time) error {
	return e.store.UpsertReactionCount(ctx, origin, total, at)
}

func (e *Engine) processText(ctx context.Context, ev model.InboundEvent) (Decision, error) {
	rec := &model.TextMessageRecord{Author: ev.Author, Origin: ev.Origin, PostedAt: ev.Timestamp}
	if err := e.store.AppendTextMessage(ctx, rec); err != nil {
		return Decision{}, err
	}
	if err := e.store.BumpActivity(ctx, ev.Author, model.KindText, ev.Timestamp); err != nil {
		return Decision{}, err
	}
	return Decision{Status: StatusAccepted}, nil
}

func (e *Engine) processMedia(ctx context.Context, ev model.InboundEvent) (Decision, error) {
	fp := fingerprint.Compute(ev.Buffer, ev.Kind)

	rec := &model.FingerprintRecord{
		Fingerprint: fp,
		Kind:        ev.Kind,
		Poster:      ev.Author,
		Origin:      ev.Origin,
		PostedAt:    ev.Timestamp,
	}

	original, err := e.idx.FindOrInsert(ctx, rec, e.threshold)
	if err != nil {
		return Decision{}, err
	}

	if original != nil {
		dup := &model.DuplicateEvent{
			FingerprintID: original.ID,
			Offender:      ev.Author,
			Origin:        ev.Origin,
			PostedAt:      ev.Timestamp,
		}
		if err := e.store.AppendDuplicateEvent(ctx, dup); err != nil {
			return Decision{}, err
		}
		if err := e.store.BumpDuplicate(ctx, ev.Author, ev.Timestamp); err != nil {
			return Decision{}, err
		}
		return Decision{
			Status:   StatusDuplicate,
			Original: original,
			Notice: &model.DuplicateNotice{
				Kind:             original.Kind,
				OriginalPoster:   original.Poster,
				OriginalPostedAt: original.PostedAt,
				OriginalOrigin:   original.Origin,
			},
		}, nil
	}

	if err := e.store.BumpActivity(ctx, ev.Author, ev.Kind, ev.Timestamp); err != nil {
		return Decision{}, err
	}
	e.archiveAsync(rec, ev.Buffer)
	return Decision{Status: StatusAccepted}, nil
}

func (e *Engine) archiveAsync(rec *model.FingerprintRecord, buf []byte) {
	if e.archive == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := e.archive.PutMedia(ctx, rec, buf); err != nil {
			e.log.Warn().Err(err).
				Int64("fingerprint_id", rec.ID).
				Msg("media archive failed")
		}
	}()
}
