// Package scheduler posts the weekly digest on a cron schedule and exports
// it to the evidence archive when one is configured.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"repost-warden/internal/archive"
	"repost-warden/internal/model"
	"repost-warden/internal/stats"
)

// Poster delivers a finished report to the chat. Implemented by the bot.
type Poster interface {
	SendDigest(ctx context.Context, report *model.Report) error
}

type Digest struct {
	agg     *stats.Aggregator
	poster  Poster
	archive *archive.Archive // nil when the archive is disabled
	spec    string
	log     zerolog.Logger
	cron    *cron.Cron
}

func NewDigest(agg *stats.Aggregator, poster Poster, arch *archive.Archive, spec string, log zerolog.Logger) *Digest {
	return &Digest{
		agg:     agg,
		poster:  poster,
		archive: arch,
		spec:    spec,
		log:     log.With().Str("component", "digest").Logger(),
		cron:    cron.New(),
	}
}

// Run schedules the digest job and blocks until the context is canceled.
func (d *Digest) Run(ctx context.Context) error {
	if _, err := d.cron.AddFunc(d.spec, func() { d.post(ctx) }); err != nil {
		return err
	}
	d.cron.Start()
	d.log.Info().Str("cron", d.spec).Msg("weekly digest scheduled")

	<-ctx.Done()

	stopCtx := d.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-time.After(10 * time.Second):
		return errors.New("cron stop timeout")
	}
}

// post builds and delivers one digest. Failures are logged; the next tick
// tries again with a fresh window.
func (d *Digest) post(ctx context.Context) {
	start, end := stats.LastWeek(time.Now().UTC())
	report, err := d.agg.WeeklyReport(ctx, start, end)
	if err != nil {
		d.log.Error().Err(err).Msg("weekly report failed")
		return
	}

	if err := d.poster.SendDigest(ctx, report); err != nil {
		d.log.Error().Err(err).Msg("digest delivery failed")
	}

	if d.archive != nil {
		if err := d.archive.PutReport(ctx, report); err != nil {
			d.log.Warn().Err(err).Msg("report export failed")
		}
	}
}
