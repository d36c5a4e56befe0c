// Package archive keeps moderation evidence in S3: raw bytes of accepted
// media under media/<digest>, exported weekly reports under reports/. The
// archive is optional and best-effort; failures never reach the event path.
package archive

import (
	"bytes"
	"context"
	"fmt"

	"repost-warden/internal/fingerprint"
	"repost-warden/internal/model"
	"repost-warden/internal/s3"
)

const (
	mediaPrefix  = "media/"
	reportPrefix = "reports/"
)

type Archive struct {
	client s3.Client
}

func New(client s3.Client) *Archive {
	return &Archive{client: client}
}

// PutMedia stores the raw bytes of an accepted media post, keyed by content
// digest so byte-identical evidence is stored once.
func (a *Archive) PutMedia(ctx context.Context, rec *model.FingerprintRecord, buf []byte) error {
	key := mediaPrefix + mediaKey(rec, buf)
	if err := a.client.Upload(ctx, key, bytes.NewReader(buf), "application/octet-stream"); err != nil {
		return fmt.Errorf("archive media %s: %w", key, err)
	}
	return nil
}

// PutReport exports a weekly report as JSON, keyed by the ISO week of the
// window end.
func (a *Archive) PutReport(ctx context.Context, report *model.Report) error {
	year, week := report.WindowEnd.ISOWeek()
	key := fmt.Sprintf("%s%d-W%02d.json", reportPrefix, year, week)
	if err := a.client.WriteJSON(ctx, key, report); err != nil {
		return fmt.Errorf("archive report %s: %w", key, err)
	}
	return nil
}

// mediaKey reuses the record's digest when it already is one, otherwise the
// bytes are digested here (perceptual records don't carry an exact digest).
func mediaKey(rec *model.FingerprintRecord, buf []byte) string {
	if rec.Fingerprint.Algo == model.AlgoSHA256 {
		return rec.Fingerprint.Hex()
	}
	return fingerprint.Digest(buf).Hex()
}
