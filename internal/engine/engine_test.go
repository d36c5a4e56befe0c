package engine_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"repost-warden/internal/engine"
	"repost-warden/internal/index"
	"repost-warden/internal/model"
	"repost-warden/internal/store"
)

func newEngine(t *testing.T) (*engine.Engine, *index.Index, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "warden.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	idx, err := index.Open(context.Background(), st)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	return engine.New(idx, st, 5, nil, zerolog.Nop()), idx, st
}

// scenePNG and sceneJPEG encode the same deterministic photo-like scene, so
// their fingerprints land within the duplicate threshold of each other.
func scene(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx, fy := float64(x)/float64(w), float64(y)/float64(h)
			v := 0.5 +
				0.25*math.Sin(2*math.Pi*fx*4)*math.Cos(2*math.Pi*fy*3) +
				0.15*math.Cos(2*math.Pi*fy*6+1)
			if v < 0 {
				v = 0
			}
			if v > 1 {
				v = 1
			}
			img.Set(x, y, color.RGBA{R: uint8(v * 255), G: uint8(v * 210), B: uint8(v * 120), A: 255})
		}
	}
	return img
}

func scenePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, scene(320, 240)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func sceneJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, scene(320, 240), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func mediaEvent(kind model.MediaKind, buf []byte, user int64, name string, msgID int, at time.Time) model.InboundEvent {
	return model.InboundEvent{
		Kind:      kind,
		Buffer:    buf,
		Author:    model.Identity{ID: user, DisplayName: name},
		Origin:    model.Origin{ChatID: -1001234, MessageID: msgID},
		Timestamp: at,
	}
}

func TestFreshImageAccepted(t *testing.T) {
	eng, idx, st := newEngine(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

	dec, err := eng.Process(ctx, mediaEvent(model.KindImage, scenePNG(t), 1, "Ann", 10, at))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if dec.Status != engine.StatusAccepted {
		t.Fatalf("expected accepted, got %s", dec.Status)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 indexed record, got %d", idx.Len())
	}

	stats, err := st.GetUserStats(ctx, 1)
	if err != nil {
		t.Fatalf("GetUserStats failed: %v", err)
	}
	if stats.ByKind[model.KindImage] != 1 || stats.TotalMessages != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestRecompressedRepostIsDuplicate(t *testing.T) {
	eng, idx, st := newEngine(t)
	ctx := context.Background()
	at := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

	if _, err := eng.Process(ctx, mediaEvent(model.KindImage, scenePNG(t), 1, "Ann", 10, at)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	dec, err := eng.Process(ctx, mediaEvent(model.KindImage, sceneJPEG(t), 2, "Bob", 11, at.Add(time.Hour)))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if dec.Status != engine.StatusDuplicate {
		t.Fatalf("expected duplicate, got %s", dec.Status)
	}
	if dec.Notice == nil || dec.Notice.OriginalPoster.ID != 1 {
		t.Fatalf("notice must reference the first poster: %#v", dec.Notice)
	}
	if dec.Notice.OriginalOrigin.MessageID != 10 {
		t.Fatalf("notice must carry the original origin: %#v", dec.Notice)
	}
	if idx.Len() != 1 {
		t.Fatalf("duplicate must not create a record, index has %d", idx.Len())
	}

	offender, err := st.GetUserStats(ctx, 2)
	if err != nil {
		t.Fatalf("GetUserStats failed: %v", err)
	}
	if offender.DuplicatesPosted != 1 || offender.TotalMessages != 0 {
		t.Fatalf("unexpected offender stats: %#v", offender)
	}
}

func TestByteIdenticalDocumentIsDuplicate(t *testing.T) {
	eng, idx, _ := newEngine(t)
	ctx := context.Background()
	at := time.Now().UTC()
	pdf := []byte("%PDF-1.4 pretend document body")

	if _, err := eng.Process(ctx, mediaEvent(model.KindDocument, pdf, 1, "Ann", 20, at)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	dec, err := eng.Process(ctx, mediaEvent(model.KindDocument, pdf, 1, "Ann", 21, at.Add(time.Minute)))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if dec.Status != engine.StatusDuplicate {
		t.Fatalf("expected exact-match duplicate, got %s", dec.Status)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected 1 indexed record, got %d", idx.Len())
	}
}

func TestSingleByteChangeIsNotDuplicate(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()
	at := time.Now().UTC()

	pdf := []byte("%PDF-1.4 pretend document body")
	changed := append([]byte(nil), pdf...)
	changed[15] ^= 0x01

	if _, err := eng.Process(ctx, mediaEvent(model.KindDocument, pdf, 1, "Ann", 30, at)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	dec, err := eng.Process(ctx, mediaEvent(model.KindDocument, changed, 2, "Bob", 31, at))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if dec.Status != engine.StatusAccepted {
		t.Fatalf("changed bytes must be accepted, got %s", dec.Status)
	}
}

func TestTextEventOnlyCounts(t *testing.T) {
	eng, idx, st := newEngine(t)
	ctx := context.Background()

	dec, err := eng.Process(ctx, model.InboundEvent{
		Kind:      model.KindText,
		Author:    model.Identity{ID: 3, DisplayName: "Cy"},
		Origin:    model.Origin{ChatID: -1001234, MessageID: 40},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if dec.Status != engine.StatusAccepted {
		t.Fatalf("expected accepted, got %s", dec.Status)
	}
	if idx.Len() != 0 {
		t.Fatal("text events must not be fingerprinted")
	}

	stats, err := st.GetUserStats(ctx, 3)
	if err != nil {
		t.Fatalf("GetUserStats failed: %v", err)
	}
	if stats.TotalMessages != 1 || stats.ByKind[model.KindText] != 1 {
		t.Fatalf("unexpected stats: %#v", stats)
	}
}

func TestUnknownKindIgnored(t *testing.T) {
	eng, idx, st := newEngine(t)
	ctx := context.Background()

	dec, err := eng.Process(ctx, model.InboundEvent{
		Kind:      model.KindUnknown,
		Author:    model.Identity{ID: 4},
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if dec.Status != engine.StatusIgnored {
		t.Fatalf("expected ignored, got %s", dec.Status)
	}
	if idx.Len() != 0 {
		t.Fatal("ignored events must not be fingerprinted")
	}
	if _, err := st.GetUserStats(ctx, 4); !errors.Is(err, store.ErrUnknownUser) {
		t.Fatalf("ignored events must leave no trace, got %v", err)
	}
}

func TestCorruptImageFallsBackToExactMatch(t *testing.T) {
	eng, _, _ := newEngine(t)
	ctx := context.Background()
	at := time.Now().UTC()
	garbage := []byte("corrupt image payload")

	if _, err := eng.Process(ctx, mediaEvent(model.KindImage, garbage, 1, "Ann", 50, at)); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	dec, err := eng.Process(ctx, mediaEvent(model.KindImage, garbage, 2, "Bob", 51, at))
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if dec.Status != engine.StatusDuplicate {
		t.Fatalf("byte-identical unhashable media must be an exact duplicate, got %s", dec.Status)
	}
}

func TestConcurrentSameImageSingleOriginal(t *testing.T) {
	eng, idx, st := newEngine(t)
	ctx := context.Background()
	buf := scenePNG(t)

	const posters = 6
	results := make([]engine.Decision, posters)
	var wg sync.WaitGroup
	for i := 0; i < posters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			dec, err := eng.Process(ctx, mediaEvent(model.KindImage, buf, int64(i+1), "", 60+i, time.Now().UTC()))
			if err != nil {
				t.Errorf("Process failed: %v", err)
				return
			}
			results[i] = dec
		}(i)
	}
	wg.Wait()

	accepted, duplicates := 0, 0
	for _, dec := range results {
		switch dec.Status {
		case engine.StatusAccepted:
			accepted++
		case engine.StatusDuplicate:
			duplicates++
		}
	}
	if accepted != 1 || duplicates != posters-1 {
		t.Fatalf("expected 1 accepted and %d duplicates, got %d/%d", posters-1, accepted, duplicates)
	}
	if idx.Len() != 1 {
		t.Fatalf("expected exactly one original record, got %d", idx.Len())
	}

	recs, err := st.ListFingerprints(ctx)
	if err != nil {
		t.Fatalf("ListFingerprints failed: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected exactly one stored record, got %d", len(recs))
	}
}

func TestStatsConsistency(t *testing.T) {
	eng, _, st := newEngine(t)
	ctx := context.Background()
	at := time.Now().UTC()
	user := int64(9)

	// 3 text + 2 distinct documents accepted, then 2 duplicate posts.
	for i := 0; i < 3; i++ {
		if _, err := eng.Process(ctx, model.InboundEvent{
			Kind:      model.KindText,
			Author:    model.Identity{ID: user, DisplayName: "Dee"},
			Origin:    model.Origin{ChatID: -1001234, MessageID: 70 + i},
			Timestamp: at,
		}); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}
	docs := [][]byte{[]byte("doc one"), []byte("doc two")}
	for i, doc := range docs {
		if _, err := eng.Process(ctx, mediaEvent(model.KindDocument, doc, user, "Dee", 80+i, at)); err != nil {
			t.Fatalf("Process failed: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		dec, err := eng.Process(ctx, mediaEvent(model.KindDocument, docs[0], user, "Dee", 90+i, at))
		if err != nil {
			t.Fatalf("Process failed: %v", err)
		}
		if dec.Status != engine.StatusDuplicate {
			t.Fatalf("expected duplicate, got %s", dec.Status)
		}
	}

	stats, err := st.GetUserStats(ctx, user)
	if err != nil {
		t.Fatalf("GetUserStats failed: %v", err)
	}
	if stats.TotalMessages != 5 {
		t.Fatalf("expected totalMessages == N_text + N_media == 5, got %d", stats.TotalMessages)
	}
	if stats.DuplicatesPosted != 2 {
		t.Fatalf("expected 2 duplicates posted, got %d", stats.DuplicatesPosted)
	}
	if stats.ByKind[model.KindText] != 3 || stats.ByKind[model.KindDocument] != 2 {
		t.Fatalf("unexpected kind breakdown: %#v", stats.ByKind)
	}
}

func TestRecordReactions(t *testing.T) {
	eng, _, st := newEngine(t)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Second)
	origin := model.Origin{ChatID: -1001234, MessageID: 100}

	if _, err := eng.Process(ctx, model.InboundEvent{
		Kind:      model.KindText,
		Author:    model.Identity{ID: 1, DisplayName: "Ann"},
		Origin:    origin,
		Timestamp: at,
	}); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if err := eng.RecordReactions(ctx, origin, 4, at.Add(time.Minute)); err != nil {
		t.Fatalf("RecordReactions failed: %v", err)
	}

	totals, err := st.ReactionTotalsInWindow(ctx, at.Add(-time.Hour), at.Add(time.Hour))
	if err != nil {
		t.Fatalf("ReactionTotalsInWindow failed: %v", err)
	}
	if len(totals) != 1 || totals[0].Reactions != 4 {
		t.Fatalf("unexpected totals: %#v", totals)
	}
}
