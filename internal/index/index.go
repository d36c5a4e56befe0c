// Package index answers nearest-neighbor queries over stored fingerprints.
// Exact (sha256) fingerprints are a hash-map lookup; perceptual fingerprints
// are a brute-force Hamming scan. The scan is fine at group-chat volumes and
// lives behind FindMatch/Insert so it can be swapped for a bucketed or
// BK-tree index later without touching the decision engine.
package index

import (
	"context"
	"sync"

	"repost-warden/internal/fingerprint"
	"repost-warden/internal/model"
	"repost-warden/internal/store"
)

// Index is the in-memory similarity index, write-through to the store.
// All methods are safe for concurrent use.
type Index struct {
	store *store.Store

	mu         sync.Mutex
	exact      map[string]*model.FingerprintRecord
	perceptual []*model.FingerprintRecord
}

// Open loads every stored fingerprint into memory.
func Open(ctx context.Context, st *store.Store) (*Index, error) {
	recs, err := st.ListFingerprints(ctx)
	if err != nil {
		return nil, err
	}
	idx := &Index{
		store: st,
		exact: make(map[string]*model.FingerprintRecord, len(recs)),
	}
	for _, rec := range recs {
		idx.addLocked(rec)
	}
	return idx, nil
}

// FindMatch returns the stored record matching fp, or nil. For exact
// fingerprints a match is key equality; for perceptual fingerprints it is
// the record with the smallest Hamming distance <= threshold, ties broken
// by earliest PostedAt (the first poster wins).
func (x *Index) FindMatch(fp model.Fingerprint, threshold int) *model.FingerprintRecord {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.findLocked(fp, threshold)
}

// Insert appends a record to the index and the store. The caller is
// expected to have confirmed there is no match; no uniqueness is enforced
// here.
func (x *Index) Insert(ctx context.Context, rec *model.FingerprintRecord) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.insertLocked(ctx, rec)
}

// FindOrInsert runs the lookup and, on a miss, the insert as one critical
// section. Two near-simultaneous posts of the same new image therefore
// resolve to exactly one original: the loser of the race sees the winner's
// record.
func (x *Index) FindOrInsert(ctx context.Context, rec *model.FingerprintRecord, threshold int) (*model.FingerprintRecord, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if existing := x.findLocked(rec.Fingerprint, threshold); existing != nil {
		return existing, nil
	}
	if err := x.insertLocked(ctx, rec); err != nil {
		return nil, err
	}
	return nil, nil
}

// Len returns the number of indexed records.
func (x *Index) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.perceptual) + len(x.exact)
}

func (x *Index) findLocked(fp model.Fingerprint, threshold int) *model.FingerprintRecord {
	if fp.Algo != model.AlgoPerceptual {
		return x.exact[exactKey(fp)]
	}

	var (
		best     *model.FingerprintRecord
		bestDist int
	)
	for _, rec := range x.perceptual {
		dist, ok := fingerprint.HammingDistance(fp, rec.Fingerprint)
		if !ok || dist > threshold {
			continue
		}
		if best == nil || dist < bestDist ||
			(dist == bestDist && rec.PostedAt.Before(best.PostedAt)) {
			best = rec
			bestDist = dist
		}
	}
	return best
}

func (x *Index) insertLocked(ctx context.Context, rec *model.FingerprintRecord) error {
	if err := x.store.InsertFingerprint(ctx, rec); err != nil {
		return err
	}
	x.addLocked(rec)
	return nil
}

func (x *Index) addLocked(rec *model.FingerprintRecord) {
	if rec.Fingerprint.Algo == model.AlgoPerceptual {
		x.perceptual = append(x.perceptual, rec)
		return
	}
	// Keep the earliest record for a digest so repeated loads stay stable.
	key := exactKey(rec.Fingerprint)
	if _, ok := x.exact[key]; !ok {
		x.exact[key] = rec
	}
}

func exactKey(fp model.Fingerprint) string {
	return string(fp.Algo) + ":" + fp.Hex()
}
