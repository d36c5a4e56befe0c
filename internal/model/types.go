package model

import (
	"encoding/hex"
	"time"
)

type MediaKind string

const (
	KindImage     MediaKind = "image"
	KindSticker   MediaKind = "sticker"
	KindVideo     MediaKind = "video"
	KindAnimation MediaKind = "animation"
	KindDocument  MediaKind = "document"
	KindAudio     MediaKind = "audio"
	KindVoice     MediaKind = "voice"
	KindText      MediaKind = "text"
	KindUnknown   MediaKind = "unknown"
)

// Perceptual reports whether the kind is image-like and should be
// fingerprinted with the perceptual hasher rather than an exact digest.
func (k MediaKind) Perceptual() bool {
	return k == KindImage || k == KindSticker
}

// IsMedia reports whether the kind carries a byte buffer to fingerprint.
func (k MediaKind) IsMedia() bool {
	switch k {
	case KindImage, KindSticker, KindVideo, KindAnimation, KindDocument, KindAudio, KindVoice:
		return true
	}
	return false
}

type HashAlgo string

const (
	AlgoPerceptual HashAlgo = "phash"
	AlgoSHA256     HashAlgo = "sha256"
)

// Fingerprint is a comparable content fingerprint. Bits is a fixed-length
// bit string: 32 bytes for both algorithms, but only phash fingerprints
// are compared by Hamming distance.
type Fingerprint struct {
	Algo HashAlgo
	Bits []byte
}

func (f Fingerprint) Hex() string { return hex.EncodeToString(f.Bits) }

// ParseFingerprint rebuilds a fingerprint from its stored form.
func ParseFingerprint(algo HashAlgo, bitsHex string) (Fingerprint, error) {
	bits, err := hex.DecodeString(bitsHex)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{Algo: algo, Bits: bits}, nil
}

type Identity struct {
	ID          int64
	DisplayName string
}

// Origin points back at the message that introduced a piece of content.
type Origin struct {
	ChatID    int64
	MessageID int
}

// FingerprintRecord is one accepted (non-duplicate) media post.
// Records are append-only: never mutated, never deleted.
type FingerprintRecord struct {
	ID          int64
	Fingerprint Fingerprint
	Kind        MediaKind
	Poster      Identity
	Origin      Origin
	PostedAt    time.Time
}

// DuplicateEvent is one re-post of already fingerprinted content.
type DuplicateEvent struct {
	ID            int64
	FingerprintID int64
	Offender      Identity
	Origin        Origin
	PostedAt      time.Time
}

type TextMessageRecord struct {
	ID       int64
	Author   Identity
	Origin   Origin
	PostedAt time.Time
}

// UserStats is the incrementally maintained per-user rollup.
type UserStats struct {
	User             Identity
	TotalMessages    int64
	ByKind           map[MediaKind]int64
	DuplicatesPosted int64
	FirstSeen        time.Time
	LastActive       time.Time
}

// InboundEvent is what the transport layer hands to the engine. Buffer is
// nil for text events.
type InboundEvent struct {
	Kind      MediaKind
	Buffer    []byte
	Author    Identity
	Origin    Origin
	Timestamp time.Time
}

// DuplicateNotice is the structured payload the transport layer formats
// into a user-facing reply.
type DuplicateNotice struct {
	Kind             MediaKind
	OriginalPoster   Identity
	OriginalPostedAt time.Time
	OriginalOrigin   Origin
}

type ContributorStat struct {
	User     Identity
	Messages int64
	ByKind   map[MediaKind]int64
}

type OffenderStat struct {
	User       Identity
	Duplicates int64
}

type EngagementStat struct {
	User      Identity
	Reactions int64
}

// Report is the window rollup produced by the statistics aggregator.
type Report struct {
	WindowStart     time.Time
	WindowEnd       time.Time
	TopContributors []ContributorStat
	MediaBreakdown  map[MediaKind]int64
	TopOffenders    []OffenderStat
	TopEngagement   *EngagementStat
}
