// Package fingerprint turns raw media buffers into comparable fingerprints:
// a 256-bit perceptual hash for image-like content, a SHA-256 digest for
// everything else. Hashing never fails; unreadable images degrade to the
// exact digest so the pipeline always gets a usable fingerprint.
package fingerprint

import (
	"crypto/sha256"
	"math/bits"

	"repost-warden/internal/model"
)

// Compute fingerprints a media buffer. Image-like kinds get the perceptual
// hash; on decode failure (corrupt or unsupported data, e.g. webp stickers)
// the result silently falls back to the exact digest.
func Compute(buf []byte, kind model.MediaKind) model.Fingerprint {
	if kind.Perceptual() {
		if fp, err := Perceptual(buf); err == nil {
			return fp
		}
	}
	return Digest(buf)
}

// Digest returns the exact-match SHA-256 fingerprint of the raw bytes.
func Digest(buf []byte) model.Fingerprint {
	sum := sha256.Sum256(buf)
	return model.Fingerprint{Algo: model.AlgoSHA256, Bits: sum[:]}
}

// HammingDistance counts differing bits between two fingerprints. It is
// defined only for perceptual fingerprints of equal length; anything else
// is incomparable and reported as ok=false.
func HammingDistance(a, b model.Fingerprint) (int, bool) {
	if a.Algo != model.AlgoPerceptual || b.Algo != model.AlgoPerceptual {
		return 0, false
	}
	if len(a.Bits) != len(b.Bits) || len(a.Bits) == 0 {
		return 0, false
	}
	dist := 0
	for i := range a.Bits {
		dist += bits.OnesCount8(a.Bits[i] ^ b.Bits[i])
	}
	return dist, true
}
