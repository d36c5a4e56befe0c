// Command comparemedia compares two media files the way the engine would:
// exact digest, 256-bit perceptual hash distance against the duplicate
// threshold, plus the images4/imagehash2 library verdicts as a sanity
// cross-check when tuning the threshold.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"

	"github.com/vitali-fedulov/imagehash2"
	"github.com/vitali-fedulov/images4"

	"repost-warden/internal/fingerprint"
)

const (
	hashNumBuckets = 4
	hashEpsilon    = 0.25
)

func main() {
	path1 := flag.String("a", "", "Path to first file")
	path2 := flag.String("b", "", "Path to second file")
	threshold := flag.Int("threshold", 5, "Duplicate threshold in bits")
	flag.Parse()

	if *path1 == "" || *path2 == "" {
		log.Fatal("Usage: comparemedia -a <path1> -b <path2>")
	}

	data1, err := os.ReadFile(*path1)
	if err != nil {
		log.Fatalf("read %s: %v", *path1, err)
	}
	data2, err := os.ReadFile(*path2)
	if err != nil {
		log.Fatalf("read %s: %v", *path2, err)
	}

	d1 := fingerprint.Digest(data1)
	d2 := fingerprint.Digest(data2)
	fmt.Printf("digest a: %s\n", d1.Hex())
	fmt.Printf("digest b: %s\n", d2.Hex())
	if d1.Hex() == d2.Hex() {
		fmt.Println("verdict: identical bytes (exact-match duplicate)")
		return
	}

	p1, err1 := fingerprint.Perceptual(data1)
	p2, err2 := fingerprint.Perceptual(data2)
	if err1 != nil || err2 != nil {
		fmt.Println("verdict: different bytes, not both decodable as images (exact match only)")
		return
	}

	fmt.Printf("phash a:  %s\n", p1.Hex())
	fmt.Printf("phash b:  %s\n", p2.Hex())

	dist, ok := fingerprint.HammingDistance(p1, p2)
	if !ok {
		fmt.Println("verdict: fingerprints incomparable")
		return
	}
	fmt.Printf("hamming distance: %d/%d bits (threshold %d)\n", dist, len(p1.Bits)*8, *threshold)

	libraryVerdict(data1, data2)

	if dist <= *threshold {
		fmt.Println("verdict: perceptual duplicate")
	} else {
		fmt.Println("verdict: different images")
	}
}

// libraryVerdict prints what images4/imagehash2 think of the pair.
func libraryVerdict(data1, data2 []byte) {
	img1, _, err := image.Decode(bytes.NewReader(data1))
	if err != nil {
		return
	}
	img2, _, err := image.Decode(bytes.NewReader(data2))
	if err != nil {
		return
	}
	icon1 := images4.Icon(img1)
	icon2 := images4.Icon(img2)

	fmt.Printf("images4 similar: %v\n", images4.Similar(icon1, icon2))
	fmt.Printf("imagehash2 central: %016x vs %016x\n",
		imagehash2.CentralHash9(icon1, hashEpsilon, hashNumBuckets),
		imagehash2.CentralHash9(icon2, hashEpsilon, hashNumBuckets))
}
