package fingerprint

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"sort"

	"repost-warden/internal/model"
)

const (
	// Source grid for the DCT. Large relative to the hash grid so the hash
	// keeps only the lowest frequency band: 16 of 256 coefficients per axis.
	// Higher bands do not survive JPEG requantization and would flip bits
	// between visually identical re-encodes.
	dctSize = 256
	// Low-frequency block kept from the DCT: 16x16 coefficients = 256 bits.
	hashGrid = 16
)

// cosTab[k][i] = cos(pi*k*(2i+1)/(2n)) for the partial DCT below.
var cosTab = buildCosTable(dctSize, hashGrid)

// Perceptual computes the 256-bit DCT perceptual hash of an encoded image.
// The image is decoded, reduced to grayscale, box-averaged down to a 256x256
// grid, transformed with a 2-D DCT-II, and the 16x16 low-frequency block is
// thresholded against its median into bits. The DC term is left out of the
// median: it dwarfs every other coefficient and would drag the threshold
// off-center. Visually similar images land within a few bits of each other;
// unrelated images differ in ~half.
func Perceptual(buf []byte) (model.Fingerprint, error) {
	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return model.Fingerprint{}, fmt.Errorf("decode image: %w", err)
	}

	gray := grayGrid(img, dctSize)
	coeffs := dctLowFreq(gray, hashGrid)

	block := make([]float64, 0, hashGrid*hashGrid-1)
	for y := 0; y < hashGrid; y++ {
		for x := 0; x < hashGrid; x++ {
			if y == 0 && x == 0 {
				continue
			}
			block = append(block, coeffs[y][x])
		}
	}
	med := median(block)

	out := make([]byte, hashGrid*hashGrid/8)
	i := 0
	for y := 0; y < hashGrid; y++ {
		for x := 0; x < hashGrid; x++ {
			if coeffs[y][x] > med {
				out[i/8] |= 1 << uint(7-i%8)
			}
			i++
		}
	}
	return model.Fingerprint{Algo: model.AlgoPerceptual, Bits: out}, nil
}

// grayGrid box-averages the image's luminance into a size x size grid.
// Averaging over source rectangles keeps the grid stable across resizes
// and recompression.
func grayGrid(img image.Image, size int) [][]float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	grid := make([][]float64, size)
	for gy := 0; gy < size; gy++ {
		grid[gy] = make([]float64, size)
		y0 := b.Min.Y + gy*h/size
		y1 := b.Min.Y + (gy+1)*h/size
		if y1 <= y0 {
			y1 = y0 + 1
		}
		for gx := 0; gx < size; gx++ {
			x0 := b.Min.X + gx*w/size
			x1 := b.Min.X + (gx+1)*w/size
			if x1 <= x0 {
				x1 = x0 + 1
			}
			var sum float64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, bl, _ := img.At(x, y).RGBA()
					// ITU-R 601 luma on 16-bit channels.
					sum += 0.299*float64(r) + 0.587*float64(g) + 0.114*float64(bl)
				}
			}
			grid[gy][gx] = sum / float64((y1-y0)*(x1-x0)) / 256.0
		}
	}
	return grid
}

// dctLowFreq applies a separable DCT-II to the grid and returns only the
// band x band low-frequency block. DCT coefficients are independent, so the
// higher outputs are never computed: rows first (band coefficients per row),
// then columns over those.
func dctLowFreq(grid [][]float64, band int) [][]float64 {
	n := len(grid)
	rows := make([][]float64, n)
	for y := 0; y < n; y++ {
		rows[y] = make([]float64, band)
		for k := 0; k < band; k++ {
			var sum float64
			for i := 0; i < n; i++ {
				sum += grid[y][i] * cosTab[k][i]
			}
			rows[y][k] = sum
		}
	}
	out := make([][]float64, band)
	for k := 0; k < band; k++ {
		out[k] = make([]float64, band)
		for x := 0; x < band; x++ {
			var sum float64
			for y := 0; y < n; y++ {
				sum += rows[y][x] * cosTab[k][y]
			}
			out[k][x] = sum
		}
	}
	return out
}

func buildCosTable(n, band int) [][]float64 {
	tab := make([][]float64, band)
	for k := 0; k < band; k++ {
		tab[k] = make([]float64, n)
		for i := 0; i < n; i++ {
			tab[k][i] = math.Cos(math.Pi * float64(k) * (2*float64(i) + 1) / (2 * float64(n)))
		}
	}
	return tab
}

func median(v []float64) float64 {
	s := append([]float64(nil), v...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 0 {
		return (s[mid-1] + s[mid]) / 2
	}
	return s[mid]
}
