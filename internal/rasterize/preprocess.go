package rasterize

import (
	"image"

	"golang.org/x/image/draw"
)

// preprocess converts a page image to a binarized grayscale bitmap. Classical
// OCR engines recognize noticeably better on clean black-and-white input than
// on the raw scan.
func preprocess(src image.Image) *image.Gray {
	bounds := src.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, src, bounds.Min, draw.Src)

	threshold := otsuThreshold(gray)
	for i, v := range gray.Pix {
		if v > threshold {
			gray.Pix[i] = 0xFF
		} else {
			gray.Pix[i] = 0x00
		}
	}
	return gray
}

// otsuThreshold computes the global binarization threshold that minimizes
// intra-class variance over the grayscale histogram.
func otsuThreshold(img *image.Gray) uint8 {
	var hist [256]int
	for _, v := range img.Pix {
		hist[v]++
	}

	total := len(img.Pix)
	if total == 0 {
		return 127
	}

	var sum float64
	for i := 0; i < 256; i++ {
		sum += float64(i) * float64(hist[i])
	}

	var sumB, wB float64
	var maxVariance float64
	best := 127

	for t := 0; t < 256; t++ {
		wB += float64(hist[t])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])

		mB := sumB / wB
		mF := (sum - sumB) / wF
		variance := wB * wF * (mB - mF) * (mB - mF)
		if variance > maxVariance {
			maxVariance = variance
			best = t
		}
	}

	return uint8(best)
}
