package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/otiai10/gosseract/v2"
)

// OCR rasterizes pages and runs them through tesseract. With Enhance set it
// pre-processes each page (grayscale, contrast, sharpen, binarization) before
// recognition, which recovers text from scans the plain pass misreads.
type OCR struct {
	// DPI is the rasterization resolution.
	DPI float64
	// Language is the tesseract language model.
	Language string
	// Enhance enables the image pre-processing pass.
	Enhance bool
}

func (o *OCR) Name() string {
	if o.Enhance {
		return "ocr-enhanced"
	}
	return "ocr"
}

func (o *OCR) Attempt(ctx context.Context, data []byte, maxPages int) (string, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return "", fmt.Errorf("open document: %w", err)
	}
	defer doc.Close()

	client := gosseract.NewClient()
	defer client.Close()
	if o.Language != "" {
		if err := client.SetLanguage(o.Language); err != nil {
			return "", fmt.Errorf("set OCR language: %w", err)
		}
	}

	pages := doc.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}

	dpi := o.DPI
	if dpi <= 0 {
		dpi = 150
	}

	var b strings.Builder
	for i := 0; i < pages; i++ {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		img, err := doc.ImageDPI(i, dpi)
		if err != nil {
			continue
		}
		var frame image.Image = img
		if o.Enhance {
			frame = enhanceForOCR(frame)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, frame); err != nil {
			continue
		}
		if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
			continue
		}
		text, err := client.Text()
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(text)
	}
	if b.Len() == 0 {
		return "", errors.New("OCR produced no text")
	}
	return b.String(), nil
}

// enhanceForOCR prepares a scanned page for recognition: grayscale, contrast
// stretch, light sharpening, then Otsu-style binarization to black and white.
func enhanceForOCR(img image.Image) image.Image {
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 20)
	gray = imaging.Sharpen(gray, 1.0)
	return binarize(gray, otsuThreshold(gray))
}

// otsuThreshold picks the threshold minimizing intra-class variance over the
// grayscale histogram.
func otsuThreshold(img *image.NRGBA) uint8 {
	var hist [256]int
	bounds := img.Bounds()
	total := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := img.NRGBAAt(x, y)
			hist[c.R]++
			total++
		}
	}
	if total == 0 {
		return 128
	}

	sum := 0.
	for i, n := range hist {
		sum += float64(i) * float64(n)
	}
	sumB, wB := 0., 0
	best, bestVar := uint8(128), 0.
	for t := 0; t < 256; t++ {
		wB += hist[t]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(t) * float64(hist[t])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > bestVar {
			bestVar = between
			best = uint8(t)
		}
	}
	return best
}

func binarize(img *image.NRGBA, threshold uint8) *image.Gray {
	bounds := img.Bounds()
	out := image.NewGray(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			if img.NRGBAAt(x, y).R > threshold {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}
