package ocr

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/disintegration/imaging"
)

// binarizeThreshold separates ink from paper after contrast
// normalization. Photographed coupons are mostly dark print on a light
// background, so a fixed midpoint threshold works well enough.
const binarizeThreshold = 128

// minOCRHeight is the pixel height below which images are upscaled
// before recognition; Tesseract degrades sharply on small glyphs.
const minOCRHeight = 1000

// preprocess prepares a downloaded image for OCR: greyscale, upscale if
// small, normalize contrast, binarize. The result is written next to
// the source as a PNG and its path returned; the caller removes both.
//
// Raw photographed coupons have poor, uneven contrast; feeding them to
// Tesseract unprocessed measurably degrades recognition.
func preprocess(srcPath string) (string, error) {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}

	gray := imaging.Grayscale(img)
	if gray.Bounds().Dy() < minOCRHeight {
		gray = imaging.Resize(gray, 0, minOCRHeight, imaging.Lanczos)
	}
	gray = imaging.AdjustContrast(gray, 30)
	gray = binarize(gray, binarizeThreshold)

	dstPath := srcPath + "-prep.png"
	if err := imaging.Save(gray, dstPath); err != nil {
		_ = os.Remove(dstPath)
		return "", fmt.Errorf("failed to save preprocessed image: %w", err)
	}
	return dstPath, nil
}

// binarize maps every pixel to pure black or white. The input is
// already greyscale, so the red channel carries the luminance.
func binarize(img *image.NRGBA, threshold uint8) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		if c.R < threshold {
			return color.NRGBA{A: c.A}
		}
		return color.NRGBA{R: 255, G: 255, B: 255, A: c.A}
	})
}
