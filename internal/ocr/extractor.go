// Package ocr turns coupon photos into candidate coupons: it downloads
// the image from the chat transport, preprocesses it for recognition,
// runs Tesseract over it and scans the recognized text for barcodes.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"couponbot/internal/domain"
	"couponbot/internal/match"
	"couponbot/internal/metrics"
)

// maxImageBytes caps the download size; Telegram photos are far smaller.
const maxImageBytes = 20 << 20

// maxRedirects bounds redirect chains when fetching the image.
const maxRedirects = 3

// descriptionFallback is used when a photo arrives without a caption.
const descriptionFallback = "Aus Bild extrahiert"

// Extractor produces candidate coupons from images. Every failure along
// the way (unsupported type, network, decode, OCR) is logged and yields
// an empty candidate list; image extraction is never fatal to the
// message that carried the image.
type Extractor struct {
	ocr        TextExtractor
	log        logrus.FieldLogger
	client     *http.Client
	ocrTimeout time.Duration
}

// NewExtractor creates an image extractor using the given OCR engine.
func NewExtractor(engine TextExtractor, downloadTimeout, ocrTimeout time.Duration, logger logrus.FieldLogger) *Extractor {
	return &Extractor{
		ocr: engine,
		log: logger.WithField("component", "image_extractor"),
		client: &http.Client{
			Timeout: downloadTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		ocrTimeout: ocrTimeout,
	}
}

// FromImage downloads the image behind fileURL, OCRs it and returns the
// candidate coupons found in the recognized text. The store tag comes
// from the caption, not from the OCR text. mimeType gates non-image
// attachments; pass "image/jpeg" for Telegram photos, which carry no
// declared type.
func (e *Extractor) FromImage(ctx context.Context, fileURL, caption, mimeType string) []domain.CandidateCoupon {
	log := e.log.WithField("mime_type", mimeType)

	if !strings.HasPrefix(mimeType, "image/") {
		log.Debug("Skipping non-image attachment")
		return nil
	}

	scratch, err := e.download(ctx, fileURL)
	if err != nil {
		metrics.OCRFailures.Inc()
		log.WithError(err).Warn("Image download failed")
		return nil
	}
	defer os.Remove(scratch)

	prepared, err := preprocess(scratch)
	if err != nil {
		metrics.OCRFailures.Inc()
		log.WithError(err).Warn("Image preprocessing failed")
		return nil
	}
	defer os.Remove(prepared)

	ocrCtx, cancel := context.WithTimeout(ctx, e.ocrTimeout)
	defer cancel()

	text, err := e.ocr.ExtractText(ocrCtx, prepared)
	if err != nil {
		metrics.OCRFailures.Inc()
		log.WithError(err).Warn("OCR failed")
		return nil
	}

	return e.candidatesFromText(text, caption)
}

// candidatesFromText scans OCR output for barcode values and tags each
// with the store detected in the caption. Barcodes are deduplicated
// within the single image.
func (e *Extractor) candidatesFromText(text, caption string) []domain.CandidateCoupon {
	codes := match.ScanCodes(text)
	if len(codes) == 0 {
		e.log.Debug("No barcodes in OCR text")
		return nil
	}

	store, title := match.DetectStore(caption)
	description := strings.TrimSpace(caption)
	if description == "" {
		description = descriptionFallback
	}

	candidates := make([]domain.CandidateCoupon, 0, len(codes))
	for _, code := range codes {
		candidates = append(candidates, domain.CandidateCoupon{
			Store:       store,
			Barcode:     code,
			Title:       title,
			Description: description,
		})
	}

	e.log.WithFields(logrus.Fields{
		"store":      store,
		"candidates": len(candidates),
	}).Info("Candidates extracted from image")
	return candidates
}

// download fetches the image to a scratch file and returns its path.
func (e *Extractor) download(ctx context.Context, fileURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected download status %d", resp.StatusCode)
	}

	scratch, err := os.CreateTemp("", "couponbot-*.img")
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}

	_, err = io.Copy(scratch, io.LimitReader(resp.Body, maxImageBytes+1))
	closeErr := scratch.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		if info, statErr := os.Stat(scratch.Name()); statErr == nil && info.Size() > maxImageBytes {
			err = errors.New("image exceeds size limit")
		}
	}
	if err != nil {
		_ = os.Remove(scratch.Name())
		return "", fmt.Errorf("failed to store image: %w", err)
	}

	return scratch.Name(), nil
}
