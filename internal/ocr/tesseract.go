package ocr

import (
	"context"
	"fmt"
	"time"

	"github.com/otiai10/gosseract/v2"

	"couponbot/internal/metrics"
)

// TextExtractor defines the interface for recognizing text in an image
// file. It lets tests substitute a fake engine for Tesseract.
type TextExtractor interface {
	// ExtractText runs recognition over the image at path and returns
	// the raw recognized text.
	ExtractText(ctx context.Context, path string) (string, error)
}

// TesseractExtractor implements TextExtractor using the Tesseract engine
// via gosseract. Each invocation gets its own client, released when the
// call finishes, so concurrent extractions share no state.
type TesseractExtractor struct {
	languages []string
}

// NewTesseractExtractor creates an extractor for the given language
// models (e.g. "deu", "eng").
func NewTesseractExtractor(languages ...string) *TesseractExtractor {
	if len(languages) == 0 {
		languages = []string{"deu", "eng"}
	}
	return &TesseractExtractor{languages: languages}
}

// ExtractText recognizes text in the image at path. Tesseract itself is
// not context-aware, so the call runs in its own goroutine and the
// context deadline wins the race; a timed-out engine call finishes in
// the background and its client is still closed.
func (t *TesseractExtractor) ExtractText(ctx context.Context, path string) (string, error) {
	type result struct {
		text string
		err  error
	}
	ch := make(chan result, 1)

	start := time.Now()
	go func() {
		client := gosseract.NewClient()
		defer client.Close()

		if err := client.SetLanguage(t.languages...); err != nil {
			ch <- result{err: fmt.Errorf("failed to set OCR languages: %w", err)}
			return
		}
		if err := client.SetImage(path); err != nil {
			ch <- result{err: fmt.Errorf("failed to set OCR image: %w", err)}
			return
		}
		text, err := client.Text()
		if err != nil {
			err = fmt.Errorf("ocr failed: %w", err)
		}
		ch <- result{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		metrics.OCRDuration.Observe(time.Since(start).Seconds())
		return r.text, r.err
	}
}
