package bot

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"couponbot/internal/domain"
	"couponbot/internal/ingest"
	"couponbot/internal/storage"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.ErrorLevel)
	return log
}

// brokenExtractor simulates an image stage whose OCR blew up: the stage
// boundary already swallowed the error, so it contributes nothing.
type brokenExtractor struct{}

func (brokenExtractor) FromImage(ctx context.Context, fileURL, caption, mimeType string) []domain.CandidateCoupon {
	return nil
}

// stubExtractor returns fixed candidates.
type stubExtractor struct {
	candidates []domain.CandidateCoupon
}

func (s stubExtractor) FromImage(ctx context.Context, fileURL, caption, mimeType string) []domain.CandidateCoupon {
	return s.candidates
}

func newPipelineHandler(t *testing.T, extractor ImageExtractor) (*Handler, storage.Repository) {
	t.Helper()

	repo, err := storage.NewBadgerRepository(t.TempDir(), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, repo.Close())
	})

	return &Handler{
		repo:      repo,
		ingestor:  ingest.NewIngestor(repo, testLogger()),
		extractor: extractor,
		log:       testLogger().WithField("component", "bot_handler"),
	}, repo
}

func TestCollectCandidates_TextBeforeImage(t *testing.T) {
	h, _ := newPipelineHandler(t, stubExtractor{candidates: []domain.CandidateCoupon{
		{Store: domain.StoreOther, Barcode: "99998888", Title: "Gefundener Coupon"},
	}})

	candidates := h.collectCandidates(context.Background(), "PB: 1234567890", "caption", "http://file", "image/jpeg", true)

	require.Len(t, candidates, 2)
	assert.Equal(t, "1234567890", candidates[0].Barcode, "text candidates come first")
	assert.Equal(t, "99998888", candidates[1].Barcode)
}

func TestCollectCandidates_ImageFailureDoesNotDropTextCandidates(t *testing.T) {
	// A failed OCR stage must not keep a text-derived candidate from
	// being accepted and persisted.
	h, repo := newPipelineHandler(t, brokenExtractor{})
	ctx := context.Background()

	candidates := h.collectCandidates(ctx, "PB: 1234567890 20fach Punkte", "", "http://file", "image/jpeg", true)
	require.Len(t, candidates, 1)

	accepted, err := h.ingestor.Ingest(ctx, domain.MessageRef{ChatID: -1, MessageID: 7}, candidates)
	require.NoError(t, err)
	require.Len(t, accepted, 1)
	assert.Equal(t, domain.StorePayback, accepted[0].Store)

	stored, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "1234567890", stored[0].Barcode)
}

func TestCollectCandidates_NoImage(t *testing.T) {
	h, _ := newPipelineHandler(t, stubExtractor{candidates: []domain.CandidateCoupon{
		{Barcode: "should-not-appear"},
	}})

	candidates := h.collectCandidates(context.Background(), "DM 9876543210", "", "", "", false)

	require.Len(t, candidates, 1)
	assert.Equal(t, "9876543210", candidates[0].Barcode)
}

func TestFormatAccepted(t *testing.T) {
	records := []domain.CouponRecord{
		{Title: "Payback Coupon", Barcode: "1234567890", Description: "20fach Punkte auf alles"},
		{Title: "Gefundener Coupon", Barcode: "55556666"},
	}

	reply := formatAccepted(records)

	assert.Contains(t, reply, "2 Coupon(s) erkannt und gespeichert")
	assert.Contains(t, reply, "1. Payback Coupon")
	assert.Contains(t, reply, "`1234567890`")
	assert.Contains(t, reply, "Info: 20fach Punkte auf alles")
	assert.Contains(t, reply, "2. Gefundener Coupon")
	assert.Contains(t, reply, "In deiner App verfügbar")
}

func TestFormatAccepted_TruncatesLongDescriptions(t *testing.T) {
	long := strings.Repeat("ä", 80)
	reply := formatAccepted([]domain.CouponRecord{
		{Title: "DM Coupon", Barcode: "111122223333", Description: long},
	})

	assert.Contains(t, reply, strings.Repeat("ä", 50)+"...")
	assert.NotContains(t, reply, strings.Repeat("ä", 51))
}

func TestMessageRefIdempotence(t *testing.T) {
	h, _ := newPipelineHandler(t, brokenExtractor{})
	ctx := context.Background()
	ref := domain.MessageRef{ChatID: -5, MessageID: 99}

	first, err := h.repo.MarkProcessed(ctx, ref)
	require.NoError(t, err)
	assert.True(t, first)

	again, err := h.repo.MarkProcessed(ctx, ref)
	require.NoError(t, err)
	assert.False(t, again, "a redelivered update must be skipped")
}
