// Package ingest promotes candidate coupons to persistent records,
// dropping any candidate whose barcode is already known.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"couponbot/internal/domain"
	"couponbot/internal/metrics"
	"couponbot/internal/storage"
)

// Ingestor is the only component that writes the persistent coupon set.
//
// The read-modify-write cycle (existence checks followed by the batch
// write) is a critical section: two messages arriving near-simultaneously
// must not interleave it, or a lost update could admit a duplicate
// barcode. A single mutex serializes all Ingest calls; the slow work
// (downloads, OCR) happens outside this package and stays concurrent.
type Ingestor struct {
	repo storage.Repository
	log  logrus.FieldLogger
	now  func() time.Time

	mu sync.Mutex
}

// NewIngestor creates an ingestor writing through the given repository.
func NewIngestor(repo storage.Repository, logger logrus.FieldLogger) *Ingestor {
	return &Ingestor{
		repo: repo,
		log:  logger.WithField("component", "ingestor"),
		now:  time.Now,
	}
}

// Ingest deduplicates candidates against the persistent store and
// against earlier candidates in the same batch, persists the survivors
// in one atomic write, and returns the newly accepted records.
//
// Candidates are processed in input order, so when two candidates share
// a barcode the earlier one wins. Callers pass text-derived candidates
// before image-derived ones.
//
// A repository failure is returned to the caller; unlike the extractor
// stages, losing a write here means losing the coupon entirely.
func (i *Ingestor) Ingest(ctx context.Context, ref domain.MessageRef, candidates []domain.CandidateCoupon) ([]domain.CouponRecord, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	log := i.log.WithFields(logrus.Fields{
		"chat_id":    ref.ChatID,
		"message_id": ref.MessageID,
		"candidates": len(candidates),
	})

	var accepted []domain.CouponRecord
	inBatch := make(map[string]bool)

	for _, candidate := range candidates {
		if inBatch[candidate.Barcode] {
			metrics.DuplicatesSkipped.Inc()
			log.WithField("barcode", candidate.Barcode).Debug("Skipping in-batch duplicate")
			continue
		}
		exists, err := i.repo.HasBarcode(ctx, candidate.Barcode)
		if err != nil {
			return nil, fmt.Errorf("failed to check barcode %s: %w", candidate.Barcode, err)
		}
		if exists {
			metrics.DuplicatesSkipped.Inc()
			log.WithField("barcode", candidate.Barcode).Debug("Skipping known barcode")
			continue
		}

		record := i.promote(candidate, ref)
		inBatch[candidate.Barcode] = true
		accepted = append(accepted, record)
	}

	if len(accepted) == 0 {
		log.Info("No new coupons in batch")
		return nil, nil
	}

	if err := i.repo.SaveBatch(ctx, accepted); err != nil {
		return nil, fmt.Errorf("failed to persist batch: %w", err)
	}

	for _, record := range accepted {
		metrics.CouponsAccepted.WithLabelValues(string(record.Store)).Inc()
	}
	log.WithField("accepted", len(accepted)).Info("Batch ingested")
	return accepted, nil
}

// promote turns an accepted candidate into a full persistent record.
func (i *Ingestor) promote(candidate domain.CandidateCoupon, ref domain.MessageRef) domain.CouponRecord {
	now := i.now()

	validUntil := candidate.ValidUntil
	if validUntil == "" {
		validUntil = now.AddDate(0, 0, domain.DefaultValidityDays).Format(domain.DateLayout)
	}

	return domain.CouponRecord{
		ID:          uuid.NewString(),
		Title:       candidate.Title,
		Description: candidate.Description,
		Barcode:     candidate.Barcode,
		BarcodeType: domain.BarcodeTypeFor(candidate.Barcode),
		Store:       candidate.Store,
		ValidFrom:   now.Format(domain.DateLayout),
		ValidUntil:  validUntil,
		Used:        false,
		CreatedAt:   now,
		Source:      domain.SourceTelegram,
		Message:     ref,
	}
}
