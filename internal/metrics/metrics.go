package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesProcessed counts inbound chat messages by content kind.
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "couponbot_messages_processed_total",
			Help: "Inbound chat messages routed through the pipeline",
		},
		[]string{"kind"}, // text, photo, document
	)

	// CandidatesExtracted counts candidates by extraction source.
	CandidatesExtracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "couponbot_candidates_extracted_total",
			Help: "Candidate coupons produced by the extractor stages",
		},
		[]string{"source"}, // text, image
	)

	// CouponsAccepted counts newly persisted records by store.
	CouponsAccepted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "couponbot_coupons_accepted_total",
			Help: "Coupon records accepted and persisted",
		},
		[]string{"store"},
	)

	// DuplicatesSkipped counts candidates dropped by deduplication.
	DuplicatesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "couponbot_duplicates_skipped_total",
			Help: "Candidates skipped because their barcode was already known",
		},
	)

	// OCRFailures counts image extractions that contributed nothing.
	OCRFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "couponbot_ocr_failures_total",
			Help: "Image extractions aborted by download, decode or OCR errors",
		},
	)

	// OCRDuration tracks the latency of one OCR invocation.
	OCRDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "couponbot_ocr_duration_seconds",
			Help:    "Duration of a single OCR invocation in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
	)
)
