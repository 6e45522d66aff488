// Package webhook pushes newly accepted coupons to the companion web
// app. Delivery is at-most-once and best-effort: one attempt, bounded
// by a timeout, failures logged and never retried. The web app polls
// the query API anyway; the webhook only shortens the latency.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"couponbot/internal/domain"
)

// eventNewCoupons is the event name the web app listens for.
const eventNewCoupons = "new_coupons"

// payload is the JSON body of a notification.
type payload struct {
	Event   string                `json:"event"`
	Coupons []domain.CouponRecord `json:"coupons"`
}

// Notifier sends fire-and-forget notifications to a single webhook URL.
type Notifier struct {
	url    string
	client *http.Client
	log    logrus.FieldLogger
}

// NewNotifier creates a notifier for the given URL. An empty URL
// disables notification entirely.
func NewNotifier(url string, timeout time.Duration, logger logrus.FieldLogger) *Notifier {
	return &Notifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    logger.WithField("component", "webhook"),
	}
}

// NotifyNewCoupons posts the accepted records to the webhook. It never
// returns an error: delivery failure is logged and ingestion is already
// complete by the time this runs.
func (n *Notifier) NotifyNewCoupons(ctx context.Context, records []domain.CouponRecord) {
	if n.url == "" || len(records) == 0 {
		return
	}

	log := n.log.WithField("coupons", len(records))

	body, err := json.Marshal(payload{Event: eventNewCoupons, Coupons: records})
	if err != nil {
		log.WithError(err).Error("Failed to marshal webhook payload")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.WithError(err).Error("Failed to build webhook request")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("Webhook notification failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithError(fmt.Errorf("unexpected status %d", resp.StatusCode)).Warn("Webhook notification rejected")
		return
	}

	log.Debug("Webhook notified")
}
