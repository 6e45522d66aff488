package domain

import "time"

// Store identifies the retailer a coupon belongs to.
type Store string

// Known stores. StoreOther is used when no store-specific pattern or
// keyword matched.
const (
	StorePayback  Store = "payback"
	StoreDM       Store = "dm"
	StoreRossmann Store = "rossmann"
	StoreREWE     Store = "rewe"
	StorePenny    Store = "penny"
	StoreLidl     Store = "lidl"
	StoreAldi     Store = "aldi"
	StoreKaufland Store = "kaufland"
	StoreMueller  Store = "mueller"
	StoreOther    Store = "other"
)

// BarcodeType is a rendering hint for the web app.
type BarcodeType string

const (
	BarcodeEAN8    BarcodeType = "EAN8"
	BarcodeEAN13   BarcodeType = "EAN13"
	BarcodeCode128 BarcodeType = "CODE128"
)

// BarcodeTypeFor picks a rendering hint from the barcode length.
// 8 digits or fewer render as EAN8, exactly 13 as EAN13, anything
// else falls back to CODE128.
func BarcodeTypeFor(barcode string) BarcodeType {
	switch {
	case len(barcode) <= 8:
		return BarcodeEAN8
	case len(barcode) == 13:
		return BarcodeEAN13
	default:
		return BarcodeCode128
	}
}

// DateLayout is the layout for validity dates (date component only).
const DateLayout = "2006-01-02"

// DefaultValidityDays is applied when an extractor supplies no explicit
// valid-until date.
const DefaultValidityDays = 30

// SourceTelegram is the provenance tag for records ingested by the bot.
const SourceTelegram = "telegram"

// CandidateCoupon is the ephemeral output of the text matcher and the
// image extractor. It lives only for the duration of one ingestion call;
// the deduplicator either promotes it to a CouponRecord or drops it.
type CandidateCoupon struct {
	Store       Store
	Barcode     string
	Title       string
	Description string

	// ValidUntil is optional. When set (DateLayout), the deduplicator
	// keeps it instead of applying the default validity window.
	ValidUntil string
}

// MessageRef points back at the chat message a record was extracted from.
type MessageRef struct {
	ChatID    int64 `json:"chatId"`
	MessageID int   `json:"messageId"`
}

// CouponRecord is the persistent form of an accepted candidate.
//
// Records are created exactly once at acceptance and never updated or
// deleted by the pipeline. The Used/UsedAt/UsedAmount fields belong to
// the web app, which flips them when a coupon is redeemed.
type CouponRecord struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Barcode     string      `json:"barcode"`
	BarcodeType BarcodeType `json:"barcodeType"`
	Store       Store       `json:"store"`
	ValidFrom   string      `json:"validFrom"`
	ValidUntil  string      `json:"validUntil"`
	Used        bool        `json:"used"`
	UsedAt      *time.Time  `json:"usedAt,omitempty"`
	UsedAmount  *float64    `json:"usedAmount,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	Source      string      `json:"source"`
	Message     MessageRef  `json:"message"`
}
