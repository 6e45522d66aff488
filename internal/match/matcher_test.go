package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"couponbot/internal/domain"
)

func TestMatch_PaybackCode(t *testing.T) {
	candidates := Match("PB: 1234567890 10% Rabatt bei Einkauf")

	require.Len(t, candidates, 1)
	assert.Equal(t, domain.StorePayback, candidates[0].Store)
	assert.Equal(t, "1234567890", candidates[0].Barcode)
	assert.Equal(t, "Payback Coupon", candidates[0].Title)
	assert.Contains(t, candidates[0].Description, "10% Rabatt")
}

func TestMatch_StoreSpecificWinsOverGeneric(t *testing.T) {
	// A store-prefixed code plus an unrelated bare digit run must yield
	// exactly one candidate, tagged with the store, and no generic
	// candidate for the other run.
	candidates := Match("DM: 9876543210\nBestellnummer 55556666")

	require.Len(t, candidates, 1)
	assert.Equal(t, domain.StoreDM, candidates[0].Store)
	assert.Equal(t, "9876543210", candidates[0].Barcode)
}

func TestMatch_GenericFallbackCappedAtOne(t *testing.T) {
	// Three distinct digit runs with no store prefix: only the first is
	// reported.
	candidates := Match("Codes: 11112222 33334444 5555666677")

	require.Len(t, candidates, 1)
	assert.Equal(t, domain.StoreOther, candidates[0].Store)
	assert.Equal(t, "11112222", candidates[0].Barcode)
	assert.Equal(t, "Gefundener Coupon", candidates[0].Title)
}

func TestMatch_MultipleStores(t *testing.T) {
	candidates := Match("Payback 1112223334\nRossmann: 4445556667")

	require.Len(t, candidates, 2)
	assert.Equal(t, domain.StorePayback, candidates[0].Store)
	assert.Equal(t, "1112223334", candidates[0].Barcode)
	assert.Equal(t, domain.StoreRossmann, candidates[1].Store)
	assert.Equal(t, "4445556667", candidates[1].Barcode)
}

func TestMatch_CaseInsensitive(t *testing.T) {
	candidates := Match("payback 1234567890")

	require.Len(t, candidates, 1)
	assert.Equal(t, domain.StorePayback, candidates[0].Store)
}

func TestMatch_EmbeddedDigitRunIgnored(t *testing.T) {
	// 16 digits is not a barcode; no 8-13 digit slice of it may match.
	assert.Empty(t, Match("Kartennummer 1234567890123456"))
}

func TestMatch_EmptyInput(t *testing.T) {
	assert.Empty(t, Match(""))
	assert.Empty(t, Match("   \n  "))
	assert.Empty(t, Match("kein Coupon hier"))
}

func TestScanCodes(t *testing.T) {
	codes := ScanCodes("RM 998877665 irgendwas 12345678 und RM 998877665")

	assert.Equal(t, []string{"998877665", "12345678"}, codes)
}

func TestScanCodes_NoCodes(t *testing.T) {
	assert.Empty(t, ScanCodes("nur Text, keine Zahlen"))
}

func TestDetectStore(t *testing.T) {
	tests := []struct {
		caption   string
		wantStore domain.Store
		wantTitle string
	}{
		{"Rossmann Angebot", domain.StoreRossmann, "Rossmann Coupon"},
		{"Neuer PAYBACK Deal", domain.StorePayback, "Payback Coupon"},
		{"dm 10fach Punkte", domain.StoreDM, "DM Coupon"},
		{"Müller Rabatt", domain.StoreMueller, "Müller Coupon"},
		{"irgendein Foto", domain.StoreOther, "Gefundener Coupon"},
		{"", domain.StoreOther, "Gefundener Coupon"},
	}

	for _, tt := range tests {
		store, title := DetectStore(tt.caption)
		assert.Equal(t, tt.wantStore, store, "caption %q", tt.caption)
		assert.Equal(t, tt.wantTitle, title, "caption %q", tt.caption)
	}
}

func TestExtractDescription_ValueKeywordLine(t *testing.T) {
	desc := ExtractDescription("Neuer Coupon\nPB 1234567890\n20fach Punkte auf alles")
	assert.Equal(t, "20fach Punkte auf alles", desc)
}

func TestExtractDescription_FallbackFirstTwoLines(t *testing.T) {
	desc := ExtractDescription("Zeile eins\n\nZeile zwei\nZeile drei")
	assert.Equal(t, "Zeile eins Zeile zwei", desc)
}
