// Package match scans free-form chat text for coupon barcodes.
//
// Detection is driven by a single ordered rule table: one entry per known
// store, each carrying the regular expression that recognizes a
// store-prefixed code and the keyword list used to classify image
// captions. Store-specific matches always win over the generic digit-run
// fallback, and the fallback contributes at most one candidate per
// message so that dates and prices in ordinary chat don't flood the
// store with bogus coupons.
package match

import (
	"regexp"
	"strings"

	"couponbot/internal/domain"
)

// Rule binds a store tag to its detection pattern and caption keywords.
type Rule struct {
	Store    domain.Store
	Title    string
	Pattern  *regexp.Regexp
	Keywords []string
}

// rules is evaluated in order; earlier entries take precedence when a
// caption mentions more than one store.
var rules = []Rule{
	{
		Store:    domain.StorePayback,
		Title:    "Payback Coupon",
		Pattern:  regexp.MustCompile(`(?i)\b(?:payback|pb)[\s:-]*(\d{10,13})\b`),
		Keywords: []string{"payback", "pb"},
	},
	{
		Store:    domain.StoreDM,
		Title:    "DM Coupon",
		Pattern:  regexp.MustCompile(`(?i)\b(?:dm|drogerie)[\s:-]*(\d{10,13})\b`),
		Keywords: []string{"dm", "drogerie"},
	},
	{
		Store:    domain.StoreRossmann,
		Title:    "Rossmann Coupon",
		Pattern:  regexp.MustCompile(`(?i)\b(?:rossmann|rm)[\s:-]*(\d{10,13})\b`),
		Keywords: []string{"rossmann", "rm"},
	},
	{
		Store:    domain.StoreREWE,
		Title:    "REWE Coupon",
		Pattern:  regexp.MustCompile(`(?i)\brewe[\s:-]*(\d{10,13})\b`),
		Keywords: []string{"rewe"},
	},
	{
		Store:    domain.StorePenny,
		Title:    "Penny Coupon",
		Pattern:  regexp.MustCompile(`(?i)\bpenny[\s:-]*(\d{10,13})\b`),
		Keywords: []string{"penny"},
	},
	{
		Store:    domain.StoreLidl,
		Title:    "Lidl Coupon",
		Pattern:  regexp.MustCompile(`(?i)\blidl[\s:-]*(\d{10,13})\b`),
		Keywords: []string{"lidl"},
	},
	{
		Store:    domain.StoreAldi,
		Title:    "Aldi Coupon",
		Pattern:  regexp.MustCompile(`(?i)\baldi[\s:-]*(\d{10,13})\b`),
		Keywords: []string{"aldi"},
	},
	{
		Store:    domain.StoreKaufland,
		Title:    "Kaufland Coupon",
		Pattern:  regexp.MustCompile(`(?i)\bkaufland[\s:-]*(\d{10,13})\b`),
		Keywords: []string{"kaufland"},
	},
	{
		Store:    domain.StoreMueller,
		Title:    "Müller Coupon",
		Pattern:  regexp.MustCompile(`(?i)\b(?:müller|mueller)[\s:-]*(\d{10,13})\b`),
		Keywords: []string{"müller", "mueller"},
	},
}

// genericTitle labels fallback candidates with no recognized store.
const genericTitle = "Gefundener Coupon"

// genericBarcode finds any standalone 8-13 digit run. The word
// boundaries keep it from matching a slice of a longer digit run.
var genericBarcode = regexp.MustCompile(`\b\d{8,13}\b`)

// abbrevCode recognizes store-abbreviation-prefixed codes in OCR output,
// where the prefix tends to survive recognition better than full store
// names. The digit range is wider than the store rules because printed
// coupon codes photographed at an angle often lose a leading digit.
var abbrevCode = regexp.MustCompile(`(?i)\b(?:pb|dm|rm)[\s:-]*(\d{8,13})\b`)

// valueKeywords mark a line as describing the coupon's value or discount.
var valueKeywords = []string{"€", "euro", "%", "fach", "punkte", "rabatt", "sparen"}

// Match scans text for coupon codes and returns the candidates in rule
// order. Empty or unmatchable input yields an empty slice, never an
// error.
func Match(text string) []domain.CandidateCoupon {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var candidates []domain.CandidateCoupon
	claimed := make(map[string]bool)

	for _, rule := range rules {
		m := rule.Pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidates = append(candidates, domain.CandidateCoupon{
			Store:       rule.Store,
			Barcode:     m[1],
			Title:       rule.Title,
			Description: ExtractDescription(text),
		})
		claimed[m[1]] = true
	}

	// Generic fallback only when no store rule matched, and at most one
	// candidate: the first run not claimed by a store rule.
	if len(candidates) == 0 {
		for _, barcode := range genericBarcode.FindAllString(text, -1) {
			if claimed[barcode] {
				continue
			}
			candidates = append(candidates, domain.CandidateCoupon{
				Store:       domain.StoreOther,
				Barcode:     barcode,
				Title:       genericTitle,
				Description: ExtractDescription(text),
			})
			break
		}
	}

	return candidates
}

// ScanCodes extracts barcode values from OCR text: abbreviation-prefixed
// codes first, then bare digit runs, deduplicated in order of first
// appearance.
func ScanCodes(text string) []string {
	var codes []string
	seen := make(map[string]bool)

	for _, m := range abbrevCode.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			codes = append(codes, m[1])
		}
	}
	for _, barcode := range genericBarcode.FindAllString(text, -1) {
		if !seen[barcode] {
			seen[barcode] = true
			codes = append(codes, barcode)
		}
	}

	return codes
}

// DetectStore classifies a caption by the first rule whose keyword
// appears as a word in it, defaulting to StoreOther.
func DetectStore(caption string) (domain.Store, string) {
	lower := strings.ToLower(caption)
	words := strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == 'ü' || r == 'ö' || r == 'ä' || r == 'ß')
	})
	wordSet := make(map[string]bool, len(words))
	for _, w := range words {
		wordSet[w] = true
	}

	for _, rule := range rules {
		for _, kw := range rule.Keywords {
			if wordSet[kw] {
				return rule.Store, rule.Title
			}
		}
	}
	return domain.StoreOther, genericTitle
}

// ExtractDescription picks the line most likely to describe the
// coupon's value: the first line containing a value keyword, otherwise
// the first two non-empty lines joined by a space.
func ExtractDescription(text string) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}

	for _, line := range lines {
		lower := strings.ToLower(line)
		for _, kw := range valueKeywords {
			if strings.Contains(lower, kw) {
				return line
			}
		}
	}

	if len(lines) > 2 {
		lines = lines[:2]
	}
	return strings.Join(lines, " ")
}
