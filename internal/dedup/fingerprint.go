// Package dedup detects listings that have already been processed, across
// runs, by a normalized content fingerprint.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/deal-engine/internal/model"
)

// DescriptionExcerpt is the number of normalized runes of the description
// that contribute to a fingerprint.
const DescriptionExcerpt = 200

// Fingerprint returns the 64-char SHA-256 hex of the normalized address,
// price and description excerpt. Formatting differences (case, accents,
// whitespace, currency symbols, thousands separators) do not change it.
func Fingerprint(address, price, description string) string {
	desc := []rune(normalizeText(description))
	if len(desc) > DescriptionExcerpt {
		desc = desc[:DescriptionExcerpt]
	}
	payload := normalizeText(address) + "|" + normalizePrice(price) + "|" + string(desc)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// PropertyFingerprint fingerprints a declared listing.
func PropertyFingerprint(p *model.Property) string {
	price := ""
	if p.Price != nil {
		price = strconv.FormatFloat(*p.Price, 'f', -1, 64)
	}
	return Fingerprint(p.FullAddress(), price, p.Description)
}

// normalizeText decomposes accented characters, drops combining marks,
// lowercases and collapses whitespace.
func normalizeText(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}

// normalizePrice keeps digits and the decimal point, then formats the number
// canonically so "$200,000.00" and "200000" agree.
func normalizePrice(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == '.' {
			b.WriteRune(r)
		}
	}
	raw := b.String()
	if raw == "" {
		return ""
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
