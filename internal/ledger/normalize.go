package ledger

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var trancheLabel = regexp.MustCompile(`^tranche\s*(\d+)$`)

// normalizeKey folds case, accents and inner whitespace so "Décembre ", "decembre"
// and "DECEMBRE" compare equal.
func normalizeKey(value string) string {
	decomposed := norm.NFD.String(strings.TrimSpace(value))
	var b strings.Builder
	b.Grow(len(decomposed))
	space := false
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// parseTrancheLabel recognises the "Tranche N" convention used in paidMonths.
func parseTrancheLabel(value string) (int, bool) {
	m := trancheLabel.FindStringSubmatch(normalizeKey(value))
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// TrancheLabel renders the paidMonths convention for tranche n.
func TrancheLabel(n int) string {
	return "Tranche " + strconv.Itoa(n)
}
