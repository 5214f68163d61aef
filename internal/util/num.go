package util

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	reCurrencyCode = regexp.MustCompile(`(?i)\b(eur|pln|zar|gbp|uah|usd|chf|sek|dkk)\b`)
	reAmountKeep   = regexp.MustCompile(`[^0-9.,\-]`)
	reThousandDot  = regexp.MustCompile(`^-?\d{1,3}(?:\.\d{3})+$`)
	reThousandComm = regexp.MustCompile(`^-?\d{1,3}(?:,\d{3})+$`)
)

// CleanAmountText strips currency symbols, codes and spacing from a formatted
// amount but keeps the digit separators as the source wrote them. "€ 116"
// becomes "116", "202,48" stays "202,48".
func CleanAmountText(input string) string {
	s := strings.ReplaceAll(input, " ", " ")
	s = reCurrencyCode.ReplaceAllString(s, " ")
	s = strings.NewReplacer("€", " ", "$", " ", "£", " ", "₴", " ", "zł", " ", "(", "-", ")", " ").Replace(s)
	s = reAmountKeep.ReplaceAllString(s, "")
	s = strings.Trim(s, ".,")
	return s
}

// ParseAmount coerces a formatted amount to a float. Handles decimal commas,
// dot and comma thousand groups and leading currency adornment.
func ParseAmount(input string) (float64, bool) {
	token := CleanAmountText(input)
	if token == "" || token == "-" {
		return 0, false
	}
	parsed, err := strconv.ParseFloat(normalizeNumericToken(token), 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

// ParseQuantity coerces a cell to an integer quantity. Decimal values that
// are not whole numbers fail: a sell-out unit count is never fractional.
func ParseQuantity(input string) (int, error) {
	token := strings.TrimSpace(strings.ReplaceAll(input, " ", " "))
	if token == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	parsed, ok := ParseAmount(token)
	if !ok {
		return 0, fmt.Errorf("not numeric: %q", input)
	}
	rounded := math.Round(parsed)
	if math.Abs(parsed-rounded) > 1e-9 {
		return 0, fmt.Errorf("not an integer quantity: %q", input)
	}
	return int(rounded), nil
}

// NormalizeEAN fixes barcodes mangled by spreadsheet numeric cells: float
// renderings like "7350154320008.0" or "7.350154320008E+12" come back as
// the plain digit string. Non-numeric input passes through trimmed.
func NormalizeEAN(input string) string {
	s := strings.TrimSpace(input)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, ".eE") {
		if parsed, err := strconv.ParseFloat(s, 64); err == nil && parsed == math.Trunc(parsed) && parsed > 0 {
			return strconv.FormatFloat(parsed, 'f', -1, 64)
		}
	}
	return s
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if reThousandDot.MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if reThousandComm.MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	if strings.Contains(compact, ",") && strings.Contains(compact, ".") {
		// 1.234,56 style: dot groups, comma decimal
		if strings.LastIndex(compact, ",") > strings.LastIndex(compact, ".") {
			compact = strings.ReplaceAll(compact, ".", "")
			return strings.ReplaceAll(compact, ",", ".")
		}
		return strings.ReplaceAll(compact, ",", "")
	}
	return compact
}
