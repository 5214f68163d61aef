package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"sellout/internal/profile"
)

// ErrDateDerivation marks a failed file-level date extraction. Fatal for
// the whole file: month and year can never be safely defaulted.
var ErrDateDerivation = errors.New("date derivation failed")

var (
	reReportPeriod = regexp.MustCompile(`(?i)reportperiod\s*(\d{2})-(\d{4})`)
	// word boundaries do not work across underscores, which filenames are
	// full of, hence the explicit separator classes
	reMonthToken = regexp.MustCompile(`(?i)(?:^|[^a-z])(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*[-_ ]?\s*(\d{4})(?:[^0-9]|$)`)
	reFileDate     = regexp.MustCompile(`\b(\d{2})\.(\d{2})\.(\d{4})\b`)
	rePivotYM      = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
)

var monthTokens = map[string]int{
	"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
	"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
}

// DeriveFileDate applies a profile's filename grammar. Only the strategies
// that read the filename are handled here; column-based dates come out of
// the cleaner and pivot dates out of the normalizer.
func DeriveFileDate(strategy profile.DateStrategy, filename string) (month, year int, err error) {
	switch strategy {
	case profile.DateFromReportPeriod:
		return parseReportPeriod(filename)
	case profile.DateFromMonthToken:
		return parseMonthToken(filename)
	case profile.DateFromWeeklyFilename:
		return parseWeeklyDate(filename)
	default:
		return 0, 0, fmt.Errorf("%w: strategy %s does not read filenames", ErrDateDerivation, strategy)
	}
}

func parseReportPeriod(filename string) (int, int, error) {
	m := reReportPeriod.FindStringSubmatch(filename)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: no ReportPeriodMM-YYYY token in %q", ErrDateDerivation, filename)
	}
	month, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[2])
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("%w: month %d out of range in %q", ErrDateDerivation, month, filename)
	}
	return month, year, nil
}

func parseMonthToken(filename string) (int, int, error) {
	m := reMonthToken.FindStringSubmatch(filename)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: no month token in %q", ErrDateDerivation, filename)
	}
	month := monthTokens[strings.ToLower(m[1])]
	year, _ := strconv.Atoi(m[2])
	return month, year, nil
}

// parseWeeklyDate handles weekly reports stamped with their send date: the
// covered period is the week before, truncated to its month.
func parseWeeklyDate(filename string) (int, int, error) {
	m := reFileDate.FindStringSubmatch(filename)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: no DD.MM.YYYY date in %q", ErrDateDerivation, filename)
	}
	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	sent := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if sent.Day() != day || sent.Month() != time.Month(month) {
		return 0, 0, fmt.Errorf("%w: invalid date %s in %q", ErrDateDerivation, m[0], filename)
	}
	covered := sent.AddDate(0, 0, -7)
	return int(covered.Month()), covered.Year(), nil
}

// parsePivotMonth reads month/year out of a pivoted column label, e.g.
// "Jan 2025", "January 2025" or "2025-01".
func parsePivotMonth(label string) (int, int, bool) {
	if m := reMonthToken.FindStringSubmatch(label); m != nil {
		year, _ := strconv.Atoi(m[2])
		return monthTokens[strings.ToLower(m[1])], year, true
	}
	if m := rePivotYM.FindStringSubmatch(strings.TrimSpace(label)); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		if month >= 1 && month <= 12 {
			return month, year, true
		}
	}
	return 0, 0, false
}
