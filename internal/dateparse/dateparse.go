// Package dateparse normalizes the date and date-range strings found on the
// announcement pages. The sites mix CJK markers (年/月/日), dashes, dots and
// slashes, frequently insert stray whitespace between characters, and
// sometimes omit the year on the end of a range.
package dateparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var (
	// Full range: both sides carry a four-digit year. The separator between
	// the two dates is 至/到, a dash/tilde, or a wave dash.
	fullRangeRe = regexp.MustCompile(
		`(\d{4})[年.\-/](\d{1,2})[月.\-/](\d{1,2})[日号]?[至到~\-—]{1,2}(\d{4})[年.\-/](\d{1,2})[月.\-/](\d{1,2})[日号]?`)

	// Truncated range: the end date omits the year, which is inherited from
	// the start date ("2025.3.19-3.28").
	shortRangeRe = regexp.MustCompile(
		`(\d{4})[年.\-/](\d{1,2})[月.\-/](\d{1,2})[日号]?[至到~\-—](\d{1,2})[月.\-/](\d{1,2})[日号]?`)

	singleDateRe = regexp.MustCompile(
		`(\d{4})[年.\-/](\d{1,2})[月.\-/](\d{1,2})[日号]?`)

	compactDateRe = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})$`)
)

// Normalize parses one date string into ISO form ("2025年3月31日" →
// "2025-03-31"). Returns false when nothing parseable is found.
func Normalize(s string) (string, bool) {
	s = stripSpace(s)
	if s == "" {
		return "", false
	}

	if m := compactDateRe.FindStringSubmatch(s); m != nil {
		return buildISO(m[1], m[2], m[3])
	}
	if m := singleDateRe.FindStringSubmatch(s); m != nil {
		return buildISO(m[1], m[2], m[3])
	}
	return "", false
}

// ExtractRange finds a date range anywhere in text and returns both ends as
// ISO dates. Whitespace is stripped first, so strings corrupted with spaces
// between every character ("公 示 期：2025年4月8日至...") parse the same as
// clean ones. An end date without a year inherits the start year.
func ExtractRange(text string) (start, end string, ok bool) {
	t := stripSpace(text)
	if t == "" {
		return "", "", false
	}

	if m := fullRangeRe.FindStringSubmatch(t); m != nil {
		s, okS := buildISO(m[1], m[2], m[3])
		e, okE := buildISO(m[4], m[5], m[6])
		if okS && okE {
			return s, e, true
		}
	}

	if m := shortRangeRe.FindStringSubmatch(t); m != nil {
		s, okS := buildISO(m[1], m[2], m[3])
		e, okE := buildISO(m[1], m[4], m[5]) // inherit start year
		if okS && okE {
			return s, e, true
		}
	}

	return "", "", false
}

// stripSpace removes every whitespace rune, including full-width spaces.
func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// buildISO zero-pads and validates a year/month/day triple.
func buildISO(y, m, d string) (string, bool) {
	year, _ := strconv.Atoi(y)
	month, _ := strconv.Atoi(m)
	day, _ := strconv.Atoi(d)
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	// Reject non-existent dates like Feb 30.
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", false
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}
