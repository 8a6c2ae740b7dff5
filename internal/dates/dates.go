// Package dates turns the assorted date spellings found on listing pages into
// calendar dates.
package dates

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const (
	minYear = 1901
	maxYear = 2099

	// twoDigitPivot splits two-digit years: values at or above it land in the
	// 1900s, anything below in the 2000s.
	twoDigitPivot = 50
)

var (
	monthDayYearRe = regexp.MustCompile(`^(\d{1,2})[/-](\d{1,2})[/-](\d{4}|\d{2})$`)
	yearMonthDayRe = regexp.MustCompile(`^(\d{4})[/-](\d{1,2})[/-](\d{1,2})$`)
	monthNameRe    = regexp.MustCompile(`^([A-Za-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?,?\s+(\d{4})$`)
	dayMonthNameRe = regexp.MustCompile(`^(\d{1,2})\s+([A-Za-z]{3,9})\.?,?\s+(\d{4})$`)
)

var monthNames = []string{
	"january", "february", "march", "april", "may", "june",
	"july", "august", "september", "october", "november", "december",
}

// Parse normalizes text into a date at local midnight. The second return is
// false when nothing usable could be read or the year is out of range.
func Parse(text string) (time.Time, bool) {
	return ParseIn(text, time.Local)
}

// ParseIn is Parse with an explicit location.
func ParseIn(text string, loc *time.Location) (time.Time, bool) {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.Local
	}

	for _, attempt := range []func(string, *time.Location) (time.Time, bool){
		parseMonthDayYear,
		parseYearMonthDay,
		parseMonthName,
		parseDayMonthName,
		parseFallback,
	} {
		if t, ok := attempt(text, loc); ok {
			return accept(t)
		}
	}
	return time.Time{}, false
}

func accept(t time.Time) (time.Time, bool) {
	if t.Year() < minYear || t.Year() > maxYear {
		return time.Time{}, false
	}
	return t, true
}

func parseMonthDayYear(text string, loc *time.Location) (time.Time, bool) {
	m := monthDayYearRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	if len(m[3]) == 2 {
		year = expandYear(year)
	}
	return build(year, month, day, loc)
}

func parseYearMonthDay(text string, loc *time.Location) (time.Time, bool) {
	m := yearMonthDayRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	return build(year, month, day, loc)
}

func parseMonthName(text string, loc *time.Location) (time.Time, bool) {
	m := monthNameRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := lookupMonth(m[1])
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[2])
	year, _ := strconv.Atoi(m[3])
	return build(year, int(month), day, loc)
}

func parseDayMonthName(text string, loc *time.Location) (time.Time, bool) {
	m := dayMonthNameRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, false
	}
	month, ok := lookupMonth(m[2])
	if !ok {
		return time.Time{}, false
	}
	day, _ := strconv.Atoi(m[1])
	year, _ := strconv.Atoi(m[3])
	return build(year, int(month), day, loc)
}

func parseFallback(text string, loc *time.Location) (time.Time, bool) {
	t, err := dateparse.ParseIn(text, loc)
	if err != nil {
		return time.Time{}, false
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true
}

// build rejects impossible calendar dates (Feb 30, month 13) instead of
// letting time.Date roll them over.
func build(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

func expandYear(yy int) int {
	if yy >= twoDigitPivot {
		return 1900 + yy
	}
	return 2000 + yy
}

func lookupMonth(name string) (time.Month, bool) {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	if len(name) < 3 {
		return 0, false
	}
	if name == "sept" {
		return time.September, true
	}
	for i, full := range monthNames {
		if strings.HasPrefix(full, name) {
			return time.January + time.Month(i), true
		}
	}
	return 0, false
}

const monthAlt = `(?:jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?`

// scanPatterns locate date-looking substrings inside free row text. Order
// matters only for overlap resolution: an earlier pattern claims its span.
var scanPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-](?:\d{4}|\d{2})\b`),
	regexp.MustCompile(`\b\d{4}[/-]\d{1,2}[/-]\d{1,2}\b`),
	regexp.MustCompile(`(?i)\b` + monthAlt + `\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}\s+` + monthAlt + `,?\s+\d{4}\b`),
}

// FindAll returns every parseable date in text, ascending. Duplicate values
// are kept; overlapping matches from different patterns are counted once.
func FindAll(text string, loc *time.Location) []time.Time {
	type span struct{ start, end int }
	var claimed []span
	overlaps := func(s span) bool {
		for _, c := range claimed {
			if s.start < c.end && c.start < s.end {
				return true
			}
		}
		return false
	}

	var found []time.Time
	for _, re := range scanPatterns {
		for _, idx := range re.FindAllStringIndex(text, -1) {
			s := span{idx[0], idx[1]}
			if overlaps(s) {
				continue
			}
			t, ok := ParseIn(text[s.start:s.end], loc)
			if !ok {
				continue
			}
			claimed = append(claimed, s)
			found = append(found, t)
		}
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Before(found[j]) })
	return found
}

// Bounds reports the earliest and latest of dates. latest is only set when
// more than one date is present; the middle of a longer list is ignored.
func Bounds(found []time.Time) (earliest, latest *time.Time) {
	if len(found) == 0 {
		return nil, nil
	}
	first := found[0]
	earliest = &first
	if len(found) > 1 {
		last := found[len(found)-1]
		latest = &last
	}
	return earliest, latest
}
