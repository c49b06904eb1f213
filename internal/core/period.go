package core

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// YearMonth identifies a calendar month.
type YearMonth struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// YearMonthOf returns the month containing t, in t's location.
func YearMonthOf(t time.Time) YearMonth {
	return YearMonth{Year: t.Year(), Month: t.Month()}
}

func (ym YearMonth) IsZero() bool {
	return ym.Year == 0 && ym.Month == 0
}

// String renders "YYYY/MM".
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d/%02d", ym.Year, int(ym.Month))
}

// DaysIn returns the number of days in the month.
func (ym YearMonth) DaysIn() int {
	return time.Date(ym.Year, ym.Month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Date returns midnight of day in ym, in loc.
func (ym YearMonth) Date(day int, loc *time.Location) time.Time {
	return time.Date(ym.Year, ym.Month, day, 0, 0, 0, 0, loc)
}

// Marker encodes ym as the settlement text written back to the sheet,
// e.g. "2026/02済".
func (ym YearMonth) Marker() string {
	return ym.String() + settledToken
}

// DueDay resolves a recurring day-of-month against ym: at least 1 and at
// most the last day of the month, so 31 becomes 28 or 29 in February.
func DueDay(day int, ym YearMonth) int {
	if day < 1 {
		day = 1
	}
	if last := ym.DaysIn(); day > last {
		day = last
	}
	return day
}

const (
	settledToken   = "済"
	thisMonthToken = "今月"
)

var (
	// 2026/02, 2026-2
	numericPeriodRe = regexp.MustCompile(`(\d{4})[/-](\d{1,2})`)
	// 2026年2月
	kanjiPeriodRe = regexp.MustCompile(`(\d{4})年(\d{1,2})月`)
	// 2月, 02月 without a year in front
	monthOnlyRe = regexp.MustCompile(`(^|[^\d年])(\d{1,2})月`)
)

// normalizeMarker trims, drops every space (including ideographic ones)
// and lowercases.
func normalizeMarker(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.ToLower(s)
}

// DecodeSettledMarker converts a legacy done marker into a structured
// period. The marker must carry 済 together with either 今月 or a period:
// YYYY/MM, YYYY-MM, YYYY年M月, M月 or MM月. ref supplies the meaning of 今月
// and the year of year-less forms, which never resolve after ref's month.
// It returns nil when the marker does not record a settlement.
func DecodeSettledMarker(marker string, ref time.Time) *YearMonth {
	m := normalizeMarker(marker)
	if !strings.Contains(m, settledToken) {
		return nil
	}
	current := YearMonthOf(ref)
	if strings.Contains(m, thisMonthToken) {
		return &current
	}
	periods := markerPeriods(m, current)
	if len(periods) == 0 {
		return nil
	}
	latest := periods[0]
	for _, p := range periods[1:] {
		if p.After(latest) {
			latest = p
		}
	}
	return &latest
}

// After reports whether ym is later than other.
func (ym YearMonth) After(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year > other.Year
	}
	return ym.Month > other.Month
}

// markerPeriods extracts every period in m. A year-less month later than
// current belongs to the previous year: "12月済" read in January means last
// December.
func markerPeriods(m string, current YearMonth) []YearMonth {
	var out []YearMonth
	add := func(year, month string) {
		y, err := strconv.Atoi(year)
		if err != nil {
			return
		}
		mo, err := strconv.Atoi(month)
		if err != nil || mo < 1 || mo > 12 {
			return
		}
		out = append(out, YearMonth{Year: y, Month: time.Month(mo)})
	}
	for _, g := range numericPeriodRe.FindAllStringSubmatch(m, -1) {
		add(g[1], g[2])
	}
	for _, g := range kanjiPeriodRe.FindAllStringSubmatch(m, -1) {
		add(g[1], g[2])
	}
	for _, g := range monthOnlyRe.FindAllStringSubmatch(m, -1) {
		mo, err := strconv.Atoi(g[2])
		if err != nil || mo < 1 || mo > 12 {
			continue
		}
		year := current.Year
		if time.Month(mo) > current.Month {
			year--
		}
		out = append(out, YearMonth{Year: year, Month: time.Month(mo)})
	}
	return out
}
