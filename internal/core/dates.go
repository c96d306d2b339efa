package core

// dates.go normalizes posting dates of unknown shape into a calendar Date.
//
// Spreadsheets hand us ISO strings, day-first strings with -, / or .
// separators, 8-digit runs, serial numbers from the spreadsheet epoch and
// OData "/Date(ms)/" wrappers. ParseDate tries them in a fixed order; callers
// choose what an unusable value turns into via DisplayDate or PayloadDate.

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrEmptyDate is returned for absent or blank input.
	ErrEmptyDate = errors.New("empty date")

	// ErrInvalidDate is returned when no supported shape matches.
	ErrInvalidDate = errors.New("invalid date format")
)

// InvalidDateMarker is what DisplayDate shows for an unusable value.
const InvalidDateMarker = "Invalid Format use DD-MM-YYYY"

// SerialEpoch is day zero of the spreadsheet serial-date scale. Serials above
// 59 lose one day first to undo the phantom 29 Feb 1900. With this anchor
// serial 45921 is 22 Sep 2025, the reference value agreed for imports. Excel
// itself shows that serial as 21 Sep 2025; the anchor awaits confirmation.
var SerialEpoch = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// maxSerial is 9999-12-31 on the serial scale.
const maxSerial = 2958465

// DateFormat selects a Render layout.
type DateFormat string

const (
	FormatCompact DateFormat = "YYYYMMDD"
	FormatISO     DateFormat = "YYYY-MM-DD"
	FormatDisplay DateFormat = "DD-MM-YYYY"
)

// Date is a calendar date without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Time returns midnight UTC of d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String renders d as YYYY-MM-DD.
func (d Date) String() string {
	return Render(d, FormatISO)
}

// MarshalText encodes d as YYYY-MM-DD.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts YYYY-MM-DD.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, ok := isoDate(string(b))
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidDate, b)
	}
	*d = parsed
	return nil
}

// Render formats d. An unknown format falls back to ISO.
func Render(d Date, f DateFormat) string {
	switch f {
	case FormatCompact:
		return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
	case FormatDisplay:
		return fmt.Sprintf("%02d-%02d-%04d", d.Day, int(d.Month), d.Year)
	default:
		return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
	}
}

var (
	isoDateRe     = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	wrapperDateRe = regexp.MustCompile(`^/Date\((-?\d+)(?:[+-]\d{4})?\)/$`)
	dayFirstRe    = regexp.MustCompile(`^(\d{2})[-/](\d{2})[-/](\d{4})$`)
	dottedDateRe  = regexp.MustCompile(`^(\d{2})\.(\d{2})\.(\d{4})$`)
	eightDigitRe  = regexp.MustCompile(`^\d{8}$`)
	allDigitsRe   = regexp.MustCompile(`^\d+$`)
	fracSerialRe  = regexp.MustCompile(`^\d+\.\d+$`)
)

// genericLayouts is the last resort after the fixed shapes. Short numeric
// forms stay day-first like the fixed shapes above.
var genericLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
	"2/1/2006",
	"2-1-2006",
	"2.1.2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Mon Jan 2 2006",
}

// ParseDate resolves raw into a calendar Date.
//
// Precedence: empty, YYYY-MM-DD, /Date(ms)/, DD-MM-YYYY or DD/MM/YYYY,
// DD.MM.YYYY, 8 digits (DDMMYYYY when that reads as a real date, otherwise
// YYYYMMDD), any other digit run as a serial, a
// fractional serial, then the generic layouts.
func ParseDate(raw any) (Date, error) {
	switch v := raw.(type) {
	case nil:
		return Date{}, ErrEmptyDate
	case time.Time:
		if v.IsZero() {
			return Date{}, ErrEmptyDate
		}
		return DateOf(v), nil
	case Date:
		return v, nil
	case *Date:
		if v == nil {
			return Date{}, ErrEmptyDate
		}
		return *v, nil
	}

	if f, ok := numericValue(raw); ok {
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return Date{}, ErrInvalidDate
		}
		return serialDate(int64(math.Floor(f)))
	}

	s := strings.TrimSpace(cellString(raw))
	if s == "" {
		return Date{}, ErrEmptyDate
	}

	if d, ok := isoDate(s); ok {
		return d, nil
	}
	if isoDateRe.MatchString(s) {
		return Date{}, ErrInvalidDate
	}

	if m := wrapperDateRe.FindStringSubmatch(s); m != nil {
		ms, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return Date{}, ErrInvalidDate
		}
		return DateOf(time.UnixMilli(ms).UTC()), nil
	}

	if m := dayFirstRe.FindStringSubmatch(s); m != nil {
		return dateFromParts(m[3], m[2], m[1])
	}
	if m := dottedDateRe.FindStringSubmatch(s); m != nil {
		return dateFromParts(m[3], m[2], m[1])
	}

	if eightDigitRe.MatchString(s) {
		day, _ := strconv.Atoi(s[0:2])
		month, _ := strconv.Atoi(s[2:4])
		if day <= 31 && month <= 12 {
			if d, err := dateFromParts(s[4:8], s[2:4], s[0:2]); err == nil {
				return d, nil
			}
		}
		return dateFromParts(s[0:4], s[4:6], s[6:8])
	}

	if allDigitsRe.MatchString(s) {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Date{}, ErrInvalidDate
		}
		return serialDate(n)
	}

	// Date-time cells read raw carry the time of day as a fraction.
	if fracSerialRe.MatchString(s) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Date{}, ErrInvalidDate
		}
		return serialDate(int64(math.Floor(f)))
	}

	for _, layout := range genericLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}

	return Date{}, ErrInvalidDate
}

// DisplayDate renders raw as DD-MM-YYYY, or InvalidDateMarker when raw is
// empty or unparseable.
func DisplayDate(raw any) string {
	d, err := ParseDate(raw)
	if err != nil {
		return InvalidDateMarker
	}
	return Render(d, FormatDisplay)
}

// PayloadDate renders raw as YYYY-MM-DD, falling back to now's date when raw
// is empty or unparseable.
func PayloadDate(raw any, now time.Time) string {
	d, err := ParseDate(raw)
	if err != nil {
		return Render(DateOf(now), FormatISO)
	}
	return Render(d, FormatISO)
}

func serialDate(n int64) (Date, error) {
	if n > maxSerial {
		return Date{}, ErrInvalidDate
	}
	if n > 59 {
		n--
	}
	return DateOf(SerialEpoch.AddDate(0, 0, int(n))), nil
}

func isoDate(s string) (Date, bool) {
	m := isoDateRe.FindStringSubmatch(s)
	if m == nil {
		return Date{}, false
	}
	d, err := dateFromParts(m[1], m[2], m[3])
	return d, err == nil
}

// dateFromParts builds a Date and rejects components that roll over, such
// as 31-02 or month 13.
func dateFromParts(year, month, day string) (Date, error) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return Date{}, ErrInvalidDate
	}
	if m < 1 || m > 12 || d < 1 {
		return Date{}, ErrInvalidDate
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || int(t.Month()) != m {
		return Date{}, ErrInvalidDate
	}
	return Date{Year: y, Month: time.Month(m), Day: d}, nil
}
