package query

import (
	"math"
	"strings"
	"time"

	"sessionlog/internal/models"
)

// Layouts carrying an explicit zone or offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	"Mon Jan 02 2006 15:04:05 GMT-0700",
}

// Layouts without a zone are read as UTC.
var naiveLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01",
	"2006",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2 2006",
}

// ParseDate parses the loose date strings clients send as filter bounds and
// session dates. The returned time is UTC with millisecond precision.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.Timestamp(t), true
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return models.Timestamp(t), true
		}
	}
	return time.Time{}, false
}

// CoerceDate converts a JSON-decoded session date into a timestamp. Strings are
// parsed leniently and numbers are read as Unix milliseconds. Anything else,
// including an unparseable string, yields nil so the stored value is null.
func CoerceDate(v any) any {
	switch value := v.(type) {
	case time.Time:
		return models.Timestamp(value)
	case string:
		if t, ok := ParseDate(value); ok {
			return t
		}
	case float64:
		if math.IsNaN(value) || math.Abs(value) > maxDateMillis {
			return nil
		}
		return models.Timestamp(time.UnixMilli(int64(value)))
	case int64:
		return coerceMillis(value)
	case int:
		return coerceMillis(int64(value))
	}
	return nil
}

// maxDateMillis is the largest distance from the epoch a JavaScript Date can
// represent (100,000,000 days).
const maxDateMillis = 8.64e15

func coerceMillis(ms int64) any {
	if ms > int64(maxDateMillis) || ms < -int64(maxDateMillis) {
		return nil
	}
	return models.Timestamp(time.UnixMilli(ms))
}
