package currency

import (
	"strings"
	"time"
)

// dateLayouts lists the accepted input formats, tried in order. Numeric
// slash/dash forms are read month-first; the day-first variants after them
// only match when the first component cannot be a month (e.g. 25/12/2023).
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"02/01/2006",
	"02-01-2006",
	"02.01.2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	time.RFC3339,
}

// NormalizeDate parses a date string in any of the accepted formats and
// returns it as YYYY-MM-DD.
func NormalizeDate(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", &InvalidDateError{Input: s}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", &InvalidDateError{Input: s}
}
