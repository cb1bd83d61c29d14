package derive

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

const (
	fieldOpen  = "open"
	fieldClose = "close"

	dayMonthYear = `(\d{1,2} [A-Za-z]+ \d{4})`
	monthDayYear = `([A-Za-z]+ \d{1,2},? \d{4})`
	isoDate      = `(\d{4}-\d{2}-\d{2})`
)

var strictDateLayouts = []string{
	"2 January 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"January 2 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2006-01-02",
}

var dateTable = func() Table[time.Time] {
	specs := []struct {
		label string
		form  string
		field string
	}{
		{`Submission deadline`, dayMonthYear, fieldClose},
		{`deadline`, dayMonthYear, fieldClose},
		{`Closing date`, dayMonthYear, fieldClose},
		{`Closes?`, dayMonthYear, fieldClose},
		{`Final submission`, dayMonthYear, fieldClose},
		{`End date`, dayMonthYear, fieldClose},
		{`Submission deadline`, monthDayYear, fieldClose},
		{`deadline`, monthDayYear, fieldClose},
		{`Closes?`, monthDayYear, fieldClose},
		{`deadline`, isoDate, fieldClose},
		{`Closes?`, isoDate, fieldClose},
		{`Apply from`, dayMonthYear, fieldOpen},
		{`Opens?`, dayMonthYear, fieldOpen},
		{`Opening date`, dayMonthYear, fieldOpen},
		{`Start date`, dayMonthYear, fieldOpen},
		{`Applications? open`, dayMonthYear, fieldOpen},
		{`Apply from`, monthDayYear, fieldOpen},
		{`Opens?`, monthDayYear, fieldOpen},
		{`Opens?`, isoDate, fieldOpen},
		{`Start`, isoDate, fieldOpen},
	}
	rules := make([]Rule[time.Time], 0, len(specs))
	for i, s := range specs {
		rules = append(rules, Rule[time.Time]{
			Name:      s.field + ": " + s.label,
			Pattern:   regexp.MustCompile(`(?i)` + s.label + `[:\s]+` + s.form),
			Field:     s.field,
			Priority:  i,
			Transform: func(m []string) (time.Time, bool) { return ParseDate(m[1]) },
		})
	}
	return NewTable(rules...)
}()

// OpenClose scans page text for labelled open and close dates. The first
// parseable match of each kind wins.
func OpenClose(text string) (open, closing *time.Time) {
	found := dateTable.FirstPerField(text)
	if v, ok := found[fieldOpen]; ok {
		open = &v
	}
	if v, ok := found[fieldClose]; ok {
		closing = &v
	}
	return open, closing
}

// ParseDate parses a date strictly against known layouts, then leniently.
// The result is midnight UTC.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range strictDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return midnight(t), true
		}
	}
	t, err := dateparse.ParseIn(raw, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return midnight(t), true
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
