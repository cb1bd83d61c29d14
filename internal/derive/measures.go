package derive

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultDeadlineZone is assumed when a deadline time carries no zone.
const DefaultDeadlineZone = "CET"

// TRL is a Technology Readiness Level requirement. Max is nil for open-ended
// requirements such as "TRL 6+".
type TRL struct {
	Min  int
	Max  *int
	Text string
}

// Duration is a project length in months.
type Duration struct {
	MinMonths *int
	MaxMonths *int
	Text      string
}

var trlTable = NewTable(
	Rule[TRL]{
		Name:     "range",
		Pattern:  regexp.MustCompile(`trl\s*(?:level\s*)?(\d)\s*[-–to]+\s*(?:trl\s*(?:level\s*)?)?(\d)`),
		Field:    "trl",
		Priority: 0,
		Transform: func(m []string) (TRL, bool) {
			lo, _ := strconv.Atoi(m[1])
			hi, _ := strconv.Atoi(m[2])
			return TRL{Min: lo, Max: &hi, Text: fmt.Sprintf("TRL %d-%d", lo, hi)}, true
		},
	},
	Rule[TRL]{
		Name:     "single",
		Pattern:  regexp.MustCompile(`trl\s*(?:level\s*)?(\d)`),
		Field:    "trl",
		Priority: 1,
		Transform: func(m []string) (TRL, bool) {
			lo, _ := strconv.Atoi(m[1])
			return TRL{Min: lo, Text: fmt.Sprintf("TRL %d+", lo)}, true
		},
	},
)

var durationTable = NewTable(
	Rule[Duration]{
		Name:     "range",
		Pattern:  regexp.MustCompile(`(\d+)\s*(?:to|-)\s*(\d+)\s*months?`),
		Field:    "duration",
		Priority: 0,
		Transform: func(m []string) (Duration, bool) {
			lo, err1 := strconv.Atoi(m[1])
			hi, err2 := strconv.Atoi(m[2])
			if err1 != nil || err2 != nil {
				return Duration{}, false
			}
			return Duration{MinMonths: &lo, MaxMonths: &hi, Text: fmt.Sprintf("%d-%d months", lo, hi)}, true
		},
	},
	Rule[Duration]{
		Name:     "ceiling",
		Pattern:  regexp.MustCompile(`(?:up to|maximum|max)\s*(\d+)\s*months?`),
		Field:    "duration",
		Priority: 1,
		Transform: func(m []string) (Duration, bool) {
			hi, err := strconv.Atoi(m[1])
			if err != nil {
				return Duration{}, false
			}
			return Duration{MaxMonths: &hi, Text: fmt.Sprintf("up to %d months", hi)}, true
		},
	},
	Rule[Duration]{
		Name:     "single",
		Pattern:  regexp.MustCompile(`(\d+)\s*months?`),
		Field:    "duration",
		Priority: 2,
		Transform: func(m []string) (Duration, bool) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return Duration{}, false
			}
			lo, hi := n, n
			return Duration{MinMonths: &lo, MaxMonths: &hi, Text: fmt.Sprintf("%d months", n)}, true
		},
	},
)

var deadlineTimePattern = regexp.MustCompile(`(\d{1,2}:\d{2})\s*(CET|CEST|GMT|UTC)?`)

// TechnologyReadiness derives a TRL requirement. A range mention takes
// precedence over a single level.
func TechnologyReadiness(text string) *TRL {
	v, _, ok := trlTable.First(strings.ToLower(text))
	if !ok {
		return nil
	}
	return &v
}

// ProjectDuration derives the expected project length.
func ProjectDuration(text string) *Duration {
	v, _, ok := durationTable.First(strings.ToLower(text))
	if !ok {
		return nil
	}
	return &v
}

// DeadlineTime returns the first clock time in text, e.g. "17:00 CET".
func DeadlineTime(text string) string {
	m := deadlineTimePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	zone := m[2]
	if zone == "" {
		zone = DefaultDeadlineZone
	}
	return m[1] + " " + zone
}
