package derive

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// CADToEUR is the fixed rate used to express Canadian-dollar grants in euro.
const CADToEUR = 0.68

// CurrencyEUR is the currency of every derived amount.
const CurrencyEUR = "EUR"

// minSpecificDigits rejects small numbers that are not plausible pot sizes.
const minSpecificDigits = 4

// Amount is a derived total funding figure.
type Amount struct {
	Value    int64
	Currency string
	Display  string
}

// PerProject is a derived per-project funding ceiling. MaxCAD is set when the
// source figure was in Canadian dollars; Max then holds the euro equivalent.
type PerProject struct {
	Max     int64
	MaxCAD  *int64
	Display string
}

var totalTable = NewTable(
	millionRule(0, `(?i)(\d+(?:[.,]\d+)?)\s*million\s*euro`),
	millionRule(1, `(?i)€\s*(\d+(?:[.,]\d+)?)\s*million`),
	millionRule(2, `(?i)(\d+(?:[.,]\d+)?)\s*m(?:illion)?\s*(?:euro|€|eur)`),
	millionRule(3, `(?i)budget.*?(\d+(?:[.,]\d+)?)\s*million`),
	specificRule(4, `(?i)€\s*([\d,]+)\s*(?:euro)?`),
	specificRule(5, `(?i)([\d,]+)\s*euro`),
)

func millionRule(priority int, pattern string) Rule[Amount] {
	return Rule[Amount]{
		Name:     "total million",
		Pattern:  regexp.MustCompile(pattern),
		Field:    "total_amount",
		Priority: priority,
		Transform: func(m []string) (Amount, bool) {
			figure := strings.ReplaceAll(m[1], ",", ".")
			f, err := strconv.ParseFloat(figure, 64)
			if err != nil {
				return Amount{}, false
			}
			return Amount{
				Value:    int64(math.Round(f * 1_000_000)),
				Currency: CurrencyEUR,
				Display:  "€" + figure + " million",
			}, true
		},
	}
}

func specificRule(priority int, pattern string) Rule[Amount] {
	return Rule[Amount]{
		Name:     "total specific",
		Pattern:  regexp.MustCompile(pattern),
		Field:    "total_amount",
		Priority: priority,
		Transform: func(m []string) (Amount, bool) {
			digits := strings.ReplaceAll(m[1], ",", "")
			if len(digits) < minSpecificDigits {
				return Amount{}, false
			}
			v, err := strconv.ParseInt(digits, 10, 64)
			if err != nil {
				return Amount{}, false
			}
			return Amount{Value: v, Currency: CurrencyEUR, Display: "€" + FormatThousands(v)}, true
		},
	}
}

var perProjectTable = NewTable(
	euroCeilingRule(0, "maximum", `(?i)maximum.*?€?\s*([\d,]+)\s*(?:euro|€)`),
	euroCeilingRule(1, "up to", `(?i)up to €?\s*([\d,]+)\s*(?:euro|€)?\s*(?:per|each|for)`),
	euroCeilingRule(2, "per project", `(?i)€\s*([\d,]+)\s*(?:per project|each project|per market feasibility)`),
	euroCeilingRule(3, "fixed grant", `(?i)fixed grant of €?\s*([\d,]+)`),
	euroCeilingRule(4, "funding of", `(?i)funding.*?€\s*([\d,]+)`),
	Rule[PerProject]{
		Name:     "canadian dollars",
		Pattern:  regexp.MustCompile(`(?i)([\d,]+)\s*Canadian dollars`),
		Field:    "per_project_max",
		Priority: 5,
		Transform: func(m []string) (PerProject, bool) {
			cad, ok := parseDigits(m[1])
			if !ok {
				return PerProject{}, false
			}
			eur := int64(float64(cad) * CADToEUR)
			return PerProject{
				Max:     eur,
				MaxCAD:  &cad,
				Display: "up to $" + FormatThousands(cad) + " CAD (≈€" + FormatThousands(eur) + ")",
			}, true
		},
	},
)

func euroCeilingRule(priority int, name, pattern string) Rule[PerProject] {
	return Rule[PerProject]{
		Name:     name,
		Pattern:  regexp.MustCompile(pattern),
		Field:    "per_project_max",
		Priority: priority,
		Transform: func(m []string) (PerProject, bool) {
			v, ok := parseDigits(m[1])
			if !ok {
				return PerProject{}, false
			}
			return PerProject{Max: v, Display: "up to €" + FormatThousands(v)}, true
		},
	}
}

var fundingMentionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)grants of ([\d,]+\s*euro)`),
	regexp.MustCompile(`(?i)up to ([€$£]\s*[\d,]+(?:\s*(?:million|k|thousand))?)`),
	regexp.MustCompile(`(?i)maximum of ([€$£]?\s*[\d,]+(?:\s*(?:Canadian dollars|euro|EUR|CAD|dollars))?)`),
	regexp.MustCompile(`(?i)([€$£]\s*[\d,]+(?:\s*(?:million|k|thousand))?)\s+(?:available|funding)`),
	regexp.MustCompile(`(?i)([\d,]+\s*(?:euro|EUR|dollars|CAD))`),
}

// TotalAmount derives the overall funding pot. Million-scale figures take
// precedence over specific amounts.
func TotalAmount(text string) *Amount {
	v, _, ok := totalTable.First(text)
	if !ok {
		return nil
	}
	return &v
}

// PerProjectAmount derives the per-project funding ceiling.
func PerProjectAmount(text string) *PerProject {
	v, _, ok := perProjectTable.First(text)
	if !ok {
		return nil
	}
	return &v
}

// FundingMention returns the first phrase in text that names a funding figure.
func FundingMention(text string) string {
	for _, p := range fundingMentionPatterns {
		if m := p.FindString(text); m != "" {
			return m
		}
	}
	return ""
}

// FormatThousands renders n with comma thousands separators.
// A message.Printer is not safe for concurrent use, so each call gets its own.
func FormatThousands(n int64) string {
	return message.NewPrinter(language.English).Sprintf("%d", n)
}

func parseDigits(raw string) (int64, bool) {
	digits := strings.ReplaceAll(raw, ",", "")
	if digits == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
