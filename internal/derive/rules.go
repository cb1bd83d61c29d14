// Package derive turns free page text into typed values.
//
// Every exported function is total: text without a recognisable value yields a
// nil or empty result, never an error or a zero amount. Regex cascades are
// declared as ordered rule tables so that precedence is data, not control flow.
package derive

import (
	"regexp"
	"sort"
)

// Rule is one entry of an ordered cascade. Transform receives the submatches of
// Pattern and reports whether it produced a value; a rejected match lets the
// cascade fall through to the next rule.
type Rule[T any] struct {
	Name      string
	Pattern   *regexp.Regexp
	Field     string
	Priority  int
	Transform func(match []string) (T, bool)
}

// Table is a priority-ordered rule cascade.
type Table[T any] struct {
	rules []Rule[T]
}

// NewTable sorts rules by ascending priority, keeping declaration order for ties.
func NewTable[T any](rules ...Rule[T]) Table[T] {
	sorted := append([]Rule[T](nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return Table[T]{rules: sorted}
}

// Rules returns the cascade in evaluation order.
func (t Table[T]) Rules() []Rule[T] {
	return append([]Rule[T](nil), t.rules...)
}

// First returns the value of the first rule whose leftmost match is accepted.
func (t Table[T]) First(text string) (T, Rule[T], bool) {
	for _, rule := range t.rules {
		match := rule.Pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		if v, ok := rule.Transform(match); ok {
			return v, rule, true
		}
	}
	var zero T
	return zero, Rule[T]{}, false
}

// FirstPerField walks every match of every rule in order and keeps the first
// accepted value for each Field.
func (t Table[T]) FirstPerField(text string) map[string]T {
	out := make(map[string]T)
	for _, rule := range t.rules {
		if _, done := out[rule.Field]; done {
			continue
		}
		for _, match := range rule.Pattern.FindAllStringSubmatch(text, -1) {
			if v, ok := rule.Transform(match); ok {
				out[rule.Field] = v
				break
			}
		}
	}
	return out
}

// label pairs a pattern with the canonical label it contributes.
type label struct {
	pattern *regexp.Regexp
	name    string
}

// matchLabels returns each label whose pattern matches text, once, in table order.
func matchLabels(labels []label, text string) []string {
	out := []string{}
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		if _, ok := seen[l.name]; ok {
			continue
		}
		if l.pattern.MatchString(text) {
			seen[l.name] = struct{}{}
			out = append(out, l.name)
		}
	}
	return out
}
