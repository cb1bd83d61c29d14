// Package resolve derives the stable identity, programme and lifecycle status
// of an opportunity from its URL, breadcrumbs, scraped label and dates.
package resolve

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/JakeFAU/grant-discovery/internal/grant"
)

// Funder is the body behind every programme on the source site.
const Funder = "Eureka Network"

// Basis names the signal a status was resolved from.
type Basis string

// Status resolution bases, in precedence order.
const (
	BasisLabel     Basis = "label"
	BasisCloseDate Basis = "close_date"
	BasisOpenDate  Basis = "open_date"
	BasisDefault   Basis = "default"
)

var slugDisallowed = regexp.MustCompile(`[^a-z0-9-]`)

type programmeMarker struct {
	segment string
	name    string
}

var programmeMarkers = []programmeMarker{
	{"network-projects", "Network Projects"},
	{"eurostars", "Eurostars"},
	{"globalstars", "Globalstars"},
	{"eureka-clusters", "Eureka Clusters"},
	{"innowwide", "Innowwide"},
}

var genericCrumbs = map[string]struct{}{
	"home":                 {},
	"programmes and calls": {},
}

// Slug returns the last non-empty path segment of rawURL, lower-cased and
// restricted to [a-z0-9-].
func Slug(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	}
	segments := strings.Split(strings.Trim(p, "/"), "/")
	last := segments[len(segments)-1]
	return slugDisallowed.ReplaceAllString(strings.ToLower(last), "")
}

// GrantID is the deterministic identifier of the opportunity at rawURL.
func GrantID(source, rawURL string) string {
	return source + "_" + Slug(rawURL)
}

// Programme identifies the funding track from URL markers, falling back to the
// first specific breadcrumb.
func Programme(rawURL string, breadcrumbs []string) grant.Programme {
	return grant.Programme{
		Name:   programmeName(rawURL, breadcrumbs),
		Funder: Funder,
		Code:   Slug(rawURL),
	}
}

func programmeName(rawURL string, breadcrumbs []string) string {
	for _, m := range programmeMarkers {
		if strings.Contains(rawURL, "/"+m.segment+"/") {
			return m.name
		}
	}
	for _, crumb := range breadcrumbs {
		crumb = strings.TrimSpace(crumb)
		if crumb == "" {
			continue
		}
		if _, generic := genericCrumbs[strings.ToLower(crumb)]; generic {
			continue
		}
		return crumb
	}
	return ""
}

// Status classifies an opportunity. An explicit label wins, then a past close
// date, then a future open date; otherwise fallback is returned.
func Status(label string, open, closing *time.Time, now time.Time, fallback grant.Status) (grant.Status, Basis) {
	if s, ok := grant.ParseStatus(label); ok && s != grant.StatusUnknown {
		return s, BasisLabel
	}
	if closing != nil && closing.Before(now) {
		return grant.StatusClosed, BasisCloseDate
	}
	if open != nil && open.After(now) {
		return grant.StatusForthcoming, BasisOpenDate
	}
	return fallback, BasisDefault
}

// ParseDefault validates a configured fallback status. Only open and unknown
// are meaningful when no signal exists.
func ParseDefault(value string) (grant.Status, error) {
	s, ok := grant.ParseStatus(value)
	if !ok || (s != grant.StatusOpen && s != grant.StatusUnknown) {
		return "", fmt.Errorf("default status must be open or unknown, got %q", value)
	}
	return s, nil
}
