package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeURL resolves href against base and strips the query string,
// fragment and trailing slashes.
func NormalizeURL(base *url.URL, href string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, fmt.Errorf("parse href: %w", err)
	}
	u := base.ResolveReference(ref)
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u, nil
}

// pathFilter rejects URLs that cannot be individual opportunities.
type pathFilter struct {
	excluded map[string]struct{}
}

func newPathFilter(paths []string) pathFilter {
	f := pathFilter{excluded: make(map[string]struct{}, len(paths))}
	for _, p := range paths {
		f.excluded[strings.TrimRight(strings.TrimSpace(p), "/")] = struct{}{}
	}
	return f
}

// Allowed reports whether u may be an opportunity detail page.
func (f pathFilter) Allowed(u *url.URL) bool {
	if _, excluded := f.excluded[u.Path]; excluded {
		return false
	}
	if strings.Contains(u.Path, paginationMarker) {
		return false
	}
	segments := 0
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments++
		}
	}
	return segments >= minPathSegments
}
