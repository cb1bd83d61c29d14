// Package crawler paginates the programmes-and-calls listing and collects the
// detail pages of individual opportunities.
package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// Defaults for the Eureka Network listing.
const (
	DefaultBaseURL     = "https://www.eurekanetwork.org"
	DefaultListingPath = "/programmes-and-calls/"
	DefaultMaxPages    = 50
	paginationMarker   = "/page/"
	minPathSegments    = 2
)

// DefaultExcludedPaths are programme overview pages that list calls rather
// than describe one.
var DefaultExcludedPaths = []string{
	"/programmes-and-calls",
	"/programmes-and-calls/eurostars",
	"/programmes-and-calls/innowwide",
	"/programmes-and-calls/eureka-clusters",
	"/programmes-and-calls/network-projects",
	"/programmes-and-calls/globalstars",
	"/programmes-and-calls/fast-track-to-the-eic-accelerator",
	"/programmes-and-calls/investment-readiness",
}

// DefaultNextMarkers are anchor texts that indicate another listing page.
var DefaultNextMarkers = []string{"Next", "→"}

// Config captures the listing layout and pagination limits.
type Config struct {
	BaseURL       string
	ListingPath   string
	ExcludedPaths []string
	NextMarkers   []string
	MaxPages      int
}

// DefaultConfig returns the configuration for the live site.
func DefaultConfig() Config {
	return Config{
		BaseURL:       DefaultBaseURL,
		ListingPath:   DefaultListingPath,
		ExcludedPaths: append([]string(nil), DefaultExcludedPaths...),
		NextMarkers:   append([]string(nil), DefaultNextMarkers...),
		MaxPages:      DefaultMaxPages,
	}
}

// Validate checks for obviously bad configuration.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("crawler.base_url must be an absolute URL, got %q", c.BaseURL)
	}
	if !strings.HasPrefix(c.ListingPath, "/") {
		return fmt.Errorf("crawler.listing_path must start with /, got %q", c.ListingPath)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("crawler.max_pages must be > 0")
	}
	return nil
}
