package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/grant-discovery/internal/grant"
	"github.com/JakeFAU/grant-discovery/internal/metrics"
)

var pagedPattern = regexp.MustCompile(`paged=(\d+)`)

// Crawler enumerates opportunity URLs one listing page at a time.
type Crawler struct {
	cfg     Config
	base    *url.URL
	filter  pathFilter
	fetcher grant.Fetcher
	logger  *zap.Logger
}

// New constructs a Crawler. A nil logger disables logging.
func New(cfg Config, fetcher grant.Fetcher, logger *zap.Logger) (*Crawler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if fetcher == nil {
		return nil, fmt.Errorf("crawler: fetcher is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(cfg.NextMarkers) == 0 {
		cfg.NextMarkers = DefaultNextMarkers
	}
	base, _ := url.Parse(cfg.BaseURL)
	return &Crawler{
		cfg:     cfg,
		base:    base,
		filter:  newPathFilter(cfg.ExcludedPaths),
		fetcher: fetcher,
		logger:  logger,
	}, nil
}

// ListingURL returns the address of one listing page.
func (c *Crawler) ListingURL(filter grant.StatusFilter, page int) string {
	return fmt.Sprintf("%s%s?status=%s&paged=%d",
		strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.ListingPath, url.QueryEscape(string(filter)), page)
}

// Discover returns the unique detail URLs listed under filter, in the order
// they were first seen. A listing fetch failure ends pagination for the filter
// without an error; only context cancellation is returned.
func (c *Crawler) Discover(ctx context.Context, filter grant.StatusFilter) ([]grant.CandidateURL, error) {
	return c.discover(ctx, filter, make(map[string]struct{}))
}

// DiscoverAll runs Discover for each filter in turn, sharing one dedupe set so
// a URL is reported once under the first filter that lists it.
func (c *Crawler) DiscoverAll(ctx context.Context, filters []grant.StatusFilter) ([]grant.CandidateURL, error) {
	seen := make(map[string]struct{})
	var out []grant.CandidateURL
	for _, f := range filters {
		found, err := c.discover(ctx, f, seen)
		out = append(out, found...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

func (c *Crawler) discover(ctx context.Context, filter grant.StatusFilter, seen map[string]struct{}) ([]grant.CandidateURL, error) {
	var out []grant.CandidateURL
	for page := 1; page <= c.cfg.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		listing := c.ListingURL(filter, page)
		doc, err := c.fetchListing(ctx, listing)
		metrics.ObserveListingPage(string(filter), err)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return out, ctxErr
			}
			c.logger.Warn("listing fetch failed, ending filter",
				zap.String("filter", string(filter)),
				zap.Int("page", page),
				zap.String("url", listing),
				zap.Error(err),
			)
			return out, nil
		}

		found, more := c.scanListing(doc, page, seen)
		for _, u := range found {
			out = append(out, grant.CandidateURL{URL: u, StatusFilter: filter})
			metrics.ObserveCandidate(string(filter))
		}
		c.logger.Info("listing page scanned",
			zap.String("filter", string(filter)),
			zap.Int("page", page),
			zap.Int("found", len(found)),
			zap.Bool("more", more),
		)
		if !more {
			return out, nil
		}
	}
	c.logger.Warn("listing page cap reached",
		zap.String("filter", string(filter)),
		zap.Int("max_pages", c.cfg.MaxPages),
	)
	return out, nil
}

func (c *Crawler) fetchListing(ctx context.Context, listing string) (*goquery.Document, error) {
	resp, err := c.fetcher.Fetch(ctx, grant.FetchRequest{URL: listing})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, &grant.FetchError{URL: listing, StatusCode: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, fmt.Errorf("parse listing %s: %w", listing, err)
	}
	return doc, nil
}

// scanListing collects new detail URLs from one page and reports whether
// another page should be fetched.
func (c *Crawler) scanListing(doc *goquery.Document, page int, seen map[string]struct{}) ([]string, bool) {
	var (
		found     []string
		hasNext   bool
		watermark = page
	)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")

		if m := pagedPattern.FindStringSubmatch(href); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > watermark {
				watermark = n
			}
		}
		text := strings.TrimSpace(a.Text())
		for _, marker := range c.cfg.NextMarkers {
			if strings.Contains(text, marker) {
				hasNext = true
				break
			}
		}

		if !strings.Contains(href, c.cfg.ListingPath) {
			return
		}
		u, err := NormalizeURL(c.base, href)
		if err != nil || !strings.EqualFold(u.Host, c.base.Host) || !c.filter.Allowed(u) {
			return
		}
		key := u.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		found = append(found, key)
	})
	return found, hasNext || page < watermark
}
