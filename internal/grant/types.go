// Package grant defines the domain types shared across the discovery pipeline.
package grant

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Status is the lifecycle state of a funding opportunity.
type Status string

// Status values assigned by the resolver.
const (
	StatusOpen        Status = "open"
	StatusClosed      Status = "closed"
	StatusForthcoming Status = "forthcoming"
	StatusUnknown     Status = "unknown"
)

// ParseStatus maps a scraped label onto a Status. "upcoming" is an alias for forthcoming.
func ParseStatus(label string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "open":
		return StatusOpen, true
	case "closed":
		return StatusClosed, true
	case "upcoming", "forthcoming":
		return StatusForthcoming, true
	case "unknown":
		return StatusUnknown, true
	default:
		return "", false
	}
}

// StatusFilter is the status query value understood by the listing pages.
type StatusFilter string

// Listing filters in crawl order.
const (
	FilterOpen     StatusFilter = "open"
	FilterClosed   StatusFilter = "closed"
	FilterUpcoming StatusFilter = "upcoming"
)

// ParseScope expands a scope selector into the listing filters it covers.
// "active" covers open and upcoming calls, "all" covers every filter.
func ParseScope(scope string) ([]StatusFilter, error) {
	switch strings.ToLower(strings.TrimSpace(scope)) {
	case "open":
		return []StatusFilter{FilterOpen}, nil
	case "closed":
		return []StatusFilter{FilterClosed}, nil
	case "upcoming", "forthcoming":
		return []StatusFilter{FilterUpcoming}, nil
	case "", "active":
		return []StatusFilter{FilterOpen, FilterUpcoming}, nil
	case "all":
		return []StatusFilter{FilterOpen, FilterClosed, FilterUpcoming}, nil
	default:
		return nil, fmt.Errorf("unknown status scope %q", scope)
	}
}

// CandidateURL is a detail page found while paginating a listing.
type CandidateURL struct {
	URL          string       `json:"url"`
	StatusFilter StatusFilter `json:"status_filter"`
}

// Document is a supporting file linked from a detail page.
type Document struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Type  string `json:"type"`
}

// PageSections is the heading-classified content of one detail page.
type PageSections struct {
	Description string  `json:"description,omitempty"`
	About       string  `json:"about,omitempty"`
	Eligibility string  `json:"eligibility,omitempty"`
	Funding     TextMap `json:"funding,omitempty"`
	HowToApply  string  `json:"how_to_apply,omitempty"`
	KeyDates    string  `json:"key_dates,omitempty"`
	CountryInfo TextMap `json:"country_info,omitempty"`
}

// RawCapture is the unstructured result of fetching and extracting one detail page.
type RawCapture struct {
	URL          string
	Title        string
	ScrapedAt    time.Time
	Sections     PageSections
	FundingInfo  string
	FundingText  string
	CountryList  []string
	Documents    []Document
	Breadcrumbs  []string
	StatusLabel  string
	OpenDate     *time.Time
	CloseDate    *time.Time
	Supplemental bool
}

// Programme identifies the funding track an opportunity belongs to.
type Programme struct {
	Name   string `json:"name"`
	Funder string `json:"funder"`
	Code   string `json:"code"`
}

// Processing records when and how a grant was produced.
type Processing struct {
	ScrapedAt         time.Time `json:"scraped_at"`
	NormalizedAt      time.Time `json:"normalized_at"`
	SchemaVersion     string    `json:"schema_version"`
	NormalizerVersion string    `json:"normalizer_version"`
}

// NormalizedGrant is the canonical multi-section record for one opportunity.
type NormalizedGrant struct {
	GrantID        string         `json:"grant_id"`
	Source         string         `json:"source"`
	Title          string         `json:"title"`
	URL            string         `json:"url"`
	Status         Status         `json:"status"`
	Programme      Programme      `json:"programme"`
	IsSupplemental bool           `json:"is_supplemental"`
	Summary        Summary        `json:"summary"`
	Eligibility    Eligibility    `json:"eligibility"`
	Scope          Scope          `json:"scope"`
	Dates          Dates          `json:"dates"`
	Funding        Funding        `json:"funding"`
	HowToApply     HowToApply     `json:"how_to_apply"`
	Assessment     Assessment     `json:"assessment"`
	SupportingInfo SupportingInfo `json:"supporting_info"`
	Contacts       Contacts       `json:"contacts"`
	Tags           []string       `json:"tags"`
	Processing     Processing     `json:"processing"`
}

// IsActive reports whether the opportunity is open or about to open.
func (g NormalizedGrant) IsActive() bool {
	return g.Status == StatusOpen || g.Status == StatusForthcoming
}

// StoredGrant is a NormalizedGrant plus the bookkeeping a store keeps for it.
type StoredGrant struct {
	Grant       NormalizedGrant `json:"grant"`
	ContentHash string          `json:"content_hash"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// UpsertResult reports what an upsert did.
type UpsertResult struct {
	Inserted bool
	Changed  bool
}

// DiscoveryEvent announces a newly ingested opportunity.
type DiscoveryEvent struct {
	Type         string     `json:"type"`
	RunID        string     `json:"run_id"`
	GrantID      string     `json:"grant_id"`
	Source       string     `json:"source"`
	Title        string     `json:"title"`
	URL          string     `json:"url"`
	Status       Status     `json:"status"`
	Programme    string     `json:"programme"`
	ClosesAt     *time.Time `json:"closes_at"`
	DiscoveredAt time.Time  `json:"discovered_at"`
}

// EventGrantDiscovered is the DiscoveryEvent type for new grants.
const EventGrantDiscovered = "grant.discovered"

// SyncSummary is the outcome of one discovery run.
type SyncSummary struct {
	RunID      string     `json:"run_id"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	Scope      string     `json:"scope"`
	DryRun     bool       `json:"dry_run"`
	AutoIngest bool       `json:"auto_ingest"`
	Found      int        `json:"found"`
	New        int        `json:"new"`
	Ingested   int        `json:"ingested"`
	Failed     int        `json:"failed"`
	NewGrants  []GrantRef `json:"new_grants"`
	Failures   []Failure  `json:"failures"`
	Artifacts  []string   `json:"artifacts,omitempty"`
}

// GrantRef is the short form of a grant used in run summaries.
type GrantRef struct {
	GrantID   string `json:"grant_id"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Status    Status `json:"status"`
	Programme string `json:"programme"`
}

// Failure records one opportunity that could not be processed.
type Failure struct {
	URL     string `json:"url"`
	GrantID string `json:"grant_id,omitempty"`
	Stage   Stage  `json:"stage"`
	Error   string `json:"error"`
}

// FetchRequest describes a single page fetch.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
