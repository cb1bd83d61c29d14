package normalize

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/JakeFAU/grant-discovery/internal/derive"
	"github.com/JakeFAU/grant-discovery/internal/extract"
	"github.com/JakeFAU/grant-discovery/internal/grant"
	"github.com/JakeFAU/grant-discovery/internal/resolve"
)

const snapshotDateLayout = "2006-01-02"

// SnapshotRecord is one entry of the snapshot file handed to downstream
// ingestion. Its shape is stable across normalizer versions.
type SnapshotRecord struct {
	ID             string       `json:"id"`
	Source         string       `json:"source"`
	Title          string       `json:"title"`
	URL            string       `json:"url"`
	Status         grant.Status `json:"status"`
	Programme      string       `json:"programme"`
	CallID         string       `json:"call_id"`
	OpenDate       *string      `json:"open_date"`
	CloseDate      *string      `json:"close_date"`
	IsSupplemental bool         `json:"is_supplemental"`
	Raw            SnapshotRaw  `json:"raw"`
}

// SnapshotRaw carries the extracted page content.
type SnapshotRaw struct {
	URL         string             `json:"url"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	FundingInfo string             `json:"funding_info"`
	ScrapedAt   time.Time          `json:"scraped_at"`
	Sections    grant.PageSections `json:"sections"`
	Metadata    SnapshotMetadata   `json:"metadata"`
}

// SnapshotMetadata holds capture fields that are not sections.
type SnapshotMetadata struct {
	Description    []string         `json:"description"`
	FundingInfo    []string         `json:"funding_info"`
	IsSupplemental bool             `json:"is_supplemental"`
	// StatusLabel is always written. Snapshots without it predate the field
	// and carry their label in the record's top-level status.
	StatusLabel    *string          `json:"status_label"`
	Breadcrumbs    []string         `json:"breadcrumbs,omitempty"`
	Documents      []grant.Document `json:"documents,omitempty"`
}

// SnapshotFromCapture builds the snapshot entry for a capture and the grant
// normalized from it.
func SnapshotFromCapture(c grant.RawCapture, g grant.NormalizedGrant) SnapshotRecord {
	label := c.StatusLabel
	meta := SnapshotMetadata{
		Description:    []string{},
		FundingInfo:    []string{},
		IsSupplemental: c.Supplemental,
		StatusLabel:    &label,
		Breadcrumbs:    c.Breadcrumbs,
		Documents:      c.Documents,
	}
	if c.Sections.Description != "" {
		meta.Description = append(meta.Description, c.Sections.Description)
	}
	if c.FundingInfo != "" {
		meta.FundingInfo = append(meta.FundingInfo, c.FundingInfo)
	}
	return SnapshotRecord{
		ID:             g.GrantID,
		Source:         g.Source,
		Title:          c.Title,
		URL:            c.URL,
		Status:         g.Status,
		Programme:      g.Programme.Name,
		CallID:         resolve.Slug(c.URL),
		OpenDate:       formatDate(c.OpenDate),
		CloseDate:      formatDate(c.CloseDate),
		IsSupplemental: c.Supplemental,
		Raw: SnapshotRaw{
			URL:         c.URL,
			Title:       c.Title,
			Description: c.Sections.Description,
			FundingInfo: c.FundingInfo,
			ScrapedAt:   c.ScrapedAt,
			Sections:    c.Sections,
			Metadata:    meta,
		},
	}
}

// Capture rebuilds the RawCapture a record was written from. Derived lists
// are recomputed from the stored sections.
func (r SnapshotRecord) Capture() (grant.RawCapture, error) {
	open, err := parseDate(r.OpenDate)
	if err != nil {
		return grant.RawCapture{}, fmt.Errorf("record %s open_date: %w", r.ID, err)
	}
	closing, err := parseDate(r.CloseDate)
	if err != nil {
		return grant.RawCapture{}, fmt.Errorf("record %s close_date: %w", r.ID, err)
	}
	url := r.URL
	if url == "" {
		url = r.Raw.URL
	}
	title := r.Title
	if title == "" {
		title = r.Raw.Title
	}
	label := string(r.Status)
	if r.Raw.Metadata.StatusLabel != nil {
		label = *r.Raw.Metadata.StatusLabel
	}
	sections := r.Raw.Sections
	if sections.Description == "" {
		sections.Description = r.Raw.Description
	}
	return grant.RawCapture{
		URL:          url,
		Title:        title,
		ScrapedAt:    r.Raw.ScrapedAt,
		Sections:     sections,
		FundingInfo:  r.Raw.FundingInfo,
		FundingText:  extract.FundingText(sections.Funding),
		CountryList:  derive.Countries(title, sections.CountryInfo.Keys()),
		Documents:    r.Raw.Metadata.Documents,
		Breadcrumbs:  r.Raw.Metadata.Breadcrumbs,
		StatusLabel:  label,
		OpenDate:     open,
		CloseDate:    closing,
		Supplemental: r.IsSupplemental,
	}, nil
}

// WriteSnapshot encodes records as an indented JSON array.
func WriteSnapshot(w io.Writer, records []SnapshotRecord) error {
	if records == nil {
		records = []SnapshotRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot decodes a snapshot file.
func ReadSnapshot(r io.Reader) ([]SnapshotRecord, error) {
	var records []SnapshotRecord
	if err := json.NewDecoder(r).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return records, nil
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(snapshotDateLayout)
	return &s
}

func parseDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(snapshotDateLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
