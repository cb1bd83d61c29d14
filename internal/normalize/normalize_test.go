package normalize

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/grant-discovery/internal/grant"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

// tickingClock advances by a minute on every call.
type tickingClock struct{ now time.Time }

func (c *tickingClock) Now() time.Time {
	c.now = c.now.Add(time.Minute)
	return c.now
}

var testNow = time.Date(2025, time.February, 1, 9, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{Source: "eureka", SourceTag: "eureka_network", DefaultStatus: grant.StatusOpen}
}

func sampleCapture() grant.RawCapture {
	open := time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC)
	closing := time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)

	var funding grant.TextMap
	funding.Set("general", "A total budget of €2.5 million is available. Up to €50,000 per project.")
	funding.Set("Canada", "150,000 Canadian dollars")
	var countryInfo grant.TextMap
	countryInfo.Set("participating countries: sweden", "Contact vinnova@vinnova.se for details.")

	about := "Eurostars supports SMEs developing AI for health at TRL 4-6."
	return grant.RawCapture{
		URL:       "https://www.eurekanetwork.org/programmes-and-calls/eurostars/eurostars-call-2025",
		Title:     "Eurostars Canada Call 2025",
		ScrapedAt: time.Date(2025, time.January, 20, 8, 30, 0, 0, time.UTC),
		Sections: grant.PageSections{
			Description: about,
			About:       about,
			Eligibility: "Open to SMEs and universities.",
			Funding:     funding,
			HowToApply:  "Apply via the portal. Questions: help@eurekanetwork.org\n\nAssessment criteria: impact and excellence.",
			KeyDates:    "Deadline 17:00 CET. Projects last 12 to 36 months.",
			CountryInfo: countryInfo,
		},
		FundingInfo: "€2.5 million",
		FundingText: "A total budget of €2.5 million is available. Up to €50,000 per project.",
		CountryList: []string{"Canada", "Sweden"},
		Documents:   []grant.Document{{Title: "Guide", URL: "https://www.eurekanetwork.org/files/guide.pdf", Type: "PDF"}},
		Breadcrumbs: []string{"Eurostars"},
		StatusLabel: "open",
		OpenDate:    &open,
		CloseDate:   &closing,
	}
}

func TestNormalizeMapsSections(t *testing.T) {
	t.Parallel()

	n := New(testConfig(), fixedClock{now: testNow}, nil)
	g := n.Normalize(sampleCapture())

	require.Equal(t, "eureka_eurostars-call-2025", g.GrantID)
	require.Equal(t, "eureka", g.Source)
	require.Equal(t, grant.StatusOpen, g.Status)
	require.Equal(t, grant.Programme{Name: "Eurostars", Funder: "Eureka Network", Code: "eurostars-call-2025"}, g.Programme)

	require.Equal(t, "Eurostars supports SMEs developing AI for health at TRL 4-6.", g.Summary.Text)
	require.Equal(t, "Eurostars", g.Summary.CallType)

	require.Equal(t,
		"Open to SMEs and universities.\n\nparticipating countries: sweden:\nContact vinnova@vinnova.se for details.",
		g.Eligibility.Text)
	require.Equal(t, []string{"University"}, g.Eligibility.WhoCanApply)
	require.Equal(t, []string{"Canada", "Sweden"}, g.Eligibility.EligibleCountries)
	require.True(t, g.Eligibility.PartnershipRequired)

	require.Equal(t, "A total budget of €2.5 million is available. Up to €50,000 per project.", g.Scope.Text)
	require.Equal(t, []string{"AI & Machine Learning", "Health & Life Sciences"}, g.Scope.Themes)
	require.Equal(t, 4, *g.Scope.TRLMin)
	require.Equal(t, 6, *g.Scope.TRLMax)

	require.Equal(t, "17:00 CET", g.Dates.DeadlineTime)
	require.Equal(t, "CET", g.Dates.Timezone)
	require.Equal(t, 12, *g.Dates.DurationMonthsMin)
	require.Equal(t, 36, *g.Dates.DurationMonthsMax)

	require.Equal(t, int64(2_500_000), *g.Funding.TotalAmount)
	require.Equal(t, "€2.5 million", g.Funding.TotalDisplay)
	require.Equal(t, int64(50_000), *g.Funding.PerProjectMax)
	require.Nil(t, g.Funding.PerProjectMin)
	require.Equal(t, "EUR", g.Funding.Currency)
	require.Equal(t, "grant", g.Funding.CompetitionType)

	require.Equal(t, PortalURL, g.HowToApply.PortalURL)
	require.Equal(t, "Assessment criteria: impact and excellence.", g.Assessment.Text)
	require.Equal(t, []string{"Impact", "Excellence"}, g.Assessment.Criteria)
	require.Equal(t, "Guide", g.SupportingInfo.Text)
	require.Equal(t, []string{"vinnova@vinnova.se", "help@eurekanetwork.org"}, g.Contacts.Emails)
	require.Equal(t, HelpdeskURL, g.Contacts.HelpdeskURL)

	require.Equal(t,
		[]string{"eureka_network", "eurostars", "open", "international", "canada", "sweden", "large_fund"},
		g.Tags)
	require.Equal(t, SchemaVersion, g.Processing.SchemaVersion)
	require.Equal(t, testNow, g.Processing.NormalizedAt)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	n := New(testConfig(), &tickingClock{now: testNow}, nil)
	capture := sampleCapture()

	first := n.Normalize(capture)
	second := n.Normalize(capture)
	require.NotEqual(t, first.Processing.NormalizedAt, second.Processing.NormalizedAt)

	first.Processing.NormalizedAt = time.Time{}
	second.Processing.NormalizedAt = time.Time{}
	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	require.Equal(t, string(a), string(b))
}

func TestNormalizeEmptyCaptureHasNoNullLists(t *testing.T) {
	t.Parallel()

	n := New(testConfig(), fixedClock{now: testNow}, nil)
	g := n.Normalize(grant.RawCapture{URL: "https://www.eurekanetwork.org/programmes-and-calls/x/empty"})

	raw, err := json.Marshal(g)
	require.NoError(t, err)
	for _, field := range []string{"who_can_apply", "eligible_countries", "themes", "criteria", "documents", "emails", "tags"} {
		require.NotContains(t, string(raw), `"`+field+`":null`, field)
	}
	require.Nil(t, g.Funding.TotalAmount)
	require.NotContains(t, g.Tags, "small_fund")
}

func TestNormalizeDefaultStatusIsLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.WarnLevel)
	cfg := testConfig()
	cfg.DefaultStatus = grant.StatusUnknown
	n := New(cfg, fixedClock{now: testNow}, zap.New(core))

	g := n.Normalize(grant.RawCapture{URL: "https://www.eurekanetwork.org/programmes-and-calls/x/quiet"})
	require.Equal(t, grant.StatusUnknown, g.Status)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, "eureka_quiet", entry.ContextMap()["grant_id"])
}

func TestNormalizeDateDrivenStatusAndSupplementalTags(t *testing.T) {
	t.Parallel()

	future := testNow.AddDate(0, 2, 0)
	n := New(testConfig(), fixedClock{now: testNow}, nil)
	g := n.Normalize(grant.RawCapture{
		URL:          "https://www.eurekanetwork.org/programmes-and-calls/investment-readiness/investor-ready",
		Title:        "Investor readiness",
		OpenDate:     &future,
		Supplemental: true,
	})

	require.Equal(t, grant.StatusForthcoming, g.Status)
	require.True(t, g.IsSupplemental)
	require.Equal(t, []string{"eureka_network", "forthcoming", "international", "investment_readiness"}, g.Tags)
}

func TestFundBucket(t *testing.T) {
	t.Parallel()

	require.Equal(t, "large_fund", FundBucket(1_000_000))
	require.Equal(t, "medium_fund", FundBucket(999_999))
	require.Equal(t, "medium_fund", FundBucket(100_000))
	require.Equal(t, "small_fund", FundBucket(99_999))
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	capture := sampleCapture()
	n := New(testConfig(), fixedClock{now: testNow}, nil)
	record := SnapshotFromCapture(capture, n.Normalize(capture))

	require.Equal(t, "eureka_eurostars-call-2025", record.ID)
	require.Equal(t, "eurostars-call-2025", record.CallID)
	require.Equal(t, "Eurostars", record.Programme)
	require.Equal(t, []string{"€2.5 million"}, record.Raw.Metadata.FundingInfo)

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, []SnapshotRecord{record}))
	require.Contains(t, buf.String(), `"close_date": "2025-03-15"`)
	require.Contains(t, buf.String(), `"open_date": "2025-01-10"`)
	require.True(t, strings.Index(buf.String(), `"general"`) < strings.Index(buf.String(), `"Canada"`))

	records, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got, err := records[0].Capture()
	require.NoError(t, err)
	require.Equal(t, capture, got)
}

func TestSnapshotNullDates(t *testing.T) {
	t.Parallel()

	capture := grant.RawCapture{URL: "https://www.eurekanetwork.org/programmes-and-calls/x/no-dates"}
	n := New(testConfig(), fixedClock{now: testNow}, nil)

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, []SnapshotRecord{SnapshotFromCapture(capture, n.Normalize(capture))}))
	require.Contains(t, buf.String(), `"open_date": null`)
	require.Contains(t, buf.String(), `"close_date": null`)

	_, err := ReadSnapshot(strings.NewReader(`{"not": "an array"}`))
	require.Error(t, err)
}

func TestSnapshotWithoutStatusLabelUsesRecordStatus(t *testing.T) {
	t.Parallel()

	legacy := `[{
  "id": "eureka_call-b",
  "source": "eureka",
  "title": "Call B",
  "url": "https://www.eurekanetwork.org/programmes-and-calls/eurostars/call-b",
  "status": "closed",
  "open_date": null,
  "close_date": "2025-12-31",
  "is_supplemental": false,
  "raw": {"url": "https://www.eurekanetwork.org/programmes-and-calls/eurostars/call-b", "metadata": {}}
}]`
	records, err := ReadSnapshot(strings.NewReader(legacy))
	require.NoError(t, err)
	require.Len(t, records, 1)

	capture, err := records[0].Capture()
	require.NoError(t, err)
	require.Equal(t, "closed", capture.StatusLabel)

	n := New(testConfig(), fixedClock{now: testNow}, nil)
	require.Equal(t, grant.StatusClosed, n.Normalize(capture).Status)
}

func TestSnapshotEmptyStatusLabelKeepsDateResolution(t *testing.T) {
	t.Parallel()

	future := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	capture := grant.RawCapture{
		URL:      "https://www.eurekanetwork.org/programmes-and-calls/eurostars/call-c",
		OpenDate: &future,
	}
	n := New(testConfig(), fixedClock{now: testNow}, nil)
	record := SnapshotFromCapture(capture, n.Normalize(capture))
	require.Equal(t, grant.StatusForthcoming, record.Status)

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, []SnapshotRecord{record}))
	require.Contains(t, buf.String(), `"status_label": ""`)

	records, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	got, err := records[0].Capture()
	require.NoError(t, err)
	require.Empty(t, got.StatusLabel)

	later := fixedClock{now: future.Add(24 * time.Hour)}
	require.Equal(t, grant.StatusOpen, New(testConfig(), later, nil).Normalize(got).Status)
}

func TestSnapshotCaptureRejectsBadDate(t *testing.T) {
	t.Parallel()

	bad := "15/03/2025"
	_, err := SnapshotRecord{ID: "x", CloseDate: &bad}.Capture()
	require.Error(t, err)
}
