// Package normalize maps a RawCapture onto the canonical nine-section
// NormalizedGrant and converts captures to and from the snapshot file format.
package normalize

import (
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/grant-discovery/internal/derive"
	"github.com/JakeFAU/grant-discovery/internal/grant"
	"github.com/JakeFAU/grant-discovery/internal/resolve"
)

// Schema and implementation versions stamped on every record.
const (
	SchemaVersion     = "3.0"
	NormalizerVersion = "grant-discovery/1"
)

// Fixed facts about opportunities published on the Eureka Network site.
const (
	GeographicScope     = "International (Eureka Network)"
	PartnershipDetails  = "International consortium with at least 2 partners from different Eureka countries"
	PortalName          = "Eureka Smartsimple Portal"
	PortalURL           = "https://eureka.smartsimple.ie/"
	HelpdeskURL         = "https://www.eurekanetwork.org/contact"
	CompetitionTypeName = "grant"

	tagInternational       = "international"
	tagInvestmentReadiness = "investment_readiness"
	maxCountryTags         = 3
	largeFund              = 1_000_000
	mediumFund             = 100_000
)

// Config controls identity and defaults.
type Config struct {
	// Source prefixes grant IDs and is recorded on each grant.
	Source string
	// SourceTag is the first tag of every grant.
	SourceTag string
	// DefaultStatus applies when neither a label nor a date decides the status.
	DefaultStatus grant.Status
}

// Normalizer builds NormalizedGrants. It is safe for concurrent use.
type Normalizer struct {
	cfg    Config
	clock  grant.Clock
	logger *zap.Logger
}

// New constructs a Normalizer. A nil logger disables logging.
func New(cfg Config, clock grant.Clock, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultStatus == "" {
		cfg.DefaultStatus = grant.StatusOpen
	}
	if cfg.SourceTag == "" {
		cfg.SourceTag = cfg.Source
	}
	return &Normalizer{cfg: cfg, clock: clock, logger: logger}
}

// Normalize maps one capture. Output is a pure function of the capture and the
// clock's current time; only processing.normalized_at changes between runs
// under a fixed clock.
func (n *Normalizer) Normalize(c grant.RawCapture) grant.NormalizedGrant {
	now := n.clock.Now()
	s := c.Sections

	grantID := resolve.GrantID(n.cfg.Source, c.URL)
	programme := resolve.Programme(c.URL, c.Breadcrumbs)
	status, basis := resolve.Status(c.StatusLabel, c.OpenDate, c.CloseDate, now, n.cfg.DefaultStatus)
	if basis == resolve.BasisDefault {
		n.logger.Warn("no status signal, using configured default",
			zap.String("grant_id", grantID),
			zap.String("status", string(status)),
		)
	}

	aboutText := s.About
	if aboutText == "" {
		aboutText = s.Description
	}
	fundingText := c.FundingText
	countries := derive.Countries(c.Title, s.CountryInfo.Keys())
	total := derive.TotalAmount(c.FundingInfo + " " + fundingText)

	g := grant.NormalizedGrant{
		GrantID:        grantID,
		Source:         n.cfg.Source,
		Title:          c.Title,
		URL:            c.URL,
		Status:         status,
		Programme:      programme,
		IsSupplemental: c.Supplemental,
		Summary:        grant.Summary{Text: aboutText, CallType: programme.Name},
		Eligibility:    eligibility(s, countries),
		Scope:          scope(c.Title, aboutText, fundingText),
		Dates:          dates(c, s.KeyDates),
		Funding:        funding(fundingText, aboutText, total),
		HowToApply: grant.HowToApply{
			Text:                 s.HowToApply,
			PortalName:           PortalName,
			PortalURL:            PortalURL,
			RegistrationRequired: true,
		},
		Assessment: grant.Assessment{
			Text:     derive.AssessmentText(s.HowToApply),
			Criteria: derive.AssessmentCriteria(s.HowToApply + " " + s.Eligibility),
		},
		SupportingInfo: supportingInfo(c.Documents),
		Contacts:       contacts(s),
		Processing: grant.Processing{
			ScrapedAt:         c.ScrapedAt,
			NormalizedAt:      now,
			SchemaVersion:     SchemaVersion,
			NormalizerVersion: NormalizerVersion,
		},
	}
	g.Tags = n.tags(programme.Name, status, c.Supplemental, countries, total)
	return g
}

func eligibility(s grant.PageSections, countries []string) grant.Eligibility {
	blocks := make([]string, 0, len(s.CountryInfo))
	for _, e := range s.CountryInfo {
		blocks = append(blocks, e.Key+":\n"+e.Text)
	}
	text := s.Eligibility
	if countryText := strings.Join(blocks, "\n\n"); countryText != "" {
		if text != "" {
			text += "\n\n" + countryText
		} else {
			text = countryText
		}
	}
	return grant.Eligibility{
		Text:                text,
		WhoCanApply:         derive.WhoCanApply(s.Eligibility),
		EligibleCountries:   countries,
		GeographicScope:     GeographicScope,
		PartnershipRequired: true,
		PartnershipDetails:  PartnershipDetails,
	}
}

func scope(title, aboutText, fundingText string) grant.Scope {
	out := grant.Scope{
		Text:   fundingText,
		Themes: derive.Themes(title, aboutText),
	}
	if out.Text == "" {
		out.Text = aboutText
	}
	if trl := derive.TechnologyReadiness(aboutText); trl != nil {
		lo := trl.Min
		out.TRLMin = &lo
		out.TRLMax = trl.Max
		out.TRLText = trl.Text
	}
	return out
}

func dates(c grant.RawCapture, keyDates string) grant.Dates {
	out := grant.Dates{
		Text:         keyDates,
		OpensAt:      c.OpenDate,
		ClosesAt:     c.CloseDate,
		DeadlineTime: derive.DeadlineTime(keyDates),
		Timezone:     derive.DefaultDeadlineZone,
	}
	if d := derive.ProjectDuration(keyDates); d != nil {
		out.DurationMonthsMin = d.MinMonths
		out.DurationMonthsMax = d.MaxMonths
		out.DurationText = d.Text
	}
	return out
}

func funding(fundingText, aboutText string, total *derive.Amount) grant.Funding {
	out := grant.Funding{
		Text:            fundingText,
		Currency:        derive.CurrencyEUR,
		CompetitionType: CompetitionTypeName,
	}
	if total != nil {
		v := total.Value
		out.TotalAmount = &v
		out.TotalDisplay = total.Display
	}
	if per := derive.PerProjectAmount(fundingText + " " + aboutText); per != nil {
		v := per.Max
		out.PerProjectMax = &v
		out.PerProjectMaxCAD = per.MaxCAD
		out.PerProjectDisplay = per.Display
	}
	return out
}

func supportingInfo(docs []grant.Document) grant.SupportingInfo {
	out := grant.SupportingInfo{Documents: []grant.Document{}}
	titles := make([]string, 0, len(docs))
	for _, d := range docs {
		out.Documents = append(out.Documents, d)
		titles = append(titles, d.Title)
	}
	out.Text = strings.Join(titles, "\n")
	return out
}

func contacts(s grant.PageSections) grant.Contacts {
	parts := make([]string, 0, len(s.CountryInfo)+1)
	for _, e := range s.CountryInfo {
		if e.Text != "" {
			parts = append(parts, e.Text)
		}
	}
	parts = append(parts, s.HowToApply)
	emails := derive.Emails(strings.Join(parts, " "))
	return grant.Contacts{
		Text:        strings.Join(emails, "\n"),
		Emails:      emails,
		HelpdeskURL: HelpdeskURL,
	}
}

func (n *Normalizer) tags(programme string, status grant.Status, supplemental bool, countries []string, total *derive.Amount) []string {
	tags := []string{}
	seen := map[string]struct{}{}
	add := func(tag string) {
		if tag == "" {
			return
		}
		if _, ok := seen[tag]; ok {
			return
		}
		seen[tag] = struct{}{}
		tags = append(tags, tag)
	}

	add(n.cfg.SourceTag)
	add(derive.Slugify(programme))
	add(string(status))
	add(tagInternational)
	if supplemental {
		add(tagInvestmentReadiness)
	}
	for i, country := range countries {
		if i == maxCountryTags {
			break
		}
		add(derive.Slugify(country))
	}
	if total != nil && total.Value > 0 {
		add(FundBucket(total.Value))
	}
	return tags
}

// FundBucket names the size class of a total funding pot.
func FundBucket(amount int64) string {
	switch {
	case amount >= largeFund:
		return "large_fund"
	case amount >= mediumFund:
		return "medium_fund"
	default:
		return "small_fund"
	}
}
