package grant

import "time"

// Summary is the overview section.
type Summary struct {
	Text     string `json:"text"`
	CallType string `json:"call_type"`
}

// Eligibility describes who may apply and from where.
type Eligibility struct {
	Text                string   `json:"text"`
	WhoCanApply         []string `json:"who_can_apply"`
	EligibleCountries   []string `json:"eligible_countries"`
	GeographicScope     string   `json:"geographic_scope"`
	PartnershipRequired bool     `json:"partnership_required"`
	PartnershipDetails  string   `json:"partnership_details"`
}

// Scope covers thematic focus and technology maturity.
type Scope struct {
	Text    string   `json:"text"`
	Themes  []string `json:"themes"`
	TRLMin  *int     `json:"trl_min"`
	TRLMax  *int     `json:"trl_max"`
	TRLText string   `json:"trl_text"`
}

// Dates holds the opportunity timeline.
type Dates struct {
	Text              string     `json:"text"`
	OpensAt           *time.Time `json:"opens_at"`
	ClosesAt          *time.Time `json:"closes_at"`
	DeadlineTime      string     `json:"deadline_time"`
	Timezone          string     `json:"timezone"`
	DurationMonthsMin *int       `json:"duration_months_min"`
	DurationMonthsMax *int       `json:"duration_months_max"`
	DurationText      string     `json:"duration_text"`
}

// Funding holds pot size and per-project amounts.
type Funding struct {
	Text              string `json:"text"`
	TotalAmount       *int64 `json:"total_amount"`
	Currency          string `json:"currency"`
	TotalDisplay      string `json:"total_display"`
	PerProjectMin     *int64 `json:"per_project_min"`
	PerProjectMax     *int64 `json:"per_project_max"`
	PerProjectMaxCAD  *int64 `json:"per_project_max_cad"`
	PerProjectDisplay string `json:"per_project_display"`
	CompetitionType   string `json:"competition_type"`
}

// HowToApply describes the application route.
type HowToApply struct {
	Text                 string `json:"text"`
	PortalName           string `json:"portal_name"`
	PortalURL            string `json:"portal_url"`
	RegistrationRequired bool   `json:"registration_required"`
}

// Assessment lists how applications are judged.
type Assessment struct {
	Text     string   `json:"text"`
	Criteria []string `json:"criteria"`
}

// SupportingInfo lists attached guidance documents.
type SupportingInfo struct {
	Text      string     `json:"text"`
	Documents []Document `json:"documents"`
}

// Contacts lists addresses for questions about the call.
type Contacts struct {
	Text        string   `json:"text"`
	Emails      []string `json:"emails"`
	HelpdeskURL string   `json:"helpdesk_url"`
}
