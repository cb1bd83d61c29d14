package derive

import (
	"regexp"
	"sort"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// countryAlias maps a lower-case alias to its canonical country name.
type countryAlias struct {
	alias   string
	country string
}

// Table order is the order countries are reported in.
var countryAliases = []countryAlias{
	{"canada", "Canada"},
	{"chile", "Chile"},
	{"japan", "Japan"},
	{"korea", "South Korea"},
	{"south korea", "South Korea"},
	{"brazil", "Brazil"},
	{"sweden", "Sweden"},
	{"israel", "Israel"},
	{"singapore", "Singapore"},
	{"taiwan", "Taiwan"},
	{"uk", "United Kingdom"},
	{"united kingdom", "United Kingdom"},
	{"germany", "Germany"},
	{"france", "France"},
	{"spain", "Spain"},
	{"netherlands", "Netherlands"},
	{"belgium", "Belgium"},
	{"austria", "Austria"},
	{"switzerland", "Switzerland"},
	{"norway", "Norway"},
	{"denmark", "Denmark"},
	{"finland", "Finland"},
	{"ireland", "Ireland"},
	{"portugal", "Portugal"},
	{"italy", "Italy"},
	{"poland", "Poland"},
	{"czech", "Czech Republic"},
	{"hungary", "Hungary"},
	{"turkey", "Turkey"},
	{"türkiye", "Turkey"},
	{"iceland", "Iceland"},
}

// FundingCountries are the countries whose funding headings get their own key.
var FundingCountries = []string{"canada", "chile", "sweden", "brazil", "france", "singapore", "germany", "israel"}

var (
	countryMatcher = func() *ahocorasick.Matcher {
		dict := make([]string, len(countryAliases))
		for i, a := range countryAliases {
			dict[i] = a.alias
		}
		return ahocorasick.NewStringMatcher(dict)
	}()
	fundingCountryMatcher = ahocorasick.NewStringMatcher(FundingCountries)
)

var whoCanApplyLabels = []label{
	{regexp.MustCompile(`\bsme\b`), "SME"},
	{regexp.MustCompile(`\bsmall.*medium`), "SME"},
	{regexp.MustCompile(`\blarge enterprise`), "Large enterprise"},
	{regexp.MustCompile(`\bresearch.*organi[sz]ation`), "Research organisation"},
	{regexp.MustCompile(`\buniversit`), "University"},
	{regexp.MustCompile(`\brto\b`), "RTO"},
}

var themeLabels = []label{
	{regexp.MustCompile(`\bai\b|artificial intelligence|machine learning`), "AI & Machine Learning"},
	{regexp.MustCompile(`\bnet zero\b|decarboni|climate|green|sustainable`), "Net Zero & Sustainability"},
	{regexp.MustCompile(`\bhealth|medical|pharma|life science`), "Health & Life Sciences"},
	{regexp.MustCompile(`\benergy|renewable|clean tech|battery`), "Energy & Clean Tech"},
	{regexp.MustCompile(`\bmanufactur|industr`), "Manufacturing"},
	{regexp.MustCompile(`\baerospace|aviation|space`), "Aerospace & Space"},
	{regexp.MustCompile(`\bautomoti|vehicle|ev\b|mobility`), "Automotive & Mobility"},
	{regexp.MustCompile(`\bdigital|cyber|software`), "Digital & Cyber"},
	{regexp.MustCompile(`\bagricultur|agri|food`), "Agriculture & Food"},
	{regexp.MustCompile(`\bmining|mineral`), "Mining & Resources"},
	{regexp.MustCompile(`\bconstruction|building`), "Construction"},
	{regexp.MustCompile(`\bquantum`), "Quantum"},
}

var criteriaLabels = []label{
	{regexp.MustCompile(`\bimpact\b`), "Impact"},
	{regexp.MustCompile(`\bexcellence\b`), "Excellence"},
	{regexp.MustCompile(`\bquality\b.*\bimplementation\b`), "Quality of implementation"},
	{regexp.MustCompile(`\binnovation\b`), "Innovation"},
	{regexp.MustCompile(`\bcommerciali[sz]ation\b`), "Commercialisation potential"},
	{regexp.MustCompile(`\bconsortium\b`), "Consortium quality"},
}

var assessmentStarts = []*regexp.Regexp{
	regexp.MustCompile(`(?is)1\.\s*impact`),
	regexp.MustCompile(`(?is)assessment.*?criteria`),
	regexp.MustCompile(`(?is)evaluation.*?criteria`),
}

// Countries returns the canonical countries named in the title, then in each
// key, without repeats. Aliases match as substrings.
func Countries(title string, keys []string) []string {
	out := []string{}
	seen := map[string]struct{}{}
	add := func(text string) {
		hits := countryMatcher.MatchThreadSafe([]byte(strings.ToLower(text)))
		sort.Ints(hits)
		for _, idx := range hits {
			name := countryAliases[idx].country
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	add(title)
	for _, k := range keys {
		add(k)
	}
	return out
}

// FundingCountry returns the title-cased funding country a heading names, if any.
func FundingCountry(heading string) (string, bool) {
	hits := fundingCountryMatcher.MatchThreadSafe([]byte(strings.ToLower(heading)))
	if len(hits) == 0 {
		return "", false
	}
	sort.Ints(hits)
	// cases.Caser carries state between calls and cannot be shared.
	return cases.Title(language.English).String(FundingCountries[hits[0]]), true
}

// WhoCanApply returns applicant categories mentioned in eligibility text.
func WhoCanApply(text string) []string {
	return matchLabels(whoCanApplyLabels, strings.ToLower(text))
}

// Themes returns the thematic labels mentioned in the title or body.
func Themes(title, body string) []string {
	return matchLabels(themeLabels, strings.ToLower(title+" "+body))
}

// AssessmentCriteria returns the standard criteria mentioned in text.
func AssessmentCriteria(text string) []string {
	return matchLabels(criteriaLabels, strings.ToLower(text))
}

// AssessmentText returns the passage describing assessment criteria, running
// from its opening phrase to the next blank line.
func AssessmentText(text string) string {
	for _, p := range assessmentStarts {
		loc := p.FindStringIndex(text)
		if loc == nil {
			continue
		}
		end := len(text)
		if i := strings.Index(text[loc[1]:], "\n\n"); i >= 0 {
			end = loc[1] + i
		}
		return strings.TrimSpace(text[loc[0]:end])
	}
	return ""
}
