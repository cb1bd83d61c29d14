// Package extract turns a fetched detail page into labelled sections and a
// RawCapture. Extraction is heuristic: missing structure falls back to simpler
// sources and never fails on well-formed HTML.
package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/grant-discovery/internal/derive"
	"github.com/JakeFAU/grant-discovery/internal/grant"
)

const (
	headingSelector   = "h1, h2, h3, h4"
	contentSelector   = "p, ul, ol, div"
	accordionKeySel   = "h3, h4, h5, button"
	generalFundingKey = "general"

	fallbackParagraphs   = 5
	fallbackMinParagraph = 20
)

type bucket int

const (
	bucketNone bucket = iota
	bucketAbout
	bucketEligibility
	bucketFunding
	bucketHowToApply
	bucketKeyDates
	bucketCountry
)

type headingRule struct {
	bucket   bucket
	keywords []string
}

// Evaluated in order; the first rule with a keyword contained in the heading wins.
var headingRules = []headingRule{
	{bucketAbout, []string{"about", "overview", "description", "summary"}},
	{bucketEligibility, []string{"eligibility", "eligible", "who can apply"}},
	{bucketFunding, []string{"funding", "budget", "financial support"}},
	{bucketHowToApply, []string{"how to apply", "application", "apply"}},
	{bucketKeyDates, []string{"timeline", "key dates", "important dates", "dates"}},
	{bucketCountry, []string{"country", "national", "participating"}},
}

var accordionClass = regexp.MustCompile(`(?i)accordion|country|toggle`)

func classify(heading string) bucket {
	for _, r := range headingRules {
		for _, kw := range r.keywords {
			if strings.Contains(heading, kw) {
				return r.bucket
			}
		}
	}
	return bucketNone
}

// contentRegion picks the element holding the page body.
func contentRegion(doc *goquery.Document) *goquery.Selection {
	if s := doc.Find("div.entry-content").First(); s.Length() > 0 {
		return s
	}
	if s := doc.Find("main").First(); s.Length() > 0 {
		return s
	}
	return doc.Selection
}

// headingContent joins the text of the block siblings that follow a heading,
// stopping at the next heading.
func headingContent(h *goquery.Selection) string {
	var parts []string
	h.NextUntil(headingSelector).Filter(contentSelector).Each(func(_ int, s *goquery.Selection) {
		if text := derive.CollapseSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}

// Sections classifies the page's headed blocks into section buckets.
func Sections(doc *goquery.Document) grant.PageSections {
	var (
		out         grant.PageSections
		aboutSeen   bool
		countrySeen bool
	)
	region := contentRegion(doc)

	region.Find(headingSelector).Each(func(_ int, h *goquery.Selection) {
		heading := strings.ToLower(derive.CollapseSpace(h.Text()))
		switch classify(heading) {
		case bucketAbout:
			out.About = headingContent(h)
			aboutSeen = true
		case bucketEligibility:
			out.Eligibility = headingContent(h)
		case bucketFunding:
			key := generalFundingKey
			if country, ok := derive.FundingCountry(heading); ok {
				key = country
			}
			out.Funding.Set(key, headingContent(h))
		case bucketHowToApply:
			out.HowToApply = headingContent(h)
		case bucketKeyDates:
			out.KeyDates = headingContent(h)
		case bucketCountry:
			out.CountryInfo.Set(heading, headingContent(h))
			countrySeen = true
		}
	})

	if aboutSeen {
		out.Description = out.About
	} else {
		out.Description = fallbackDescription(region)
	}

	if !countrySeen {
		out.CountryInfo = accordions(region)
	}
	return out
}

func fallbackDescription(region *goquery.Selection) string {
	var parts []string
	region.Find("p").EachWithBreak(func(i int, p *goquery.Selection) bool {
		if i >= fallbackParagraphs {
			return false
		}
		text := derive.CollapseSpace(p.Text())
		if utf8.RuneCountInString(text) > fallbackMinParagraph {
			parts = append(parts, text)
		}
		return true
	})
	return strings.Join(parts, " ")
}

// accordions reads collapsible per-country panels keyed by their toggle text.
func accordions(region *goquery.Selection) grant.TextMap {
	var out grant.TextMap
	region.Find("div, section").Each(func(_ int, s *goquery.Selection) {
		if !accordionClass.MatchString(s.AttrOr("class", "")) {
			return
		}
		key := derive.CollapseSpace(s.Find(accordionKeySel).First().Text())
		text := derive.CollapseSpace(s.Text())
		if key == "" || text == "" {
			return
		}
		out.Set(key, text)
	})
	return out
}
