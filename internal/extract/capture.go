package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/grant-discovery/internal/derive"
	"github.com/JakeFAU/grant-discovery/internal/grant"
)

const (
	documentSelector = `a[href*=".pdf"]`
	documentTypePDF  = "PDF"
	defaultDocTitle  = "Document"
	supplementalPath = "/investment-readiness/"
)

var (
	titleSuffix     = regexp.MustCompile(`(?i)\s*[-–|]\s*Eureka Network.*$`)
	breadcrumbClass = regexp.MustCompile(`breadcrumb`)
	skipBreadcrumbs = map[string]struct{}{"Home": {}, "Programmes and Calls": {}}
)

// Capture parses a detail page body and builds its RawCapture. label is the
// listing status the page was discovered under.
func Capture(pageURL, label string, body []byte, scrapedAt time.Time) (grant.RawCapture, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return grant.RawCapture{}, fmt.Errorf("parse %s: %w", pageURL, err)
	}

	sections := Sections(doc)
	title := Title(doc)
	pageText := doc.Text()
	open, closing := derive.OpenClose(pageText)

	return grant.RawCapture{
		URL:          pageURL,
		Title:        title,
		ScrapedAt:    scrapedAt,
		Sections:     sections,
		FundingInfo:  derive.FundingMention(pageText),
		FundingText:  FundingText(sections.Funding),
		CountryList:  derive.Countries(title, sections.CountryInfo.Keys()),
		Documents:    Documents(doc, pageURL),
		Breadcrumbs:  Breadcrumbs(doc),
		StatusLabel:  label,
		OpenDate:     open,
		CloseDate:    closing,
		Supplemental: strings.Contains(pageURL, supplementalPath),
	}, nil
}

// Title returns the first h1, else the document title without the site suffix.
func Title(doc *goquery.Document) string {
	if h1 := doc.Find("h1").First(); h1.Length() > 0 {
		return derive.CollapseSpace(h1.Text())
	}
	title := derive.CollapseSpace(doc.Find("title").First().Text())
	return titleSuffix.ReplaceAllString(title, "")
}

// Breadcrumbs returns breadcrumb link texts other than the site root entries.
func Breadcrumbs(doc *goquery.Document) []string {
	out := []string{}
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		if !breadcrumbClass.MatchString(a.AttrOr("class", "")) {
			return
		}
		text := derive.CollapseSpace(a.Text())
		if _, skip := skipBreadcrumbs[text]; skip || text == "" {
			return
		}
		out = append(out, text)
	})
	return out
}

// Documents lists linked PDFs with absolute URLs.
func Documents(doc *goquery.Document, pageURL string) []grant.Document {
	base, _ := url.Parse(pageURL)
	out := []grant.Document{}
	doc.Find(documentSelector).Each(func(_ int, a *goquery.Selection) {
		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			return
		}
		if base != nil {
			if ref, err := url.Parse(href); err == nil {
				href = base.ResolveReference(ref).String()
			}
		}
		title := derive.CollapseSpace(a.Text())
		if title == "" {
			title = defaultDocTitle
		}
		out = append(out, grant.Document{Title: title, URL: href, Type: documentTypePDF})
	})
	return out
}

// FundingText flattens the funding sub-sections: the general entry when
// present, otherwise one "Key: text" line per entry.
func FundingText(funding grant.TextMap) string {
	if general, ok := funding.Get(generalFundingKey); ok && general != "" {
		return general
	}
	lines := make([]string, 0, len(funding))
	for _, e := range funding {
		if e.Text == "" {
			continue
		}
		lines = append(lines, e.Key+": "+e.Text)
	}
	return strings.Join(lines, "\n")
}
