// Package extract turns a fetched source page into structured page data.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"

	"github.com/KevinLaRosa/yorimichi-workers/internal/model"
)

const (
	// MinContentLength is the shortest primary text worth classifying.
	MinContentLength = 200

	// MaxTextLength caps the primary text kept per page, in runes.
	MaxTextLength = 10000

	maxImages = 5
)

var (
	boilerplate = "script, style, nav, header, footer, aside"

	// Content containers in order of preference.
	contentSelectors = []string{"div.entry-content", "article", "main", "div.article"}
)

// Extract parses html and derives the page fields. pageURL resolves relative
// image sources and is stored on the page.
func Extract(html, pageURL string) (*model.Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}

	page := &model.Page{URL: pageURL}

	page.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	if page.Title == "" {
		page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if desc, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		page.MetaDescription = strings.TrimSpace(desc)
	}

	doc.Find(boilerplate).Remove()

	content := mainContent(doc)
	page.Text = truncateRunes(strings.Join(textLines(content), "\n"), MaxTextLength)

	page.Address = firstMatch(addressPatterns, page.Text)
	page.Hours = firstMatch(hoursPatterns, page.Text)
	page.Price = priceMentions(page.Text)
	page.Stations = stations(page.Text)

	doc.Find(`a[rel="tag"]`).Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			page.Tags = append(page.Tags, t)
		}
	})

	page.Images = images(doc, pageURL)

	return page, nil
}

// Qualifies reports whether the page has enough primary text to be worth
// classifying. minLen <= 0 uses MinContentLength.
func Qualifies(page *model.Page, minLen int) bool {
	if page == nil {
		return false
	}
	if minLen <= 0 {
		minLen = MinContentLength
	}
	return page.TextLen() >= minLen
}

func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range contentSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return doc.Find("body")
}

// textLines returns each non-empty text node under sel with its inner
// whitespace collapsed, in document order.
func textLines(sel *goquery.Selection) []string {
	var lines []string
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "#text" {
			if t := strings.Join(strings.Fields(s.Text()), " "); t != "" {
				lines = append(lines, t)
			}
			return
		}
		lines = append(lines, textLines(s)...)
	})
	return lines
}

// images returns the sources of the first few images, dropping logos.
func images(doc *goquery.Document, pageURL string) []string {
	base, _ := url.Parse(pageURL)

	var out []string
	doc.Find("img").Slice(0, min(maxImages, doc.Find("img").Length())).Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		src = strings.TrimSpace(src)
		if !ok || src == "" || strings.Contains(strings.ToLower(src), "logo") {
			return
		}
		if base != nil {
			if ref, err := url.Parse(src); err == nil {
				src = base.ResolveReference(ref).String()
			}
		}
		out = append(out, src)
	})
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
