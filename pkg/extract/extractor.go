package extract

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"seo-audit/pkg/models"
)

// ParseHTML extracts a structured page record from raw HTML. It is a
// pure function with no I/O: malformed HTML never aborts extraction,
// fields simply resolve to empty where absent.
func ParseHTML(html, baseURL string) models.ParsedPage {
	page := models.ParsedPage{URL: baseURL}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return page
	}
	base, baseErr := url.Parse(baseURL)

	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	page.MetaDesc = strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", ""))
	page.H1 = strings.TrimSpace(doc.Find("h1").First().Text())
	page.Headings = extractHeadings(doc)

	if baseErr == nil {
		page.InternalLinks, page.ExternalLinks = extractLinks(doc, base)
		page.Images = extractImages(doc, base)
	}

	// Canonical: link[rel=canonical] wins, og:url is the fallback.
	page.Canonical = strings.TrimSpace(doc.Find(`link[rel="canonical"]`).AttrOr("href", ""))
	if page.Canonical == "" {
		page.Canonical = strings.TrimSpace(doc.Find(`meta[property="og:url"]`).AttrOr("content", ""))
	}

	robotsMeta := doc.Find(`meta[name="robots"]`).AttrOr("content", "")
	page.Noindex = strings.Contains(strings.ToLower(robotsMeta), "noindex")

	page.HasOpenGraph = doc.Find(`meta[property="og:title"], meta[property="og:description"], meta[property="og:image"]`).Length() > 0

	page.StructuredData = extractStructuredData(doc)

	return page
}

// extractHeadings returns all H1-H6 elements in document order.
func extractHeadings(doc *goquery.Document) []models.Heading {
	var headings []models.Heading
	doc.Find("h1, h2, h3, h4, h5, h6").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if text == "" {
			return
		}
		level := int(sel.Nodes[0].Data[1] - '0') // "h1".."h6"
		headings = append(headings, models.Heading{Level: level, Text: text})
	})
	return headings
}

// extractLinks resolves every anchor href against the base URL, strips
// fragments, deduplicates, and partitions by hostname.
func extractLinks(doc *goquery.Document, base *url.URL) (internal, external []string) {
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if href == "" {
			return
		}
		linkURL, err := base.Parse(href)
		if err != nil {
			return
		}
		if linkURL.Scheme != "http" && linkURL.Scheme != "https" {
			return
		}
		linkURL.Fragment = ""
		linkURL.RawFragment = ""
		normalized := linkURL.String()
		if seen[normalized] {
			return
		}
		seen[normalized] = true

		if linkURL.Hostname() == base.Hostname() {
			internal = append(internal, normalized)
		} else {
			external = append(external, normalized)
		}
	})
	return internal, external
}

func extractImages(doc *goquery.Document, base *url.URL) []models.ImageRef {
	var images []models.ImageRef
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if src == "" {
			return
		}
		imgURL, err := base.Parse(src)
		if err != nil {
			return
		}
		images = append(images, models.ImageRef{
			Src: imgURL.String(),
			Alt: sel.AttrOr("alt", ""),
		})
	})
	return images
}

// extractStructuredData parses each JSON-LD script block. Blocks that
// fail to parse are skipped, not fatal.
func extractStructuredData(doc *goquery.Document) []models.StructuredData {
	var blocks []models.StructuredData
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var data map[string]any
		if err := json.Unmarshal([]byte(sel.Text()), &data); err != nil {
			return
		}
		blockType := "Unknown"
		if t, ok := data["@type"].(string); ok && t != "" {
			blockType = t
		}
		blocks = append(blocks, models.StructuredData{Type: blockType, Data: data})
	})
	return blocks
}
