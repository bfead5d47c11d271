package score

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"seo-audit/pkg/models"
)

func snapshot(url string, linksIn, linksOut int) models.PageSnapshot {
	return models.PageSnapshot{URL: url, LinksIn: linksIn, LinksOut: linksOut}
}

func TestPriorityScore(t *testing.T) {
	tests := []struct {
		name     string
		snapshot models.PageSnapshot
		want     int
	}{
		{"home page wins outright", snapshot("https://example.com/", 0, 0), 100},
		{"home page without trailing slash", snapshot("https://example.com", 50, 50), 100},
		{"link volume capped at 30", snapshot("https://example.com/deep", 100, 100), 30},
		{"about prefix", snapshot("https://example.com/about", 0, 0), 20},
		{"help prefix", snapshot("https://example.com/help", 0, 0), 20},
		{"support prefix", snapshot("https://example.com/support/faq", 0, 0), 20},
		{"product detail shape", snapshot("https://example.com/products/widget-9", 0, 0), 20 + 15},
		{"blog post gets prefix and content bonuses", snapshot("https://example.com/blog/post", 0, 0), 20 + 10},
		{"news index", snapshot("https://example.com/news", 0, 0), 20 + 10},
		{"pricing is not an important prefix", snapshot("https://example.com/pricing", 0, 0), 0},
		{"plain page", snapshot("https://example.com/misc", 0, 0), 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PriorityScore(tc.snapshot))
		})
	}
}

func TestPriorityScoreMetadataBonuses(t *testing.T) {
	page := snapshot("https://example.com/misc", 0, 0)
	page.Title = "Misc"
	page.MetaDesc = "About misc"
	page.StructuredData = []models.StructuredData{{Type: "Article"}}

	assert.Equal(t, 10, PriorityScore(page))
}

func TestSelectTopPages(t *testing.T) {
	pages := []models.PageSnapshot{
		snapshot("https://example.com/misc", 0, 0),
		snapshot("https://example.com/", 0, 0),
		snapshot("https://example.com/blog/a", 0, 0),
		snapshot("https://example.com/help", 0, 0),
	}

	top := SelectTopPages(pages, 2)

	assert.Len(t, top, 2)
	assert.Equal(t, "https://example.com/", top[0].URL)
	assert.Equal(t, "https://example.com/blog/a", top[1].URL)
}

func TestSelectTopPagesDeterministic(t *testing.T) {
	pages := []models.PageSnapshot{
		snapshot("https://example.com/a", 1, 0),
		snapshot("https://example.com/b", 1, 0),
		snapshot("https://example.com/c", 1, 0),
	}

	first := SelectTopPages(pages, 3)
	second := SelectTopPages(pages, 3)

	assert.Equal(t, first, second)
	// Stable sort: ties keep input order.
	assert.Equal(t, "https://example.com/a", first[0].URL)
}

func TestSelectTopPagesEdgeCases(t *testing.T) {
	assert.Nil(t, SelectTopPages(nil, 10))
	assert.Nil(t, SelectTopPages([]models.PageSnapshot{snapshot("https://example.com/x", 0, 0)}, 0))

	// Limit larger than input returns everything.
	got := SelectTopPages([]models.PageSnapshot{snapshot("https://example.com/x", 0, 0)}, 10)
	assert.Len(t, got, 1)
}

func TestSelectTopPagesDoesNotMutateInput(t *testing.T) {
	pages := []models.PageSnapshot{
		snapshot("https://example.com/misc", 0, 0),
		snapshot("https://example.com/", 0, 0),
	}

	SelectTopPages(pages, 2)

	assert.Equal(t, "https://example.com/misc", pages[0].URL, "input order untouched")
}
