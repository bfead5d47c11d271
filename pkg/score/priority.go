package score

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"seo-audit/pkg/models"
)

// --- Priority Page Selection ---
//
// Scoring heuristics for deciding which pages deserve an external
// performance score. The home page always wins; everything else is
// ranked by link volume and URL shape.

var (
	importantPrefixes = []string{
		"/about", "/contact", "/products", "/services",
		"/blog", "/news", "/help", "/support",
	}
	detailPathPattern  = regexp.MustCompile(`^/(products?|services?|shop|store)/.+`)
	contentPathPattern = regexp.MustCompile(`^/(blog|news|articles?|guides?)(/|$)`)
)

// PriorityScore computes the ranking score for a single snapshot.
func PriorityScore(snapshot models.PageSnapshot) int {
	path := pathOf(snapshot.URL)

	// Home page is always the top priority.
	if path == "/" || path == "" {
		return 100
	}

	score := 0

	linkVolume := snapshot.LinksIn*2 + snapshot.LinksOut
	if linkVolume > 30 {
		linkVolume = 30
	}
	score += linkVolume

	for _, prefix := range importantPrefixes {
		if strings.HasPrefix(path, prefix) {
			score += 20
			break
		}
	}
	if detailPathPattern.MatchString(path) {
		score += 15
	}
	if contentPathPattern.MatchString(path) {
		score += 10
	}
	if snapshot.Title != "" && snapshot.MetaDesc != "" {
		score += 5
	}
	if len(snapshot.StructuredData) > 0 {
		score += 5
	}

	return score
}

// SelectTopPages ranks snapshots by priority score descending and
// returns at most limit of them. The sort is stable, so equal scores
// keep their input order and the selection is deterministic.
func SelectTopPages(snapshots []models.PageSnapshot, limit int) []models.PageSnapshot {
	if limit <= 0 || len(snapshots) == 0 {
		return nil
	}

	ranked := make([]models.PageSnapshot, len(snapshots))
	copy(ranked, snapshots)

	sort.SliceStable(ranked, func(i, j int) bool {
		return PriorityScore(ranked[i]) > PriorityScore(ranked[j])
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return strings.ToLower(u.Path)
}
