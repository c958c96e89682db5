package candidates

import (
	"strings"

	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/sources"
)

// MaxQueries caps the queries issued per resolution attempt.
const MaxQueries = 3

// SearchTitle is the event headline prepared for a search engine.
func SearchTitle(e *domain.Event) string {
	if t := sources.NormalizeTitleForSearch(e.TitleEn); t != "" {
		return t
	}
	return sources.NormalizeTitleForSearch(e.TitleRu)
}

// BuildSearchQuery returns the single query used to hydrate missing metadata:
// the quoted title, else a site-restricted query from the URL slug.
func BuildSearchQuery(e *domain.Event) string {
	if title := SearchTitle(e); title != "" {
		return `"` + title + `"`
	}
	if domain.IsBlank(e.URL) {
		return ""
	}
	host := sources.Host(e.URL)
	if host == "" {
		return e.URL
	}
	terms := sources.SearchTermsFromURL(e.URL)
	if terms == "" {
		return "site:" + host
	}
	return "site:" + host + " " + terms
}

// FallbackQueries returns up to MaxQueries distinct queries: the quoted title,
// the bare title and its first ten words, or terms from the URL slug.
func FallbackQueries(e *domain.Event) []string {
	var queries []string
	if title := SearchTitle(e); title != "" {
		queries = append(queries, `"`+title+`"`, title)
		words := strings.Fields(title)
		if len(words) > 10 {
			words = words[:10]
		}
		if short := strings.Join(words, " "); short != "" && short != title {
			queries = append(queries, short)
		}
	}
	if len(queries) == 0 && !domain.IsBlank(e.URL) {
		if terms := sources.SearchTermsFromURL(e.URL); terms != "" {
			queries = append(queries, terms)
		} else {
			queries = append(queries, e.URL)
		}
	}
	return limit(unique(queries), MaxQueries)
}

// BackfillQueries returns the queries used to recover a missing aggregator
// link, most specific first.
func BackfillQueries(e *domain.Event) []string {
	var queries []string
	title := SearchTitle(e)
	if title != "" && !domain.IsBlank(e.URL) {
		if host := sources.Host(e.URL); host != "" {
			if strings.Contains(e.URL, "reuters.com") {
				queries = append(queries, "site:reuters.com "+title)
			}
			queries = append(queries, "site:"+host+" "+title)
		}
	}
	if title != "" && !domain.IsBlank(e.Source) {
		queries = append(queries, `"`+title+`" `+e.Source)
	}
	queries = append(queries, FallbackQueries(e)...)
	return unique(queries)
}

// ExternalBackfillQueries looks for the aggregator page of the event through
// an external engine restricted to aggregatorHost.
func ExternalBackfillQueries(e *domain.Event, aggregatorHost string) []string {
	site := "site:" + aggregatorHost
	var queries []string
	if title := SearchTitle(e); title != "" {
		queries = append(queries, site+` "`+title+`"`)
		if !domain.IsBlank(e.Source) {
			queries = append(queries, site+` "`+title+`" `+e.Source)
		}
	}
	if terms := sources.SearchTermsFromURL(e.URL); terms != "" {
		queries = append(queries, site+" "+terms)
	}
	return limit(queries, MaxQueries)
}

// Score rates how well a search result matches the event: +3 for an equal
// title key, +1 for containment, +2 for the same publisher.
func Score(e *domain.Event, c domain.Candidate) int {
	target := sources.NormalizeTitleKey(e.Title())
	targetSource := sources.NormalizeSource(e.Source)
	if targetSource == "" {
		targetSource = sources.NormalizeSource(sources.FromURL(e.URL))
	}
	title := sources.NormalizeTitleKey(c.TitleEn)
	source := sources.NormalizeSource(c.Source)

	score := 0
	if target != "" && title != "" {
		switch {
		case target == title:
			score += 3
		case strings.Contains(title, target) || strings.Contains(target, title):
			score++
		}
	}
	if targetSource != "" && source == targetSource {
		score += 2
	}
	return score
}

func unique(queries []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		if q == "" {
			continue
		}
		key := strings.ToLower(q)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
	}
	return out
}

func limit(queries []string, n int) []string {
	if len(queries) > n {
		return queries[:n]
	}
	return queries
}
