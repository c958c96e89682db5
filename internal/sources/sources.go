// Package sources normalizes publisher names and titles and ranks publishers
// by trust level.
package sources

import (
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	quoteMarks    = regexp.MustCompile("[’'\"`.]")
	dashes        = regexp.MustCompile("[–—-]")
	leadingThe    = regexp.MustCompile(`^the\s+`)
	whitespace    = regexp.MustCompile(`\s+`)
	fancyDouble   = regexp.MustCompile("[“”„«»]")
	fancySingle   = regexp.MustCompile("[‘’]")
	pipeSuffix    = regexp.MustCompile(`\s+\|\s+.*$`)
	dashSuffix    = regexp.MustCompile(`\s+-\s+[^-]+$`)
	titlePrefixes = regexp.MustCompile(`(?i)^(live updates:|analysis:|opinion:)\s+`)
	separators    = regexp.MustCompile(`[-_]+`)
)

// NormalizeKey lowercases value, strips quotes and possessive marks, turns
// dashes into spaces, drops a leading "the" and collapses whitespace.
func NormalizeKey(value string) string {
	if value == "" {
		return ""
	}
	key := strings.ToLower(value)
	key = quoteMarks.ReplaceAllString(key, "")
	key = dashes.ReplaceAllString(key, " ")
	key = leadingThe.ReplaceAllString(key, "")
	key = whitespace.ReplaceAllString(key, " ")
	return strings.TrimSpace(key)
}

// NormalizeSource is the key under which a publisher is looked up.
func NormalizeSource(source string) string {
	return NormalizeKey(source)
}

// NormalizeTitleForSearch removes entities, quotes and a trailing
// " - Publisher" or " | Section" suffix from a headline.
func NormalizeTitleForSearch(title string) string {
	if title == "" {
		return ""
	}
	cleaned := html.UnescapeString(title)
	cleaned = strings.ReplaceAll(cleaned, "\u00a0", " ")
	cleaned = fancyDouble.ReplaceAllString(cleaned, `"`)
	cleaned = fancySingle.ReplaceAllString(cleaned, "'")
	cleaned = strings.ReplaceAll(cleaned, `"`, "")
	cleaned = pipeSuffix.ReplaceAllString(cleaned, "")
	cleaned = dashSuffix.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(cleaned)
}

// NormalizeTitleKey is the dedup key of a headline.
func NormalizeTitleKey(title string) string {
	cleaned := NormalizeTitleForSearch(title)
	if cleaned == "" {
		return ""
	}
	cleaned = titlePrefixes.ReplaceAllString(cleaned, "")
	return NormalizeKey(cleaned)
}

// Host returns the hostname of rawURL without a leading "www.".
func Host(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
}

var hostOverrides = []struct {
	domain string
	name   string
}{
	{"cnn.com", "CNN"},
	{"nytimes.com", "The New York Times"},
	{"washingtonpost.com", "The Washington Post"},
	{"wsj.com", "The Wall Street Journal"},
	{"ft.com", "Financial Times"},
	{"bbc.com", "BBC"},
	{"bbc.co.uk", "BBC"},
	{"reuters.com", "Reuters"},
	{"bloomberg.com", "Bloomberg"},
	{"foxnews.com", "Fox News"},
	{"cnbc.com", "CNBC"},
	{"politico.com", "Politico"},
	{"thehill.com", "The Hill"},
	{"axios.com", "Axios"},
	{"npr.org", "NPR"},
	{"apnews.com", "AP News"},
	{"theguardian.com", "The Guardian"},
	{"tradingview.com", "TradingView"},
}

// FromURL infers a publisher name from the host of rawURL.
func FromURL(rawURL string) string {
	host := Host(rawURL)
	if host == "" {
		return ""
	}
	for _, o := range hostOverrides {
		if host == o.domain || strings.HasSuffix(host, "."+o.domain) {
			return o.name
		}
	}
	parts := strings.Split(host, ".")
	base := host
	if len(parts) >= 2 {
		base = parts[len(parts)-2]
	}
	base = separators.ReplaceAllString(base, " ")
	words := strings.Fields(base)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

var newsmlPrefix = regexp.MustCompile(`(?i)newsml_[^:-]+[:\d-]*`)
var leadingPunct = regexp.MustCompile(`(?i)^[^a-z0-9]+`)

// SearchTermsFromURL turns the last path segment of rawURL into search terms.
func SearchTermsFromURL(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || rawURL == "" {
		return ""
	}
	var slug string
	for _, part := range strings.Split(parsed.Path, "/") {
		if part != "" {
			slug = part
		}
	}
	if slug == "" {
		return ""
	}
	if strings.Contains(slug, "newsml_") {
		if idx := strings.LastIndex(slug, ":0-"); idx != -1 {
			slug = slug[idx+3:]
		}
		slug = newsmlPrefix.ReplaceAllString(slug, "")
	}
	slug = leadingPunct.ReplaceAllString(slug, "")
	terms := strings.NewReplacer("-", " ", "_", " ").Replace(slug)
	return strings.TrimSpace(whitespace.ReplaceAllString(terms, " "))
}
