package parser

import (
	"encoding/json"
	"reflect"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/ports"
)

const maxJSONDepth = 24

var tagExpr = regexp.MustCompile(`<[a-zA-Z!/][^>]*>`)

// bodyKeys lists structured-data keys from most to least specific.
var bodyKeys = []string{"articleBody", "text", "description"}

// articleSelectors are common article-body containers, probed in order.
var articleSelectors = []string{
	`[itemprop="articleBody"]`,
	`[data-testid="article-body"]`,
	`[data-component="text-block"]`,
	"article .article-body",
	".article-body",
	".article__body",
	".article-content",
	".story-body",
	".story-content",
	".entry-content",
	".post-content",
	".content__article-body",
	"#article-body",
	"article",
	"main",
}

// Extractor turns raw HTML into article body text.
type Extractor struct {
	minLength int
	selectors []string
}

var _ ports.TextExtractor = (*Extractor)(nil)

// NewExtractor accepts text strictly longer than minLength characters; zero
// means domain.MinTextLength.
func NewExtractor(minLength int) *Extractor {
	if minLength <= 0 {
		minLength = domain.MinTextLength
	}
	return &Extractor{minLength: minLength, selectors: articleSelectors}
}

// Extract returns the first usable text of the structured data, selector and
// whole-document stages, or "".
func (x *Extractor) Extract(markup string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}
	if !tagExpr.MatchString(markup) {
		return x.accept(strings.TrimSpace(markup))
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	doc.Find("style").Remove()

	if text := x.accept(x.fromStructuredData(doc)); text != "" {
		return text
	}
	if text := x.accept(x.fromSelectors(doc)); text != "" {
		return text
	}
	doc.Find("script, noscript").Remove()
	if len(doc.Nodes) == 0 {
		return ""
	}
	return x.accept(NodeText(doc.Nodes[0]))
}

func (x *Extractor) accept(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= x.minLength {
		return ""
	}
	return text
}

func (x *Extractor) fromStructuredData(doc *goquery.Document) string {
	buckets := map[string][]string{}
	doc.Find(`script[type="application/ld+json"], script[type="application/json"]`).Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var tree any
		if err := json.Unmarshal([]byte(raw), &tree); err != nil {
			return
		}
		collectBodies(tree, buckets)
	})

	for _, key := range bodyKeys {
		best := ""
		for _, candidate := range buckets[key] {
			text := candidate
			if tagExpr.MatchString(text) {
				text = HTMLToText(text)
			}
			text = strings.TrimSpace(text)
			if utf8.RuneCountInString(text) > utf8.RuneCountInString(best) {
				best = text
			}
		}
		if utf8.RuneCountInString(best) > x.minLength {
			return best
		}
	}
	return ""
}

// collectBodies walks a decoded JSON tree with an explicit stack, bounded in
// depth and guarded against revisiting the same container.
func collectBodies(root any, buckets map[string][]string) {
	type frame struct {
		value any
		depth int
	}
	wanted := map[string]bool{}
	for _, k := range bodyKeys {
		wanted[k] = true
	}
	visited := map[uintptr]bool{}
	stack := []frame{{value: root}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > maxJSONDepth {
			continue
		}

		switch v := f.value.(type) {
		case map[string]any:
			ptr := reflect.ValueOf(v).Pointer()
			if visited[ptr] {
				continue
			}
			visited[ptr] = true
			for key, child := range v {
				if s, ok := child.(string); ok {
					if wanted[key] {
						buckets[key] = append(buckets[key], s)
					}
					continue
				}
				stack = append(stack, frame{value: child, depth: f.depth + 1})
			}
		case []any:
			if len(v) > 0 {
				ptr := reflect.ValueOf(v).Pointer()
				if visited[ptr] {
					continue
				}
				visited[ptr] = true
			}
			for _, child := range v {
				stack = append(stack, frame{value: child, depth: f.depth + 1})
			}
		}
	}
}

func (x *Extractor) fromSelectors(doc *goquery.Document) string {
	best := ""
	for _, selector := range x.selectors {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			clone := s.Clone()
			clone.Find("script, noscript").Remove()
			for _, n := range clone.Nodes {
				text := NodeText(n)
				if utf8.RuneCountInString(text) > utf8.RuneCountInString(best) {
					best = text
				}
			}
		})
	}
	return best
}
