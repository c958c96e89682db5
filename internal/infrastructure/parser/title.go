package parser

import (
	"html"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var titleMeta = []string{
	`meta[property="og:title"], meta[name="og:title"]`,
	`meta[property="twitter:title"], meta[name="twitter:title"]`,
	`meta[name="title"]`,
}

// ExtractTitle returns the page headline from og:title, twitter:title, the
// title meta tag or the <title> element.
func ExtractTitle(markup string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	for _, selector := range titleMeta {
		if content, ok := doc.Find(selector).First().Attr("content"); ok {
			if title := clean(content); title != "" {
				return title
			}
		}
	}
	return clean(doc.Find("title").First().Text())
}

func clean(value string) string {
	value = html.UnescapeString(value)
	return strings.Join(strings.Fields(value), " ")
}
