package parser

import (
	"io"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/mmcdole/gofeed/rss"

	"NewsGrinder/internal/domain"
)

// FeedItem is one story of an aggregator search feed with its related
// coverage.
type FeedItem struct {
	domain.Candidate
	Published *time.Time
	Articles  []domain.Candidate
}

const sourceKey = "source"

// sourceTranslator keeps the RSS <source> element, which the universal
// translation drops, in Item.Custom.
type sourceTranslator struct {
	gofeed.DefaultRSSTranslator
}

func (t *sourceTranslator) Translate(feed interface{}) (*gofeed.Feed, error) {
	out, err := t.DefaultRSSTranslator.Translate(feed)
	if err != nil {
		return nil, err
	}
	raw, ok := feed.(*rss.Feed)
	if !ok || len(raw.Items) != len(out.Items) {
		return out, nil
	}
	for i, it := range raw.Items {
		if it == nil || it.Source == nil || out.Items[i] == nil {
			continue
		}
		if out.Items[i].Custom == nil {
			out.Items[i].Custom = map[string]string{}
		}
		out.Items[i].Custom[sourceKey] = it.Source.Title
	}
	return out, nil
}

// ParseSearchFeed reads an aggregator RSS response. Items without a link are
// dropped.
func ParseSearchFeed(r io.Reader) ([]FeedItem, error) {
	fp := gofeed.NewParser()
	fp.RSSTranslator = &sourceTranslator{}
	feed, err := fp.Parse(r)
	if err != nil {
		return nil, err
	}

	items := make([]FeedItem, 0, len(feed.Items))
	for _, it := range feed.Items {
		if it == nil || strings.TrimSpace(it.Link) == "" {
			continue
		}
		items = append(items, FeedItem{
			Candidate: domain.Candidate{
				TitleEn: strings.TrimSpace(it.Title),
				GnURL:   strings.TrimSpace(it.Link),
				Source:  strings.TrimSpace(it.Custom[sourceKey]),
			},
			Published: it.PublishedParsed,
			Articles:  ParseRelatedArticles(it.Description),
		})
	}
	return items, nil
}

// ParseRelatedArticles reads the related-coverage list of a feed item
// description: <ol><li><a href>title</a><font>source</font></li></ol>.
func ParseRelatedArticles(description string) []domain.Candidate {
	if !strings.Contains(description, "<li") {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(description))
	if err != nil {
		return nil
	}
	var out []domain.Candidate
	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		a := li.Find("a").First()
		href, _ := a.Attr("href")
		c := domain.Candidate{
			TitleEn: clean(a.Text()),
			GnURL:   strings.TrimSpace(href),
			Source:  clean(li.Find("font").First().Text()),
		}
		if c.GnURL == "" || c.Source == "" {
			return
		}
		out = append(out, c)
	})
	return out
}
