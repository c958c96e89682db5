// Package candidates ranks related-article candidates for an event and builds
// the search queries used to discover more of them.
package candidates

import (
	"math"
	"sort"

	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/sources"
)

const noTitleKey = "__no_title__"

// Ranked is a candidate annotated with the values it is ranked by.
type Ranked struct {
	domain.Candidate
	Level            int
	NormalizedSource string
	NormalizedTitle  string
	HasDirectURL     bool
}

// PoolEntry is one publisher of the unfiltered candidate pool.
type PoolEntry struct {
	Source string
	Level  int
}

// Resolver filters and orders an event's candidates by publisher trust.
type Resolver struct {
	trust            *sources.TrustTable
	minLevel         int
	fallbackMinLevel int
}

// NewResolver builds a resolver. Candidates below minLevel are dropped; when
// that leaves nothing, fallbackMinLevel is tried if it is lower.
func NewResolver(trust *sources.TrustTable, minLevel, fallbackMinLevel int) *Resolver {
	return &Resolver{trust: trust, minLevel: minLevel, fallbackMinLevel: fallbackMinLevel}
}

// Alternatives returns the event's candidates that are worth trying, best
// first. Either the primary-level set or the relaxed set is returned, never a
// mix of both.
func (r *Resolver) Alternatives(e *domain.Event) []Ranked {
	items := r.annotate(e.Articles)

	if primary := filter(e, items, r.minLevel); len(primary) > 0 {
		return sortRanked(primary)
	}
	if r.fallbackMinLevel < r.minLevel {
		return sortRanked(filter(e, items, r.fallbackMinLevel))
	}
	return nil
}

// FromResults ranks search results against the event without a trust floor.
func (r *Resolver) FromResults(e *domain.Event, results []domain.Candidate) []Ranked {
	if len(results) == 0 {
		return nil
	}
	return sortRanked(filter(e, r.annotate(results), math.MinInt))
}

// Pool lists every publisher among the event's candidates once, by trust.
// It is only used to explain exhausted resolutions.
func (r *Resolver) Pool(e *domain.Event) []PoolEntry {
	seen := map[string]struct{}{}
	var pool []PoolEntry
	for _, c := range e.Articles {
		if c.Link() == "" || domain.IsBlank(c.Source) {
			continue
		}
		key := sources.NormalizeSource(c.Source)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		pool = append(pool, PoolEntry{Source: c.Source, Level: r.trust.Level(c.Source)})
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].Level > pool[j].Level })
	return pool
}

// ShouldExpand reports whether the pool needs more candidates from search:
// it is empty or every candidate comes from the event's own publisher.
func ShouldExpand(e *domain.Event, alternatives []Ranked) bool {
	if len(alternatives) == 0 {
		return true
	}
	current := sources.NormalizeSource(e.Source)
	if current == "" {
		return true
	}
	for _, alt := range alternatives {
		if sources.NormalizeSource(alt.Source) != current {
			return false
		}
	}
	return true
}

// ShouldSearchExternal reports whether no candidate carries a direct URL.
func ShouldSearchExternal(alternatives []Ranked) bool {
	for _, alt := range alternatives {
		if alt.HasDirectURL {
			return false
		}
	}
	return true
}

// Merge appends candidates not already attached to the event, keyed by
// publisher and link, and returns how many were added.
func Merge(e *domain.Event, items []domain.Candidate) int {
	seen := map[string]struct{}{}
	for _, c := range e.Articles {
		if key, ok := linkKey(c); ok {
			seen[key] = struct{}{}
		}
	}

	added := 0
	for _, c := range items {
		key, ok := linkKey(c)
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		e.Articles = append(e.Articles, c)
		added++
	}
	return added
}

func linkKey(c domain.Candidate) (string, bool) {
	link := c.Link()
	if link == "" || domain.IsBlank(c.Source) {
		return "", false
	}
	return sources.NormalizeSource(c.Source) + "|" + link, true
}

func (r *Resolver) annotate(list []domain.Candidate) []Ranked {
	items := make([]Ranked, 0, len(list))
	for _, c := range list {
		if c.Link() == "" || domain.IsBlank(c.Source) {
			continue
		}
		items = append(items, Ranked{
			Candidate:        c,
			Level:            r.trust.Level(c.Source),
			NormalizedSource: sources.NormalizeSource(c.Source),
			NormalizedTitle:  sources.NormalizeTitleKey(c.Title()),
			HasDirectURL:     !domain.IsBlank(c.URL),
		})
	}
	return items
}

// filter drops candidates below minLevel and deduplicates by publisher+title
// and publisher+link. A publisher already seen (the event's own included) is
// only offered again under a link different from the event's current one.
func filter(e *domain.Event, items []Ranked, minLevel int) []Ranked {
	currentSource := sources.NormalizeSource(e.Source)
	currentLink := e.Link()

	seenSource := map[string]struct{}{currentSource: {}}
	seenTitle := map[string]struct{}{}
	seenLink := map[string]struct{}{}
	if currentLink != "" {
		seenLink[currentSource+"|"+currentLink] = struct{}{}
	}

	var out []Ranked
	for _, item := range items {
		if item.NormalizedSource == "" {
			continue
		}
		link := item.Link()
		if _, ok := seenSource[item.NormalizedSource]; ok {
			if currentLink == "" || link == "" || link == currentLink {
				continue
			}
		}
		if item.Level < minLevel {
			continue
		}
		linkID := item.NormalizedSource + "|" + link
		if _, ok := seenLink[linkID]; ok {
			continue
		}
		title := item.NormalizedTitle
		if title == "" {
			title = noTitleKey
		}
		titleID := item.NormalizedSource + "|" + title
		if _, ok := seenTitle[titleID]; ok {
			continue
		}
		seenTitle[titleID] = struct{}{}
		seenLink[linkID] = struct{}{}
		seenSource[item.NormalizedSource] = struct{}{}
		out = append(out, item)
	}
	return out
}

func sortRanked(items []Ranked) []Ranked {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Level != items[j].Level {
			return items[i].Level > items[j].Level
		}
		return items[i].HasDirectURL && !items[j].HasDirectURL
	})
	return items
}
