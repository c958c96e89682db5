package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"NewsGrinder/internal/candidates"
	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/logging"
	"NewsGrinder/internal/ports"
	"NewsGrinder/internal/sources"
)

// backfillFromArchive restores url, title, source and text from the artifacts
// saved by an earlier run. Only blank fields are filled.
func (o *Orchestrator) backfillFromArchive(ctx context.Context, e *domain.Event) {
	if o.deps.Archive == nil || e.ID == 0 {
		return
	}
	artifact, err := o.deps.Archive.Load(e.ID)
	if err != nil {
		if !errors.Is(err, ports.ErrNotFound) {
			o.log.Logger().Warn("archive load failed", "event_id", e.ID, "error", err)
		}
		return
	}

	if domain.IsBlank(e.URL) && !domain.IsBlank(artifact.URL) {
		e.URL = artifact.URL
	}
	if domain.IsBlank(e.TitleEn) && !domain.IsBlank(artifact.Title) {
		e.TitleEn = artifact.Title
	}
	if domain.IsBlank(e.Source) && !domain.IsBlank(e.URL) && !o.isAggregator(e.URL) {
		e.Source = sources.FromURL(e.URL)
	}
	if domain.IsBlank(e.Text) && !domain.IsBlank(artifact.Text) {
		e.SetText(artifact.Text)
	}
}

// hydrate fills missing title, source and gnUrl from the best aggregator hit
// and adopts its related coverage when the event has no candidates.
func (o *Orchestrator) hydrate(ctx context.Context, e *domain.Event) bool {
	if o.deps.News == nil {
		return false
	}
	hasMeta := !domain.IsBlank(e.TitleEn) && !domain.IsBlank(e.Source) && !domain.IsBlank(e.GnURL)
	hasArticles := len(e.Articles) > 0
	if hasMeta && hasArticles {
		return false
	}

	query := candidates.BuildSearchQuery(e)
	if query == "" {
		return false
	}
	results := o.deps.News.SearchNews(ctx, query)
	if len(results) == 0 {
		return false
	}

	best := results[0]
	fillBlank(&e.TitleEn, best.TitleEn)
	fillBlank(&e.Source, best.Source)
	fillBlank(&e.GnURL, best.GnURL)

	if !hasArticles {
		articles := best.Articles
		if len(articles) == 0 {
			for _, item := range results {
				if domain.IsBlank(item.GnURL) || domain.IsBlank(item.Source) {
					continue
				}
				articles = append(articles, domain.Candidate{
					TitleEn: item.TitleEn,
					GnURL:   item.GnURL,
					Source:  item.Source,
				})
			}
		}
		if len(articles) > 0 {
			e.Articles = append([]domain.Candidate(nil), articles...)
		}
	}

	o.log.Log(ctx, e, slog.LevelInfo, fmt.Sprintf("#%d aggregator metadata filled", e.ID), logging.Fields{
		Phase:  "gn_search",
		Status: "ok",
		Query:  query,
	})
	return true
}

// backfillGnURL looks for the aggregator link of an event that only has a
// publisher URL or a title.
func (o *Orchestrator) backfillGnURL(ctx context.Context, e *domain.Event) bool {
	if !domain.IsBlank(e.GnURL) || o.deps.News == nil {
		return false
	}
	queries := candidates.BackfillQueries(e)
	if len(queries) == 0 {
		return false
	}

	var best *domain.Candidate
	bestScore := -1
	usedQuery := ""
	for _, query := range queries {
		results := o.deps.News.SearchNews(ctx, query)
		if len(results) == 0 {
			continue
		}
		usedQuery = query
		if len(results) > backfillTopResults {
			results = results[:backfillTopResults]
		}
		for i := range results {
			if score := candidates.Score(e, results[i].Candidate); score > bestScore {
				best = &results[i].Candidate
				bestScore = score
			}
		}
		if bestScore >= backfillScoreEnough || ctx.Err() != nil {
			break
		}
	}

	if best == nil {
		if o.backfillGnURLExternal(ctx, e) {
			return true
		}
		o.log.Log(ctx, e, slog.LevelWarn, fmt.Sprintf("#%d aggregator link not found", e.ID), logging.Fields{
			Phase:   "gn_backfill",
			Status:  "empty",
			Queries: queries,
		})
		return false
	}

	changed := fillBlank(&e.TitleEn, best.TitleEn)
	changed = fillBlank(&e.Source, best.Source) || changed
	changed = fillBlank(&e.GnURL, best.GnURL) || changed
	if changed {
		o.log.Log(ctx, e, slog.LevelInfo, fmt.Sprintf("#%d aggregator link recovered", e.ID), logging.Fields{
			Phase:           "gn_backfill",
			Status:          "ok",
			Query:           usedQuery,
			CandidateSource: best.Source,
		})
	}
	return changed
}

func (o *Orchestrator) backfillGnURLExternal(ctx context.Context, e *domain.Event) bool {
	if !o.externalEnabled() {
		return false
	}
	for _, query := range candidates.ExternalBackfillQueries(e, o.opts.AggregatorHost) {
		for _, hit := range o.deps.External.SearchExternal(ctx, query) {
			if domain.IsBlank(hit.GnURL) {
				continue
			}
			e.GnURL = hit.GnURL
			fillBlank(&e.TitleEn, hit.TitleEn)
			fillBlank(&e.Source, hit.Source)
			o.log.Log(ctx, e, slog.LevelInfo, fmt.Sprintf("#%d aggregator link recovered externally", e.ID), logging.Fields{
				Phase:           "gn_backfill_external",
				Status:          "ok",
				Query:           query,
				CandidateSource: hit.Source,
			})
			return true
		}
		if ctx.Err() != nil {
			return false
		}
	}
	return false
}

// fillBlank sets *dst to value when *dst is blank and value is not.
func fillBlank(dst *string, value string) bool {
	if !domain.IsBlank(*dst) || domain.IsBlank(value) {
		return false
	}
	*dst = value
	return true
}
