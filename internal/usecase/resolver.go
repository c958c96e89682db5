package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"NewsGrinder/internal/candidates"
	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/logging"
	"NewsGrinder/internal/metrics"
	"NewsGrinder/internal/ports"
	"NewsGrinder/internal/ratelimit"
	"NewsGrinder/internal/sources"
	"NewsGrinder/internal/verify"
)

const (
	outcomeResolved = "resolved"
	outcomeFailed   = "failed"
	outcomeExisting = "existing"

	// backfillScoreEnough stops the gnUrl backfill search early.
	backfillScoreEnough = 3
	// backfillTopResults is how many hits per backfill query are scored.
	backfillTopResults = 6
	// alternativeRounds bounds try-alternatives: the first pass and one more
	// after escalating search.
	alternativeRounds = 2
)

// OrchestratorDeps wires the collaborators of one event resolution. Browser,
// External, Archive, Summarizer and AIGate may be nil.
type OrchestratorDeps struct {
	Fetcher    ports.Fetcher
	Browser    ports.Browser
	Extractor  ports.TextExtractor
	Verifier   *verify.Verifier
	Decoder    ports.URLDecoder
	News       ports.NewsSearcher
	External   ports.ExternalSearcher
	Archive    ports.Archive
	Summarizer ports.Summarizer
	Candidates *candidates.Resolver
	AIGate     *ratelimit.Gate
	Events     *logging.Events
	Metrics    *metrics.Metrics
}

// OrchestratorOptions tune retries, pauses and the topic taxonomy.
type OrchestratorOptions struct {
	FetchAttempts      int
	DecodeFailurePause time.Duration
	AggregatorHost     string
	// TopicName maps a model topic to the configured spelling, "" if unknown.
	TopicName func(string) string
	// AIDelay spaces the next summarization by the tokens the last one used.
	AIDelay func(tokens int) time.Duration
	Sleep   ratelimit.Sleeper
}

// Orchestrator drives one event from missing URL to verified text: metadata
// recovery, primary fetch, then ranked alternatives with at most one search
// expansion per channel.
type Orchestrator struct {
	deps OrchestratorDeps
	opts OrchestratorOptions
	log  *logging.Events
}

// NewOrchestrator fills option defaults.
func NewOrchestrator(deps OrchestratorDeps, opts OrchestratorOptions) *Orchestrator {
	if deps.Events == nil {
		deps.Events = logging.NewEvents(nil, nil)
	}
	if opts.FetchAttempts < 1 {
		opts.FetchAttempts = 2
	}
	if opts.AggregatorHost == "" {
		opts.AggregatorHost = "news.google.com"
	}
	if opts.TopicName == nil {
		opts.TopicName = func(topic string) string { return topic }
	}
	if opts.Sleep == nil {
		opts.Sleep = ratelimit.Sleep
	}
	return &Orchestrator{deps: deps, opts: opts, log: deps.Events}
}

// Process resolves the event text and summarizes it. It reports whether the
// event ends with a summary. A failed resolution keeps its own trace for the
// failure digest.
func (o *Orchestrator) Process(ctx context.Context, e *domain.Event) bool {
	if !o.Resolve(ctx, e) || ctx.Err() != nil {
		return false
	}
	if o.summarize(ctx, e) {
		return true
	}
	if e.Trace.Phase != "summary" {
		o.log.Log(ctx, e, slog.LevelWarn, fmt.Sprintf("#%d summary missing", e.ID), logging.Fields{
			Phase:  "summary",
			Status: "missing",
		})
	}
	return false
}

// Resolve runs the state machine and reports whether the event ends with
// usable text. Failures are recorded on the event trace, never returned.
func (o *Orchestrator) Resolve(ctx context.Context, e *domain.Event) bool {
	o.backfillFromArchive(ctx, e)
	if hasText(e.Text) {
		o.deps.Metrics.Resolution(outcomeExisting)
		return true
	}

	o.hydrate(ctx, e)
	o.backfillGnURL(ctx, e)

	if o.fetchPrimary(ctx, e) || o.tryAlternatives(ctx, e) {
		o.deps.Metrics.Resolution(outcomeResolved)
		return true
	}
	o.deps.Metrics.Resolution(outcomeFailed)
	return false
}

func (o *Orchestrator) fetchPrimary(ctx context.Context, e *domain.Event) bool {
	if domain.IsBlank(e.URL) {
		if domain.IsBlank(e.GnURL) {
			return false
		}
		link, ok := o.decodePrimary(ctx, e)
		if !ok {
			return false
		}
		e.URL = link
	}

	attempt := o.fetchText(ctx, e, e.URL, false)
	switch {
	case attempt == nil:
		return false
	case attempt.OK:
		o.accept(ctx, e, attempt)
		return true
	case attempt.Mismatch:
		o.log.Log(ctx, e, slog.LevelWarn, fmt.Sprintf("#%d text mismatch, switching to fallback", e.ID), logging.Fields{
			Phase:       "verify_mismatch",
			Status:      "fail",
			Reason:      attempt.Verify.Reason,
			PageSummary: attempt.Verify.PageSummary,
		})
	}
	return false
}

// decodePrimary decodes the event's aggregator link. A failure pauses and
// retries once.
func (o *Orchestrator) decodePrimary(ctx context.Context, e *domain.Event) (string, bool) {
	for try := 1; try <= 2; try++ {
		link, err := o.deps.Decoder.Decode(ctx, e.GnURL)
		if err == nil && !domain.IsBlank(link) {
			o.log.Log(ctx, e, slog.LevelInfo, fmt.Sprintf("#%d url decoded", e.ID), logging.Fields{
				Phase:  "decode_url",
				Status: "ok",
				URL:    link,
			})
			return link, true
		}
		o.log.Log(ctx, e, slog.LevelWarn, fmt.Sprintf("#%d url decode failed", e.ID), logging.Fields{
			Phase:   "decode_url",
			Status:  "fail",
			Attempt: try,
			Error:   err,
		})
		if try == 1 && ctx.Err() == nil {
			if err := o.opts.Sleep(ctx, o.opts.DecodeFailurePause); err != nil {
				return "", false
			}
		}
	}
	return "", false
}

// fetchText tries direct fetch then the browser, FetchAttempts times. A nil
// result means no usable text was found.
func (o *Orchestrator) fetchText(ctx context.Context, e *domain.Event, link string, isFallback bool) *domain.Attempt {
	found := false
	for attempt := 1; attempt <= o.opts.FetchAttempts; attempt++ {
		for _, method := range []domain.FetchMethod{domain.MethodFetch, domain.MethodBrowse} {
			if ctx.Err() != nil {
				return nil
			}
			html := o.load(ctx, e, method, link)
			text := ""
			if html != "" {
				text = strings.TrimSpace(o.deps.Extractor.Extract(html))
			}
			if !hasText(text) {
				o.log.Log(ctx, e, slog.LevelWarn, fmt.Sprintf("#%d %s no text (%d/%d)", e.ID, method, attempt, o.opts.FetchAttempts), logging.Fields{
					Phase:   "fetch",
					Method:  string(method),
					Status:  "no_text",
					Attempt: attempt,
					URL:     link,
				})
				continue
			}

			found = true
			o.log.Log(ctx, e, slog.LevelInfo, fmt.Sprintf("#%d %s ok (%d/%d)", e.ID, method, attempt, o.opts.FetchAttempts), logging.Fields{
				Phase:      "fetch",
				Method:     string(method),
				Status:     "ok",
				Attempt:    attempt,
				TextLength: utf8.RuneCountInString(text),
				URL:        link,
			})

			result := o.verify(ctx, e, link, text, isFallback, method, attempt)
			if result.OK {
				return &domain.Attempt{OK: true, Method: method, HTML: html, Text: text, Verify: result}
			}
			if result.Status == domain.VerifyMismatch {
				return &domain.Attempt{Mismatch: true, Method: method, Verify: result}
			}
		}
	}
	if !found {
		o.log.Log(ctx, e, slog.LevelWarn, fmt.Sprintf("#%d no text after %d attempts", e.ID, o.opts.FetchAttempts), logging.Fields{
			Phase:  "fetch",
			Status: "no_text",
			URL:    link,
		})
	}
	return nil
}

func (o *Orchestrator) load(ctx context.Context, e *domain.Event, method domain.FetchMethod, link string) string {
	if method == domain.MethodFetch {
		return o.deps.Fetcher.FetchDirect(ctx, link)
	}
	if o.deps.Browser == nil {
		return ""
	}
	html, err := o.deps.Browser.Browse(ctx, link)
	switch {
	case err != nil:
		o.deps.Metrics.Fetch(string(method), "error")
		o.log.Logger().Warn("browse failed", "event_id", e.ID, "url", link, "error", err)
		return ""
	case html == "":
		o.deps.Metrics.Fetch(string(method), "empty")
	default:
		o.deps.Metrics.Fetch(string(method), "ok")
	}
	return html
}

func (o *Orchestrator) verify(ctx context.Context, e *domain.Event, link, text string, isFallback bool, method domain.FetchMethod, attempt int) domain.VerifyResult {
	result := o.deps.Verifier.Verify(ctx, verify.Request{
		Title:      e.Title(),
		Source:     e.Source,
		URL:        link,
		Text:       text,
		IsFallback: isFallback,
	})
	o.deps.Metrics.Verify(string(result.Status))

	fields := logging.Fields{
		Phase:       "verify",
		Status:      string(result.Status),
		Method:      string(method),
		Attempt:     attempt,
		TextLength:  utf8.RuneCountInString(text),
		Confidence:  result.Confidence,
		Reason:      result.Reason,
		PageSummary: result.PageSummary,
		Tokens:      result.Tokens,
		Error:       result.Err,
		URL:         link,
	}
	level := slog.LevelInfo
	label := string(result.Status)
	switch result.Status {
	case domain.VerifyUnverified:
		level = slog.LevelWarn
		label = "unverified (judge unavailable)"
	case domain.VerifyMismatch, domain.VerifyError:
		level = slog.LevelWarn
	}
	o.log.Log(ctx, e, level, fmt.Sprintf("#%d verify %s (%s)", e.ID, label, method), fields)
	return result
}

// accept stores a successful attempt on the event and in the archive.
func (o *Orchestrator) accept(ctx context.Context, e *domain.Event, attempt *domain.Attempt) {
	e.SetText(attempt.Text)
	if attempt.Verify.Status.Persistable() {
		e.VerifyStatus = attempt.Verify.Status
	}
	if domain.IsBlank(e.Source) && !o.isAggregator(e.URL) {
		e.Source = sources.FromURL(e.URL)
	}
	if o.deps.Archive == nil {
		return
	}
	if err := o.deps.Archive.Save(e.ID, e.URL, attempt.HTML, e.Title(), e.Text); err != nil {
		o.log.Log(ctx, e, slog.LevelWarn, fmt.Sprintf("#%d archive save failed", e.ID), logging.Fields{
			Phase:  "archive",
			Status: "error",
			Error:  err,
		})
	}
}

func (o *Orchestrator) tryAlternatives(ctx context.Context, e *domain.Event) bool {
	tried := map[string]struct{}{}
	for round := 0; round < alternativeRounds; round++ {
		if ctx.Err() != nil {
			return false
		}

		alternatives := o.deps.Candidates.Alternatives(e)
		if round == 0 {
			if candidates.ShouldExpand(e, alternatives) && o.expandAggregator(ctx, e) > 0 {
				alternatives = o.deps.Candidates.Alternatives(e)
			}
		} else {
			if !o.escalate(ctx, e, untried(alternatives, tried)) {
				break
			}
			alternatives = o.deps.Candidates.Alternatives(e)
		}

		pending := untried(alternatives, tried)
		o.logCandidates(ctx, e, pending)
		for _, alt := range pending {
			tried[alt.Link()] = struct{}{}
			if o.tryCandidate(ctx, e, alt) {
				return true
			}
			if ctx.Err() != nil {
				return false
			}
		}
	}

	var pool []map[string]any
	for _, entry := range o.deps.Candidates.Pool(e) {
		pool = append(pool, map[string]any{"source": entry.Source, "level": entry.Level})
	}
	o.log.Log(ctx, e, slog.LevelWarn, fmt.Sprintf("#%d fallback exhausted", e.ID), logging.Fields{
		Phase:      "fallback_failed",
		Status:     "fail",
		Candidates: pool,
	})
	return false
}

// escalate runs the searches not yet used for the event before the second
// pass. It reports whether anything was searched.
func (o *Orchestrator) escalate(ctx context.Context, e *domain.Event, pending []candidates.Ranked) bool {
	searched := false
	if !e.Transient.AggregatorExpanded {
		o.expandAggregator(ctx, e)
		searched = true
	}
	if o.externalEnabled() && !e.Transient.ExternalExpanded && candidates.ShouldSearchExternal(pending) {
		o.expandExternal(ctx, e)
		searched = true
	}
	return searched
}

func (o *Orchestrator) tryCandidate(ctx context.Context, e *domain.Event, alt candidates.Ranked) bool {
	level := logging.IntPtr(alt.Level)
	link := strings.TrimSpace(alt.URL)
	if link == "" || o.isAggregator(link) {
		decoded, err := o.deps.Decoder.Decode(ctx, firstOf(alt.GnURL, link))
		if err != nil || domain.IsBlank(decoded) {
			o.log.Log(ctx, e, slog.LevelWarn, fmt.Sprintf("#%d fallback decode failed (%s)", e.ID, alt.Source), logging.Fields{
				Phase:           "fallback_decode",
				Status:          "fail",
				CandidateSource: alt.Source,
				Level:           level,
				Error:           err,
			})
			return false
		}
		link = decoded
		o.log.Log(ctx, e, slog.LevelInfo, fmt.Sprintf("#%d fallback url decoded (%s)", e.ID, alt.Source), logging.Fields{
			Phase:           "fallback_decode",
			Status:          "ok",
			CandidateSource: alt.Source,
			Level:           level,
			URL:             decoded,
		})
	}

	attempt := o.fetchText(ctx, e, link, true)
	switch {
	case attempt == nil:
		return false
	case attempt.Mismatch:
		o.log.Log(ctx, e, slog.LevelWarn, fmt.Sprintf("#%d fallback text mismatch (%s)", e.ID, alt.Source), logging.Fields{
			Phase:           "fallback_verify_mismatch",
			Status:          "fail",
			CandidateSource: alt.Source,
			Level:           level,
			Reason:          attempt.Verify.Reason,
			PageSummary:     attempt.Verify.PageSummary,
		})
		return false
	case !attempt.OK:
		return false
	}

	e.Source = alt.Source
	if !domain.IsBlank(alt.GnURL) {
		e.GnURL = alt.GnURL
	}
	e.URL = link
	o.accept(ctx, e, attempt)
	o.log.Log(ctx, e, slog.LevelInfo, fmt.Sprintf("#%d fallback selected %s", e.ID, alt.Source), logging.Fields{
		Phase:           "fallback_selected",
		Status:          "ok",
		CandidateSource: alt.Source,
		Level:           level,
	})
	return true
}

func (o *Orchestrator) logCandidates(ctx context.Context, e *domain.Event, list []candidates.Ranked) {
	if len(list) == 0 {
		o.log.Log(ctx, e, slog.LevelWarn, fmt.Sprintf("#%d no fallback candidates", e.ID), logging.Fields{
			Phase:  "fallback_candidates",
			Status: "empty",
		})
		return
	}
	names := make([]string, 0, len(list))
	summary := make([]map[string]any, 0, len(list))
	for _, alt := range list {
		names = append(names, fmt.Sprintf("%s(%d)", alt.Source, alt.Level))
		summary = append(summary, map[string]any{"source": alt.Source, "level": alt.Level})
	}
	o.log.Log(ctx, e, slog.LevelInfo, fmt.Sprintf("#%d fallback candidates: %s", e.ID, strings.Join(names, ", ")), logging.Fields{
		Phase:      "fallback_candidates",
		Status:     "ok",
		Candidates: summary,
	})
}

// expandAggregator merges related coverage found by the aggregator search.
// It runs at most once per event and returns the number of new candidates.
func (o *Orchestrator) expandAggregator(ctx context.Context, e *domain.Event) int {
	if e.Transient.AggregatorExpanded || o.deps.News == nil {
		return 0
	}
	e.Transient.AggregatorExpanded = true

	queries := candidates.FallbackQueries(e)
	added := 0
	for _, query := range queries {
		var found []domain.Candidate
		for _, item := range o.deps.News.SearchNews(ctx, query) {
			found = append(found, item.Candidate)
			found = append(found, item.Articles...)
		}
		added += candidates.Merge(e, found)
		if added > 0 || ctx.Err() != nil {
			break
		}
	}
	o.logExpansion(ctx, e, "aggregator", queries, added)
	return added
}

// expandExternal merges ranked external search hits. It runs at most once
// per event.
func (o *Orchestrator) expandExternal(ctx context.Context, e *domain.Event) int {
	if e.Transient.ExternalExpanded {
		return 0
	}
	e.Transient.ExternalExpanded = true

	queries := candidates.FallbackQueries(e)
	added := 0
	for _, query := range queries {
		ranked := o.deps.Candidates.FromResults(e, o.deps.External.SearchExternal(ctx, query))
		found := make([]domain.Candidate, 0, len(ranked))
		for _, r := range ranked {
			found = append(found, r.Candidate)
		}
		added += candidates.Merge(e, found)
		if added > 0 || ctx.Err() != nil {
			break
		}
	}
	o.logExpansion(ctx, e, "external", queries, added)
	return added
}

func (o *Orchestrator) logExpansion(ctx context.Context, e *domain.Event, channel string, queries []string, added int) {
	status, level := "ok", slog.LevelInfo
	if added == 0 {
		status, level = "empty", slog.LevelWarn
	}
	o.log.Log(ctx, e, level, fmt.Sprintf("#%d %s search added %d candidates", e.ID, channel, added), logging.Fields{
		Phase:   "fallback_search",
		Status:  status,
		Method:  channel,
		Queries: queries,
	})
}

func (o *Orchestrator) externalEnabled() bool {
	return o.deps.External != nil && o.deps.External.Enabled()
}

func (o *Orchestrator) isAggregator(link string) bool {
	host := sources.Host(link)
	return host != "" && host == strings.TrimPrefix(strings.ToLower(o.opts.AggregatorHost), "www.")
}

// untried keeps the ranked candidates whose link was not attempted yet.
func untried(list []candidates.Ranked, tried map[string]struct{}) []candidates.Ranked {
	out := make([]candidates.Ranked, 0, len(list))
	for _, alt := range list {
		if _, ok := tried[alt.Link()]; ok {
			continue
		}
		out = append(out, alt)
	}
	return out
}

func hasText(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) > domain.MinTextLength
}
