package ports

import (
	"context"
	"errors"
	"time"

	"NewsGrinder/internal/domain"
)

// ErrNotFound reports a missing stored artifact.
var ErrNotFound = errors.New("not found")

// RowStore loads and saves the sheet that backs the event table.
type RowStore interface {
	LoadRows(ctx context.Context) (domain.Sheet, error)
	SaveRow(ctx context.Context, headers []string, index int, row domain.Row) error
	SaveAllRows(ctx context.Context, sheet domain.Sheet) error
}

// SummaryRequest carries the article handed to the summarizer.
type SummaryRequest struct {
	Title  string
	Source string
	URL    string
	Text   string
}

// Summary is the structured answer of the summarizer.
type Summary struct {
	Topic    string
	Priority string
	TitleRu  string
	Summary  string
	Tokens   int
}

// Summarizer turns final article text into topic, priority, title and summary.
type Summarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (Summary, error)
}

// MatchRequest is the input of one verification call.
type MatchRequest struct {
	Title  string
	Source string
	URL    string
	Text   string
}

// Judgement is the AI opinion on whether fetched text matches an event.
type Judgement struct {
	Match       bool
	Confidence  float64
	Reason      string
	PageSummary string
	Tokens      int
}

// MatchJudge asks an AI service whether text belongs to a headline.
type MatchJudge interface {
	Judge(ctx context.Context, req MatchRequest) (Judgement, error)
}

// Fetcher retrieves a page directly. An empty result means no text.
type Fetcher interface {
	FetchDirect(ctx context.Context, url string) string
}

// Browser retrieves a page through a headless browser. An empty result with a
// nil error means the page produced nothing.
type Browser interface {
	Browse(ctx context.Context, url string) (string, error)
}

// TextExtractor converts raw HTML into article body text.
type TextExtractor interface {
	Extract(html string) string
}

// URLDecoder resolves an aggregator redirect link to the publisher URL.
type URLDecoder interface {
	Decode(ctx context.Context, gnURL string) (string, error)
}

// NewsItem is one aggregator search result with its related coverage.
type NewsItem struct {
	domain.Candidate
	Articles []domain.Candidate
}

// NewsSearcher queries the aggregator search. Failures yield an empty slice.
type NewsSearcher interface {
	SearchNews(ctx context.Context, query string) []NewsItem
}

// ExternalSearcher queries a paid web search provider.
type ExternalSearcher interface {
	Enabled() bool
	SearchExternal(ctx context.Context, query string) []domain.Candidate
}

// Artifact is the stored pair recovered from the article archive.
type Artifact struct {
	URL   string
	HTML  string
	Title string
	Text  string
}

// Archive keeps raw HTML and extracted text per event id.
type Archive interface {
	Save(id int, url, html, title, text string) error
	Load(id int) (Artifact, error)
}

// Notifier streams digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when pipelines execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// Autosaver defers row store writes while a batch runs.
type Autosaver interface {
	Pause()
	Resume(ctx context.Context)
	Flush(ctx context.Context) error
}
