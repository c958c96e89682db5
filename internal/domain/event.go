package domain

import (
	"strings"
	"unicode/utf8"
)

const (
	// MinTextLength is the shortest article body accepted as usable text.
	MinTextLength = 400
	// MaxTextLength caps the stored article body.
	MaxTextLength = 30000
)

// Event is one news item under processing. Persisted fields map to sheet
// columns; Transient and Trace never leave the process.
type Event struct {
	ID           int
	Date         string
	Sqk          string
	GnURL        string
	URL          string
	Source       string
	TitleEn      string
	TitleRu      string
	Text         string
	Topic        string
	Priority     string
	Summary      string
	AITopic      string
	AIPriority   string
	VerifyStatus VerifyStatus
	Articles     []Candidate

	// Extra keeps columns the pipeline does not model so they survive a save.
	Extra map[string]string

	Transient Transient
	Trace     Trace
}

// Transient holds per-run flags that guard against repeated expansion.
type Transient struct {
	AggregatorExpanded bool
	ExternalExpanded   bool
}

// Trace remembers the last logged transition for the failure digest.
type Trace struct {
	Phase       string
	Status      string
	Method      string
	Reason      string
	PageSummary string
}

// Candidate is a related-article reference attached to an Event.
type Candidate struct {
	TitleEn string `json:"titleEn,omitempty"`
	TitleRu string `json:"titleRu,omitempty"`
	Source  string `json:"source,omitempty"`
	GnURL   string `json:"gnUrl,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Link returns the aggregator link when present, otherwise the direct URL.
func (c Candidate) Link() string {
	return normalizeURL(firstNonBlank(c.GnURL, c.URL))
}

// Title returns the best available title of the candidate.
func (c Candidate) Title() string {
	return firstNonBlank(c.TitleEn, c.TitleRu)
}

// Link returns the aggregator link when present, otherwise the direct URL.
func (e *Event) Link() string {
	return normalizeURL(firstNonBlank(e.GnURL, e.URL))
}

// Title returns the English title, falling back to the Russian one.
func (e *Event) Title() string {
	return firstNonBlank(e.TitleEn, e.TitleRu)
}

// SetText stores the body capped at MaxTextLength characters.
func (e *Event) SetText(text string) {
	e.Text = CapText(text)
}

// CapText trims text to MaxTextLength runes.
func CapText(text string) string {
	if utf8.RuneCountInString(text) <= MaxTextLength {
		return text
	}
	return string([]rune(text)[:MaxTextLength])
}

// RequiredFields lists the columns that make an event complete.
var RequiredFields = []string{
	"gnUrl",
	"url",
	"source",
	"titleEn",
	"titleRu",
	"summary",
	"topic",
	"priority",
}

// MissingFields returns the required fields that are still blank.
func (e *Event) MissingFields() []string {
	values := map[string]string{
		"gnUrl":    e.GnURL,
		"url":      e.URL,
		"source":   e.Source,
		"titleEn":  e.TitleEn,
		"titleRu":  e.TitleRu,
		"summary":  e.Summary,
		"topic":    e.Topic,
		"priority": e.Priority,
	}
	var missing []string
	for _, field := range RequiredFields {
		if IsBlank(values[field]) {
			missing = append(missing, field)
		}
	}
	return missing
}

// IsComplete reports whether no required field is blank.
func (e *Event) IsComplete() bool {
	return len(e.MissingFields()) == 0
}

// IsBlank reports whether value is empty after trimming.
func IsBlank(value string) bool {
	return strings.TrimSpace(value) == ""
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if !IsBlank(v) {
			return v
		}
	}
	return ""
}

func normalizeURL(value string) string {
	return strings.TrimSpace(value)
}
