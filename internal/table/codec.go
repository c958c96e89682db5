package table

import (
	"encoding/json"
	"strconv"
	"strings"

	"NewsGrinder/internal/domain"
)

// Column names of the news sheet.
const (
	ColID           = "id"
	ColDate         = "date"
	ColSqk          = "sqk"
	ColTopic        = "topic"
	ColPriority     = "priority"
	ColTitleEn      = "titleEn"
	ColTitleRu      = "titleRu"
	ColSource       = "source"
	ColGnURL        = "gnUrl"
	ColURL          = "url"
	ColSummary      = "summary"
	ColAITopic      = "aiTopic"
	ColAIPriority   = "aiPriority"
	ColVerifyStatus = "verifyStatus"
	ColText         = "text"
	ColArticles     = "articles"
)

// KnownColumns is the column order used for a fresh sheet.
var KnownColumns = []string{
	ColID, ColDate, ColSqk, ColTopic, ColPriority, ColTitleEn, ColTitleRu,
	ColSource, ColGnURL, ColURL, ColSummary, ColAITopic, ColAIPriority,
	ColVerifyStatus, ColText, ColArticles,
}

var known = func() map[string]bool {
	m := make(map[string]bool, len(KnownColumns))
	for _, c := range KnownColumns {
		m[c] = true
	}
	return m
}()

// Decode builds an event from a sheet row. Unknown columns go to Extra.
func Decode(row domain.Row) *domain.Event {
	e := &domain.Event{
		Date:         row[ColDate],
		Sqk:          row[ColSqk],
		Topic:        row[ColTopic],
		Priority:     row[ColPriority],
		TitleEn:      row[ColTitleEn],
		TitleRu:      row[ColTitleRu],
		Source:       row[ColSource],
		GnURL:        row[ColGnURL],
		URL:          row[ColURL],
		Summary:      row[ColSummary],
		AITopic:      row[ColAITopic],
		AIPriority:   row[ColAIPriority],
		VerifyStatus: domain.VerifyStatus(row[ColVerifyStatus]),
		Text:         row[ColText],
		Articles:     ParseArticles(row[ColArticles]),
	}
	if id, err := strconv.Atoi(strings.TrimSpace(row[ColID])); err == nil && id > 0 {
		e.ID = id
	}
	for k, v := range row {
		if known[k] {
			continue
		}
		if e.Extra == nil {
			e.Extra = map[string]string{}
		}
		e.Extra[k] = v
	}
	return e
}

// Encode renders an event as a sheet row.
func Encode(e *domain.Event) domain.Row {
	row := domain.Row{}
	for k, v := range e.Extra {
		row[k] = v
	}
	if e.ID > 0 {
		row[ColID] = strconv.Itoa(e.ID)
	} else {
		row[ColID] = ""
	}
	row[ColDate] = e.Date
	row[ColSqk] = e.Sqk
	row[ColTopic] = e.Topic
	row[ColPriority] = e.Priority
	row[ColTitleEn] = e.TitleEn
	row[ColTitleRu] = e.TitleRu
	row[ColSource] = e.Source
	row[ColGnURL] = e.GnURL
	row[ColURL] = e.URL
	row[ColSummary] = e.Summary
	row[ColAITopic] = e.AITopic
	row[ColAIPriority] = e.AIPriority
	row[ColVerifyStatus] = string(e.VerifyStatus)
	row[ColText] = e.Text
	row[ColArticles] = FormatArticles(e.Articles)
	return row
}

// ParseArticles reads the JSON candidate list stored in a cell. Malformed
// values yield an empty list.
func ParseArticles(value string) []domain.Candidate {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	var list []domain.Candidate
	if err := json.Unmarshal([]byte(value), &list); err != nil {
		return nil
	}
	return list
}

// FormatArticles serializes candidates for a cell.
func FormatArticles(list []domain.Candidate) string {
	if len(list) == 0 {
		return ""
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return ""
	}
	return string(raw)
}
