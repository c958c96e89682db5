// Package table holds the in-memory news table. Mutations go through the
// table so that a change hook can schedule a debounced save.
package table

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"NewsGrinder/internal/domain"
)

// Table is the ordered set of events loaded from the row store.
type Table struct {
	mu       sync.Mutex
	headers  []string
	events   []*domain.Event
	onChange func()
}

// New builds a table from a loaded sheet. Ids are assigned from the 1-based
// row position when the row has none.
func New(sheet domain.Sheet) *Table {
	t := &Table{}
	t.load(sheet)
	return t
}

// Replace swaps the content for a freshly loaded sheet. The change hook is
// not called since the sheet already matches the store.
func (t *Table) Replace(sheet domain.Sheet) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.load(sheet)
}

func (t *Table) load(sheet domain.Sheet) {
	t.headers = append([]string(nil), sheet.Headers...)
	t.events = make([]*domain.Event, 0, len(sheet.Rows))
	for i, row := range sheet.Rows {
		e := Decode(row)
		if e.ID == 0 {
			e.ID = i + 1
		}
		t.events = append(t.events, e)
	}
	t.ensureHeaders()
}

// OnChange registers the hook called by MarkDirty.
func (t *Table) OnChange(fn func()) {
	t.mu.Lock()
	t.onChange = fn
	t.mu.Unlock()
}

// MarkDirty reports that an event changed in place.
func (t *Table) MarkDirty() {
	t.mu.Lock()
	fn := t.onChange
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Events returns the live events in table order.
func (t *Table) Events() []*domain.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*domain.Event(nil), t.events...)
}

// Len is the number of rows.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}

// Headers returns the column headers.
func (t *Table) Headers() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.headers...)
}

// Append adds an event at the end of the table.
func (t *Table) Append(e *domain.Event) {
	t.mu.Lock()
	t.events = append(t.events, e)
	t.ensureHeaders()
	t.mu.Unlock()
	t.MarkDirty()
}

// NextID returns max(id)+1.
func (t *Table) NextID() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	max := 0
	for _, e := range t.events {
		if e.ID > max {
			max = e.ID
		}
	}
	return max + 1
}

// FindByURL returns the first event whose url or gnUrl equals link.
func (t *Table) FindByURL(link string) *domain.Event {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.events {
		if strings.TrimSpace(e.URL) == link || strings.TrimSpace(e.GnURL) == link {
			return e
		}
	}
	return nil
}

// Index returns the position of e in the table or -1.
func (t *Table) Index(e *domain.Event) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, item := range t.events {
		if item == e {
			return i
		}
	}
	return -1
}

// Row encodes the event at position i.
func (t *Table) Row(i int) domain.Row {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Encode(t.events[i])
}

// Snapshot encodes the whole table for saving.
func (t *Table) Snapshot() domain.Sheet {
	t.mu.Lock()
	defer t.mu.Unlock()
	sheet := domain.Sheet{Headers: append([]string(nil), t.headers...)}
	for _, e := range t.events {
		sheet.Rows = append(sheet.Rows, Encode(e))
	}
	return sheet
}

// Sort orders rows by (sqk or 999)*1000 + topic id*10 + (priority or 10).
// Topics missing from topicIDs rank as 99.
func (t *Table) Sort(topicIDs map[string]int) {
	t.mu.Lock()
	sort.SliceStable(t.events, func(i, j int) bool {
		return Order(t.events[i], topicIDs) < Order(t.events[j], topicIDs)
	})
	t.mu.Unlock()
	t.MarkDirty()
}

// Order is the sort key of one event.
func Order(e *domain.Event, topicIDs map[string]int) float64 {
	sqk := number(e.Sqk)
	if sqk == 0 {
		sqk = 999
	}
	topic, ok := topicIDs[e.Topic]
	if !ok {
		topic = 99
	}
	priority := number(e.Priority)
	if priority == 0 {
		priority = 10
	}
	return sqk*1000 + float64(topic)*10 + priority
}

func number(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return f
}

// ensureHeaders appends known columns absent from the loaded headers and any
// Extra keys introduced by appended events.
func (t *Table) ensureHeaders() {
	have := make(map[string]bool, len(t.headers))
	for _, h := range t.headers {
		have[h] = true
	}
	for _, c := range KnownColumns {
		if !have[c] {
			t.headers = append(t.headers, c)
			have[c] = true
		}
	}
	var extra []string
	for _, e := range t.events {
		for k := range e.Extra {
			if !have[k] {
				extra = append(extra, k)
				have[k] = true
			}
		}
	}
	sort.Strings(extra)
	t.headers = append(t.headers, extra...)
}
