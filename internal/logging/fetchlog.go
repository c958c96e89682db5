package logging

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// FetchLog appends transition records as JSON lines.
type FetchLog struct {
	mu        sync.Mutex
	file      *os.File
	maxString int
	now       func() time.Time
}

// OpenFetchLog opens path for appending. An empty path returns nil, which is a
// valid no-op sink.
func OpenFetchLog(path string, maxString int) (*FetchLog, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open fetch log: %w", err)
	}
	return &FetchLog{file: f, maxString: maxString, now: time.Now}, nil
}

// Write appends one record. Strings in data are truncated.
func (l *FetchLog) Write(level, message string, data map[string]any) error {
	if l == nil {
		return nil
	}
	record := make(map[string]any, len(data)+3)
	for k, v := range data {
		record[k] = sanitize(v, l.maxString)
	}
	record["ts"] = l.now().UTC().Format(time.RFC3339Nano)
	record["level"] = level
	record["message"] = message

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode fetch log: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write fetch log: %w", err)
	}
	return nil
}

// Close releases the file.
func (l *FetchLog) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

func sanitize(value any, limit int) any {
	switch v := value.(type) {
	case string:
		return Truncate(v, limit)
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = Truncate(s, limit)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(v))
		for i, m := range v {
			cp := make(map[string]any, len(m))
			for k, item := range m {
				cp[k] = sanitize(item, limit)
			}
			out[i] = cp
		}
		return out
	default:
		return value
	}
}
