// Package archive stores the raw page and extracted text of every resolved
// event on disk.
package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"NewsGrinder/internal/domain"
	"NewsGrinder/internal/infrastructure/parser"
	"NewsGrinder/internal/ports"
)

var urlComment = regexp.MustCompile(`^<!--\s*([\s\S]*?)\s*-->\n?`)

// Disk keeps {id}.html and {id}.txt under one directory. The html file starts
// with the resolved URL in a comment; the txt file is the title, a blank line
// and the text.
type Disk struct {
	dir string
}

var _ ports.Archive = (*Disk)(nil)

// NewDisk uses dir, creating it on first save.
func NewDisk(dir string) *Disk {
	return &Disk{dir: dir}
}

// Save writes both artifacts of event id.
func (d *Disk) Save(id int, url, html, title, text string) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	page := "<!--\n" + url + "\n-->\n" + html
	if err := os.WriteFile(d.path(id, "html"), []byte(page), 0o644); err != nil {
		return fmt.Errorf("write html %d: %w", id, err)
	}
	body := title + "\n\n" + domain.CapText(text)
	if err := os.WriteFile(d.path(id, "txt"), []byte(body), 0o644); err != nil {
		return fmt.Errorf("write text %d: %w", id, err)
	}
	return nil
}

// Load reads what exists of the artifact pair. It returns ports.ErrNotFound
// when neither file is present.
func (d *Disk) Load(id int) (ports.Artifact, error) {
	var art ports.Artifact
	found := false

	page, err := os.ReadFile(d.path(id, "html"))
	switch {
	case err == nil:
		found = true
		html := string(page)
		if m := urlComment.FindStringSubmatch(html); m != nil {
			art.URL = strings.TrimSpace(m[1])
			html = html[len(m[0]):]
		}
		art.HTML = html
		art.Title = parser.ExtractTitle(html)
	case !errors.Is(err, fs.ErrNotExist):
		return art, fmt.Errorf("read html %d: %w", id, err)
	}

	raw, err := os.ReadFile(d.path(id, "txt"))
	switch {
	case err == nil:
		found = true
		art.Text = textOf(string(raw))
	case !errors.Is(err, fs.ErrNotExist):
		return art, fmt.Errorf("read text %d: %w", id, err)
	}

	if !found {
		return art, ports.ErrNotFound
	}
	return art, nil
}

// textOf returns everything after the first blank line, or the whole file
// when there is none.
func textOf(raw string) string {
	text := raw
	if i := strings.Index(raw, "\n\n"); i >= 0 {
		text = raw[i+2:]
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = strings.TrimSpace(raw)
	}
	return domain.CapText(text)
}

func (d *Disk) path(id int, ext string) string {
	return filepath.Join(d.dir, strconv.Itoa(id)+"."+ext)
}
