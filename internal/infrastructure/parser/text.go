package parser

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Head:     true,
	atom.Nav:      true,
	atom.Aside:    true,
	atom.Footer:   true,
	atom.Img:      true,
	atom.Hr:       true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Button:   true,
}

// paragraph elements are separated by a blank line, block elements by a
// line break.
var paragraph = map[atom.Atom]bool{
	atom.P: true, atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true,
	atom.H5: true, atom.H6: true, atom.Blockquote: true, atom.Pre: true,
	atom.Table: true, atom.Ul: true, atom.Ol: true, atom.Figure: true,
}

var block = map[atom.Atom]bool{
	atom.Div: true, atom.Section: true, atom.Article: true, atom.Main: true,
	atom.Header: true, atom.Li: true, atom.Tr: true, atom.Dt: true,
	atom.Dd: true, atom.Figcaption: true, atom.Form: true, atom.Address: true,
	atom.Details: true, atom.Summary: true,
}

// NodeText renders n and its descendants as plain text. Link text is kept
// without the href and headings keep their case.
func NodeText(n *html.Node) string {
	w := &textWriter{}
	w.walk(n)
	return w.String()
}

// HTMLToText parses markup and renders the whole document as plain text.
func HTMLToText(markup string) string {
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return ""
	}
	return NodeText(doc)
}

type textWriter struct {
	b            strings.Builder
	pendingBreak int
	pendingSpace bool
	lineHasText  bool
}

func (w *textWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		w.text(n.Data)
		return
	case html.ElementNode:
		if skipped[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Br {
			w.lineBreak(1)
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}

	breaks := 0
	switch {
	case paragraph[n.DataAtom]:
		breaks = 2
	case block[n.DataAtom]:
		breaks = 1
	}
	if breaks > 0 {
		w.lineBreak(breaks)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if breaks > 0 {
		w.lineBreak(breaks)
	}
}

func (w *textWriter) lineBreak(n int) {
	if n > w.pendingBreak {
		w.pendingBreak = n
	}
	w.pendingSpace = false
}

func (w *textWriter) text(s string) {
	if s == "" {
		return
	}
	words := strings.Fields(s)
	leading := isSpace(s[0])
	trailing := isSpace(s[len(s)-1])
	if len(words) == 0 {
		if w.lineHasText && w.pendingBreak == 0 {
			w.pendingSpace = true
		}
		return
	}

	if w.pendingBreak > 0 {
		if w.b.Len() > 0 {
			w.b.WriteString(strings.Repeat("\n", w.pendingBreak))
		}
		w.pendingBreak = 0
		w.pendingSpace = false
		w.lineHasText = false
	}
	if w.lineHasText && (w.pendingSpace || leading) {
		w.b.WriteByte(' ')
	}
	w.b.WriteString(strings.Join(words, " "))
	w.lineHasText = true
	w.pendingSpace = trailing
}

func (w *textWriter) String() string {
	return strings.TrimSpace(w.b.String())
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
