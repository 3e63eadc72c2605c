package service

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NormalizeMarkup strips HTML markup from rich-text source fields and returns
// plain text. Block-level elements become line breaks, whitespace runs are
// collapsed and script/style bodies are dropped. Whitespace-only input
// yields "".
func NormalizeMarkup(markup string) string {
	if strings.TrimSpace(markup) == "" {
		return ""
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(markup))
	skipDepth := 0

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or malformed input both end the document
			return collapseWhitespace(b.String())
		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			b.Write(z.Text())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			}
			if isBlockElement(a) {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			}
			if isBlockElement(a) {
				b.WriteByte('\n')
			}
		}
	}
}

func isBlockElement(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Br, atom.Li, atom.Ul, atom.Ol,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Tr, atom.Table, atom.Blockquote, atom.Pre, atom.Section,
		atom.Article, atom.Header, atom.Footer, atom.Hr:
		return true
	}
	return false
}

// collapseWhitespace folds horizontal whitespace runs into one space, trims
// each line and keeps at most one blank line between paragraphs.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, func(r rune) bool {
			return unicode.IsSpace(r)
		}), " ")
		if line == "" {
			if len(out) > 0 {
				blank = true
			}
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
