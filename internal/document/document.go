// Package document reads certificate files and returns their plain text.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrUnsupported is returned for file types with no text extractor
	ErrUnsupported = errors.New("unsupported document type")

	// ErrNoText is returned when a document holds no extractable text (e.g. a scanned PDF)
	ErrNoText = errors.New("document has no extractable text")
)

// Extensions lists the file extensions Load understands
func Extensions() []string {
	return []string{".pdf", ".html", ".htm", ".txt", ".text", ".md"}
}

// Supported reports whether path has a known extension
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions() {
		if ext == e {
			return true
		}
	}
	return false
}

// Load reads path and extracts its text
func Load(path string) (string, error) {
	if !Supported(path) {
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return Extract(filepath.Base(path), content)
}

// Extract picks an extractor by the extension of name and cleans the result
func Extract(name string, content []byte) (string, error) {
	var (
		text string
		err  error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		text, err = extractPDF(content)
	case ".html", ".htm":
		text, err = extractHTML(content)
	case ".txt", ".text", ".md":
		text = string(content)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(name))
	}
	if err != nil {
		return "", err
	}

	text = Clean(text)
	if text == "" {
		return "", ErrNoText
	}
	return text, nil
}

// Clean applies NFKC (full-width digits, ligatures and no-break spaces fold to plain forms),
// collapses runs of blanks within a line and drops empty lines.
func Clean(text string) string {
	text = norm.NFKC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, isBlank), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func isBlank(r rune) bool {
	return r != '\n' && unicode.IsSpace(r)
}

func extractPDF(content []byte) (text string, err error) {
	if len(content) == 0 {
		return "", ErrNoText
	}

	// The pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("read pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	var b strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(pageText)
	}
	return b.String(), nil
}

func extractHTML(content []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return visibleText(doc), nil
}

// visibleText walks text nodes, skipping scripts/styles.
// Table cells are tab separated and block elements end a line, so certificate tables keep their rows.
func visibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "head":
				return
			case "br":
				buf.WriteString("\n")
			}
		}

		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}

		if n.Type == html.ElementNode {
			switch n.Data {
			case "td", "th":
				buf.WriteString("\t")
			case "tr", "p", "div", "li", "h1", "h2", "h3", "h4", "h5", "h6", "table", "section":
				buf.WriteString("\n")
			}
		}
	}

	walk(n)
	return buf.String()
}
