// Package ingest builds the compliance rule index from a directory of
// policy documents. It runs offline via the index command, never
// during live monitoring.
package ingest

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// Document is one policy file loaded as plain text.
type Document struct {
	// Name is the base filename, recorded as the source of every
	// passage extracted from the document.
	Name string
	Text string
}

// LoadDocuments reads every supported file in dir (non-recursive) and
// returns the extracted plain text, sorted by filename so index builds
// are reproducible. Unsupported extensions are skipped silently; a
// file that matches a supported extension but fails to parse is an error.
func LoadDocuments(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading documents directory: %w", err)
	}

	var docs []Document
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		text, ok, err := extractText(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", entry.Name(), err)
		}
		if !ok {
			continue
		}
		docs = append(docs, Document{Name: entry.Name(), Text: text})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name })
	return docs, nil
}

// extractText dispatches on extension. The bool reports whether the
// extension is supported at all.
func extractText(path string) (string, bool, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", true, err
		}
		return string(data), true, nil
	case ".html", ".htm":
		text, err := extractHTML(path)
		return text, true, err
	case ".pdf":
		text, err := extractPDF(path)
		return text, true, err
	default:
		return "", false, nil
	}
}

// extractHTML strips markup and returns the visible text content.
// Script and style bodies are excluded.
func extractHTML(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := html.Parse(f)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				b.WriteString(text)
				b.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String(), nil
}

func extractPDF(path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	r, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}

// SupportedExtensions lists the file types the loader understands,
// for help text and error messages.
func SupportedExtensions() []string {
	return []string{".txt", ".md", ".html", ".htm", ".pdf"}
}
