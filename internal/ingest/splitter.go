package ingest

import "strings"

// minPassageLength filters out headings, list markers and other
// fragments too short to carry a complete compliance rule.
const minPassageLength = 50

// SplitPassages breaks document text into retrieval passages on blank
// lines. Whitespace inside a passage is collapsed to single spaces and
// passages shorter than minPassageLength characters are dropped.
func SplitPassages(text string) []string {
	var passages []string
	for _, block := range strings.Split(text, "\n\n") {
		passage := strings.Join(strings.Fields(block), " ")
		if len(passage) < minPassageLength {
			continue
		}
		passages = append(passages, passage)
	}
	return passages
}
