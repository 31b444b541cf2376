package guardian

import (
	"log/slog"
	"strings"

	"github.com/aegisguard/aegis/internal/retrieval"
)

// ruleDenylist holds substrings that mark a retrieved passage as
// unsafe to feed into the worker prompt. Matching is case-insensitive.
var ruleDenylist = []string{
	"discriminat",
	"personal information",
	"confidential",
}

// SanitizeRules drops retrieved passages containing denylisted terms
// before they are injected into an analysis prompt, logging each
// rejection. Ranks of surviving results are left as retrieved.
func SanitizeRules(results []retrieval.Result, logger *slog.Logger) []retrieval.Result {
	if logger == nil {
		logger = slog.Default()
	}

	kept := results[:0:0]
	for _, res := range results {
		if term := denylisted(res.Text); term != "" {
			logger.Warn("rule passage rejected by guardian",
				"passage_id", res.PassageID, "source", res.SourceDoc, "term", term)
			continue
		}
		kept = append(kept, res)
	}
	return kept
}

func denylisted(text string) string {
	lower := strings.ToLower(text)
	for _, term := range ruleDenylist {
		if strings.Contains(lower, term) {
			return term
		}
	}
	return ""
}
