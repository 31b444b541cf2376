package guardian

import (
	"encoding/json"
	"fmt"
	"strings"
)

type refinement struct {
	QualityScore int    `json:"quality_score"`
	Explanation  string `json:"explanation"`
	Suggestion   string `json:"suggestion"`
}

// parseRefinement extracts the reviewer's output with the same
// leniency as the worker verdict parser: strip code fences, take the
// outermost braces, unmarshal. A refinement missing any field is
// rejected so an empty object cannot be mistaken for a score of zero.
func parseRefinement(resp string) (refinement, error) {
	s := strings.TrimSpace(resp)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return refinement{}, fmt.Errorf("no JSON object in response")
	}

	var raw struct {
		QualityScore *int    `json:"quality_score"`
		Explanation  *string `json:"explanation"`
		Suggestion   *string `json:"suggestion"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &raw); err != nil {
		return refinement{}, fmt.Errorf("unmarshaling refinement: %w", err)
	}
	if raw.QualityScore == nil || raw.Explanation == nil || raw.Suggestion == nil {
		return refinement{}, fmt.Errorf("refinement missing required fields")
	}
	if *raw.QualityScore < 0 || *raw.QualityScore > 10 {
		return refinement{}, fmt.Errorf("quality score %d out of range", *raw.QualityScore)
	}
	return refinement{
		QualityScore: *raw.QualityScore,
		Explanation:  *raw.Explanation,
		Suggestion:   *raw.Suggestion,
	}, nil
}
