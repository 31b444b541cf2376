package analyst

import (
	"encoding/json"
	"fmt"
	"strings"
)

// parseVerdict extracts a Verdict from a model response. Small local
// models frequently wrap JSON in markdown code fences or prepend
// conversational filler, so the parser:
//  1. Strips markdown code fences if present (```json ... ```)
//  2. Finds the first { and last } to extract the JSON object
//  3. Attempts json.Unmarshal on the extracted substring
//
// A verdict missing any of its three fields is rejected: an empty or
// partial object must not pass for a clean judgement.
func parseVerdict(resp string) (Verdict, error) {
	s := strings.TrimSpace(resp)

	// Strip markdown code fences.
	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	// Extract JSON object by brace position.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return Verdict{}, fmt.Errorf("no JSON object in response")
	}

	// Pointer fields distinguish an absent field from a zero value.
	var raw struct {
		RiskDetected *bool   `json:"risk_detected"`
		Explanation  *string `json:"explanation"`
		Suggestion   *string `json:"suggestion"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &raw); err != nil {
		return Verdict{}, fmt.Errorf("unmarshaling verdict: %w", err)
	}
	if raw.RiskDetected == nil || raw.Explanation == nil || raw.Suggestion == nil {
		return Verdict{}, fmt.Errorf("verdict missing required fields")
	}
	return Verdict{
		RiskDetected: *raw.RiskDetected,
		Explanation:  *raw.Explanation,
		Suggestion:   *raw.Suggestion,
	}, nil
}
