package guardian

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aegisguard/aegis/internal/analyst"
	"github.com/aegisguard/aegis/internal/ollama"
	"github.com/aegisguard/aegis/internal/retrieval"
)

type fakeChat struct {
	resp  string
	err   error
	calls int
}

func (f *fakeChat) Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error) {
	f.calls++
	return f.resp, f.err
}

func newTestReviewer(chat *fakeChat) *Reviewer {
	return NewReviewer(chat, "guardian-model", 7, 5*time.Second, nil)
}

var riskVerdict = analyst.Verdict{
	RiskDetected: true,
	Explanation:  "original explanation",
	Suggestion:   "original suggestion",
}

func TestReviewSkipsNoRiskVerdicts(t *testing.T) {
	chat := &fakeChat{}
	r := newTestReviewer(chat)

	v := analyst.Verdict{RiskDetected: false, Explanation: "fine"}
	got := r.Review(context.Background(), v, "utterance")

	if chat.calls != 0 {
		t.Errorf("expected no reviewer call for no-risk verdict, got %d", chat.calls)
	}
	if got.Verdict != v || got.GuardianReviewed || got.NeedsImprovement {
		t.Errorf("expected untouched verdict, got %+v", got)
	}
}

func TestReviewAdoptsRefinementAtThreshold(t *testing.T) {
	chat := &fakeChat{resp: `{"quality_score": 7, "explanation": "refined explanation", "suggestion": "refined suggestion"}`}
	r := newTestReviewer(chat)

	got := r.Review(context.Background(), riskVerdict, "utterance")

	if !got.GuardianReviewed {
		t.Error("expected GuardianReviewed true")
	}
	if got.QualityScore == nil || *got.QualityScore != 7 {
		t.Errorf("expected quality score 7, got %v", got.QualityScore)
	}
	if got.Explanation != "refined explanation" || got.Suggestion != "refined suggestion" {
		t.Errorf("expected refinement adopted at threshold, got %+v", got)
	}
	if got.NeedsImprovement {
		t.Error("expected NeedsImprovement false")
	}
	if !got.RiskDetected {
		t.Error("risk flag must survive review")
	}
}

func TestReviewKeepsOriginalsBelowThreshold(t *testing.T) {
	chat := &fakeChat{resp: `{"quality_score": 6, "explanation": "refined explanation", "suggestion": "refined suggestion"}`}
	r := newTestReviewer(chat)

	got := r.Review(context.Background(), riskVerdict, "utterance")

	if !got.GuardianReviewed {
		t.Error("expected GuardianReviewed true")
	}
	if !got.NeedsImprovement {
		t.Error("expected NeedsImprovement for score below threshold")
	}
	if got.Explanation != "original explanation" || got.Suggestion != "original suggestion" {
		t.Errorf("expected original wording kept, got %+v", got)
	}
}

func TestReviewFailSoftOnTransportError(t *testing.T) {
	chat := &fakeChat{err: errors.New("connection refused")}
	r := newTestReviewer(chat)

	got := r.Review(context.Background(), riskVerdict, "utterance")

	if got.GuardianReviewed {
		t.Error("expected GuardianReviewed false on failure")
	}
	if got.Verdict != riskVerdict {
		t.Errorf("expected worker verdict preserved, got %+v", got)
	}
}

func TestReviewFailSoftOnGarbage(t *testing.T) {
	chat := &fakeChat{resp: "not json at all"}
	r := newTestReviewer(chat)

	got := r.Review(context.Background(), riskVerdict, "utterance")
	if got.GuardianReviewed {
		t.Error("expected GuardianReviewed false on parse failure")
	}
	if got.Verdict != riskVerdict {
		t.Errorf("expected worker verdict preserved, got %+v", got)
	}
}

func TestReviewFailSoftOnEmptyObject(t *testing.T) {
	chat := &fakeChat{resp: `{}`}
	r := newTestReviewer(chat)

	got := r.Review(context.Background(), riskVerdict, "utterance")
	if got.GuardianReviewed {
		t.Error("a refinement without its fields must not count as reviewed")
	}
	if got.QualityScore != nil {
		t.Errorf("expected nil quality score, got %v", got.QualityScore)
	}
	if got.Verdict != riskVerdict {
		t.Errorf("expected worker verdict preserved, got %+v", got)
	}
}

func TestUnreviewedAlertOmitsQualityScore(t *testing.T) {
	raw, err := json.Marshal(Reviewed{Verdict: riskVerdict})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "quality_score") {
		t.Errorf("unreviewed verdict must not serialize a quality score, got %s", raw)
	}

	score := 0
	raw, err = json.Marshal(Reviewed{Verdict: riskVerdict, GuardianReviewed: true, QualityScore: &score})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"quality_score":0`) {
		t.Errorf("a reviewed score of zero must survive serialization, got %s", raw)
	}
}

func TestParseRefinementRejectsOutOfRangeScore(t *testing.T) {
	if _, err := parseRefinement(`{"quality_score": 11, "explanation": "e", "suggestion": "s"}`); err == nil {
		t.Fatal("expected out-of-range score to be rejected")
	}
}

func TestSanitizeRules(t *testing.T) {
	results := []retrieval.Result{
		{PassageID: "a", SourceDoc: "r.md", Text: "Disclose all fees up front.", Rank: 1},
		{PassageID: "b", SourceDoc: "r.md", Text: "Never request Personal Information over voice.", Rank: 2},
		{PassageID: "c", SourceDoc: "r.md", Text: "This passage is CONFIDENTIAL material.", Rank: 3},
		{PassageID: "d", SourceDoc: "r.md", Text: "Avoid discriminating language.", Rank: 4},
		{PassageID: "e", SourceDoc: "r.md", Text: "State risks clearly.", Rank: 5},
	}

	kept := SanitizeRules(results, nil)
	if len(kept) != 2 {
		t.Fatalf("expected 2 passages kept, got %d", len(kept))
	}
	if kept[0].PassageID != "a" || kept[1].PassageID != "e" {
		t.Errorf("unexpected survivors: %s, %s", kept[0].PassageID, kept[1].PassageID)
	}
}

func TestSanitizeRulesEmpty(t *testing.T) {
	if got := SanitizeRules(nil, nil); len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}
