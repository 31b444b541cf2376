package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/aegisguard/aegis/internal/analyst"
	"github.com/aegisguard/aegis/internal/audio"
	"github.com/aegisguard/aegis/internal/guardian"
	"github.com/aegisguard/aegis/internal/retrieval"
	"github.com/aegisguard/aegis/internal/session"
)

type scriptedTranscriber struct {
	mu    sync.Mutex
	texts []string
	errs  []error
	calls int
}

func (s *scriptedTranscriber) Transcribe(ctx context.Context, wavData []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	var text string
	if i < len(s.texts) {
		text = s.texts[i]
	}
	return text, err
}

type stubRetriever struct {
	results []retrieval.Result
	err     error
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string) ([]retrieval.Result, error) {
	return s.results, s.err
}

type stubAnalyst struct {
	mu       sync.Mutex
	riskOn   map[string]bool
	prompts  []string
	rules    []string
	tails    [][]string
	failSoft bool
}

func (s *stubAnalyst) Analyze(ctx context.Context, utterance, rules string, contextTail []string) analyst.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, utterance)
	s.rules = append(s.rules, rules)
	s.tails = append(s.tails, contextTail)
	if s.failSoft {
		return analyst.Verdict{RiskDetected: false, Explanation: "Analysis error"}
	}
	if s.riskOn[utterance] {
		return analyst.Verdict{RiskDetected: true, Explanation: "violation", Suggestion: "rephrase"}
	}
	return analyst.Verdict{RiskDetected: false, Explanation: "compliant"}
}

type stubReviewer struct {
	mu    sync.Mutex
	calls []string
}

func (s *stubReviewer) Review(ctx context.Context, verdict analyst.Verdict, utterance string) guardian.Reviewed {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, utterance)
	score := 8
	return guardian.Reviewed{Verdict: verdict, GuardianReviewed: true, QualityScore: &score}
}

func feedChunks(n int) chan audio.Chunk {
	chunks := make(chan audio.Chunk, n)
	for i := 0; i < n; i++ {
		chunks <- audio.Chunk{Data: []byte{byte(i)}}
	}
	close(chunks)
	return chunks
}

func TestRunRecordsTranscriptInOrder(t *testing.T) {
	tr := &scriptedTranscriber{texts: []string{"first line", "second line", "third line"}}
	ledger := session.NewLedger()
	r := NewRunner(tr, &stubRetriever{}, &stubAnalyst{}, &stubReviewer{}, ledger, nil)

	if err := r.Run(context.Background(), feedChunks(3)); err != nil {
		t.Fatalf("run: %v", err)
	}

	snap := ledger.Snapshot(0, 0)
	if len(snap.Transcript) != 3 {
		t.Fatalf("expected 3 transcript entries, got %d", len(snap.Transcript))
	}
	for i, want := range []string{"first line", "second line", "third line"} {
		if snap.Transcript[i].Text != want || snap.Transcript[i].Ordinal != i {
			t.Errorf("entry %d: got %+v", i, snap.Transcript[i])
		}
	}
}

func TestRunRaisesReviewedAlerts(t *testing.T) {
	tr := &scriptedTranscriber{texts: []string{"safe talk", "guaranteed returns pitch", "more safe talk"}}
	an := &stubAnalyst{riskOn: map[string]bool{"guaranteed returns pitch": true}}
	rev := &stubReviewer{}
	ledger := session.NewLedger()
	r := NewRunner(tr, &stubRetriever{}, an, rev, ledger, nil)

	if err := r.Run(context.Background(), feedChunks(3)); err != nil {
		t.Fatalf("run: %v", err)
	}

	snap := ledger.Snapshot(0, 0)
	if len(snap.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(snap.Alerts))
	}
	alert := snap.Alerts[0]
	if alert.OriginalText != "guaranteed returns pitch" {
		t.Errorf("unexpected alert text: %q", alert.OriginalText)
	}
	if !alert.Verdict.GuardianReviewed {
		t.Error("expected alert to carry the reviewed verdict")
	}
	if len(rev.calls) != 1 {
		t.Errorf("expected exactly one review call, got %d", len(rev.calls))
	}
}

func TestRunSkipsFailedAndSilentChunks(t *testing.T) {
	tr := &scriptedTranscriber{
		texts: []string{"kept one", "", "   ", "kept two"},
		errs:  []error{nil, errors.New("stt down"), nil, nil},
	}
	ledger := session.NewLedger()
	r := NewRunner(tr, &stubRetriever{}, &stubAnalyst{}, &stubReviewer{}, ledger, nil)

	if err := r.Run(context.Background(), feedChunks(4)); err != nil {
		t.Fatalf("run: %v", err)
	}

	snap := ledger.Snapshot(0, 0)
	if len(snap.Transcript) != 2 {
		t.Fatalf("expected 2 transcript entries, got %d", len(snap.Transcript))
	}
	if snap.Transcript[0].Text != "kept one" || snap.Transcript[1].Text != "kept two" {
		t.Errorf("unexpected transcript: %+v", snap.Transcript)
	}
}

func TestRunContinuesWhenRetrievalFails(t *testing.T) {
	tr := &scriptedTranscriber{texts: []string{"some utterance"}}
	an := &stubAnalyst{}
	ledger := session.NewLedger()
	r := NewRunner(tr, &stubRetriever{err: errors.New("index gone")}, an, &stubReviewer{}, ledger, nil)

	if err := r.Run(context.Background(), feedChunks(1)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(an.prompts) != 1 {
		t.Fatalf("expected analysis despite retrieval failure, got %d calls", len(an.prompts))
	}
	if ledger.Stats().TranscriptCount != 1 {
		t.Error("expected transcript entry despite retrieval failure")
	}
}

func TestRunInjectsContextTail(t *testing.T) {
	texts := make([]string, 5)
	for i := range texts {
		texts[i] = fmt.Sprintf("utterance number %d", i)
	}
	tr := &scriptedTranscriber{texts: texts}
	an := &stubAnalyst{}
	r := NewRunner(tr, &stubRetriever{}, an, &stubReviewer{}, session.NewLedger(), nil)

	if err := r.Run(context.Background(), feedChunks(5)); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(an.tails) != 5 {
		t.Fatalf("expected 5 analysis calls, got %d", len(an.tails))
	}
	if an.tails[0] != nil {
		t.Errorf("first utterance should have no context, got %v", an.tails[0])
	}
	last := an.tails[4]
	if len(last) != 3 {
		t.Fatalf("expected 3 context lines, got %d", len(last))
	}
	if last[2] != "utterance number 3" {
		t.Errorf("expected most recent prior line last, got %v", last)
	}
	if strings.Contains(strings.Join(last, "|"), "utterance number 4") {
		t.Errorf("context must not contain the current utterance: %v", last)
	}
}

func TestRunDropsDenylistedRules(t *testing.T) {
	tr := &scriptedTranscriber{texts: []string{"an utterance"}}
	ret := &stubRetriever{results: []retrieval.Result{
		{PassageID: "ok", Text: "Disclose fees.", Rank: 1},
		{PassageID: "bad", Text: "Keep confidential records sealed.", Rank: 2},
	}}
	an := &stubAnalyst{}
	r := NewRunner(tr, ret, an, &stubReviewer{}, session.NewLedger(), nil)

	if err := r.Run(context.Background(), feedChunks(1)); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(an.rules) != 1 {
		t.Fatalf("expected 1 analysis call, got %d", len(an.rules))
	}
	if !strings.Contains(an.rules[0], "Disclose fees.") {
		t.Errorf("expected surviving rule in prompt context:\n%s", an.rules[0])
	}
	if strings.Contains(an.rules[0], "confidential") {
		t.Errorf("denylisted rule leaked into prompt context:\n%s", an.rules[0])
	}
}
