// Package guardian runs the second inference stage: an independent
// reviewer model checks and refines worker verdicts before they become
// alerts, and screens retrieved rules before they reach the worker.
package guardian

import (
	"context"
	"log/slog"
	"time"

	"github.com/aegisguard/aegis/internal/analyst"
	"github.com/aegisguard/aegis/internal/ollama"
)

// Reviewed is a worker verdict after guardian review.
type Reviewed struct {
	analyst.Verdict

	// GuardianReviewed reports whether the reviewer's judgement was
	// obtained. False means the alert carries the worker verdict
	// unreviewed (reviewer unavailable or unparseable).
	GuardianReviewed bool `json:"guardian_reviewed"`

	// QualityScore is the reviewer's 0 to 10 rating of the worker
	// verdict. Nil (and absent from JSON) when no review happened,
	// so an unreviewed alert cannot read as "scored 0".
	QualityScore *int `json:"quality_score,omitempty"`

	// NeedsImprovement is set when the reviewer scored the verdict
	// below the quality threshold, so the original explanation and
	// suggestion were kept rather than the refinement.
	NeedsImprovement bool `json:"needs_improvement"`
}

// chatClient is the slice of ollama.Client the reviewer needs.
type chatClient interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// Reviewer wraps the guardian model behind a single Review call.
type Reviewer struct {
	client    chatClient
	model     string
	threshold int
	timeout   time.Duration
	logger    *slog.Logger
}

// NewReviewer creates a Reviewer. Refinements scoring below threshold
// are discarded in favour of the worker's original wording. A nil
// logger falls back to slog.Default.
func NewReviewer(client chatClient, model string, threshold int, timeout time.Duration, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reviewer{client: client, model: model, threshold: threshold, timeout: timeout, logger: logger}
}

const reviewSystemPrompt = `You are a senior compliance reviewer. A junior analyst flagged an ` +
	`utterance as a compliance risk. Assess the analyst's verdict and improve it where you can. ` +
	`Respond with a single JSON object with exactly these fields: ` +
	`"quality_score" (integer 0-10 rating the analyst's verdict), ` +
	`"explanation" (your refined explanation), "suggestion" (your refined compliant rephrasing).`

var reviewSchema = &ollama.Schema{
	Type: "object",
	Properties: map[string]ollama.SchemaProperty{
		"quality_score": {Type: "integer", Description: "Quality of the analyst verdict, 0 to 10"},
		"explanation":   {Type: "string", Description: "Refined explanation of the violation"},
		"suggestion":    {Type: "string", Description: "Refined compliant rephrasing"},
	},
	Required: []string{"quality_score", "explanation", "suggestion"},
}

// Review assesses a worker verdict. Verdicts without detected risk are
// returned untouched; no reviewer call is made for them. When the
// reviewer cannot be reached or parsed, the worker verdict stands with
// GuardianReviewed false.
func (r *Reviewer) Review(ctx context.Context, verdict analyst.Verdict, utterance string) Reviewed {
	if !verdict.RiskDetected {
		return Reviewed{Verdict: verdict}
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Chat(callCtx, r.model, []ollama.Message{
		{Role: "system", Content: reviewSystemPrompt},
		{Role: "user", Content: buildReviewPrompt(verdict, utterance)},
	}, reviewSchema)
	if err != nil {
		r.logger.Warn("guardian review failed", "error", err)
		return Reviewed{Verdict: verdict}
	}

	refinement, err := parseRefinement(resp)
	if err != nil {
		r.logger.Warn("guardian refinement unparseable", "response", resp, "error", err)
		return Reviewed{Verdict: verdict}
	}

	score := refinement.QualityScore
	reviewed := Reviewed{
		Verdict:          verdict,
		GuardianReviewed: true,
		QualityScore:     &score,
	}
	if refinement.QualityScore >= r.threshold {
		reviewed.Explanation = refinement.Explanation
		reviewed.Suggestion = refinement.Suggestion
	} else {
		reviewed.NeedsImprovement = true
	}
	return reviewed
}

func buildReviewPrompt(verdict analyst.Verdict, utterance string) string {
	return "Utterance: " + utterance + "\n" +
		"Analyst explanation: " + verdict.Explanation + "\n" +
		"Analyst suggestion: " + verdict.Suggestion + "\n\n" +
		"Rate the analyst's verdict and provide your refined explanation and suggestion. Respond with the JSON object only."
}
