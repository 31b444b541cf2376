// Package pipeline joins the streaming stages of live monitoring:
// audio chunks in, transcript entries and alerts out.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aegisguard/aegis/internal/analyst"
	"github.com/aegisguard/aegis/internal/audio"
	"github.com/aegisguard/aegis/internal/guardian"
	"github.com/aegisguard/aegis/internal/retrieval"
	"github.com/aegisguard/aegis/internal/session"
	"github.com/aegisguard/aegis/internal/transcribe"
)

// transcriptQueueSize buffers transcribed utterances between the two
// stages so a slow analysis call does not immediately stall
// transcription.
const transcriptQueueSize = 8

// ruleRetriever is the slice of retrieval.Retriever the pipeline needs.
type ruleRetriever interface {
	Retrieve(ctx context.Context, query string) ([]retrieval.Result, error)
}

// verdictAnalyst is the slice of analyst.Analyst the pipeline needs.
type verdictAnalyst interface {
	Analyze(ctx context.Context, utterance, rules string, contextTail []string) analyst.Verdict
}

// verdictReviewer is the slice of guardian.Reviewer the pipeline needs.
type verdictReviewer interface {
	Review(ctx context.Context, verdict analyst.Verdict, utterance string) guardian.Reviewed
}

// promptContextLines is how many prior transcript lines are injected
// into each analysis prompt.
const promptContextLines = 3

// Runner drives the two monitoring stages over a stream of audio chunks.
type Runner struct {
	transcriber transcribe.Transcriber
	retriever   ruleRetriever
	analyst     verdictAnalyst
	reviewer    verdictReviewer
	ledger      *session.Ledger
	logger      *slog.Logger
}

// NewRunner wires the monitoring stages together. A nil logger falls
// back to slog.Default.
func NewRunner(
	transcriber transcribe.Transcriber,
	retriever ruleRetriever,
	analystStage verdictAnalyst,
	reviewer verdictReviewer,
	ledger *session.Ledger,
	logger *slog.Logger,
) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		transcriber: transcriber,
		retriever:   retriever,
		analyst:     analystStage,
		reviewer:    reviewer,
		ledger:      ledger,
		logger:      logger,
	}
}

// Run consumes audio chunks until the channel closes, then drains
// in-flight work and returns. Utterances flow through analysis in
// arrival order. Cancelling ctx abandons waiting work but the stage
// currently executing finishes its utterance.
func (r *Runner) Run(ctx context.Context, chunks <-chan audio.Chunk) error {
	utterances := make(chan string, transcriptQueueSize)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.analysisStage(ctx, utterances)
	}()

	r.transcriptionStage(ctx, chunks, utterances)
	close(utterances)
	<-done
	return ctx.Err()
}

// transcriptionStage converts chunks to text. Transcription failures
// and silent chunks are dropped with a log line; the transcript simply
// has a gap there.
func (r *Runner) transcriptionStage(ctx context.Context, chunks <-chan audio.Chunk, utterances chan<- string) {
	for chunk := range chunks {
		start := time.Now()
		text, err := r.transcriber.Transcribe(ctx, chunk.Data)
		if err != nil {
			r.logger.Warn("transcription failed, skipping chunk",
				"duration", chunk.Duration, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			r.logger.Debug("silent chunk skipped", "duration", chunk.Duration)
			continue
		}
		r.logger.Debug("chunk transcribed",
			"took", time.Since(start), "chars", len(text))

		select {
		case utterances <- text:
		case <-ctx.Done():
			return
		}
	}
}

// analysisStage is the ledger's only writer. Each utterance is
// recorded, grounded in retrieved rules, judged by the worker, and on
// detected risk reviewed by the guardian before an alert is appended.
func (r *Runner) analysisStage(ctx context.Context, utterances <-chan string) {
	for utterance := range utterances {
		start := time.Now()

		// ContextTail excludes the newest window entry, so the prompt
		// sees the lines before this utterance but not the utterance itself.
		entry := r.ledger.AppendTranscript(utterance)
		tail := r.ledger.ContextTail(promptContextLines)

		results, err := r.retriever.Retrieve(ctx, utterance)
		if err != nil {
			r.logger.Warn("rule retrieval failed, analyzing without grounding",
				"ordinal", entry.Ordinal, "error", err)
			results = nil
		}
		results = guardian.SanitizeRules(results, r.logger)
		rules := retrieval.FormatContext(results)

		verdict := r.analyst.Analyze(ctx, utterance, rules, tail)
		if verdict.RiskDetected {
			reviewed := r.reviewer.Review(ctx, verdict, utterance)
			alert := r.ledger.AppendAlert(utterance, reviewed)
			attrs := []any{
				"alert_id", alert.ID,
				"ordinal", entry.Ordinal,
				"guardian_reviewed", reviewed.GuardianReviewed,
			}
			if reviewed.QualityScore != nil {
				attrs = append(attrs, "quality_score", *reviewed.QualityScore)
			}
			r.logger.Info("compliance alert raised", attrs...)
		}

		r.logger.Debug("utterance analyzed",
			"ordinal", entry.Ordinal,
			"took", time.Since(start),
			"rules", len(results),
			"risk", verdict.RiskDetected)
	}
}
