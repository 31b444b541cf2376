// Package analyst runs the first inference stage: a fast worker model
// judges each utterance against retrieved compliance rules and recent
// conversation context.
package analyst

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aegisguard/aegis/internal/ollama"
)

// Verdict is the worker model's judgement of one utterance. It is
// always well-formed: parse and transport failures produce the
// fail-soft verdict instead of an error.
type Verdict struct {
	RiskDetected bool   `json:"risk_detected"`
	Explanation  string `json:"explanation"`
	Suggestion   string `json:"suggestion"`
}

// failSoftVerdict is returned whenever the model call or its output
// cannot be used. It never raises an alert; the pipeline keeps moving.
var failSoftVerdict = Verdict{RiskDetected: false, Explanation: "Analysis error", Suggestion: ""}

// chatClient is the slice of ollama.Client the analyst needs.
type chatClient interface {
	Chat(ctx context.Context, model string, messages []ollama.Message, jsonSchema *ollama.Schema) (string, error)
}

// Analyst wraps the worker model behind a single Analyze call.
type Analyst struct {
	client  chatClient
	model   string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates an Analyst. timeout bounds each model call so one slow
// inference cannot stall the whole pipeline. A nil logger falls back
// to slog.Default.
func New(client chatClient, model string, timeout time.Duration, logger *slog.Logger) *Analyst {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyst{client: client, model: model, timeout: timeout, logger: logger}
}

const systemPrompt = `You are a compliance analyst monitoring a live business conversation. ` +
	`Judge whether the latest utterance violates any of the provided compliance rules. ` +
	`Respond with a single JSON object with exactly these fields: ` +
	`"risk_detected" (boolean), "explanation" (string), "suggestion" (string). ` +
	`If no rule is violated, set risk_detected to false and leave suggestion empty.`

// verdictSchema constrains the worker model's output shape.
var verdictSchema = &ollama.Schema{
	Type: "object",
	Properties: map[string]ollama.SchemaProperty{
		"risk_detected": {Type: "boolean", Description: "Whether the utterance violates a compliance rule"},
		"explanation":   {Type: "string", Description: "Why the utterance does or does not violate a rule"},
		"suggestion":    {Type: "string", Description: "Compliant rephrasing, empty when no risk"},
	},
	Required: []string{"risk_detected", "explanation", "suggestion"},
}

// Analyze judges one utterance. rules is the formatted retrieval
// context; contextTail holds the most recent preceding transcript
// lines, oldest first. The returned verdict is always usable.
func (a *Analyst) Analyze(ctx context.Context, utterance, rules string, contextTail []string) Verdict {
	callCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.client.Chat(callCtx, a.model, []ollama.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: buildPrompt(utterance, rules, contextTail)},
	}, verdictSchema)
	if err != nil {
		a.logger.Warn("worker analysis failed", "error", err)
		return failSoftVerdict
	}

	verdict, err := parseVerdict(resp)
	if err != nil {
		a.logger.Warn("worker verdict unparseable", "response", resp, "error", err)
		return failSoftVerdict
	}
	return verdict
}

// buildPrompt assembles the user message: rules first, then the
// conversation tail, then the utterance under judgement.
func buildPrompt(utterance, rules string, contextTail []string) string {
	var b strings.Builder
	b.WriteString("Compliance rules:\n")
	b.WriteString(rules)
	b.WriteString("\n\n")

	if len(contextTail) > 0 {
		b.WriteString("Recent conversation:\n")
		for _, line := range contextTail {
			b.WriteString(line)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Latest utterance:\n%q\n\n", utterance)
	b.WriteString("Does this utterance violate any of the compliance rules above? Respond with the JSON object only.")
	return b.String()
}
