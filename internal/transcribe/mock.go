package transcribe

import (
	"context"
	"sync"
)

// DefaultUtterances are the scripted transcripts the Mock cycles through.
// They cover both clearly compliant statements and phrasing that should
// trip guarantee-language rules, so a demo session produces alerts.
var DefaultUtterances = []string{
	"Thanks for joining the call today",
	"This fund has guaranteed returns of at least ten percent",
	"Past performance does not guarantee future results",
	"You should move your whole pension into this product right away",
	"Let me walk you through the risk disclosure document",
}

// Mock is a Transcriber that returns scripted utterances in order,
// ignoring the audio content. It lets the full pipeline run without a
// speech service or credentials.
type Mock struct {
	mu         sync.Mutex
	utterances []string
	next       int
}

// NewMock creates a Mock cycling through the given utterances, or
// DefaultUtterances when none are provided.
func NewMock(utterances ...string) *Mock {
	if len(utterances) == 0 {
		utterances = DefaultUtterances
	}
	return &Mock{utterances: utterances}
}

// Transcribe returns the next scripted utterance.
func (m *Mock) Transcribe(_ context.Context, _ []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	text := m.utterances[m.next%len(m.utterances)]
	m.next++
	return text, nil
}
