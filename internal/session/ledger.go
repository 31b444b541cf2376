// Package session records what the pipeline heard and flagged: the
// running transcript, raised alerts, and the short context window fed
// into analysis prompts.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aegisguard/aegis/internal/guardian"
)

// contextWindowSize bounds the rolling window of recent transcript
// lines kept for prompt grounding.
const contextWindowSize = 10

// TranscriptEntry is one transcribed utterance.
type TranscriptEntry struct {
	Ordinal   int       `json:"ordinal"`
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Alert is one reviewed compliance violation.
type Alert struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	OriginalText string            `json:"original_text"`
	Verdict      guardian.Reviewed `json:"verdict"`
}

// Snapshot is a point-in-time copy of the session for presentation.
type Snapshot struct {
	Transcript []TranscriptEntry `json:"transcript"`
	Alerts     []Alert           `json:"alerts"`
	Stats      Stats             `json:"stats"`
}

// Stats summarizes the session the way an operator dashboard shows it.
type Stats struct {
	TranscriptCount int `json:"transcript_count"`
	AlertCount      int `json:"alert_count"`

	// ComplianceRate is the fraction of utterances that raised no
	// alert, in [0,1]. An empty session reports 1.
	ComplianceRate float64 `json:"compliance_rate"`
}

// Ledger is the single source of truth for session state. The
// pipeline's analysis stage is its only writer; HTTP and MCP handlers
// read copies under the same mutex.
type Ledger struct {
	mu         sync.Mutex
	transcript []TranscriptEntry
	alerts     []Alert
	window     []string
	next       int
}

// NewLedger creates an empty session ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// AppendTranscript records a transcribed utterance, assigns its
// ordinal, and advances the context window.
func (l *Ledger) AppendTranscript(text string) TranscriptEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := TranscriptEntry{
		Ordinal:   l.next,
		Timestamp: time.Now().UTC(),
		Text:      text,
	}
	l.next++
	l.transcript = append(l.transcript, entry)

	l.window = append(l.window, text)
	if len(l.window) > contextWindowSize {
		l.window = l.window[len(l.window)-contextWindowSize:]
	}
	return entry
}

// AppendAlert records a reviewed violation and returns it with its
// assigned ID.
func (l *Ledger) AppendAlert(originalText string, verdict guardian.Reviewed) Alert {
	l.mu.Lock()
	defer l.mu.Unlock()

	alert := Alert{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		OriginalText: originalText,
		Verdict:      verdict,
	}
	l.alerts = append(l.alerts, alert)
	return alert
}

// ContextTail returns up to n of the most recent transcript lines
// before the current utterance, oldest first. The current utterance is
// excluded so prompts do not quote it twice.
func (l *Ledger) ContextTail(n int) []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.window) <= 1 || n <= 0 {
		return nil
	}
	prior := l.window[:len(l.window)-1]
	if len(prior) > n {
		prior = prior[len(prior)-n:]
	}
	tail := make([]string, len(prior))
	copy(tail, prior)
	return tail
}

// Clear resets transcript, alerts, and the context window in one lock
// acquisition so no reader observes a half-cleared session. Ordinals
// restart from zero.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.transcript = nil
	l.alerts = nil
	l.window = nil
	l.next = 0
}

// Snapshot copies the last transcriptTail transcript entries and
// alertTail alerts plus current stats. Pass 0 to include everything.
func (l *Ledger) Snapshot(transcriptTail, alertTail int) Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	transcript := l.transcript
	if transcriptTail > 0 && len(transcript) > transcriptTail {
		transcript = transcript[len(transcript)-transcriptTail:]
	}
	alerts := l.alerts
	if alertTail > 0 && len(alerts) > alertTail {
		alerts = alerts[len(alerts)-alertTail:]
	}

	snap := Snapshot{
		Transcript: make([]TranscriptEntry, len(transcript)),
		Alerts:     make([]Alert, len(alerts)),
		Stats:      l.statsLocked(),
	}
	copy(snap.Transcript, transcript)
	copy(snap.Alerts, alerts)
	return snap
}

// Stats returns current session counters.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.statsLocked()
}

func (l *Ledger) statsLocked() Stats {
	s := Stats{
		TranscriptCount: len(l.transcript),
		AlertCount:      len(l.alerts),
		ComplianceRate:  1,
	}
	if s.TranscriptCount > 0 {
		s.ComplianceRate = float64(s.TranscriptCount-s.AlertCount) / float64(s.TranscriptCount)
		if s.ComplianceRate < 0 {
			s.ComplianceRate = 0
		}
	}
	return s
}
