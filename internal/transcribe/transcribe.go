// Package transcribe defines the speech-to-text boundary of the pipeline.
package transcribe

import "context"

// Transcriber converts one encoded audio chunk into plain text.
// Implementations return an error for transport failures; the pipeline
// treats any error (and any empty transcript) as a skipped chunk.
type Transcriber interface {
	Transcribe(ctx context.Context, wavData []byte) (string, error)
}
