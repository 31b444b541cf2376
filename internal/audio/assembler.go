// Package audio turns a continuous stream of capture frames into
// bounded-duration WAV chunks ready for transcription.
package audio

import (
	"log/slog"
	"sync"
	"time"
)

// Chunk is one duration-bounded segment of encoded audio. It is created
// by the Assembler and consumed exactly once by the transcription stage.
type Chunk struct {
	Data       []byte  // mono 16-bit PCM WAV
	Samples    int     // sample count before encoding
	SampleRate int
	Duration   time.Duration
}

// Assembler accumulates capture frames and emits a Chunk each time the
// buffered duration crosses the configured threshold. Push never blocks
// on downstream work: the hand-off queue is bounded and drops the oldest
// unconsumed chunk when full, preferring fresh audio over stalling the
// capture goroutine.
type Assembler struct {
	sampleRate    int
	chunkDuration time.Duration
	logger        *slog.Logger

	mu        sync.Mutex
	frames    [][]float32
	buffered  int // samples accumulated across frames
	recording bool

	out     chan Chunk
	dropped uint64
}

// NewAssembler creates an Assembler emitting chunks of at least
// chunkDuration on a queue of the given size.
func NewAssembler(sampleRate int, chunkDuration time.Duration, queueSize int) *Assembler {
	return &Assembler{
		sampleRate:    sampleRate,
		chunkDuration: chunkDuration,
		logger:        slog.Default(),
		out:           make(chan Chunk, queueSize),
	}
}

// Chunks returns the consumer side of the hand-off queue. The channel is
// closed by Close after recording has stopped.
func (a *Assembler) Chunks() <-chan Chunk {
	return a.out
}

// Start enables frame intake. Frames pushed while stopped are ignored.
func (a *Assembler) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recording = true
}

// Stop ends the current recording. Any partially accumulated buffer is
// discarded rather than flushed: a sub-threshold chunk transcribes
// poorly, so emitting it would add noise to the transcript.
func (a *Assembler) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recording = false
	a.frames = nil
	a.buffered = 0
}

// Close closes the hand-off queue. Call only after Stop, once no more
// Push calls can occur.
func (a *Assembler) Close() {
	close(a.out)
}

// Push appends one capture frame. When the accumulated duration reaches
// the chunk threshold the buffer is concatenated, converted to PCM-16,
// WAV-encoded, and emitted. A frame is never split across chunks.
func (a *Assembler) Push(frame []float32) {
	if len(frame) == 0 {
		return
	}

	a.mu.Lock()
	if !a.recording {
		a.mu.Unlock()
		return
	}

	a.frames = append(a.frames, frame)
	a.buffered += len(frame)

	threshold := int(a.chunkDuration.Seconds() * float64(a.sampleRate))
	if a.buffered < threshold {
		a.mu.Unlock()
		return
	}

	combined := make([]float32, 0, a.buffered)
	for _, f := range a.frames {
		combined = append(combined, f...)
	}
	a.frames = nil
	a.buffered = 0
	a.mu.Unlock()

	samples := pcm16FromFloat32(combined)
	data, err := EncodeWAV(samples, a.sampleRate)
	if err != nil {
		a.logger.Error("encoding chunk failed", "error", err)
		return
	}

	chunk := Chunk{
		Data:       data,
		Samples:    len(samples),
		SampleRate: a.sampleRate,
		Duration:   time.Duration(float64(len(samples)) / float64(a.sampleRate) * float64(time.Second)),
	}
	a.emit(chunk)
}

// emit enqueues the chunk, evicting the oldest queued chunk when the
// queue is full. Capture must never stall on a slow consumer.
func (a *Assembler) emit(chunk Chunk) {
	for {
		select {
		case a.out <- chunk:
			return
		default:
		}
		select {
		case old := <-a.out:
			a.mu.Lock()
			a.dropped++
			dropped := a.dropped
			a.mu.Unlock()
			a.logger.Debug("chunk queue full, dropped oldest",
				"dropped_total", dropped,
				"dropped_duration", old.Duration,
			)
		default:
			// Consumer drained the queue between the two selects; retry the send.
		}
	}
}

// Dropped returns how many chunks have been evicted under backpressure.
func (a *Assembler) Dropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}
