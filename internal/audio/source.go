package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"
)

// Source produces capture frames and pushes them into the Assembler.
// Implementations own the real-time capture loop; Run returns when the
// source is exhausted or ctx is cancelled.
type Source interface {
	Run(ctx context.Context, asm *Assembler) error
}

// frameSamples is the per-callback frame size used by both sources.
// 100ms at the configured rate keeps frame boundaries well below the
// chunk threshold.
func frameSamples(sampleRate int) int {
	return sampleRate / 10
}

// WAVSource replays a pre-recorded WAV file as if it were live capture,
// pacing frames at real time. Useful for demos and integration testing
// without a microphone.
type WAVSource struct {
	data     []byte
	Realtime bool // pace frames at capture speed; false floods as fast as possible
}

// NewWAVSource creates a source replaying the given WAV container.
func NewWAVSource(data []byte) *WAVSource {
	return &WAVSource{data: data, Realtime: true}
}

func (s *WAVSource) Run(ctx context.Context, asm *Assembler) error {
	samples, rate, err := DecodeWAV(s.data)
	if err != nil {
		return fmt.Errorf("decoding replay file: %w", err)
	}

	frame := frameSamples(rate)
	interval := time.Duration(float64(frame) / float64(rate) * float64(time.Second))

	for start := 0; start < len(samples); start += frame {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := start + frame
		if end > len(samples) {
			end = len(samples)
		}

		buf := make([]float32, end-start)
		for i, v := range samples[start:end] {
			buf[i] = float32(v) / 32767
		}
		asm.Push(buf)

		if s.Realtime {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(interval):
			}
		}
	}
	return nil
}

// PCMSource reads raw little-endian 16-bit mono PCM from r (typically
// stdin fed by arecord or sox) and pushes it frame by frame.
type PCMSource struct {
	r          io.Reader
	sampleRate int
}

// NewPCMSource creates a source reading raw PCM16 at the given rate.
func NewPCMSource(r io.Reader, sampleRate int) *PCMSource {
	return &PCMSource{r: r, sampleRate: sampleRate}
}

func (s *PCMSource) Run(ctx context.Context, asm *Assembler) error {
	frame := frameSamples(s.sampleRate)
	raw := make([]byte, frame*2)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		n, err := io.ReadFull(s.r, raw)
		if err == io.EOF {
			return nil
		}
		if err == io.ErrUnexpectedEOF {
			n -= n % 2 // drop a trailing odd byte
		} else if err != nil {
			return fmt.Errorf("reading PCM input: %w", err)
		}

		buf := make([]float32, n/2)
		for i := range buf {
			v := int16(binary.LittleEndian.Uint16(raw[i*2:]))
			buf[i] = float32(v) / 32767
		}
		asm.Push(buf)

		if err == io.ErrUnexpectedEOF {
			return nil
		}
	}
}
