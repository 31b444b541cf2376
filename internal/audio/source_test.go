package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"
	"time"
)

func TestPCMSourceFeedsAssembler(t *testing.T) {
	const rate = 1000

	// One second of PCM16: enough for exactly one 500ms chunk plus a
	// partial remainder.
	raw := make([]byte, rate*2)
	for i := 0; i < rate; i++ {
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(100)))
	}

	asm := NewAssembler(rate, 500*time.Millisecond, 4)
	asm.Start()

	src := NewPCMSource(bytes.NewReader(raw), rate)
	if err := src.Run(context.Background(), asm); err != nil {
		t.Fatalf("run: %v", err)
	}
	asm.Close()

	var chunks []Chunk
	for c := range asm.Chunks() {
		chunks = append(chunks, c)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks from 1s of audio at 500ms threshold, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.SampleRate != rate {
			t.Errorf("chunk %d: sample rate %d, want %d", i, c.SampleRate, rate)
		}
		if c.Samples < rate/2 {
			t.Errorf("chunk %d: %d samples, want at least %d", i, c.Samples, rate/2)
		}
	}
}

func TestWAVSourceReplaysWithoutPacing(t *testing.T) {
	const rate = 1000
	samples := make([]int16, rate) // 1s
	for i := range samples {
		samples[i] = 2000
	}
	wav, err := EncodeWAV(samples, rate)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	asm := NewAssembler(rate, 500*time.Millisecond, 4)
	asm.Start()

	src := NewWAVSource(wav)
	src.Realtime = false
	if err := src.Run(context.Background(), asm); err != nil {
		t.Fatalf("run: %v", err)
	}
	asm.Close()

	var total int
	var n int
	for c := range asm.Chunks() {
		total += c.Samples
		n++
	}
	if n != 2 {
		t.Fatalf("expected 2 chunks, got %d", n)
	}
	if total != rate {
		t.Errorf("expected all %d samples chunked, got %d", rate, total)
	}
}

func TestWAVSourceRejectsGarbage(t *testing.T) {
	asm := NewAssembler(16000, time.Second, 1)
	asm.Start()

	src := NewWAVSource([]byte("not a wav file"))
	if err := src.Run(context.Background(), asm); err == nil {
		t.Fatal("expected error for invalid replay data")
	}
}

func TestWAVSourceStopsOnCancel(t *testing.T) {
	const rate = 16000
	samples := make([]int16, rate*2)
	wav, err := EncodeWAV(samples, rate)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	asm := NewAssembler(rate, time.Second, 1)
	asm.Start()

	src := NewWAVSource(wav) // realtime pacing on
	if err := src.Run(ctx, asm); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
