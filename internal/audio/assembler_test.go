package audio

import (
	"testing"
	"time"
)

const testRate = 16000

// pushFrames feeds n frames of the given sample count into the assembler.
func pushFrames(asm *Assembler, frames, samplesPerFrame int) {
	frame := make([]float32, samplesPerFrame)
	for i := range frame {
		frame[i] = 0.25
	}
	for i := 0; i < frames; i++ {
		asm.Push(frame)
	}
}

func TestAssemblerEmitsAtThreshold(t *testing.T) {
	asm := NewAssembler(testRate, 2*time.Second, 4)
	asm.Start()

	// 19 frames of 100ms: just under the 2s threshold.
	pushFrames(asm, 19, testRate/10)
	select {
	case c := <-asm.Chunks():
		t.Fatalf("premature chunk of %d samples emitted below threshold", c.Samples)
	default:
	}

	// The 20th frame crosses the threshold: exactly one chunk.
	pushFrames(asm, 1, testRate/10)
	select {
	case c := <-asm.Chunks():
		if c.Samples != 2*testRate {
			t.Errorf("chunk samples = %d, want %d", c.Samples, 2*testRate)
		}
		if c.SampleRate != testRate {
			t.Errorf("chunk rate = %d, want %d", c.SampleRate, testRate)
		}
		if c.Duration != 2*time.Second {
			t.Errorf("chunk duration = %s, want 2s", c.Duration)
		}
	default:
		t.Fatal("no chunk emitted at threshold crossing")
	}

	select {
	case <-asm.Chunks():
		t.Fatal("more than one chunk emitted for a single threshold crossing")
	default:
	}
}

func TestAssemblerDiscardsPartialOnStop(t *testing.T) {
	asm := NewAssembler(testRate, 2*time.Second, 4)
	asm.Start()

	pushFrames(asm, 10, testRate/10) // 1s buffered
	asm.Stop()
	asm.Close()

	if _, ok := <-asm.Chunks(); ok {
		t.Error("partial buffer was flushed on stop, want discard")
	}
}

func TestAssemblerIgnoresFramesWhileStopped(t *testing.T) {
	asm := NewAssembler(testRate, 1*time.Second, 4)

	pushFrames(asm, 20, testRate/10) // never started
	select {
	case <-asm.Chunks():
		t.Fatal("chunk emitted while not recording")
	default:
	}
}

func TestAssemblerDropsOldestWhenQueueFull(t *testing.T) {
	asm := NewAssembler(testRate, 1*time.Second, 2)
	asm.Start()

	// Emit 4 chunks into a queue of 2 with no consumer.
	pushFrames(asm, 40, testRate/10)

	if got := asm.Dropped(); got != 2 {
		t.Errorf("Dropped() = %d, want 2", got)
	}

	// Push never blocked; the two newest chunks are the survivors.
	n := 0
	asm.Stop()
	asm.Close()
	for range asm.Chunks() {
		n++
	}
	if n != 2 {
		t.Errorf("queued chunks = %d, want 2", n)
	}
}

func TestAssemblerNeverSplitsFrames(t *testing.T) {
	asm := NewAssembler(testRate, 1*time.Second, 4)
	asm.Start()

	// Odd-sized frames: 0.3s each. The threshold crossing happens on the
	// 4th frame, giving a 1.2s chunk rather than a truncated 1.0s one.
	pushFrames(asm, 4, testRate*3/10)

	select {
	case c := <-asm.Chunks():
		want := 4 * testRate * 3 / 10
		if c.Samples != want {
			t.Errorf("chunk samples = %d, want %d (whole frames only)", c.Samples, want)
		}
	default:
		t.Fatal("no chunk emitted")
	}
}

func TestPCM16ClampsOutOfRange(t *testing.T) {
	out := pcm16FromFloat32([]float32{0, 0.5, 1.5, -2.0, 1.0})
	want := []int16{0, 16383, 32767, -32768, 32767}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, out[i], want[i])
		}
	}
}
