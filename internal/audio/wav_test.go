package audio

import (
	"testing"
)

func TestWAVRoundTrip(t *testing.T) {
	samples := []int16{0, 100, -100, 32767, -32768, 7}
	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	if len(data) != 44+len(samples)*2 {
		t.Errorf("encoded size = %d, want %d", len(data), 44+len(samples)*2)
	}

	decoded, rate, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 {
		t.Errorf("rate = %d, want 16000", rate)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("decoded %d samples, want %d", len(decoded), len(samples))
	}
	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, decoded[i], samples[i])
		}
	}
}

func TestEncodeWAV_Rejects(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Error("EncodeWAV accepted empty samples")
	}
	if _, err := EncodeWAV([]int16{1}, 0); err == nil {
		t.Error("EncodeWAV accepted zero sample rate")
	}
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("not a wav")); err == nil {
		t.Error("DecodeWAV accepted short garbage")
	}

	data, err := EncodeWAV([]int16{1, 2, 3}, 8000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	data[0] = 'X' // corrupt RIFF magic
	if _, _, err := DecodeWAV(data); err == nil {
		t.Error("DecodeWAV accepted corrupted header")
	}
}

func TestWAVDuration(t *testing.T) {
	data, err := EncodeWAV(make([]int16, 16000*2), 16000)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}
	d, err := WAVDuration(data)
	if err != nil {
		t.Fatalf("WAVDuration: %v", err)
	}
	if d != 2.0 {
		t.Errorf("duration = %f, want 2.0", d)
	}
}
