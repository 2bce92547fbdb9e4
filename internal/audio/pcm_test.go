package audio

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestEncodePCM16(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		gain    float32
		want    []int16
	}{
		{name: "silence", samples: []float32{0, 0}, gain: 1, want: []int16{0, 0}},
		{name: "half scale", samples: []float32{0.5, -0.5}, gain: 1, want: []int16{16384, -16384}},
		{name: "full scale clamps", samples: []float32{1, -1}, gain: 1, want: []int16{32767, -32768}},
		{name: "gain amplifies", samples: []float32{0.1}, gain: 5, want: []int16{16384}},
		{name: "gain clips", samples: []float32{0.5, -0.9}, gain: 5, want: []int16{32767, -32768}},
		{name: "zero gain means unity", samples: []float32{0.25}, gain: 0, want: []int16{8192}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodePCM16(tt.samples, tt.gain)
			if len(got) != len(tt.want)*2 {
				t.Fatalf("EncodePCM16() len = %d, want %d", len(got), len(tt.want)*2)
			}
			for i, w := range tt.want {
				v := int16(uint16(got[i*2]) | uint16(got[i*2+1])<<8)
				if v != w {
					t.Errorf("sample %d = %d, want %d", i, v, w)
				}
			}
		})
	}
}

func TestDecodePCM16(t *testing.T) {
	samples, err := DecodePCM16([]byte{0x00, 0x40, 0x00, 0xC0})
	if err != nil {
		t.Fatalf("DecodePCM16() error = %v", err)
	}
	if len(samples) != 2 || samples[0] != 0.5 || samples[1] != -0.5 {
		t.Errorf("DecodePCM16() = %v, want [0.5 -0.5]", samples)
	}

	if _, err := DecodePCM16(nil); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("DecodePCM16(nil) error = %v, want ErrEmptyPayload", err)
	}
	if _, err := DecodePCM16([]byte{1, 2, 3}); !errors.Is(err, ErrOddLength) {
		t.Errorf("DecodePCM16(odd) error = %v, want ErrOddLength", err)
	}
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		mime    string
		want    int
		wantErr bool
	}{
		{mime: "audio/pcm;rate=24000", want: 24000},
		{mime: "audio/pcm; rate=16000", want: 16000},
		{mime: "audio/pcm", want: 0},
		{mime: "", want: 0},
		{mime: "audio/pcm;rate=abc", wantErr: true},
		{mime: "audio/pcm;rate=-5", wantErr: true},
		{mime: "image/png", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			got, err := ParseRate(tt.mime)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRate() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestDecodeChunk(t *testing.T) {
	data := EncodePCM16(make([]float32, 2400), 1)
	chunk, err := DecodeChunk(data, "audio/pcm;rate=24000", 24000)
	if err != nil {
		t.Fatalf("DecodeChunk() error = %v", err)
	}
	if chunk.Duration() != 100*time.Millisecond {
		t.Errorf("Duration() = %v, want 100ms", chunk.Duration())
	}

	if _, err := DecodeChunk(data, "audio/pcm;rate=16000", 24000); err == nil {
		t.Error("DecodeChunk() should reject a mismatched rate")
	}
	if _, err := DecodeChunk([]byte{1}, "audio/pcm;rate=24000", 24000); err == nil {
		t.Error("DecodeChunk() should reject odd payloads")
	}
}

func TestBase64(t *testing.T) {
	raw := []byte{0, 1, 2, 250}
	got, err := DecodeBase64(EncodeBase64(raw))
	if err != nil {
		t.Fatalf("DecodeBase64() error = %v", err)
	}
	if string(got) != string(raw) {
		t.Errorf("DecodeBase64() = %v, want %v", got, raw)
	}
	if _, err := DecodeBase64("not base64!!"); err == nil {
		t.Error("DecodeBase64() should reject malformed input")
	}
}

func TestRMSAndLevel(t *testing.T) {
	if RMS(nil) != 0 {
		t.Error("RMS(nil) should be 0")
	}
	rms := RMS([]float32{0.5, -0.5, 0.5, -0.5})
	if math.Abs(rms-0.5) > 1e-9 {
		t.Errorf("RMS() = %f, want 0.5", rms)
	}
	if got := RMSWithGain([]float32{0.5, -0.5}, 5); got != 1 {
		t.Errorf("RMSWithGain() = %f, want clipped 1", got)
	}

	if got := Level(0.004, 1500, 100); math.Abs(got-6) > 1e-9 {
		t.Errorf("Level() = %f, want 6", got)
	}
	if got := Level(0.5, 1500, 100); got != 100 {
		t.Errorf("Level() = %f, want capped 100", got)
	}
}
