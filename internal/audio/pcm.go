// Package audio holds the PCM helpers shared by the capture and playback paths.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrEmptyPayload is returned for zero-length audio payloads
	ErrEmptyPayload = errors.New("empty audio payload")
	// ErrOddLength is returned when PCM16 bytes do not form whole samples
	ErrOddLength = errors.New("pcm16 payload has odd length")
)

// Chunk is a block of mono samples at a fixed sample rate
type Chunk struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the playback length of the chunk
func (c Chunk) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// EncodePCM16 converts float samples to little-endian int16 after applying
// gain. Amplified samples are clamped to [-1, 1].
func EncodePCM16(samples []float32, gain float32) []byte {
	if gain == 0 {
		gain = 1
	}
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := s * gain
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		n := int32(math.Round(float64(v) * 32768))
		if n > math.MaxInt16 {
			n = math.MaxInt16
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(n)))
	}
	return out
}

// DecodePCM16 converts little-endian int16 bytes to samples in [-1, 1)
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(data)%2 != 0 {
		return nil, ErrOddLength
	}
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768.0
	}
	return out, nil
}

// PCMMIMEType returns the MIME tag for raw PCM at the given rate
func PCMMIMEType(rate int) string {
	return "audio/pcm;rate=" + strconv.Itoa(rate)
}

// ParseRate reads the rate parameter of an "audio/pcm;rate=N" MIME type.
// It returns 0 when the type carries no rate.
func ParseRate(mimeType string) (int, error) {
	parts := strings.Split(mimeType, ";")
	if base := strings.TrimSpace(parts[0]); base != "" && !strings.HasPrefix(base, "audio/") {
		return 0, fmt.Errorf("unsupported mime type %q", mimeType)
	}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			return 0, fmt.Errorf("invalid rate in mime type %q", mimeType)
		}
		return rate, nil
	}
	return 0, nil
}

// DecodeChunk decodes an inline PCM16 payload into a chunk at the expected rate
func DecodeChunk(data []byte, mimeType string, expectedRate int) (Chunk, error) {
	rate, err := ParseRate(mimeType)
	if err != nil {
		return Chunk{}, err
	}
	if rate != 0 && rate != expectedRate {
		return Chunk{}, fmt.Errorf("unexpected sample rate %d, want %d", rate, expectedRate)
	}
	samples, err := DecodePCM16(data)
	if err != nil {
		return Chunk{}, err
	}
	return Chunk{Samples: samples, SampleRate: expectedRate}, nil
}

// EncodeBase64 encodes a payload for JSON transport
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeBase64 decodes a payload received over JSON transport
func DecodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 audio: %w", err)
	}
	return data, nil
}
