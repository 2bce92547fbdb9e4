package entities

import (
	"fmt"
	"strings"
)

// Voice is a prebuilt voice of the live model
type Voice string

const (
	VoicePuck   Voice = "Puck"
	VoiceCharon Voice = "Charon"
	VoiceKore   Voice = "Kore"
	VoiceFenrir Voice = "Fenrir"
	VoiceAoede  Voice = "Aoede"
	VoiceLeda   Voice = "Leda"
	VoiceOrus   Voice = "Orus"
	VoiceZephyr Voice = "Zephyr"
)

var knownVoices = []Voice{
	VoicePuck, VoiceCharon, VoiceKore, VoiceFenrir,
	VoiceAoede, VoiceLeda, VoiceOrus, VoiceZephyr,
}

// Voices returns the known prebuilt voices
func Voices() []Voice {
	out := make([]Voice, len(knownVoices))
	copy(out, knownVoices)
	return out
}

// Valid reports whether v is one of the known voices
func (v Voice) Valid() bool {
	for _, k := range knownVoices {
		if v == k {
			return true
		}
	}
	return false
}

// ParseVoice resolves a voice name case-insensitively
func ParseVoice(name string) (Voice, error) {
	name = strings.TrimSpace(name)
	for _, k := range knownVoices {
		if strings.EqualFold(string(k), name) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown voice %q", name)
}
