package voice

import (
	"fmt"
	"strings"
	"time"

	"github.com/fitmind/voicecoach/domain/entities"
)

// DefaultModel is the live model used when neither Config nor Options name one
const DefaultModel = "gemini-2.5-flash-native-audio-preview-12-2025"

// Config is what the UI supplies to start a conversation
type Config struct {
	SystemPrompt string
	Voice        entities.Voice
	// UserContext is appended to the system prompt, e.g. profile facts
	UserContext string
	// Model overrides Options.Model when set
	Model string
}

// Validate checks the config constraints
func (c Config) Validate() error {
	if strings.TrimSpace(c.SystemPrompt) == "" {
		return fmt.Errorf("%w: system prompt is required", ErrInvalidConfig)
	}
	if !c.Voice.Valid() {
		return fmt.Errorf("%w: unknown voice %q", ErrInvalidConfig, c.Voice)
	}
	return nil
}

func (c Config) instruction() string {
	if c.UserContext == "" {
		return c.SystemPrompt
	}
	return c.SystemPrompt + " " + c.UserContext
}

// Options tunes the audio pipeline. Zero fields take the defaults below.
//
// FrameSize trades message overhead against latency: 2048 samples at
// 16 kHz is 128 ms of audio per realtime message.
type Options struct {
	Model        string
	CaptureRate  int
	FrameSize    int
	PlaybackRate int

	InputGain         float32
	VolumeScale       float64
	VolumeCeiling     float64
	SpeakingThreshold float64

	// SendQueue bounds the frames waiting for the network; a full queue drops frames
	SendQueue int
	// HandshakeTimeout bounds Start; negative disables the timeout
	HandshakeTimeout time.Duration

	UserPlaceholder      string
	AssistantPlaceholder string
	ConnectingPrompt     string
	ListeningPrompt      string
	IdlePrompt           string
}

// DefaultOptions returns the tuning used by the coach
func DefaultOptions() Options {
	return Options{
		Model:                DefaultModel,
		CaptureRate:          16000,
		FrameSize:            2048,
		PlaybackRate:         24000,
		InputGain:            5.0,
		VolumeScale:          1500,
		VolumeCeiling:        100,
		SpeakingThreshold:    8,
		SendQueue:            32,
		HandshakeTimeout:     30 * time.Second,
		UserPlaceholder:      "(语音已识别)",
		AssistantPlaceholder: "(教练已回答)",
		ConnectingPrompt:     "正在极速初始化语音引擎...",
		ListeningPrompt:      "正在极速监听...",
		IdlePrompt:           "教练正在专注倾听...",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Model == "" {
		o.Model = d.Model
	}
	if o.CaptureRate <= 0 {
		o.CaptureRate = d.CaptureRate
	}
	if o.FrameSize <= 0 {
		o.FrameSize = d.FrameSize
	}
	if o.PlaybackRate <= 0 {
		o.PlaybackRate = d.PlaybackRate
	}
	if o.InputGain <= 0 {
		o.InputGain = d.InputGain
	}
	if o.VolumeScale <= 0 {
		o.VolumeScale = d.VolumeScale
	}
	if o.VolumeCeiling <= 0 {
		o.VolumeCeiling = d.VolumeCeiling
	}
	if o.SpeakingThreshold <= 0 {
		o.SpeakingThreshold = d.SpeakingThreshold
	}
	if o.SendQueue <= 0 {
		o.SendQueue = d.SendQueue
	}
	if o.HandshakeTimeout == 0 {
		o.HandshakeTimeout = d.HandshakeTimeout
	}
	if o.UserPlaceholder == "" {
		o.UserPlaceholder = d.UserPlaceholder
	}
	if o.AssistantPlaceholder == "" {
		o.AssistantPlaceholder = d.AssistantPlaceholder
	}
	if o.ConnectingPrompt == "" {
		o.ConnectingPrompt = d.ConnectingPrompt
	}
	if o.ListeningPrompt == "" {
		o.ListeningPrompt = d.ListeningPrompt
	}
	if o.IdlePrompt == "" {
		o.IdlePrompt = d.IdlePrompt
	}
	return o
}
