package usecase

import (
	"strings"
	"testing"

	"github.com/fitmind/voicecoach/domain/entities"
)

func TestBuildUserContext(t *testing.T) {
	profile := entities.UserProfile{Name: "小林", Age: 28, Weight: 65.5}

	tests := []struct {
		name   string
		device entities.DeviceState
		want   string
	}{
		{
			name:   "heart rate connected",
			device: entities.DeviceState{IsConnected: true, HeartRate: 128},
			want:   "用户名为：小林。请务必在对话中自然地称呼其名字（如：小林，保持呼吸）。用户状态：28岁，体重65.5kg。心率：128 BPM。",
		},
		{
			name:   "no device",
			device: entities.DeviceState{HeartRate: 128},
			want:   "用户名为：小林。请务必在对话中自然地称呼其名字（如：小林，保持呼吸）。用户状态：28岁，体重65.5kg。心率：未连接。",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildUserContext(profile, tt.device); got != tt.want {
				t.Errorf("BuildUserContext() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildSystemPrompt(t *testing.T) {
	persona, _ := entities.LookupPersona(entities.PersonaStrict)
	prompt := BuildSystemPrompt(persona, entities.UserProfile{Name: "Alex", Age: 30, Weight: 80}, entities.DeviceState{})

	if !strings.HasPrefix(prompt, persona.SystemInstruction+" ") {
		t.Errorf("Prompt must start with the persona instruction, got %q", prompt)
	}
	if !strings.Contains(prompt, "体重80kg") {
		t.Errorf("Whole weights must not carry decimals, got %q", prompt)
	}
}
