package usecase

import (
	"fmt"
	"strconv"

	"github.com/fitmind/voicecoach/domain/entities"
)

// BuildUserContext renders the profile facts the coach should know about.
// The name is repeated so the model addresses the user by it.
func BuildUserContext(profile entities.UserProfile, device entities.DeviceState) string {
	heartRate := "未连接"
	if device.IsConnected {
		heartRate = fmt.Sprintf("%d BPM", device.HeartRate)
	}
	return fmt.Sprintf("用户名为：%s。请务必在对话中自然地称呼其名字（如：%s，保持呼吸）。用户状态：%d岁，体重%skg。心率：%s。",
		profile.Name, profile.Name, profile.Age, formatNumber(profile.Weight), heartRate)
}

// BuildSystemPrompt returns the full system instruction for a persona
func BuildSystemPrompt(persona entities.Persona, profile entities.UserProfile, device entities.DeviceState) string {
	return persona.SystemInstruction + " " + BuildUserContext(profile, device)
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
