package entities

import "errors"

// UserProfile holds the read-only user facts interpolated into the coach prompt
type UserProfile struct {
	Name         string  `json:"name"`
	Age          int     `json:"age"`
	Gender       string  `json:"gender"`
	Height       float64 `json:"height"`
	Weight       float64 `json:"weight"`
	TargetWeight float64 `json:"target_weight"`
}

// DeviceState is the wearable status at the time a session starts
type DeviceState struct {
	IsConnected bool   `json:"is_connected"`
	Name        string `json:"name,omitempty"`
	HeartRate   int    `json:"heart_rate"`
}

// Validate validates the profile data
func (p *UserProfile) Validate() error {
	if p.Name == "" {
		return errors.New("name is required")
	}
	if p.Age < 0 || p.Age > 150 {
		return errors.New("age must be between 0 and 150")
	}
	if p.Weight < 0 {
		return errors.New("weight must not be negative")
	}
	return nil
}
