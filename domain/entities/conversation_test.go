package entities

import (
	"testing"
	"time"
)

func TestConversationCreation(t *testing.T) {
	userID := "user-123"
	conv := NewConversation(userID, ConversationMetadata{PersonaID: PersonaStrict, Voice: VoiceFenrir})

	if conv.UserID != userID {
		t.Errorf("Expected user ID %s, got %s", userID, conv.UserID)
	}

	if conv.Status != ConversationStatusActive {
		t.Errorf("Expected status %s, got %s", ConversationStatusActive, conv.Status)
	}

	if len(conv.Messages) != 0 {
		t.Errorf("Expected empty messages, got %d messages", len(conv.Messages))
	}

	if conv.Metadata.Voice != VoiceFenrir {
		t.Errorf("Expected voice Fenrir, got %s", conv.Metadata.Voice)
	}
}

func TestAddMessage(t *testing.T) {
	conv := NewConversation("user", ConversationMetadata{})
	now := time.Now()

	conv.AddMessage(
		ChatEntry{Timestamp: now, Role: MessageRoleUser, Text: "你好"},
		ChatEntry{Timestamp: now, Role: MessageRoleAssistant, Text: "您好呀"},
	)

	if len(conv.Messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(conv.Messages))
	}

	if conv.Messages[0].Role != MessageRoleUser {
		t.Errorf("Expected user role first, got %s", conv.Messages[0].Role)
	}

	if conv.Messages[1].Text != "您好呀" {
		t.Errorf("Expected assistant text 您好呀, got %s", conv.Messages[1].Text)
	}

	if conv.LastMessageAt == nil {
		t.Error("Expected LastMessageAt to be set")
	}

	conv.AddMessage()
	if len(conv.Messages) != 2 {
		t.Errorf("Empty AddMessage should not change history, got %d", len(conv.Messages))
	}
}

func TestConversationExpiration(t *testing.T) {
	conv := NewConversation("user", ConversationMetadata{})

	if conv.IsExpired() {
		t.Error("Conversation should not be expired initially")
	}

	conv.ExpiresAt = time.Now().Add(-1 * time.Hour)
	if !conv.IsExpired() {
		t.Error("Conversation should be expired when ExpiresAt is in the past")
	}

	conv.ExpiresAt = time.Now().Add(1 * time.Hour)
	conv.Expire()
	if !conv.IsExpired() {
		t.Error("Conversation should be expired when status is expired")
	}
}

func TestCanContinue(t *testing.T) {
	var missing *Conversation
	if missing.CanContinue() {
		t.Error("nil conversation cannot be continued")
	}

	conv := NewConversation("user", ConversationMetadata{})
	if !conv.CanContinue() {
		t.Error("Fresh conversation should be continued")
	}

	conv.AddMessage(ChatEntry{Timestamp: time.Now(), Role: MessageRoleUser, Text: "hi"})
	if !conv.CanContinue() {
		t.Error("Conversation with a recent message should be continued")
	}

	old := time.Now().Add(-31 * time.Minute)
	conv.LastMessageAt = &old
	if conv.CanContinue() {
		t.Error("Conversation idle for more than 30 minutes should not be continued")
	}
}

func TestConversationValidation(t *testing.T) {
	conv := NewConversation("user", ConversationMetadata{})
	if err := conv.Validate(); err != nil {
		t.Errorf("Valid conversation should not have validation errors, got: %v", err)
	}

	conv.UserID = ""
	if err := conv.Validate(); err == nil {
		t.Error("Conversation with empty user ID should have validation error")
	}

	conv.UserID = "user"
	conv.Status = ConversationStatus("invalid")
	if err := conv.Validate(); err == nil {
		t.Error("Conversation with invalid status should have validation error")
	}
}

func TestParseVoice(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Voice
		wantErr bool
	}{
		{name: "exact", input: "Kore", want: VoiceKore},
		{name: "lower case", input: "fenrir", want: VoiceFenrir},
		{name: "padded", input: " Charon ", want: VoiceCharon},
		{name: "unknown", input: "Alloy", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVoice(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVoice() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseVoice() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestLookupPersona(t *testing.T) {
	p, ok := LookupPersona(PersonaScientific)
	if !ok || p.Voice != VoiceCharon {
		t.Errorf("Expected scientific persona with Charon, got %+v ok=%v", p, ok)
	}

	p, ok = LookupPersona("pirate")
	if ok {
		t.Error("Unknown persona should report ok=false")
	}
	if p.ID != PersonaEncouraging {
		t.Errorf("Unknown persona should fall back to encouraging, got %s", p.ID)
	}

	for _, p := range Personas() {
		if !p.Voice.Valid() {
			t.Errorf("Persona %s uses unknown voice %s", p.ID, p.Voice)
		}
	}
}
