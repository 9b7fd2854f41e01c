package model

import "time"

// QuickResponse is a canned operator reply.
type QuickResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	Shortcut  string    `json:"shortcut,omitempty"`
	IsActive  bool      `json:"isActive"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// QuickResponseInput creates or patches a quick response.
type QuickResponseInput struct {
	Title     *string `json:"title" validate:"omitempty,min=1,max=200"`
	Content   *string `json:"content" validate:"omitempty,min=1,max=4000"`
	Category  *string `json:"category" validate:"omitempty,max=100"`
	Shortcut  *string `json:"shortcut" validate:"omitempty,max=50"`
	IsActive  *bool   `json:"isActive"`
	SortOrder *int    `json:"sortOrder" validate:"omitempty,min=0"`
}

// TrainingPair is a curated question/answer fed to the automated responder.
type TrainingPair struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
}

// TrainingPairRequest creates a training pair.
type TrainingPairRequest struct {
	Question string `json:"question" validate:"required,max=2000"`
	Answer   string `json:"answer" validate:"required,max=4000"`
}

// PlatformSettings is the singleton external-platform configuration.
type PlatformSettings struct {
	ChannelAccessToken string    `json:"channelAccessToken"`
	ChannelSecret      string    `json:"channelSecret"`
	IsActive           bool      `json:"isActive"`
	AutoReply          bool      `json:"autoReply"`
	WebhookURL         string    `json:"webhookUrl"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Masked returns a copy safe to show in the admin console.
func (s PlatformSettings) Masked() PlatformSettings {
	s.ChannelAccessToken = mask(s.ChannelAccessToken)
	s.ChannelSecret = mask(s.ChannelSecret)
	return s
}

func mask(v string) string {
	if len(v) <= 4 {
		if v == "" {
			return ""
		}
		return "****"
	}
	return "****" + v[len(v)-4:]
}

// PlatformSettingsPatch updates platform settings.
type PlatformSettingsPatch struct {
	ChannelAccessToken *string `json:"channelAccessToken" validate:"omitempty,max=512"`
	ChannelSecret      *string `json:"channelSecret" validate:"omitempty,max=512"`
	IsActive           *bool   `json:"isActive"`
	AutoReply          *bool   `json:"autoReply"`
	WebhookURL         *string `json:"webhookUrl" validate:"omitempty,url,max=2048"`
}

// BotInfo is the platform's "who am I" answer.
type BotInfo struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// PlatformTestResult is returned by POST /admin/platform/test.
type PlatformTestResult struct {
	Success bool     `json:"success"`
	BotInfo *BotInfo `json:"botInfo,omitempty"`
	Error   string   `json:"error,omitempty"`
}
