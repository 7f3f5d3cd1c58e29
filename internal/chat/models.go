package chat

import (
	"time"

	"github.com/syllabi/chat-platform/internal/models"
)

// Session is one conversation. External channels (slack, alexa, ...) key
// sessions by the channel's native session id scoped to a chatbot; web
// sessions use the internal id directly. At most one row exists per
// (external_session_id, chatbot_id) pair.
type Session struct {
	ID                string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatbotID         string         `gorm:"type:varchar(36);index:idx_session_external,unique,priority:2;not null" json:"chatbot_id"`
	ChatbotSlug       string         `gorm:"type:varchar(255);not null" json:"chatbot_slug"`
	ExternalSessionID *string        `gorm:"type:varchar(255);index:idx_session_external,unique,priority:1" json:"external_session_id,omitempty"`
	Name              string         `gorm:"type:varchar(255)" json:"name"`
	Channel           string         `gorm:"type:varchar(16)" json:"channel"`
	Metadata          models.JSONMap `gorm:"type:text" json:"metadata"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func (Session) TableName() string { return "chat_sessions" }

// Message is one turn in a session. Metadata carries token usage, cost
// and model information for assistant messages.
type Message struct {
	ID            string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatSessionID string         `gorm:"type:varchar(36);index;not null" json:"chat_session_id"`
	Role          string         `gorm:"type:varchar(16);index;not null" json:"role"`
	Content       string         `gorm:"type:text;not null" json:"content"`
	TokenCount    int            `json:"token_count"`
	Metadata      models.JSONMap `gorm:"type:text" json:"metadata"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (Message) TableName() string { return "messages" }
