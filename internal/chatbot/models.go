package chatbot

import (
	"time"

	"github.com/syllabi/chat-platform/internal/models"
)

// RateLimitCaps are the per-window message caps for one caller class.
type RateLimitCaps struct {
	MessagesPerHour int `json:"messages_per_hour"`
	MessagesPerDay  int `json:"messages_per_day"`
}

// RateLimitConfig is stored on the chatbot row as JSON.
type RateLimitConfig struct {
	Enabled            bool          `json:"enabled"`
	AuthenticatedUsers RateLimitCaps `json:"authenticated_users"`
	AnonymousVisitors  RateLimitCaps `json:"anonymous_visitors"`
	CustomMessage      string        `json:"custom_message,omitempty"`
}

type Chatbot struct {
	ID                  string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID              string         `gorm:"type:varchar(36);index;not null" json:"user_id"`
	Name                string         `gorm:"type:varchar(255);not null" json:"name"`
	Slug                string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`
	SystemPrompt        string         `gorm:"type:text" json:"system_prompt"`
	ModelIdentifier     string         `gorm:"type:varchar(64)" json:"model_identifier"`
	Temperature         *float64       `json:"temperature"`
	ToolSelectionMethod string         `gorm:"type:varchar(32)" json:"tool_selection_method"` // "", "direct", "semantic_retrieval"
	RateLimitJSON       models.JSONMap `gorm:"column:rate_limit_config;type:text" json:"rate_limit_config"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`
}

func (Chatbot) TableName() string { return "chatbots" }

// ConnectedIntegration binds an external integration account (slack,
// discord, alexa workspace/account) to a platform user.
type ConnectedIntegration struct {
	ID              string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID          string         `gorm:"type:varchar(36);index;not null" json:"user_id"`
	IntegrationType string         `gorm:"type:varchar(32);index;not null" json:"integration_type"` // slack|discord|alexa|sms
	Metadata        models.JSONMap `gorm:"type:text" json:"metadata"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (ConnectedIntegration) TableName() string { return "connected_integrations" }

// ChannelLinkConfig is the routing config stored on a channel link.
type ChannelLinkConfig struct {
	Trigger      string `json:"trigger,omitempty"`
	SlashCommand string `json:"slash_command,omitempty"`
	IsDefault    bool   `json:"is_default,omitempty"`
}

// ChannelLink binds an integration account to one chatbot with routing
// config. One integration may link several chatbots; at most one link is
// flagged default and trigger phrases are unique within the account.
type ChannelLink struct {
	ID            string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	IntegrationID string         `gorm:"type:varchar(36);index:idx_channel_link_integration;not null" json:"integration_id"`
	ChatbotID     string         `gorm:"type:varchar(36);index;not null" json:"chatbot_id"`
	Config        models.JSONMap `gorm:"type:text" json:"config"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (ChannelLink) TableName() string { return "chatbot_channels" }

// ParsedConfig decodes the link's JSON config into the typed form.
func (l ChannelLink) ParsedConfig() ChannelLinkConfig {
	var cfg ChannelLinkConfig
	if l.Config == nil {
		return cfg
	}
	if v, ok := l.Config["trigger"].(string); ok {
		cfg.Trigger = v
	}
	if v, ok := l.Config["slash_command"].(string); ok {
		cfg.SlashCommand = v
	}
	if v, ok := l.Config["is_default"].(bool); ok {
		cfg.IsDefault = v
	}
	return cfg
}

// RateLimits decodes the chatbot's rate_limit_config column. Returns nil
// when no config is stored (rate limiting disabled).
func (c Chatbot) RateLimits() *RateLimitConfig {
	if c.RateLimitJSON == nil {
		return nil
	}
	cfg := &RateLimitConfig{}
	if v, ok := c.RateLimitJSON["enabled"].(bool); ok {
		cfg.Enabled = v
	}
	cfg.AuthenticatedUsers = capsFrom(c.RateLimitJSON["authenticated_users"])
	cfg.AnonymousVisitors = capsFrom(c.RateLimitJSON["anonymous_visitors"])
	if v, ok := c.RateLimitJSON["custom_message"].(string); ok {
		cfg.CustomMessage = v
	}
	return cfg
}

func capsFrom(v any) RateLimitCaps {
	var caps RateLimitCaps
	m, ok := v.(map[string]any)
	if !ok {
		return caps
	}
	if n, ok := m["messages_per_hour"].(float64); ok {
		caps.MessagesPerHour = int(n)
	}
	if n, ok := m["messages_per_day"].(float64); ok {
		caps.MessagesPerDay = int(n)
	}
	return caps
}
