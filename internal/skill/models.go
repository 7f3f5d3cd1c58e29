package skill

import (
	"time"

	"github.com/syllabi/chat-platform/internal/models"
)

const (
	TypeCustom  = "custom"
	TypeBuiltin = "builtin"
)

// Execution statuses.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Skill is a persisted tool definition the LLM may invoke. UserID is
// empty for built-in skills. Name is unique per user; it doubles as the
// tool name exposed to the model.
type Skill struct {
	ID             string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID         string         `gorm:"type:varchar(36);index:idx_skill_user_name,unique,priority:1" json:"user_id"`
	Name           string         `gorm:"type:varchar(128);index:idx_skill_user_name,unique,priority:2;not null" json:"name"`
	DisplayName    string         `gorm:"type:varchar(255);not null" json:"display_name"`
	Description    string         `gorm:"type:text;not null" json:"description"`
	Category       string         `gorm:"type:varchar(64)" json:"category"`
	Type           string         `gorm:"type:varchar(16);not null" json:"type"`
	FunctionSchema models.JSONMap `gorm:"type:text" json:"function_schema"`
	Configuration  models.JSONMap `gorm:"type:text" json:"configuration"`
	Embedding      models.Vector  `gorm:"type:text" json:"-"`
	IsActive       bool           `gorm:"not null;default:true" json:"is_active"`
	ExecutionCount int64          `gorm:"not null;default:0" json:"execution_count"`
	LastExecutedAt *time.Time     `json:"last_executed_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (Skill) TableName() string { return "skills" }

// Association joins a skill to a chatbot. It carries its own active flag
// and an optional config override merged over the skill's configuration
// at execution time.
type Association struct {
	ID           string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatbotID    string         `gorm:"type:varchar(36);index:idx_assoc_chatbot_skill,unique,priority:1;not null" json:"chatbot_id"`
	SkillID      string         `gorm:"type:varchar(36);index:idx_assoc_chatbot_skill,unique,priority:2;not null" json:"skill_id"`
	IsActive     bool           `gorm:"not null;default:true" json:"is_active"`
	CustomConfig models.JSONMap `gorm:"type:text" json:"custom_config"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (Association) TableName() string { return "chatbot_skill_associations" }

// WithAssociation pairs a skill with the association that attached it to
// the chatbot in question.
type WithAssociation struct {
	Skill
	Association Association `json:"association"`
}

// Execution is an append-only audit record of one tool invocation.
type Execution struct {
	ID              string         `gorm:"type:varchar(26);primaryKey" json:"id"` // ULID
	SkillID         string         `gorm:"type:varchar(36);index;not null" json:"skill_id"`
	ChatSessionID   string         `gorm:"type:varchar(36);index" json:"chat_session_id"`
	UserID          string         `gorm:"type:varchar(36)" json:"user_id"`
	ChannelType     string         `gorm:"type:varchar(16)" json:"channel_type"` // web|embed|slack|discord|api|alexa
	ExecutionStatus string         `gorm:"type:varchar(16);index;not null" json:"execution_status"`
	InputParameters models.JSONMap `gorm:"type:text" json:"input_parameters"`
	OutputResult    models.JSONMap `gorm:"type:text" json:"output_result"`
	ErrorMessage    string         `gorm:"type:text" json:"error_message"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	CreatedAt       time.Time      `json:"created_at"`
}

func (Execution) TableName() string { return "skill_executions" }

// WebhookConfig is the outbound call config stored in a skill's
// configuration (either flat or nested under "webhook_config").
type WebhookConfig struct {
	URL           string
	Method        string
	Headers       map[string]string
	TimeoutMs     int
	RetryAttempts int
}
