package kb

import (
	"time"

	"github.com/syllabi/chat-platform/internal/models"
)

// ContentSource is one ingested document/url/video/audio source.
type ContentSource struct {
	ID             string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatbotID      string    `gorm:"type:varchar(36);index;not null" json:"chatbot_id"`
	FileName       string    `gorm:"type:varchar(512);not null" json:"file_name"`
	ContentType    string    `gorm:"type:varchar(16);not null" json:"content_type"` // document|url|video|audio
	IndexingStatus string    `gorm:"type:varchar(16)" json:"indexing_status"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

func (ContentSource) TableName() string { return "chatbot_content_sources" }

// Chunk is an embedded slice of a content source.
type Chunk struct {
	ID          string        `gorm:"type:varchar(36);primaryKey" json:"chunk_id"`
	ReferenceID string        `gorm:"type:varchar(36);index;not null" json:"reference_id"`
	ChatbotID   string        `gorm:"type:varchar(36);index;not null" json:"-"`
	ContentType string        `gorm:"type:varchar(16);not null" json:"content_type"`
	PageNumber  *int          `json:"page_number,omitempty"`
	Text        string        `gorm:"type:text;not null" json:"content"`
	TokenCount  int           `json:"token_count"`
	Embedding   models.Vector `gorm:"type:text" json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
}

func (Chunk) TableName() string { return "document_chunks" }

// Match is a chunk with its similarity score.
type Match struct {
	Chunk
	Similarity float64 `json:"similarity"`
}
