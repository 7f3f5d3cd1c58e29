package chat

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/syllabi/chat-platform/internal/common"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// FindOrCreateByExternalID resolves the session for a channel-native
// session id, creating it on first contact. Create-then-refetch on
// conflict keeps the operation idempotent under concurrent resolution:
// the unique (external_session_id, chatbot_id) index guarantees a single
// row.
func (r *Repo) FindOrCreateByExternalID(ctx context.Context, externalSessionID, chatbotID, chatbotSlug, channel string) (*Session, error) {
	var existing Session
	err := r.db.WithContext(ctx).
		Where("external_session_id = ? AND chatbot_id = ?", externalSessionID, chatbotID).
		First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	name := externalSessionID
	if len(name) > 8 {
		name = name[:8]
	}
	s := &Session{
		ID:                common.NewUUID(),
		ChatbotID:         chatbotID,
		ChatbotSlug:       chatbotSlug,
		ExternalSessionID: &externalSessionID,
		Name:              fmt.Sprintf("%s Session %s", channelLabel(channel), name),
		Channel:           channel,
	}
	if createErr := r.db.WithContext(ctx).Create(s).Error; createErr != nil {
		// Lost the race: another request created the row first.
		refetchErr := r.db.WithContext(ctx).
			Where("external_session_id = ? AND chatbot_id = ?", externalSessionID, chatbotID).
			First(&existing).Error
		if refetchErr == nil {
			return &existing, nil
		}
		return nil, createErr
	}
	return s, nil
}

// EnsureSession creates the session row for an internal session id when
// it does not exist yet (web/widget sessions send their own ids).
func (r *Repo) EnsureSession(ctx context.Context, id, chatbotID, chatbotSlug, channel string) (*Session, error) {
	var existing Session
	err := r.db.WithContext(ctx).First(&existing, "id = ?", id).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	s := &Session{
		ID:          id,
		ChatbotID:   chatbotID,
		ChatbotSlug: chatbotSlug,
		Channel:     channel,
	}
	if createErr := r.db.WithContext(ctx).Create(s).Error; createErr != nil {
		refetchErr := r.db.WithContext(ctx).First(&existing, "id = ?", id).Error
		if refetchErr == nil {
			return &existing, nil
		}
		return nil, createErr
	}
	return s, nil
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = common.NewUUID()
	}
	return r.db.WithContext(ctx).Create(m).Error
}

// History returns all messages of a session in chronological order.
func (r *Repo) History(ctx context.Context, sessionID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_session_id = ?", sessionID).
		Order("created_at ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func channelLabel(channel string) string {
	switch channel {
	case "alexa":
		return "Alexa"
	case "slack":
		return "Slack"
	case "discord":
		return "Discord"
	case "sms":
		return "SMS"
	default:
		return "Chat"
	}
}
