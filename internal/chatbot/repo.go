package chatbot

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrTriggerTaken is returned when a channel link would reuse a trigger
// phrase already configured for the same integration account.
var ErrTriggerTaken = errors.New("trigger phrase already in use for this integration")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Chatbot, error) {
	var c Chatbot
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) GetBySlug(ctx context.Context, slug string) (*Chatbot, error) {
	var c Chatbot
	if err := r.db.WithContext(ctx).First(&c, "slug = ?", slug).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *Repo) Create(ctx context.Context, c *Chatbot) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetIntegration(ctx context.Context, id string) (*ConnectedIntegration, error) {
	var ci ConnectedIntegration
	if err := r.db.WithContext(ctx).First(&ci, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ci, nil
}

// FindIntegrationByExternalUserID looks up an integration account by the
// channel's native user id persisted in metadata (e.g. the amazon user id
// stored during account linking).
func (r *Repo) FindIntegrationByExternalUserID(ctx context.Context, integrationType, externalUserID string) (*ConnectedIntegration, error) {
	var list []ConnectedIntegration
	if err := r.db.WithContext(ctx).
		Where("integration_type = ?", integrationType).
		Find(&list).Error; err != nil {
		return nil, err
	}
	for i := range list {
		if v, ok := list[i].Metadata["amazon_user_id"].(string); ok && v == externalUserID {
			return &list[i], nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

// RememberExternalUserID stores the channel-native user id on the
// integration row, only when it is not already set. Best-effort: callers
// ignore the error.
func (r *Repo) RememberExternalUserID(ctx context.Context, integrationID, externalUserID string) error {
	var ci ConnectedIntegration
	if err := r.db.WithContext(ctx).First(&ci, "id = ?", integrationID).Error; err != nil {
		return err
	}
	if v, ok := ci.Metadata["amazon_user_id"].(string); ok && v != "" {
		return nil
	}
	if ci.Metadata == nil {
		ci.Metadata = map[string]any{}
	}
	ci.Metadata["amazon_user_id"] = externalUserID
	return r.db.WithContext(ctx).Model(&ConnectedIntegration{}).
		Where("id = ?", ci.ID).
		Update("metadata", ci.Metadata).Error
}

func (r *Repo) CreateIntegration(ctx context.Context, ci *ConnectedIntegration) error {
	return r.db.WithContext(ctx).Create(ci).Error
}

// ListChannelLinks returns all chatbot links for one integration account.
func (r *Repo) ListChannelLinks(ctx context.Context, integrationID string) ([]ChannelLink, error) {
	var links []ChannelLink
	if err := r.db.WithContext(ctx).
		Where("integration_id = ?", integrationID).
		Order("created_at ASC").
		Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// CreateChannelLink inserts a link after enforcing trigger uniqueness and
// the single-default invariant within the integration account.
func (r *Repo) CreateChannelLink(ctx context.Context, link *ChannelLink) error {
	cfg := link.ParsedConfig()

	existing, err := r.ListChannelLinks(ctx, link.IntegrationID)
	if err != nil {
		return err
	}
	for _, other := range existing {
		otherCfg := other.ParsedConfig()
		if cfg.Trigger != "" && strings.EqualFold(otherCfg.Trigger, cfg.Trigger) {
			return ErrTriggerTaken
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if cfg.IsDefault {
			// Demote any previous default so at most one link is flagged.
			for _, other := range existing {
				if other.ParsedConfig().IsDefault {
					otherCfg := other.Config
					otherCfg["is_default"] = false
					if err := tx.Model(&ChannelLink{}).
						Where("id = ?", other.ID).
						Update("config", otherCfg).Error; err != nil {
						return err
					}
				}
			}
		}
		return tx.Create(link).Error
	})
}

func (r *Repo) DeleteChannelLink(ctx context.Context, linkID string) error {
	return r.db.WithContext(ctx).Delete(&ChannelLink{}, "id = ?", linkID).Error
}
