package thread

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	domain "health-companion/services/chat-gateway/internal/domain/thread"
	"health-companion/services/chat-gateway/internal/infrastructure/database/entities"
	"health-companion/services/chat-gateway/internal/infrastructure/metrics"
	"health-companion/services/chat-gateway/internal/utils/platformerrors"
)

// PostgresRepository persists threads backed by GORM/PostgreSQL.
type PostgresRepository struct {
	db *gorm.DB
}

// NewPostgresRepository constructs the repository.
func NewPostgresRepository(db *gorm.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the thread record. A unique violation on
// (user_id, conversation_id) maps to domain.ErrConversationExists.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Thread) error {
	entity := entities.NewSchemaThread(t)
	if entity.PublicID == "" {
		entity.PublicID = uuid.New().String()
	}

	start := time.Now()
	err := r.db.WithContext(ctx).Create(entity).Error
	metrics.RecordDBQuery("thread_create", time.Since(start).Seconds())

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrConversationExists, t.ConversationID)
		}
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to create thread",
			err,
			"thread-create-db-error",
		)
	}

	t.ID = entity.ID
	t.PublicID = entity.PublicID
	t.CreatedAt = entity.CreatedAt
	t.UpdatedAt = entity.UpdatedAt
	return nil
}

// FindByConversationID fetches the thread owning the upstream conversation.
func (r *PostgresRepository) FindByConversationID(ctx context.Context, userID, conversationID string) (*domain.Thread, error) {
	var entity entities.Thread

	start := time.Now()
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation_id = ?", userID, conversationID).
		First(&entity).Error
	metrics.RecordDBQuery("thread_find_by_conversation", time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: conversation %s", domain.ErrThreadNotFound, conversationID)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to fetch thread by conversation",
			err,
			"thread-find-conversation-db-error",
		)
	}

	return entity.EtoD(), nil
}

// FindByPublicID fetches a thread by its public ID, scoped to its owner.
func (r *PostgresRepository) FindByPublicID(ctx context.Context, userID, publicID string) (*domain.Thread, error) {
	var entity entities.Thread

	start := time.Now()
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND public_id = ?", userID, publicID).
		First(&entity).Error
	metrics.RecordDBQuery("thread_find_by_public_id", time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrThreadNotFound, publicID)
		}
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to fetch thread",
			err,
			"thread-find-public-db-error",
		)
	}

	return entity.EtoD(), nil
}

// FindByUser lists the user's threads ordered by updated_at DESC.
func (r *PostgresRepository) FindByUser(ctx context.Context, userID string, includeArchived bool) ([]*domain.Thread, error) {
	query := r.db.WithContext(ctx).
		Model(&entities.Thread{}).
		Where("user_id = ?", userID)
	if !includeArchived {
		query = query.Where("archived = ?", false)
	}

	var rows []entities.Thread

	start := time.Now()
	err := query.Order("updated_at DESC").Find(&rows).Error
	metrics.RecordDBQuery("thread_find_by_user", time.Since(start).Seconds())

	if err != nil {
		return nil, platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to list threads",
			err,
			"thread-list-db-error",
		)
	}

	result := make([]*domain.Thread, len(rows))
	for i := range rows {
		result[i] = rows[i].EtoD()
	}
	return result, nil
}

// Update saves thread metadata changes.
func (r *PostgresRepository) Update(ctx context.Context, t *domain.Thread) error {
	entity := entities.NewSchemaThread(t)

	start := time.Now()
	err := r.db.WithContext(ctx).Save(entity).Error
	metrics.RecordDBQuery("thread_update", time.Since(start).Seconds())

	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to update thread",
			err,
			"thread-update-db-error",
		)
	}

	t.UpdatedAt = entity.UpdatedAt
	return nil
}

// UpdatePreview writes the last_message_preview column for one row.
// GORM bumps updated_at alongside it; no other column is touched.
func (r *PostgresRepository) UpdatePreview(ctx context.Context, id uint, preview string) error {
	start := time.Now()
	err := r.db.WithContext(ctx).
		Model(&entities.Thread{}).
		Where("id = ?", id).
		Update("last_message_preview", preview).Error
	metrics.RecordDBQuery("thread_update_preview", time.Since(start).Seconds())

	if err != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to update thread preview",
			err,
			"thread-update-preview-db-error",
		)
	}
	return nil
}

// Delete removes a thread, scoped to its owner.
func (r *PostgresRepository) Delete(ctx context.Context, userID, publicID string) error {
	start := time.Now()
	res := r.db.WithContext(ctx).
		Where("user_id = ? AND public_id = ?", userID, publicID).
		Delete(&entities.Thread{})
	metrics.RecordDBQuery("thread_delete", time.Since(start).Seconds())

	if res.Error != nil {
		return platformerrors.NewError(
			ctx,
			platformerrors.LayerRepository,
			platformerrors.ErrorTypeDatabaseError,
			"failed to delete thread",
			res.Error,
			"thread-delete-db-error",
		)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrThreadNotFound, publicID)
	}
	return nil
}

// Ensure interface compliance.
var _ domain.Repository = (*PostgresRepository)(nil)

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
