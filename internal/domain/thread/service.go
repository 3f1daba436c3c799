package thread

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"health-companion/services/chat-gateway/internal/infrastructure/logger"
	"health-companion/services/chat-gateway/internal/infrastructure/metrics"
)

// Notifier publishes thread lifecycle events to interested consumers.
// Delivery is best-effort; failures must not affect the caller.
type Notifier interface {
	NotifyThreadCreated(ctx context.Context, thread *Thread) error
}

// TurnParams describes one completed conversation turn.
type TurnParams struct {
	UserID         string
	ConversationID string
	UserMessage    string
	Answer         string
}

// CreateParams describes an explicit thread creation request.
type CreateParams struct {
	ConversationID string
	Title          *string
}

// UpdateParams carries optional thread metadata changes.
type UpdateParams struct {
	Title              *string
	LastMessagePreview *string
	Archived           *bool
}

// Service owns thread persistence.
type Service interface {
	// RecordTurn ensures exactly one thread exists for the turn's
	// (user, conversation) pair and that its preview reflects the
	// latest answer. Create races are resolved by the storage layer's
	// uniqueness constraint, not by locking.
	RecordTurn(ctx context.Context, params TurnParams) (*Thread, error)

	List(ctx context.Context, userID string, includeArchived bool) ([]*Thread, error)
	Get(ctx context.Context, userID, publicID string) (*Thread, error)
	Create(ctx context.Context, userID string, params CreateParams) (*Thread, error)
	Update(ctx context.Context, userID, publicID string, params UpdateParams) (*Thread, error)
	Archive(ctx context.Context, userID, publicID string) (*Thread, error)
	Delete(ctx context.Context, userID, publicID string) error
}

type service struct {
	repo     Repository
	notifier Notifier
	log      zerolog.Logger
}

// NewService constructs the thread service.
func NewService(repo Repository, notifier Notifier, log zerolog.Logger) Service {
	return &service{
		repo:     repo,
		notifier: notifier,
		log:      logger.Component(log, "thread-service"),
	}
}

func (s *service) RecordTurn(ctx context.Context, params TurnParams) (*Thread, error) {
	existing, err := s.repo.FindByConversationID(ctx, params.UserID, params.ConversationID)
	if err != nil && !errors.Is(err, ErrThreadNotFound) {
		s.log.Warn().Err(err).
			Str("conversation_id", params.ConversationID).
			Msg("error checking existing thread")
	}

	if existing != nil {
		return s.updateTurn(ctx, existing, params)
	}

	title := TitleFromMessage(params.UserMessage)
	preview := PreviewFromAnswer(params.Answer)
	created := &Thread{
		UserID:             params.UserID,
		ConversationID:     params.ConversationID,
		Title:              &title,
		LastMessagePreview: &preview,
	}

	if err := s.repo.Create(ctx, created); err != nil {
		if !errors.Is(err, ErrConversationExists) {
			metrics.RecordThreadPersistence("create", "error")
			return nil, err
		}
		// A concurrent first turn won the insert; fall back to update.
		winner, findErr := s.repo.FindByConversationID(ctx, params.UserID, params.ConversationID)
		if findErr != nil {
			metrics.RecordThreadPersistence("create", "error")
			return nil, findErr
		}
		return s.updateTurn(ctx, winner, params)
	}

	metrics.RecordThreadPersistence("create", "ok")
	s.log.Info().
		Str("thread_id", created.PublicID).
		Str("conversation_id", created.ConversationID).
		Msg("thread created")
	s.notifyCreated(ctx, created)
	return created, nil
}

func (s *service) updateTurn(ctx context.Context, existing *Thread, params TurnParams) (*Thread, error) {
	// Only the preview column is written; a concurrent rename or archive
	// of the same thread must not be clobbered by a full-row save.
	preview := PreviewFromAnswer(params.Answer)
	if err := s.repo.UpdatePreview(ctx, existing.ID, preview); err != nil {
		metrics.RecordThreadPersistence("update", "error")
		return nil, err
	}
	existing.LastMessagePreview = &preview

	metrics.RecordThreadPersistence("update", "ok")
	s.log.Info().
		Str("thread_id", existing.PublicID).
		Str("conversation_id", existing.ConversationID).
		Msg("thread metadata updated")
	return existing, nil
}

func (s *service) List(ctx context.Context, userID string, includeArchived bool) ([]*Thread, error) {
	return s.repo.FindByUser(ctx, userID, includeArchived)
}

func (s *service) Get(ctx context.Context, userID, publicID string) (*Thread, error) {
	return s.repo.FindByPublicID(ctx, userID, publicID)
}

func (s *service) Create(ctx context.Context, userID string, params CreateParams) (*Thread, error) {
	if !ValidConversationID(params.ConversationID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidConversationID, params.ConversationID)
	}

	created := &Thread{
		UserID:         userID,
		ConversationID: params.ConversationID,
		Title:          params.Title,
	}
	if err := s.repo.Create(ctx, created); err != nil {
		return nil, err
	}
	s.notifyCreated(ctx, created)
	return created, nil
}

func (s *service) Update(ctx context.Context, userID, publicID string, params UpdateParams) (*Thread, error) {
	existing, err := s.repo.FindByPublicID(ctx, userID, publicID)
	if err != nil {
		return nil, err
	}

	if params.Title != nil {
		existing.Title = params.Title
	}
	if params.LastMessagePreview != nil {
		existing.LastMessagePreview = params.LastMessagePreview
	}
	if params.Archived != nil {
		existing.Archived = *params.Archived
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

func (s *service) Archive(ctx context.Context, userID, publicID string) (*Thread, error) {
	archived := true
	return s.Update(ctx, userID, publicID, UpdateParams{Archived: &archived})
}

func (s *service) Delete(ctx context.Context, userID, publicID string) error {
	return s.repo.Delete(ctx, userID, publicID)
}

func (s *service) notifyCreated(ctx context.Context, created *Thread) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyThreadCreated(ctx, created); err != nil {
		s.log.Warn().Err(err).
			Str("thread_id", created.PublicID).
			Msg("thread created notification failed")
	}
}
