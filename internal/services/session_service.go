package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/jam3a-shop/api/internal/domain"
	"github.com/jam3a-shop/api/internal/platform/config"
	"github.com/jam3a-shop/api/internal/repositories"
)

var (
	// ErrSessionInvalidInput indicates out-of-range session creation parameters.
	ErrSessionInvalidInput = errors.New("session service: invalid parameters")
	// ErrSessionNotFound indicates the requested session does not exist.
	ErrSessionNotFound = errors.New("session service: session not found")
	// ErrSessionNotCancellable indicates the session is already in a terminal state.
	ErrSessionNotCancellable = errors.New("session service: session not cancellable")
	// ErrCancelForbidden indicates the actor may not cancel this session.
	ErrCancelForbidden = errors.New("session service: only the creator may cancel")
	// ErrPaymentUnknown indicates a webhook referenced a transaction this session never saw.
	ErrPaymentUnknown = errors.New("session service: unknown payment transaction")
)

// EventLogger records structured service events.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

// SessionServiceDeps bundles collaborators for the session service.
type SessionServiceDeps struct {
	Sessions  repositories.SessionRepository
	Catalog   repositories.CatalogRepository
	Publisher SessionEventPublisher
	Policy    config.GroupBuyConfig
	Clock     func() time.Time
	Logger    EventLogger
}

type sessionService struct {
	sessions  repositories.SessionRepository
	catalog   repositories.CatalogRepository
	publisher SessionEventPublisher
	policy    config.GroupBuyConfig
	clock     func() time.Time
	logger    EventLogger
}

var _ SessionService = (*sessionService)(nil)

// NewSessionService constructs the session service.
func NewSessionService(deps SessionServiceDeps) (SessionService, error) {
	if deps.Sessions == nil {
		return nil, errors.New("session service: session repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("session service: catalog repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &sessionService{
		sessions:  deps.Sessions,
		catalog:   deps.Catalog,
		publisher: deps.Publisher,
		policy:    deps.Policy,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
	}, nil
}

func (s *sessionService) CreateSession(ctx context.Context, cmd CreateSessionCommand) (SessionView, error) {
	creatorID := strings.TrimSpace(cmd.CreatorID)
	if creatorID == "" {
		return SessionView{}, fmt.Errorf("%w: creator id is required", ErrSessionInvalidInput)
	}
	if cmd.TargetSize < s.policy.MinTargetSize || (s.policy.MaxTargetSize > 0 && cmd.TargetSize > s.policy.MaxTargetSize) {
		return SessionView{}, fmt.Errorf("%w: target size %d outside [%d, %d]",
			ErrSessionInvalidInput, cmd.TargetSize, s.policy.MinTargetSize, s.policy.MaxTargetSize)
	}
	duration := cmd.Duration
	if duration == 0 {
		duration = s.policy.DefaultDuration
	}
	if duration <= 0 || (s.policy.MaxDuration > 0 && duration > s.policy.MaxDuration) {
		return SessionView{}, fmt.Errorf("%w: duration %s outside (0, %s]", ErrSessionInvalidInput, duration, s.policy.MaxDuration)
	}
	if !cmd.Visibility.Valid() {
		return SessionView{}, fmt.Errorf("%w: unknown visibility %q", ErrSessionInvalidInput, cmd.Visibility)
	}
	if !cmd.PaymentMode.Valid() {
		return SessionView{}, fmt.Errorf("%w: unknown payment mode %q", ErrSessionInvalidInput, cmd.PaymentMode)
	}

	product, err := s.catalog.FindProduct(ctx, strings.TrimSpace(cmd.ProductID))
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return SessionView{}, ErrProductNotFound
		}
		return SessionView{}, err
	}
	if !product.Active {
		return SessionView{}, fmt.Errorf("%w: product %s is not available", ErrSessionInvalidInput, product.ID)
	}
	if err := product.Schedule.Validate(product.BasePrice); err != nil {
		return SessionView{}, err
	}

	now := s.clock()
	session := domain.GroupSession{
		CreatorID:   creatorID,
		Product:     product.Clone(),
		TargetSize:  cmd.TargetSize,
		CreatedAt:   now,
		ExpiresAt:   now.Add(duration),
		Visibility:  cmd.Visibility,
		PaymentMode: cmd.PaymentMode,
		Payment:     cmd.Payment,
	}
	if s.policy.CreatorJoins {
		quote, err := domain.ResolvePrice(session.Product.Schedule, session.Product.BasePrice, 1)
		if err != nil {
			return SessionView{}, err
		}
		participant := domain.Participant{
			UserID:    creatorID,
			JoinedAt:  now,
			UnitPrice: quote.UnitPrice,
		}
		if cmd.Payment != nil {
			participant.PaymentID = cmd.Payment.TransactionID
		}
		session.Participants = []domain.Participant{participant}
	}

	created, err := s.sessions.Create(ctx, session)
	if err != nil {
		return SessionView{}, err
	}

	s.logger(ctx, "session.created", map[string]any{
		"sessionId":  created.ID,
		"productId":  created.Product.ID,
		"creatorId":  creatorID,
		"targetSize": created.TargetSize,
	})
	s.publish(ctx, SessionEventMessage{
		Event:      EventSessionCreated,
		SessionID:  created.ID,
		ProductID:  created.Product.ID,
		UserID:     creatorID,
		Headcount:  len(created.Participants),
		OccurredAt: now,
	})

	return s.view(created, now)
}

func (s *sessionService) GetSession(ctx context.Context, sessionID string) (SessionView, error) {
	session, err := s.sessions.FindByID(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return SessionView{}, ErrSessionNotFound
		}
		return SessionView{}, err
	}
	now := s.clock()
	s.noteExpiry(ctx, session, now)
	return s.view(session, now)
}

func (s *sessionService) ListPublicSessions(ctx context.Context, pager Pagination) (domain.CursorPage[SessionView], error) {
	page, err := s.sessions.List(ctx, repositories.SessionListFilter{
		Visibility: domain.VisibilityPublic,
		Pagination: pager,
	})
	if err != nil {
		return domain.CursorPage[SessionView]{}, err
	}

	now := s.clock()
	views := make([]SessionView, 0, len(page.Items))
	for _, session := range page.Items {
		if session.StateAt(now) != domain.StateForming {
			continue
		}
		view, err := s.view(session, now)
		if err != nil {
			return domain.CursorPage[SessionView]{}, err
		}
		views = append(views, view)
	}
	return domain.CursorPage[SessionView]{Items: views, NextPageToken: page.NextPageToken}, nil
}

func (s *sessionService) ListSessions(ctx context.Context, filter SessionFilter) (domain.CursorPage[SessionView], error) {
	page, err := s.sessions.List(ctx, repositories.SessionListFilter{
		Visibility: filter.Visibility,
		CreatorID:  strings.TrimSpace(filter.CreatorID),
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[SessionView]{}, err
	}

	now := s.clock()
	views := make([]SessionView, 0, len(page.Items))
	for _, session := range page.Items {
		view, err := s.view(session, now)
		if err != nil {
			return domain.CursorPage[SessionView]{}, err
		}
		views = append(views, view)
	}
	return domain.CursorPage[SessionView]{Items: views, NextPageToken: page.NextPageToken}, nil
}

func (s *sessionService) CancelSession(ctx context.Context, cmd CancelSessionCommand) (SessionView, error) {
	actorID := strings.TrimSpace(cmd.ActorID)
	if actorID == "" {
		return SessionView{}, fmt.Errorf("%w: actor id is required", ErrSessionInvalidInput)
	}

	now := s.clock()
	cancelled, err := s.sessions.Mutate(ctx, strings.TrimSpace(cmd.SessionID), func(session *domain.GroupSession) error {
		if session.CreatorID != actorID && !cmd.AsAdmin {
			return ErrCancelForbidden
		}
		if state := session.StateAt(now); state != domain.StateForming {
			return fmt.Errorf("%w: state is %s", ErrSessionNotCancellable, state)
		}
		at := now
		session.CancelledAt = &at
		session.CancelledBy = actorID
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return SessionView{}, ErrSessionNotFound
		}
		return SessionView{}, err
	}

	s.logger(ctx, "session.cancelled", map[string]any{
		"sessionId": cancelled.ID,
		"actorId":   actorID,
		"asAdmin":   cmd.AsAdmin,
	})
	s.publish(ctx, SessionEventMessage{
		Event:      EventSessionCancelled,
		SessionID:  cancelled.ID,
		ProductID:  cancelled.Product.ID,
		UserID:     actorID,
		Headcount:  len(cancelled.Participants),
		OccurredAt: now,
	})

	return s.view(cancelled, now)
}

func (s *sessionService) RecordPaymentUpdate(ctx context.Context, cmd PaymentUpdateCommand) error {
	transactionID := strings.TrimSpace(cmd.TransactionID)
	if transactionID == "" {
		return fmt.Errorf("%w: transaction id is required", ErrSessionInvalidInput)
	}

	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		// Webhooks carry only the PSP transaction id.
		session, err := s.sessions.FindByPayment(ctx, transactionID)
		if err != nil {
			if errors.Is(err, repositories.ErrSessionNotFound) {
				return fmt.Errorf("%w: %s", ErrPaymentUnknown, transactionID)
			}
			return err
		}
		sessionID = session.ID
	}

	_, err := s.sessions.Mutate(ctx, sessionID, func(session *domain.GroupSession) error {
		if session.Payment == nil || session.Payment.TransactionID != transactionID {
			return fmt.Errorf("%w: %s", ErrPaymentUnknown, transactionID)
		}
		session.Payment.Status = strings.TrimSpace(cmd.Status)
		session.Payment.RecordedAt = s.clock()
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return err
	}

	s.logger(ctx, "session.payment.updated", map[string]any{
		"sessionId":     sessionID,
		"transactionId": transactionID,
		"status":        cmd.Status,
	})
	return nil
}

var errExpiryAlreadyNoted = errors.New("expiry already noted")

// noteExpiry publishes the expiry event the first time an expired session is
// observed. The stored marker makes the notification exactly-once even though
// expiry itself is derived lazily.
func (s *sessionService) noteExpiry(ctx context.Context, session domain.GroupSession, now time.Time) {
	if session.StateAt(now) != domain.StateExpired || session.ExpiryNotifiedAt != nil {
		return
	}
	marked, err := s.sessions.Mutate(ctx, session.ID, func(stored *domain.GroupSession) error {
		if stored.ExpiryNotifiedAt != nil || stored.StateAt(now) != domain.StateExpired {
			return errExpiryAlreadyNoted
		}
		at := now
		stored.ExpiryNotifiedAt = &at
		return nil
	})
	if err != nil {
		if !errors.Is(err, errExpiryAlreadyNoted) {
			s.logger(ctx, "session.expiry.mark_failed", map[string]any{
				"sessionId": session.ID,
				"error":     err.Error(),
			})
		}
		return
	}
	s.publish(ctx, SessionEventMessage{
		Event:      EventSessionExpired,
		SessionID:  marked.ID,
		ProductID:  marked.Product.ID,
		Headcount:  len(marked.Participants),
		OccurredAt: now,
	})
}

// publish delivers a lifecycle event. Failures are logged and swallowed:
// notifications are not required for correctness.
func (s *sessionService) publish(ctx context.Context, msg SessionEventMessage) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.PublishSessionEvent(ctx, msg); err != nil {
		s.logger(ctx, "session.event.publish_failed", map[string]any{
			"event":     msg.Event,
			"sessionId": msg.SessionID,
			"error":     err.Error(),
		})
	}
}

func (s *sessionService) view(session domain.GroupSession, now time.Time) (SessionView, error) {
	quote, err := session.CurrentPrice()
	if err != nil {
		return SessionView{}, err
	}
	return SessionView{
		Session:        session.Clone(),
		State:          session.StateAt(now),
		CurrentPrice:   quote,
		SlotsRemaining: session.SlotsRemaining(),
		TierPreviews:   tierPreviews(session.Product, session.TargetSize),
	}, nil
}

// tierPreviews maps every schedule tier reachable by this session to the
// price it unlocks, with the base price as the implicit first row.
func tierPreviews(product domain.Product, targetSize int) []TierPreview {
	previews := []TierPreview{{MinCount: 1, UnitPrice: product.BasePrice}}
	for _, tier := range product.Schedule {
		if targetSize > 0 && tier.MinCount > targetSize {
			break
		}
		previews = append(previews, TierPreview{
			MinCount:     tier.MinCount,
			UnitPrice:    tier.Price,
			Savings:      product.BasePrice - tier.Price,
			SavingsLabel: tier.SavingsLabel,
		})
	}
	return previews
}
