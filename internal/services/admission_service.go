package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/jam3a-shop/api/internal/domain"
	"github.com/jam3a-shop/api/internal/payments"
	"github.com/jam3a-shop/api/internal/repositories"
)

// ErrDuplicateParticipant indicates the user already joined the session.
var ErrDuplicateParticipant = errors.New("admission: user already joined this session")

// NotOpenReason narrows why a session refuses joins.
type NotOpenReason string

const (
	ReasonCompleted NotOpenReason = "completed"
	ReasonExpired   NotOpenReason = "expired"
	ReasonCancelled NotOpenReason = "cancelled"
)

// SessionNotOpenError is the recoverable outcome for joins against a session
// that is no longer forming. Callers branch on Reason for user messaging.
type SessionNotOpenError struct {
	SessionID string
	Reason    NotOpenReason
}

func (e *SessionNotOpenError) Error() string {
	return fmt.Sprintf("admission: session %s is not open: %s", e.SessionID, e.Reason)
}

func notOpenReason(state domain.LifecycleState) NotOpenReason {
	switch state {
	case domain.StateCompleted:
		return ReasonCompleted
	case domain.StateCancelled:
		return ReasonCancelled
	default:
		return ReasonExpired
	}
}

// PaymentCapturer captures deferred charges once a group fills.
type PaymentCapturer interface {
	Capture(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CaptureRequest) (payments.PaymentDetails, error)
}

// AdmissionServiceDeps bundles collaborators for the admission controller.
type AdmissionServiceDeps struct {
	Sessions  repositories.SessionRepository
	Publisher SessionEventPublisher
	Payments  PaymentCapturer
	Clock     func() time.Time
	Logger    EventLogger
}

// admissionService serialises joins per session: an in-process mutex keyed by
// session id keeps local callers ordered, and the repository's transactional
// Mutate is what makes the check-then-append indivisible across processes.
// Joins on different sessions never contend.
type admissionService struct {
	sessions  repositories.SessionRepository
	publisher SessionEventPublisher
	payments  PaymentCapturer
	clock     func() time.Time
	logger    EventLogger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

var _ AdmissionService = (*admissionService)(nil)

// NewAdmissionService constructs the admission controller.
func NewAdmissionService(deps AdmissionServiceDeps) (AdmissionService, error) {
	if deps.Sessions == nil {
		return nil, errors.New("admission service: session repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &admissionService{
		sessions:  deps.Sessions,
		publisher: deps.Publisher,
		payments:  deps.Payments,
		clock:     func() time.Time { return clock().UTC() },
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

func (s *admissionService) Join(ctx context.Context, cmd JoinCommand) (JoinResult, error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	userID := strings.TrimSpace(cmd.UserID)
	if sessionID == "" || userID == "" {
		return JoinResult{}, errors.New("admission service: session id and user id are required")
	}

	lock := s.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	now := s.clock()
	justCompleted := false

	joined, err := s.sessions.Mutate(ctx, sessionID, func(session *domain.GroupSession) error {
		// Re-read fresh inside the critical section: the state gate and the
		// capacity check must see the committed participant list.
		if state := session.StateAt(now); state != domain.StateForming {
			return &SessionNotOpenError{SessionID: sessionID, Reason: notOpenReason(state)}
		}
		if session.HasParticipant(userID) {
			return ErrDuplicateParticipant
		}

		newCount := len(session.Participants) + 1
		quote, err := domain.ResolvePrice(session.Product.Schedule, session.Product.BasePrice, newCount)
		if err != nil {
			return err
		}
		session.Participants = append(session.Participants, domain.Participant{
			UserID:    userID,
			JoinedAt:  now,
			UnitPrice: quote.UnitPrice,
			PaymentID: strings.TrimSpace(cmd.PaymentID),
		})
		justCompleted = newCount == session.TargetSize
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return JoinResult{}, ErrSessionNotFound
		}
		return JoinResult{}, err
	}

	quote, err := joined.CurrentPrice()
	if err != nil {
		return JoinResult{}, err
	}

	s.logger(ctx, "admission.joined", map[string]any{
		"sessionId":     sessionID,
		"userId":        userID,
		"headcount":     len(joined.Participants),
		"unitPrice":     quote.UnitPrice,
		"justCompleted": justCompleted,
	})
	s.publishEvent(ctx, SessionEventMessage{
		Event:      EventParticipantJoined,
		SessionID:  sessionID,
		ProductID:  joined.Product.ID,
		UserID:     userID,
		Headcount:  len(joined.Participants),
		UnitPrice:  quote.UnitPrice,
		OccurredAt: now,
	})

	if justCompleted {
		// This caller crossed the threshold; completion side effects fire
		// exactly once, here.
		s.publishEvent(ctx, SessionEventMessage{
			Event:      EventSessionCompleted,
			SessionID:  sessionID,
			ProductID:  joined.Product.ID,
			Headcount:  len(joined.Participants),
			UnitPrice:  quote.UnitPrice,
			OccurredAt: now,
		})
		if joined.PaymentMode == domain.PayOnCompletion {
			s.captureDeferredCharges(ctx, joined)
		}
	}

	return JoinResult{
		Session: SessionView{
			Session:        joined.Clone(),
			State:          joined.StateAt(now),
			CurrentPrice:   quote,
			SlotsRemaining: joined.SlotsRemaining(),
			TierPreviews:   tierPreviews(joined.Product, joined.TargetSize),
		},
		JustCompleted: justCompleted,
	}, nil
}

// captureDeferredCharges settles the authorizations held for a filled
// pay-on-completion group. Capture failures are logged for reconciliation,
// never surfaced to the admitting caller.
func (s *admissionService) captureDeferredCharges(ctx context.Context, session domain.GroupSession) {
	if s.payments == nil {
		return
	}
	paymentCtx := payments.PaymentContext{Currency: session.Product.Currency}
	for _, participant := range session.Participants {
		if participant.PaymentID == "" {
			continue
		}
		_, err := s.payments.Capture(ctx, paymentCtx, payments.CaptureRequest{
			IntentID:       participant.PaymentID,
			IdempotencyKey: fmt.Sprintf("capture-%s-%s", session.ID, participant.UserID),
		})
		if err != nil {
			s.logger(ctx, "admission.capture_failed", map[string]any{
				"sessionId": session.ID,
				"userId":    participant.UserID,
				"paymentId": participant.PaymentID,
				"error":     err.Error(),
			})
			continue
		}
		s.logger(ctx, "admission.captured", map[string]any{
			"sessionId": session.ID,
			"userId":    participant.UserID,
			"paymentId": participant.PaymentID,
		})
	}
}

func (s *admissionService) publishEvent(ctx context.Context, msg SessionEventMessage) {
	if s.publisher == nil {
		return
	}
	if _, err := s.publisher.PublishSessionEvent(ctx, msg); err != nil {
		s.logger(ctx, "admission.event.publish_failed", map[string]any{
			"event":     msg.Event,
			"sessionId": msg.SessionID,
			"error":     err.Error(),
		})
	}
}

func (s *admissionService) sessionLock(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}
