package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/jam3a-shop/api/internal/domain"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testProduct() domain.Product {
	return domain.Product{
		ID:         "prod-1",
		CategoryID: "cat-1",
		Name:       domain.LocalizedText{Ar: "طقم عشاء", En: "Dinner set"},
		BasePrice:  4999,
		Currency:   "SAR",
		Active:     true,
		Schedule: domain.DiscountSchedule{
			{MinCount: 3, Price: 4799},
			{MinCount: 5, Price: 4599},
			{MinCount: 10, Price: 4199},
		},
	}
}

func seedSession(t *testing.T, repo *memSessionRepo, targetSize int, mutate func(*domain.GroupSession)) domain.GroupSession {
	t.Helper()
	session := domain.GroupSession{
		ID:          "sess-1",
		CreatorID:   "creator",
		Product:     testProduct(),
		TargetSize:  targetSize,
		CreatedAt:   testNow.Add(-time.Hour),
		ExpiresAt:   testNow.Add(time.Hour),
		Visibility:  domain.VisibilityPublic,
		PaymentMode: domain.PayUpfront,
		Participants: []domain.Participant{
			{UserID: "creator", JoinedAt: testNow.Add(-time.Hour), UnitPrice: 4999},
		},
	}
	if mutate != nil {
		mutate(&session)
	}
	stored, err := repo.Create(context.Background(), session)
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return stored
}

func newTestAdmission(t *testing.T, repo *memSessionRepo, publisher *recordingPublisher, capturer *recordingCapturer) AdmissionService {
	t.Helper()
	svc, err := NewAdmissionService(AdmissionServiceDeps{
		Sessions:  repo,
		Publisher: publisher,
		Payments:  capturer,
		Clock:     func() time.Time { return testNow },
	})
	if err != nil {
		t.Fatalf("NewAdmissionService returned error: %v", err)
	}
	return svc
}

func TestJoinAdmitsAtSteppedPrice(t *testing.T) {
	repo := newMemSessionRepo()
	publisher := &recordingPublisher{}
	seedSession(t, repo, 5, nil)
	svc := newTestAdmission(t, repo, publisher, nil)

	// Second and third joiners: headcounts 2 and 3, so the 3-tier unlocks on
	// the third join.
	result, err := svc.Join(context.Background(), JoinCommand{SessionID: "sess-1", UserID: "user-2"})
	if err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	if got := result.Session.Session.Participants[1].UnitPrice; got != 4999 {
		t.Fatalf("expected second participant priced 4999, got %d", got)
	}
	if result.JustCompleted {
		t.Fatal("session should not be completed yet")
	}

	result, err = svc.Join(context.Background(), JoinCommand{SessionID: "sess-1", UserID: "user-3"})
	if err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	if got := result.Session.CurrentPrice.UnitPrice; got != 4799 {
		t.Fatalf("expected current price 4799 at headcount 3, got %d", got)
	}
	if got := result.Session.Session.Participants[2].UnitPrice; got != 4799 {
		t.Fatalf("expected third participant priced 4799, got %d", got)
	}

	joins := publisher.byEvent(EventParticipantJoined)
	if len(joins) != 2 {
		t.Fatalf("expected 2 join events, got %d", len(joins))
	}
}

func TestJoinRejectsDuplicate(t *testing.T) {
	repo := newMemSessionRepo()
	seedSession(t, repo, 5, nil)
	svc := newTestAdmission(t, repo, &recordingPublisher{}, nil)

	if _, err := svc.Join(context.Background(), JoinCommand{SessionID: "sess-1", UserID: "creator"}); !errors.Is(err, ErrDuplicateParticipant) {
		t.Fatalf("expected ErrDuplicateParticipant, got %v", err)
	}
}

func TestJoinRejectsClosedSessions(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*domain.GroupSession)
		reason NotOpenReason
	}{
		{
			name: "cancelled",
			mutate: func(s *domain.GroupSession) {
				at := testNow.Add(-time.Minute)
				s.CancelledAt = &at
				s.CancelledBy = "creator"
			},
			reason: ReasonCancelled,
		},
		{
			name: "expired",
			mutate: func(s *domain.GroupSession) {
				s.ExpiresAt = testNow
			},
			reason: ReasonExpired,
		},
		{
			name: "completed",
			mutate: func(s *domain.GroupSession) {
				s.TargetSize = 2
				s.Participants = append(s.Participants, domain.Participant{UserID: "user-2", JoinedAt: testNow.Add(-time.Minute), UnitPrice: 4999})
			},
			reason: ReasonCompleted,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemSessionRepo()
			seedSession(t, repo, 5, tc.mutate)
			svc := newTestAdmission(t, repo, &recordingPublisher{}, nil)

			_, err := svc.Join(context.Background(), JoinCommand{SessionID: "sess-1", UserID: "user-9"})
			var notOpen *SessionNotOpenError
			if !errors.As(err, &notOpen) {
				t.Fatalf("expected SessionNotOpenError, got %v", err)
			}
			if notOpen.Reason != tc.reason {
				t.Fatalf("expected reason %s, got %s", tc.reason, notOpen.Reason)
			}
		})
	}
}

func TestJoinUnknownSession(t *testing.T) {
	svc := newTestAdmission(t, newMemSessionRepo(), &recordingPublisher{}, nil)
	if _, err := svc.Join(context.Background(), JoinCommand{SessionID: "missing", UserID: "user-1"}); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestJoinNeverOvershootsTargetUnderConcurrency(t *testing.T) {
	const targetSize = 10
	const attempts = targetSize + 15

	repo := newMemSessionRepo()
	publisher := &recordingPublisher{}
	seedSession(t, repo, targetSize, nil)
	svc := newTestAdmission(t, repo, publisher, nil)

	var (
		wg            sync.WaitGroup
		mu            sync.Mutex
		admitted      int
		completions   int
		notOpenCount  int
		otherFailures []error
	)

	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func(i int) {
			defer wg.Done()
			result, err := svc.Join(context.Background(), JoinCommand{
				SessionID: "sess-1",
				UserID:    fmt.Sprintf("user-%d", i+2),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
				if result.JustCompleted {
					completions++
				}
			default:
				var notOpen *SessionNotOpenError
				if errors.As(err, &notOpen) && notOpen.Reason == ReasonCompleted {
					notOpenCount++
				} else {
					otherFailures = append(otherFailures, err)
				}
			}
		}(i)
	}
	wg.Wait()

	if len(otherFailures) > 0 {
		t.Fatalf("unexpected join failures: %v", otherFailures)
	}
	// Creator holds slot 1, so targetSize-1 joins succeed.
	if admitted != targetSize-1 {
		t.Fatalf("expected %d admissions, got %d", targetSize-1, admitted)
	}
	if completions != 1 {
		t.Fatalf("expected exactly one JustCompleted, got %d", completions)
	}
	if notOpenCount != attempts-(targetSize-1) {
		t.Fatalf("expected %d completed rejections, got %d", attempts-(targetSize-1), notOpenCount)
	}

	final, err := repo.FindByID(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if len(final.Participants) != targetSize {
		t.Fatalf("expected exactly %d participants, got %d", targetSize, len(final.Participants))
	}
	if completed := publisher.byEvent(EventSessionCompleted); len(completed) != 1 {
		t.Fatalf("expected exactly one completion event, got %d", len(completed))
	}
}

func TestJoinCapturesDeferredChargesOnCompletion(t *testing.T) {
	repo := newMemSessionRepo()
	capturer := &recordingCapturer{}
	seedSession(t, repo, 3, func(s *domain.GroupSession) {
		s.PaymentMode = domain.PayOnCompletion
		s.Participants[0].PaymentID = "pay_creator"
	})
	svc := newTestAdmission(t, repo, &recordingPublisher{}, capturer)

	if _, err := svc.Join(context.Background(), JoinCommand{SessionID: "sess-1", UserID: "user-2", PaymentID: "pay_2"}); err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	if len(capturer.captured) != 0 {
		t.Fatalf("no captures expected before completion, got %d", len(capturer.captured))
	}

	result, err := svc.Join(context.Background(), JoinCommand{SessionID: "sess-1", UserID: "user-3", PaymentID: "pay_3"})
	if err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	if !result.JustCompleted {
		t.Fatal("expected the final join to complete the group")
	}
	if len(capturer.captured) != 3 {
		t.Fatalf("expected 3 captures, got %d", len(capturer.captured))
	}
	if capturer.captured[0].IntentID != "pay_creator" {
		t.Fatalf("expected first capture for the creator deposit, got %q", capturer.captured[0].IntentID)
	}
}
