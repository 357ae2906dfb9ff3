package domain

import "time"

// GroupSession is one group-buy instance: a product snapshot, a target size,
// a time window, and the ordered list of admitted participants. Lifecycle
// state is never stored; it is derived on demand from these facts so the
// persisted record cannot drift from reality.
type GroupSession struct {
	ID           string        `firestore:"-" json:"id"`
	CreatorID    string        `firestore:"creatorId" json:"creatorId"`
	Product      Product       `firestore:"product" json:"product"`
	TargetSize   int           `firestore:"targetSize" json:"targetSize"`
	CreatedAt    time.Time     `firestore:"createdAt" json:"createdAt"`
	ExpiresAt    time.Time     `firestore:"expiresAt" json:"expiresAt"`
	Visibility   Visibility    `firestore:"visibility" json:"visibility"`
	PaymentMode  PaymentMode   `firestore:"paymentMode" json:"paymentMode"`
	Participants []Participant `firestore:"participants" json:"participants"`
	CancelledAt  *time.Time    `firestore:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	CancelledBy  string        `firestore:"cancelledBy,omitempty" json:"cancelledBy,omitempty"`
	// ExpiryNotifiedAt marks that the expiry event was already published, so
	// repeated reads of an expired session notify only once.
	ExpiryNotifiedAt *time.Time `firestore:"expiryNotifiedAt,omitempty" json:"-"`
	Payment      *PaymentRecord `firestore:"payment,omitempty" json:"payment,omitempty"`
	UpdatedAt    time.Time     `firestore:"updatedAt" json:"updatedAt"`
}

// StateAt derives the lifecycle state at the given instant. Cancellation wins
// over everything; a full group is Completed (joins are gated on the deadline,
// so a full participant list implies the group filled while open); otherwise
// the deadline decides between Expired and Forming. Two callers evaluating at
// different instants may observe different states for the same record, which
// is the intended lazy-expiry behaviour.
func (s GroupSession) StateAt(now time.Time) LifecycleState {
	if s.CancelledAt != nil {
		return StateCancelled
	}
	if s.TargetSize > 0 && len(s.Participants) >= s.TargetSize {
		return StateCompleted
	}
	if !now.Before(s.ExpiresAt) {
		return StateExpired
	}
	return StateForming
}

// CurrentPrice resolves the unit price for the present headcount. It stays
// defined after expiry: the price freezes at whatever headcount existed when
// the session stopped accepting joins.
func (s GroupSession) CurrentPrice() (PriceQuote, error) {
	return ResolvePrice(s.Product.Schedule, s.Product.BasePrice, len(s.Participants))
}

// HasParticipant reports whether the user already joined this session.
func (s GroupSession) HasParticipant(userID string) bool {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// SlotsRemaining returns how many joins the session still accepts.
func (s GroupSession) SlotsRemaining() int {
	remaining := s.TargetSize - len(s.Participants)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clone returns a deep copy safe to hand to callers while the original keeps
// being mutated under the session's critical section.
func (s GroupSession) Clone() GroupSession {
	clone := s
	clone.Product = s.Product.Clone()
	if s.Participants != nil {
		clone.Participants = make([]Participant, len(s.Participants))
		copy(clone.Participants, s.Participants)
	}
	if s.CancelledAt != nil {
		at := *s.CancelledAt
		clone.CancelledAt = &at
	}
	if s.ExpiryNotifiedAt != nil {
		at := *s.ExpiryNotifiedAt
		clone.ExpiryNotifiedAt = &at
	}
	if s.Payment != nil {
		payment := *s.Payment
		clone.Payment = &payment
	}
	return clone
}
