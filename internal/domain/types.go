package domain

import (
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results together with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Visibility controls whether a group session is listed publicly or reachable only by link.
type Visibility string

const (
	// VisibilityPublic lists the session in public discovery feeds.
	VisibilityPublic Visibility = "public"
	// VisibilityPrivate hides the session from discovery; joining requires the share link.
	VisibilityPrivate Visibility = "private"
)

// Valid reports whether the visibility value is one of the supported constants.
func (v Visibility) Valid() bool {
	return v == VisibilityPublic || v == VisibilityPrivate
}

// PaymentMode selects when participants are charged for a group purchase.
type PaymentMode string

const (
	// PayUpfront charges each participant at join time.
	PayUpfront PaymentMode = "pay_upfront"
	// PayOnCompletion defers the charge until the group fills.
	PayOnCompletion PaymentMode = "pay_on_completion"
)

// Valid reports whether the payment mode value is one of the supported constants.
func (m PaymentMode) Valid() bool {
	return m == PayUpfront || m == PayOnCompletion
}

// LifecycleState enumerates the derived states of a group session.
type LifecycleState string

const (
	// StateForming indicates the session is open and accepting joins.
	StateForming LifecycleState = "forming"
	// StateCompleted indicates the session reached its target size. Terminal.
	StateCompleted LifecycleState = "completed"
	// StateExpired indicates the deadline passed before the group filled. Terminal.
	StateExpired LifecycleState = "expired"
	// StateCancelled indicates the creator or an admin cancelled the session. Terminal.
	StateCancelled LifecycleState = "cancelled"
)

// Terminal reports whether the state permits no further participant mutation.
func (s LifecycleState) Terminal() bool {
	return s == StateCompleted || s == StateExpired || s == StateCancelled
}

var arabicTag = language.MustParse("ar")

// LocalizedText carries the Arabic and English renderings of a user-facing string.
type LocalizedText struct {
	Ar string `firestore:"ar" json:"ar"`
	En string `firestore:"en" json:"en"`
}

// Resolve returns the rendering matching the requested locale, falling back
// to whichever rendering is present.
func (t LocalizedText) Resolve(tag language.Tag) string {
	base, _ := tag.Base()
	arBase, _ := arabicTag.Base()
	if base == arBase {
		if strings.TrimSpace(t.Ar) != "" {
			return t.Ar
		}
		return t.En
	}
	if strings.TrimSpace(t.En) != "" {
		return t.En
	}
	return t.Ar
}

// Empty reports whether neither rendering is set.
func (t LocalizedText) Empty() bool {
	return strings.TrimSpace(t.Ar) == "" && strings.TrimSpace(t.En) == ""
}

// Category groups products for the first wizard step.
type Category struct {
	ID        string        `firestore:"-" json:"id"`
	Name      LocalizedText `firestore:"name" json:"name"`
	ImageRef  string        `firestore:"imageRef" json:"imageRef"`
	SortOrder int           `firestore:"sortOrder" json:"sortOrder"`
	Active    bool          `firestore:"active" json:"active"`
	CreatedAt time.Time     `firestore:"createdAt" json:"createdAt"`
	UpdatedAt time.Time     `firestore:"updatedAt" json:"updatedAt"`
}

// Product is a catalog entry that group sessions are formed around. Prices are
// minor units (halalas for SAR).
type Product struct {
	ID          string           `firestore:"-" json:"id"`
	CategoryID  string           `firestore:"categoryId" json:"categoryId"`
	Name        LocalizedText    `firestore:"name" json:"name"`
	Description LocalizedText    `firestore:"description" json:"description"`
	BasePrice   int64            `firestore:"basePrice" json:"basePrice"`
	Currency    string           `firestore:"currency" json:"currency"`
	ImageRef    string           `firestore:"imageRef" json:"imageRef"`
	Schedule    DiscountSchedule `firestore:"schedule" json:"schedule"`
	Active      bool             `firestore:"active" json:"active"`
	CreatedAt   time.Time        `firestore:"createdAt" json:"createdAt"`
	UpdatedAt   time.Time        `firestore:"updatedAt" json:"updatedAt"`
}

// Clone returns a deep copy of the product including its discount schedule.
// Sessions snapshot products at creation time so catalog edits never change
// an in-flight group's pricing.
func (p Product) Clone() Product {
	clone := p
	clone.Schedule = p.Schedule.Clone()
	return clone
}

// Participant records one admitted member of a group session.
type Participant struct {
	UserID    string    `firestore:"userId" json:"userId"`
	JoinedAt  time.Time `firestore:"joinedAt" json:"joinedAt"`
	UnitPrice int64     `firestore:"unitPrice" json:"unitPrice"`
	PaymentID string    `firestore:"paymentId,omitempty" json:"paymentId,omitempty"`
}

// PaymentRecord tracks the authorization captured for an upfront deposit.
type PaymentRecord struct {
	Provider      string    `firestore:"provider" json:"provider"`
	TransactionID string    `firestore:"transactionId" json:"transactionId"`
	Amount        int64     `firestore:"amount" json:"amount"`
	Currency      string    `firestore:"currency" json:"currency"`
	Status        string    `firestore:"status" json:"status"`
	RecordedAt    time.Time `firestore:"recordedAt" json:"recordedAt"`
}
