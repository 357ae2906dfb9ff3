package services

import (
	"context"
	"time"

	"golang.org/x/text/language"

	domain "github.com/jam3a-shop/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	Category           = domain.Category
	Product            = domain.Product
	DiscountTier       = domain.DiscountTier
	DiscountSchedule   = domain.DiscountSchedule
	GroupSession       = domain.GroupSession
	Participant        = domain.Participant
	SessionDraft       = domain.SessionDraft
	PriceQuote         = domain.PriceQuote
	LifecycleState     = domain.LifecycleState
	Visibility         = domain.Visibility
	PaymentMode        = domain.PaymentMode
	SystemHealthReport = domain.SystemHealthReport
)

// Session event names published to the notification topic.
const (
	EventSessionCreated    = "session.created"
	EventParticipantJoined = "participant.joined"
	EventSessionCompleted  = "group.completed"
	EventSessionExpired    = "session.expired"
	EventSessionCancelled  = "session.cancelled"
)

// SessionEventMessage is the payload published for lifecycle notifications.
type SessionEventMessage struct {
	Event      string    `json:"event"`
	SessionID  string    `json:"sessionId"`
	ProductID  string    `json:"productId,omitempty"`
	UserID     string    `json:"userId,omitempty"`
	Headcount  int       `json:"headcount"`
	UnitPrice  int64     `json:"unitPrice,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// SessionEventPublisher delivers lifecycle events to the notification fanout.
// Publishing is fire and forget; failures must never fail the triggering call.
type SessionEventPublisher interface {
	PublishSessionEvent(ctx context.Context, msg SessionEventMessage) (string, error)
}

// TierPreview pairs a joinable headcount with the price it would unlock.
// Labels stay bilingual here; handlers resolve them per request locale.
type TierPreview struct {
	MinCount     int                  `json:"minCount"`
	UnitPrice    int64                `json:"unitPrice"`
	Savings      int64                `json:"savings"`
	SavingsLabel domain.LocalizedText `json:"savingsLabel,omitempty"`
}

// SessionView is the read model returned to callers: the stored session plus
// the state and price derived at read time.
type SessionView struct {
	Session        GroupSession   `json:"session"`
	State          LifecycleState `json:"state"`
	CurrentPrice   PriceQuote     `json:"currentPrice"`
	SlotsRemaining int            `json:"slotsRemaining"`
	TierPreviews   []TierPreview  `json:"tierPreviews"`
}

// CatalogService exposes the bilingual product catalog.
type CatalogService interface {
	ListCategories(ctx context.Context, includeInactive bool) ([]Category, error)
	GetCategory(ctx context.Context, categoryID string) (Category, error)
	ListProducts(ctx context.Context, filter ProductFilter) (domain.CursorPage[Product], error)
	GetProduct(ctx context.Context, productID string) (Product, error)

	SaveCategory(ctx context.Context, cmd SaveCategoryCommand) (Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error
	SaveProduct(ctx context.Context, cmd SaveProductCommand) (Product, error)
	DeleteProduct(ctx context.Context, productID string) error
}

// ProductFilter narrows product listings.
type ProductFilter struct {
	CategoryID      string
	IncludeInactive bool
	Pagination      Pagination
}

// SaveCategoryCommand captures an admin category upsert.
type SaveCategoryCommand struct {
	ID        string
	Name      domain.LocalizedText
	ImageRef  string
	SortOrder int
	Active    bool
}

// SaveProductCommand captures an admin product upsert.
type SaveProductCommand struct {
	ID          string
	CategoryID  string
	Name        domain.LocalizedText
	Description domain.LocalizedText
	BasePrice   int64
	Currency    string
	ImageRef    string
	Schedule    DiscountSchedule
	Active      bool
}

// SessionService manages group session reads, creation, and cancellation.
type SessionService interface {
	CreateSession(ctx context.Context, cmd CreateSessionCommand) (SessionView, error)
	GetSession(ctx context.Context, sessionID string) (SessionView, error)
	ListPublicSessions(ctx context.Context, pager Pagination) (domain.CursorPage[SessionView], error)
	// ListSessions is the unfiltered admin view: every state, every visibility.
	ListSessions(ctx context.Context, filter SessionFilter) (domain.CursorPage[SessionView], error)
	CancelSession(ctx context.Context, cmd CancelSessionCommand) (SessionView, error)
	RecordPaymentUpdate(ctx context.Context, cmd PaymentUpdateCommand) error
}

// SessionFilter narrows admin session listings.
type SessionFilter struct {
	Visibility Visibility
	CreatorID  string
	Pagination Pagination
}

// CreateSessionCommand captures the inputs needed to open a group session.
type CreateSessionCommand struct {
	CreatorID   string
	ProductID   string
	TargetSize  int
	Duration    time.Duration
	Visibility  Visibility
	PaymentMode PaymentMode
	// Payment is the deposit already authorized for the creator, if any.
	Payment *domain.PaymentRecord
}

// CancelSessionCommand identifies the session and the actor cancelling it.
type CancelSessionCommand struct {
	SessionID string
	ActorID   string
	AsAdmin   bool
}

// PaymentUpdateCommand applies a webhook-reported payment status change.
type PaymentUpdateCommand struct {
	SessionID     string
	TransactionID string
	Status        string
}

// AdmissionService admits participants into forming sessions. Join never
// overshoots the target size regardless of how many callers race for the
// final slot.
type AdmissionService interface {
	Join(ctx context.Context, cmd JoinCommand) (JoinResult, error)
}

// JoinCommand captures a join attempt.
type JoinCommand struct {
	SessionID string
	UserID    string
	// PaymentID references an upfront deposit checkout, when the session
	// requires one.
	PaymentID string
}

// JoinResult is the outcome of an admitted join.
type JoinResult struct {
	Session       SessionView `json:"session"`
	JustCompleted bool        `json:"justCompleted"`
}

// WizardService drives the four step session creation flow.
type WizardService interface {
	GetDraft(ctx context.Context, userID string) (DraftView, error)
	SelectCategory(ctx context.Context, userID, categoryID string) (DraftView, error)
	SelectProduct(ctx context.Context, userID, productID string) (DraftView, error)
	SetOptions(ctx context.Context, cmd DraftOptionsCommand) (DraftView, error)
	Confirm(ctx context.Context, cmd ConfirmDraftCommand) (ConfirmResult, error)
}

// ConfirmResult carries the created session and, for upfront payment, the
// hosted checkout page the creator must complete.
type ConfirmResult struct {
	Session     SessionView `json:"session"`
	CheckoutURL string      `json:"checkoutUrl,omitempty"`
}

// DraftOptionsCommand captures the group parameter step.
type DraftOptionsCommand struct {
	UserID      string
	TargetSize  int
	Duration    time.Duration
	Visibility  Visibility
	PaymentMode PaymentMode
}

// ConfirmDraftCommand finalises a completed draft.
type ConfirmDraftCommand struct {
	UserID string
	// Locale drives the language of the hosted payment page.
	Locale language.Tag
	// SuccessURL and CancelURL are where the PSP redirects after checkout.
	SuccessURL string
	CancelURL  string
	// IdempotencyKey dedupes the payment authorization at the PSP.
	IdempotencyKey string
}

// DraftView is the wizard read model: the stored draft plus the offered
// target sizes with their live discount previews once a product is chosen.
type DraftView struct {
	Draft        SessionDraft      `json:"draft"`
	Step         domain.WizardStep `json:"step"`
	OfferedSizes []TierPreview     `json:"offeredSizes,omitempty"`
}

// SystemService exposes operational health reporting.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
