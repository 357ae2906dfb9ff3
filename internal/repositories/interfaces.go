package repositories

import (
	"context"

	domain "github.com/jam3a-shop/api/internal/domain"
)

// RepositoryError categorises low-level persistence failures for services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductListFilter narrows product listings.
type ProductListFilter struct {
	CategoryID      string
	IncludeInactive bool
	Pagination      domain.Pagination
}

// SessionListFilter narrows session listings.
type SessionListFilter struct {
	Visibility domain.Visibility
	CreatorID  string
	Pagination domain.Pagination
}

// CatalogRepository persists categories and products.
type CatalogRepository interface {
	ListCategories(ctx context.Context, includeInactive bool) ([]domain.Category, error)
	FindCategory(ctx context.Context, categoryID string) (domain.Category, error)
	SaveCategory(ctx context.Context, category domain.Category) (domain.Category, error)
	DeleteCategory(ctx context.Context, categoryID string) error

	ListProducts(ctx context.Context, filter ProductListFilter) (domain.CursorPage[domain.Product], error)
	FindProduct(ctx context.Context, productID string) (domain.Product, error)
	SaveProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	DeleteProduct(ctx context.Context, productID string) error
}

// SessionRepository persists group sessions. Mutate runs fn inside a
// serializable read-modify-write on the session document; the closure sees the
// freshly read session and its changes are committed atomically, which is what
// keeps concurrent joins from overshooting the target size.
type SessionRepository interface {
	Create(ctx context.Context, session domain.GroupSession) (domain.GroupSession, error)
	FindByID(ctx context.Context, sessionID string) (domain.GroupSession, error)
	// FindByPayment resolves the session holding the payment with the given
	// PSP transaction id. Webhooks only carry the transaction id.
	FindByPayment(ctx context.Context, transactionID string) (domain.GroupSession, error)
	List(ctx context.Context, filter SessionListFilter) (domain.CursorPage[domain.GroupSession], error)
	Mutate(ctx context.Context, sessionID string, fn func(session *domain.GroupSession) error) (domain.GroupSession, error)
}

// WizardRepository persists per-user session creation drafts.
type WizardRepository interface {
	Find(ctx context.Context, userID string) (domain.SessionDraft, error)
	Save(ctx context.Context, draft domain.SessionDraft) (domain.SessionDraft, error)
	Clear(ctx context.Context, userID string) error
}

// HealthRepository aggregates dependency probes for readiness reporting.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
