package services

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/jam3a-shop/api/internal/domain"
	"github.com/jam3a-shop/api/internal/payments"
	"github.com/jam3a-shop/api/internal/repositories"
)

// memSessionRepo is an in-memory SessionRepository. Mutate holds a lock for
// the whole read-modify-write, mirroring the serialisation the Firestore
// transaction provides.
type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]domain.GroupSession
	nextID   int
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]domain.GroupSession)}
}

func (r *memSessionRepo) Create(ctx context.Context, session domain.GroupSession) (domain.GroupSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.ID == "" {
		r.nextID++
		session.ID = fmt.Sprintf("sess-%d", r.nextID)
	}
	if _, ok := r.sessions[session.ID]; ok {
		return domain.GroupSession{}, repositories.ErrSessionExists
	}
	r.sessions[session.ID] = session.Clone()
	return session, nil
}

func (r *memSessionRepo) FindByID(ctx context.Context, sessionID string) (domain.GroupSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return domain.GroupSession{}, repositories.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (r *memSessionRepo) FindByPayment(ctx context.Context, transactionID string) (domain.GroupSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		if session.Payment != nil && session.Payment.TransactionID == transactionID {
			return session.Clone(), nil
		}
	}
	return domain.GroupSession{}, repositories.ErrSessionNotFound
}

func (r *memSessionRepo) List(ctx context.Context, filter repositories.SessionListFilter) (domain.CursorPage[domain.GroupSession], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.GroupSession
	for _, session := range r.sessions {
		if filter.Visibility != "" && session.Visibility != filter.Visibility {
			continue
		}
		if filter.CreatorID != "" && session.CreatorID != filter.CreatorID {
			continue
		}
		items = append(items, session.Clone())
	}
	return domain.CursorPage[domain.GroupSession]{Items: items}, nil
}

func (r *memSessionRepo) Mutate(ctx context.Context, sessionID string, fn func(session *domain.GroupSession) error) (domain.GroupSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return domain.GroupSession{}, repositories.ErrSessionNotFound
	}
	working := session.Clone()
	if err := fn(&working); err != nil {
		return domain.GroupSession{}, err
	}
	r.sessions[sessionID] = working.Clone()
	return working, nil
}

// memCatalogRepo is an in-memory CatalogRepository.
type memCatalogRepo struct {
	mu         sync.Mutex
	categories map[string]domain.Category
	products   map[string]domain.Product
}

func newMemCatalogRepo() *memCatalogRepo {
	return &memCatalogRepo{
		categories: make(map[string]domain.Category),
		products:   make(map[string]domain.Product),
	}
}

func (r *memCatalogRepo) ListCategories(ctx context.Context, includeInactive bool) ([]domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Category
	for _, category := range r.categories {
		if !includeInactive && !category.Active {
			continue
		}
		items = append(items, category)
	}
	return items, nil
}

func (r *memCatalogRepo) FindCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	category, ok := r.categories[categoryID]
	if !ok {
		return domain.Category{}, repositories.ErrCategoryNotFound
	}
	return category, nil
}

func (r *memCatalogRepo) SaveCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if category.ID == "" {
		category.ID = fmt.Sprintf("cat-%d", len(r.categories)+1)
	}
	r.categories[category.ID] = category
	return category, nil
}

func (r *memCatalogRepo) DeleteCategory(ctx context.Context, categoryID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.categories, categoryID)
	return nil
}

func (r *memCatalogRepo) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var items []domain.Product
	for _, product := range r.products {
		if filter.CategoryID != "" && product.CategoryID != filter.CategoryID {
			continue
		}
		if !filter.IncludeInactive && !product.Active {
			continue
		}
		items = append(items, product.Clone())
	}
	return domain.CursorPage[domain.Product]{Items: items}, nil
}

func (r *memCatalogRepo) FindProduct(ctx context.Context, productID string) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, repositories.ErrProductNotFound
	}
	return product.Clone(), nil
}

func (r *memCatalogRepo) SaveProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if product.ID == "" {
		product.ID = fmt.Sprintf("prod-%d", len(r.products)+1)
	}
	r.products[product.ID] = product.Clone()
	return product, nil
}

func (r *memCatalogRepo) DeleteProduct(ctx context.Context, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.products, productID)
	return nil
}

// memWizardRepo is an in-memory WizardRepository.
type memWizardRepo struct {
	mu     sync.Mutex
	drafts map[string]domain.SessionDraft
}

func newMemWizardRepo() *memWizardRepo {
	return &memWizardRepo{drafts: make(map[string]domain.SessionDraft)}
}

func (r *memWizardRepo) Find(ctx context.Context, userID string) (domain.SessionDraft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	draft, ok := r.drafts[userID]
	if !ok {
		return domain.SessionDraft{}, repositories.ErrDraftNotFound
	}
	return draft, nil
}

func (r *memWizardRepo) Save(ctx context.Context, draft domain.SessionDraft) (domain.SessionDraft, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drafts[draft.UserID] = draft
	return draft, nil
}

func (r *memWizardRepo) Clear(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.drafts, userID)
	return nil
}

// recordingPublisher captures published events, thread-safe.
type recordingPublisher struct {
	mu     sync.Mutex
	events []SessionEventMessage
	err    error
}

func (p *recordingPublisher) PublishSessionEvent(ctx context.Context, msg SessionEventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, msg)
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

func (p *recordingPublisher) byEvent(event string) []SessionEventMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []SessionEventMessage
	for _, msg := range p.events {
		if msg.Event == event {
			matched = append(matched, msg)
		}
	}
	return matched
}

// recordingCapturer captures deferred-charge settlements.
type recordingCapturer struct {
	mu       sync.Mutex
	captured []payments.CaptureRequest
	err      error
}

func (c *recordingCapturer) Capture(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CaptureRequest) (payments.PaymentDetails, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return payments.PaymentDetails{}, c.err
	}
	c.captured = append(c.captured, req)
	return payments.PaymentDetails{IntentID: req.IntentID, Status: payments.StatusSucceeded, Captured: true}, nil
}

// stubCheckoutCreator returns a canned checkout.
type stubCheckoutCreator struct {
	mu       sync.Mutex
	requests []payments.CheckoutRequest
	checkout payments.Checkout
	err      error
}

func (s *stubCheckoutCreator) CreateCheckout(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutRequest) (payments.Checkout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return payments.Checkout{}, s.err
	}
	s.requests = append(s.requests, req)
	return s.checkout, nil
}
