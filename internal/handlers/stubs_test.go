package handlers

import (
	"context"
	"net/http"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/jam3a-shop/api/internal/domain"
	"github.com/jam3a-shop/api/internal/platform/auth"
	"github.com/jam3a-shop/api/internal/services"
)

var handlerTestNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type stubTokenVerifier struct {
	token *firebaseauth.Token
	err   error
}

func (s *stubTokenVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

// identityMiddleware injects an authenticated identity without going through
// token verification. Used where the handler under test is mounted with a nil
// authenticator.
func identityMiddleware(identity *auth.Identity) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

func sampleProduct() domain.Product {
	return domain.Product{
		ID:         "prod-1",
		CategoryID: "cat-1",
		Name:       domain.LocalizedText{Ar: "طقم عشاء", En: "Dinner set"},
		BasePrice:  4999,
		Currency:   "SAR",
		Active:     true,
		Schedule: domain.DiscountSchedule{
			{MinCount: 3, Price: 4799, SavingsLabel: domain.LocalizedText{Ar: "وفر ٤٪", En: "Save 4%"}},
			{MinCount: 5, Price: 4599},
		},
	}
}

func sampleSessionView() services.SessionView {
	session := domain.GroupSession{
		ID:          "sess-1",
		CreatorID:   "creator",
		Product:     sampleProduct(),
		TargetSize:  5,
		CreatedAt:   handlerTestNow.Add(-time.Hour),
		ExpiresAt:   handlerTestNow.Add(23 * time.Hour),
		Visibility:  domain.VisibilityPublic,
		PaymentMode: domain.PayOnCompletion,
		Participants: []domain.Participant{
			{UserID: "creator", JoinedAt: handlerTestNow.Add(-time.Hour), UnitPrice: 4999},
			{UserID: "user-2", JoinedAt: handlerTestNow.Add(-30 * time.Minute), UnitPrice: 4999},
		},
	}
	return services.SessionView{
		Session:        session,
		State:          domain.StateForming,
		CurrentPrice:   domain.PriceQuote{UnitPrice: 4999},
		SlotsRemaining: 3,
		TierPreviews: []services.TierPreview{
			{MinCount: 3, UnitPrice: 4799, Savings: 200, SavingsLabel: domain.LocalizedText{Ar: "وفر ٤٪", En: "Save 4%"}},
			{MinCount: 5, UnitPrice: 4599, Savings: 400},
		},
	}
}

type stubCatalogService struct {
	categories []domain.Category
	products   domain.CursorPage[domain.Product]
	product    domain.Product
	category   domain.Category
	err        error

	savedCategory *services.SaveCategoryCommand
	savedProduct  *services.SaveProductCommand
	deletedID     string
	lastFilter    services.ProductFilter
}

func (s *stubCatalogService) ListCategories(ctx context.Context, includeInactive bool) ([]domain.Category, error) {
	return s.categories, s.err
}

func (s *stubCatalogService) GetCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	return s.category, s.err
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductFilter) (domain.CursorPage[domain.Product], error) {
	s.lastFilter = filter
	return s.products, s.err
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	return s.product, s.err
}

func (s *stubCatalogService) SaveCategory(ctx context.Context, cmd services.SaveCategoryCommand) (domain.Category, error) {
	s.savedCategory = &cmd
	return s.category, s.err
}

func (s *stubCatalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	s.deletedID = categoryID
	return s.err
}

func (s *stubCatalogService) SaveProduct(ctx context.Context, cmd services.SaveProductCommand) (domain.Product, error) {
	s.savedProduct = &cmd
	return s.product, s.err
}

func (s *stubCatalogService) DeleteProduct(ctx context.Context, productID string) error {
	s.deletedID = productID
	return s.err
}

type stubSessionService struct {
	view sessionViewResult
	page domain.CursorPage[services.SessionView]

	lastCancel  *services.CancelSessionCommand
	lastPayment *services.PaymentUpdateCommand
	lastFilter  *services.SessionFilter
	paymentErr  error
}

// sessionViewResult pairs a canned view with the error to return.
type sessionViewResult struct {
	View services.SessionView
	Err  error
}

func (s *stubSessionService) CreateSession(ctx context.Context, cmd services.CreateSessionCommand) (services.SessionView, error) {
	return s.view.View, s.view.Err
}

func (s *stubSessionService) GetSession(ctx context.Context, sessionID string) (services.SessionView, error) {
	return s.view.View, s.view.Err
}

func (s *stubSessionService) ListPublicSessions(ctx context.Context, pager domain.Pagination) (domain.CursorPage[services.SessionView], error) {
	return s.page, s.view.Err
}

func (s *stubSessionService) ListSessions(ctx context.Context, filter services.SessionFilter) (domain.CursorPage[services.SessionView], error) {
	s.lastFilter = &filter
	return s.page, s.view.Err
}

func (s *stubSessionService) CancelSession(ctx context.Context, cmd services.CancelSessionCommand) (services.SessionView, error) {
	s.lastCancel = &cmd
	return s.view.View, s.view.Err
}

func (s *stubSessionService) RecordPaymentUpdate(ctx context.Context, cmd services.PaymentUpdateCommand) error {
	s.lastPayment = &cmd
	return s.paymentErr
}

type stubAdmissionService struct {
	result   services.JoinResult
	err      error
	lastJoin *services.JoinCommand
}

func (s *stubAdmissionService) Join(ctx context.Context, cmd services.JoinCommand) (services.JoinResult, error) {
	s.lastJoin = &cmd
	if s.err != nil {
		return services.JoinResult{}, s.err
	}
	return s.result, nil
}

type stubWizardService struct {
	view    services.DraftView
	confirm services.ConfirmResult
	err     error

	lastCategory string
	lastProduct  string
	lastOptions  *services.DraftOptionsCommand
	lastConfirm  *services.ConfirmDraftCommand
}

func (s *stubWizardService) GetDraft(ctx context.Context, userID string) (services.DraftView, error) {
	return s.view, s.err
}

func (s *stubWizardService) SelectCategory(ctx context.Context, userID, categoryID string) (services.DraftView, error) {
	s.lastCategory = categoryID
	return s.view, s.err
}

func (s *stubWizardService) SelectProduct(ctx context.Context, userID, productID string) (services.DraftView, error) {
	s.lastProduct = productID
	return s.view, s.err
}

func (s *stubWizardService) SetOptions(ctx context.Context, cmd services.DraftOptionsCommand) (services.DraftView, error) {
	s.lastOptions = &cmd
	return s.view, s.err
}

func (s *stubWizardService) Confirm(ctx context.Context, cmd services.ConfirmDraftCommand) (services.ConfirmResult, error) {
	s.lastConfirm = &cmd
	if s.err != nil {
		return services.ConfirmResult{}, s.err
	}
	return s.confirm, nil
}

type stubSystemService struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubSystemService) HealthReport(ctx context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}
