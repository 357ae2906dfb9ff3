package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"

	domain "github.com/jam3a-shop/api/internal/domain"
	"github.com/jam3a-shop/api/internal/payments"
	"github.com/jam3a-shop/api/internal/platform/config"
	"github.com/jam3a-shop/api/internal/repositories"
)

var (
	// ErrWizardInvalidStep indicates input for a step whose prerequisites are missing.
	ErrWizardInvalidStep = errors.New("wizard service: step prerequisites not met")
	// ErrWizardInvalidInput indicates an invalid selection for the current step.
	ErrWizardInvalidInput = errors.New("wizard service: invalid selection")
	// ErrDraftIncomplete indicates confirm was called before every step was filled.
	ErrDraftIncomplete = errors.New("wizard service: draft is incomplete")
	// ErrPaymentFailed indicates the upfront payment authorization was refused.
	ErrPaymentFailed = errors.New("wizard service: payment failed")
)

// CheckoutCreator opens hosted checkout pages for upfront deposits.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, paymentCtx payments.PaymentContext, req payments.CheckoutRequest) (payments.Checkout, error)
}

// WizardServiceDeps bundles collaborators for the creation flow.
type WizardServiceDeps struct {
	Drafts   repositories.WizardRepository
	Catalog  repositories.CatalogRepository
	Sessions SessionService
	Checkout CheckoutCreator
	Policy   config.GroupBuyConfig
	Clock    func() time.Time
	Logger   EventLogger
}

type wizardService struct {
	drafts   repositories.WizardRepository
	catalog  repositories.CatalogRepository
	sessions SessionService
	checkout CheckoutCreator
	policy   config.GroupBuyConfig
	clock    func() time.Time
	logger   EventLogger
}

var _ WizardService = (*wizardService)(nil)

// NewWizardService constructs the session creation flow service.
func NewWizardService(deps WizardServiceDeps) (WizardService, error) {
	if deps.Drafts == nil {
		return nil, errors.New("wizard service: draft repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("wizard service: catalog repository is required")
	}
	if deps.Sessions == nil {
		return nil, errors.New("wizard service: session service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &wizardService{
		drafts:   deps.Drafts,
		catalog:  deps.Catalog,
		sessions: deps.Sessions,
		checkout: deps.Checkout,
		policy:   deps.Policy,
		clock:    func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

func (s *wizardService) GetDraft(ctx context.Context, userID string) (DraftView, error) {
	draft, err := s.loadOrStartDraft(ctx, userID)
	if err != nil {
		return DraftView{}, err
	}
	return s.draftView(ctx, draft)
}

func (s *wizardService) SelectCategory(ctx context.Context, userID, categoryID string) (DraftView, error) {
	categoryID = strings.TrimSpace(categoryID)
	category, err := s.catalog.FindCategory(ctx, categoryID)
	if err != nil {
		if errors.Is(err, repositories.ErrCategoryNotFound) {
			return DraftView{}, fmt.Errorf("%w: unknown category %q", ErrWizardInvalidInput, categoryID)
		}
		return DraftView{}, err
	}
	if !category.Active {
		return DraftView{}, fmt.Errorf("%w: category %s is not available", ErrWizardInvalidInput, categoryID)
	}

	draft, err := s.loadOrStartDraft(ctx, userID)
	if err != nil {
		return DraftView{}, err
	}
	draft.SelectCategory(category.ID)

	saved, err := s.drafts.Save(ctx, draft)
	if err != nil {
		return DraftView{}, err
	}
	return s.draftView(ctx, saved)
}

func (s *wizardService) SelectProduct(ctx context.Context, userID, productID string) (DraftView, error) {
	draft, err := s.loadOrStartDraft(ctx, userID)
	if err != nil {
		return DraftView{}, err
	}
	if draft.CategoryID == "" {
		return DraftView{}, fmt.Errorf("%w: choose a category first", ErrWizardInvalidStep)
	}

	productID = strings.TrimSpace(productID)
	product, err := s.catalog.FindProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return DraftView{}, fmt.Errorf("%w: unknown product %q", ErrWizardInvalidInput, productID)
		}
		return DraftView{}, err
	}
	if !product.Active {
		return DraftView{}, fmt.Errorf("%w: product %s is not available", ErrWizardInvalidInput, productID)
	}
	if product.CategoryID != draft.CategoryID {
		return DraftView{}, fmt.Errorf("%w: product %s is not in category %s", ErrWizardInvalidInput, productID, draft.CategoryID)
	}

	draft.ProductID = product.ID
	saved, err := s.drafts.Save(ctx, draft)
	if err != nil {
		return DraftView{}, err
	}
	return s.draftView(ctx, saved)
}

func (s *wizardService) SetOptions(ctx context.Context, cmd DraftOptionsCommand) (DraftView, error) {
	draft, err := s.loadOrStartDraft(ctx, cmd.UserID)
	if err != nil {
		return DraftView{}, err
	}
	if draft.ProductID == "" {
		return DraftView{}, fmt.Errorf("%w: choose a product first", ErrWizardInvalidStep)
	}

	product, err := s.catalog.FindProduct(ctx, draft.ProductID)
	if err != nil {
		return DraftView{}, err
	}
	offered, err := s.offeredSizes(product)
	if err != nil {
		return DraftView{}, err
	}
	if !offeredContains(offered, cmd.TargetSize) {
		return DraftView{}, fmt.Errorf("%w: target size %d is not offered", ErrWizardInvalidInput, cmd.TargetSize)
	}

	duration := cmd.Duration
	if duration == 0 {
		duration = s.policy.DefaultDuration
	}
	if duration <= 0 || (s.policy.MaxDuration > 0 && duration > s.policy.MaxDuration) {
		return DraftView{}, fmt.Errorf("%w: duration %s outside (0, %s]", ErrWizardInvalidInput, duration, s.policy.MaxDuration)
	}
	if !cmd.Visibility.Valid() {
		return DraftView{}, fmt.Errorf("%w: unknown visibility %q", ErrWizardInvalidInput, cmd.Visibility)
	}
	if !cmd.PaymentMode.Valid() {
		return DraftView{}, fmt.Errorf("%w: unknown payment mode %q", ErrWizardInvalidInput, cmd.PaymentMode)
	}

	draft.TargetSize = cmd.TargetSize
	draft.Duration = duration
	draft.Visibility = cmd.Visibility
	draft.PaymentMode = cmd.PaymentMode

	saved, err := s.drafts.Save(ctx, draft)
	if err != nil {
		return DraftView{}, err
	}
	return s.draftView(ctx, saved)
}

func (s *wizardService) Confirm(ctx context.Context, cmd ConfirmDraftCommand) (ConfirmResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	draft, err := s.drafts.Find(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrDraftNotFound) {
			return ConfirmResult{}, ErrDraftIncomplete
		}
		return ConfirmResult{}, err
	}
	if !draft.Complete() {
		return ConfirmResult{}, fmt.Errorf("%w: next step is %s", ErrDraftIncomplete, draft.Step())
	}

	product, err := s.catalog.FindProduct(ctx, draft.ProductID)
	if err != nil {
		return ConfirmResult{}, err
	}

	var payment *domain.PaymentRecord
	checkoutURL := ""
	if draft.PaymentMode == domain.PayUpfront && s.checkout != nil {
		quote, err := domain.ResolvePrice(product.Schedule, product.BasePrice, 1)
		if err != nil {
			return ConfirmResult{}, err
		}
		locale := "ar"
		if base, conf := cmd.Locale.Base(); conf != language.No && base.String() != "und" {
			locale = base.String()
		}
		checkout, err := s.checkout.CreateCheckout(ctx, payments.PaymentContext{Currency: product.Currency}, payments.CheckoutRequest{
			Amount:         quote.UnitPrice,
			Currency:       product.Currency,
			Description:    product.Name.Resolve(cmd.Locale),
			CustomerID:     userID,
			SuccessURL:     cmd.SuccessURL,
			CancelURL:      cmd.CancelURL,
			Locale:         locale,
			Metadata:       map[string]string{"userId": userID, "productId": product.ID},
			IdempotencyKey: cmd.IdempotencyKey,
		})
		if err != nil {
			return ConfirmResult{}, fmt.Errorf("%w: %v", ErrPaymentFailed, err)
		}
		transactionID := checkout.IntentID
		if transactionID == "" {
			transactionID = checkout.ID
		}
		payment = &domain.PaymentRecord{
			Provider:      checkout.Provider,
			TransactionID: transactionID,
			Amount:        quote.UnitPrice,
			Currency:      product.Currency,
			Status:        string(payments.StatusPending),
			RecordedAt:    s.clock(),
		}
		checkoutURL = checkout.RedirectURL
	}

	view, err := s.sessions.CreateSession(ctx, CreateSessionCommand{
		CreatorID:   userID,
		ProductID:   draft.ProductID,
		TargetSize:  draft.TargetSize,
		Duration:    draft.Duration,
		Visibility:  draft.Visibility,
		PaymentMode: draft.PaymentMode,
		Payment:     payment,
	})
	if err != nil {
		return ConfirmResult{}, err
	}

	if err := s.drafts.Clear(ctx, userID); err != nil {
		s.logger(ctx, "wizard.draft.clear_failed", map[string]any{
			"userId": userID,
			"error":  err.Error(),
		})
	}
	s.logger(ctx, "wizard.confirmed", map[string]any{
		"userId":    userID,
		"sessionId": view.Session.ID,
		"productId": draft.ProductID,
	})

	return ConfirmResult{Session: view, CheckoutURL: checkoutURL}, nil
}

func (s *wizardService) loadOrStartDraft(ctx context.Context, userID string) (SessionDraft, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return SessionDraft{}, errors.New("wizard service: user id is required")
	}
	draft, err := s.drafts.Find(ctx, uid)
	if errors.Is(err, repositories.ErrDraftNotFound) {
		return SessionDraft{UserID: uid, CreatedAt: s.clock()}, nil
	}
	if err != nil {
		return SessionDraft{}, err
	}
	return draft, nil
}

func (s *wizardService) draftView(ctx context.Context, draft SessionDraft) (DraftView, error) {
	view := DraftView{Draft: draft, Step: draft.Step()}
	if draft.ProductID == "" {
		return view, nil
	}
	product, err := s.catalog.FindProduct(ctx, draft.ProductID)
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return view, nil
		}
		return DraftView{}, err
	}
	offered, err := s.offeredSizes(product)
	if err != nil {
		return DraftView{}, err
	}
	view.OfferedSizes = offered
	return view, nil
}

// offeredSizes derives the group sizes a creator may pick: the policy minimum
// plus every schedule threshold inside the policy bounds, each priced live.
func (s *wizardService) offeredSizes(product Product) ([]TierPreview, error) {
	min := s.policy.MinTargetSize
	if min < 2 {
		min = 2
	}
	max := s.policy.MaxTargetSize

	candidates := map[int]struct{}{min: {}}
	for _, tier := range product.Schedule {
		if tier.MinCount < min {
			continue
		}
		if max > 0 && tier.MinCount > max {
			continue
		}
		candidates[tier.MinCount] = struct{}{}
	}

	sizes := make([]int, 0, len(candidates))
	for size := range candidates {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)

	previews := make([]TierPreview, 0, len(sizes))
	for _, size := range sizes {
		quote, err := domain.ResolvePrice(product.Schedule, product.BasePrice, size)
		if err != nil {
			return nil, err
		}
		preview := TierPreview{
			MinCount:  size,
			UnitPrice: quote.UnitPrice,
			Savings:   quote.Savings,
		}
		if quote.Tier != nil {
			preview.SavingsLabel = quote.Tier.SavingsLabel
		}
		previews = append(previews, preview)
	}
	return previews, nil
}

func offeredContains(offered []TierPreview, size int) bool {
	for _, preview := range offered {
		if preview.MinCount == size {
			return true
		}
	}
	return false
}
