package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/jam3a-shop/api/internal/domain"
	"github.com/jam3a-shop/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid data to a catalog mutation.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCategoryNotFound indicates the requested category does not exist.
	ErrCategoryNotFound = errors.New("catalog service: category not found")
	// ErrProductNotFound indicates the requested product does not exist.
	ErrProductNotFound = errors.New("catalog service: product not found")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Catalog repositories.CatalogRepository
	Clock   func() time.Time
}

type catalogService struct {
	repo      repositories.CatalogRepository
	clock     func() time.Time
	sanitizer *bluemonday.Policy
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Catalog == nil {
		return nil, errors.New("catalog service: catalog repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &catalogService{
		repo:      deps.Catalog,
		clock:     func() time.Time { return clock().UTC() },
		sanitizer: bluemonday.StrictPolicy(),
	}, nil
}

func (s *catalogService) ListCategories(ctx context.Context, includeInactive bool) ([]Category, error) {
	return s.repo.ListCategories(ctx, includeInactive)
}

func (s *catalogService) GetCategory(ctx context.Context, categoryID string) (Category, error) {
	category, err := s.repo.FindCategory(ctx, strings.TrimSpace(categoryID))
	if err != nil {
		if errors.Is(err, repositories.ErrCategoryNotFound) {
			return Category{}, ErrCategoryNotFound
		}
		return Category{}, err
	}
	return category, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductFilter) (domain.CursorPage[Product], error) {
	return s.repo.ListProducts(ctx, repositories.ProductListFilter{
		CategoryID:      strings.TrimSpace(filter.CategoryID),
		IncludeInactive: filter.IncludeInactive,
		Pagination:      filter.Pagination,
	})
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	product, err := s.repo.FindProduct(ctx, strings.TrimSpace(productID))
	if err != nil {
		if errors.Is(err, repositories.ErrProductNotFound) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return product, nil
}

func (s *catalogService) SaveCategory(ctx context.Context, cmd SaveCategoryCommand) (Category, error) {
	name := s.sanitizeText(cmd.Name)
	if name.Empty() {
		return Category{}, fmt.Errorf("%w: category name is required", ErrCatalogInvalidInput)
	}
	if cmd.SortOrder < 0 {
		return Category{}, fmt.Errorf("%w: sort order must not be negative", ErrCatalogInvalidInput)
	}
	return s.repo.SaveCategory(ctx, Category{
		ID:        strings.TrimSpace(cmd.ID),
		Name:      name,
		ImageRef:  strings.TrimSpace(cmd.ImageRef),
		SortOrder: cmd.SortOrder,
		Active:    cmd.Active,
	})
}

func (s *catalogService) DeleteCategory(ctx context.Context, categoryID string) error {
	id := strings.TrimSpace(categoryID)
	if id == "" {
		return fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	if _, err := s.GetCategory(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteCategory(ctx, id)
}

func (s *catalogService) SaveProduct(ctx context.Context, cmd SaveProductCommand) (Product, error) {
	name := s.sanitizeText(cmd.Name)
	if name.Empty() {
		return Product{}, fmt.Errorf("%w: product name is required", ErrCatalogInvalidInput)
	}
	categoryID := strings.TrimSpace(cmd.CategoryID)
	if categoryID == "" {
		return Product{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	if _, err := s.GetCategory(ctx, categoryID); err != nil {
		return Product{}, err
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if len(currency) != 3 {
		return Product{}, fmt.Errorf("%w: currency must be a 3-letter code", ErrCatalogInvalidInput)
	}

	schedule := cmd.Schedule.Clone()
	for i := range schedule {
		schedule[i].SavingsLabel = s.sanitizeText(schedule[i].SavingsLabel)
	}
	if err := schedule.Validate(cmd.BasePrice); err != nil {
		return Product{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}

	return s.repo.SaveProduct(ctx, Product{
		ID:          strings.TrimSpace(cmd.ID),
		CategoryID:  categoryID,
		Name:        name,
		Description: s.sanitizeText(cmd.Description),
		BasePrice:   cmd.BasePrice,
		Currency:    currency,
		ImageRef:    strings.TrimSpace(cmd.ImageRef),
		Schedule:    schedule,
		Active:      cmd.Active,
	})
}

func (s *catalogService) DeleteProduct(ctx context.Context, productID string) error {
	id := strings.TrimSpace(productID)
	if id == "" {
		return fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	if _, err := s.GetProduct(ctx, id); err != nil {
		return err
	}
	return s.repo.DeleteProduct(ctx, id)
}

// sanitizeText strips markup from both renderings of admin-entered text.
func (s *catalogService) sanitizeText(text domain.LocalizedText) domain.LocalizedText {
	return domain.LocalizedText{
		Ar: strings.TrimSpace(s.sanitizer.Sanitize(text.Ar)),
		En: strings.TrimSpace(s.sanitizer.Sanitize(text.En)),
	}
}
