package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/jam3a-shop/api/internal/domain"
	pfirestore "github.com/jam3a-shop/api/internal/platform/firestore"
	"github.com/jam3a-shop/api/internal/platform/pagination"
	"github.com/jam3a-shop/api/internal/repositories"
)

const (
	categoriesCollection = "categories"
	productsCollection   = "products"
)

// CatalogRepository persists categories and products in Firestore.
type CatalogRepository struct {
	provider   *pfirestore.Provider
	categories *pfirestore.BaseRepository[domain.Category]
	products   *pfirestore.BaseRepository[domain.Product]
	clock      func() time.Time
	newID      func() string
}

// CatalogRepositoryOption customises the catalog repository.
type CatalogRepositoryOption func(*CatalogRepository)

// WithCatalogClock injects a custom clock, primarily for tests.
func WithCatalogClock(clock func() time.Time) CatalogRepositoryOption {
	return func(r *CatalogRepository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithCatalogIDGenerator overrides document id generation.
func WithCatalogIDGenerator(gen func() string) CatalogRepositoryOption {
	return func(r *CatalogRepository) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider, opts ...CatalogRepositoryOption) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	repo := &CatalogRepository{
		provider:   provider,
		categories: pfirestore.NewBaseRepository[domain.Category](provider, categoriesCollection),
		products:   pfirestore.NewBaseRepository[domain.Product](provider, productsCollection),
		clock:      time.Now,
		newID:      newULID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// ListCategories returns categories ordered by their configured sort order.
func (r *CatalogRepository) ListCategories(ctx context.Context, includeInactive bool) ([]domain.Category, error) {
	docs, err := r.categories.Query(ctx, func(q firestore.Query) firestore.Query {
		if !includeInactive {
			q = q.Where("active", "==", true)
		}
		return q.OrderBy("sortOrder", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, pfirestore.WrapError("categories.list", err)
	}
	items := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		category := doc.Data
		category.ID = doc.ID
		items = append(items, category)
	}
	return items, nil
}

// FindCategory loads a single category by id.
func (r *CatalogRepository) FindCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	id := strings.TrimSpace(categoryID)
	if id == "" {
		return domain.Category{}, repositories.ErrCategoryNotFound
	}
	doc, err := r.categories.Get(ctx, id)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Category{}, repositories.ErrCategoryNotFound
		}
		return domain.Category{}, err
	}
	category := doc.Data
	category.ID = doc.ID
	return category, nil
}

// SaveCategory upserts a category, assigning an id and timestamps when missing.
func (r *CatalogRepository) SaveCategory(ctx context.Context, category domain.Category) (domain.Category, error) {
	now := r.clock().UTC()
	if strings.TrimSpace(category.ID) == "" {
		category.ID = r.newID()
		category.CreatedAt = now
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = now
	}
	category.UpdatedAt = now
	if _, err := r.categories.Set(ctx, category.ID, category); err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

// DeleteCategory removes the category document.
func (r *CatalogRepository) DeleteCategory(ctx context.Context, categoryID string) error {
	id := strings.TrimSpace(categoryID)
	if id == "" {
		return repositories.ErrCategoryNotFound
	}
	return r.categories.Delete(ctx, id)
}

// ListProducts returns a page of products ordered by creation time descending.
func (r *CatalogRepository) ListProducts(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := 0
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("products.list: invalid page token: %w", err)
		}
		startAfter = cursor.StartAfter
	}

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.CategoryID); category != "" {
			q = q.Where("categoryId", "==", category)
		}
		if !filter.IncludeInactive {
			q = q.Where("active", "==", true)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) > 0 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, pfirestore.WrapError("products.list", err)
	}

	nextToken := ""
	if fetchLimit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-2]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.Product]{}, fmt.Errorf("products.list: encode page token: %w", err)
		}
		nextToken = token
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		product := doc.Data
		product.ID = doc.ID
		items = append(items, product)
	}
	return domain.CursorPage[domain.Product]{Items: items, NextPageToken: nextToken}, nil
}

// FindProduct loads a single product by id.
func (r *CatalogRepository) FindProduct(ctx context.Context, productID string) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, repositories.ErrProductNotFound
	}
	doc, err := r.products.Get(ctx, id)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Product{}, repositories.ErrProductNotFound
		}
		return domain.Product{}, err
	}
	product := doc.Data
	product.ID = doc.ID
	return product, nil
}

// SaveProduct upserts a product, assigning an id and timestamps when missing.
func (r *CatalogRepository) SaveProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	now := r.clock().UTC()
	if strings.TrimSpace(product.ID) == "" {
		product.ID = r.newID()
		product.CreatedAt = now
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	if _, err := r.products.Set(ctx, product.ID, product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

// DeleteProduct removes the product document.
func (r *CatalogRepository) DeleteProduct(ctx context.Context, productID string) error {
	id := strings.TrimSpace(productID)
	if id == "" {
		return repositories.ErrProductNotFound
	}
	return r.products.Delete(ctx, id)
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)
