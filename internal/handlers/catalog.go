package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jam3a-shop/api/internal/platform/httpx"
	"github.com/jam3a-shop/api/internal/services"
)

const (
	defaultCatalogPageSize = 20
	maxCatalogPageSize     = 100
)

// CatalogHandlers exposes the public bilingual catalog.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs a new CatalogHandlers instance.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// Routes registers the /catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/categories", h.listCategories)
	r.Get("/products", h.listProducts)
	r.Get("/products/{productId}", h.getProduct)
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx, false)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	locale := requestLocale(r)
	items := make([]categoryPayload, 0, len(categories))
	for _, category := range categories {
		items = append(items, buildCategoryPayload(category, locale))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"categories": items})
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	page, err := h.catalog.ListProducts(ctx, services.ProductFilter{
		CategoryID: strings.TrimSpace(r.URL.Query().Get("category")),
		Pagination: parsePageQuery(r, defaultCatalogPageSize, maxCatalogPageSize),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	locale := requestLocale(r)
	items := make([]productPayload, 0, len(page.Items))
	for _, product := range page.Items {
		items = append(items, buildProductPayload(product, locale))
	}
	payload := map[string]any{"products": items}
	if page.NextPageToken != "" {
		payload["next_page_token"] = page.NextPageToken
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_service_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productId"))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	if !product.Active {
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": buildProductPayload(product, requestLocale(r))})
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCategoryNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("category_not_found", "category not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}
