package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jam3a-shop/api/internal/domain"
	"github.com/jam3a-shop/api/internal/platform/auth"
	"github.com/jam3a-shop/api/internal/platform/httpx"
	"github.com/jam3a-shop/api/internal/platform/storage"
	"github.com/jam3a-shop/api/internal/services"
)

const maxAdminBodySize = 64 * 1024

// AdminHandlers exposes catalog management and session oversight to staff.
type AdminHandlers struct {
	authn    *auth.Authenticator
	catalog  services.CatalogService
	sessions services.SessionService
	images   *storage.ImageURLClient
}

// AdminHandlersOption customises handler construction.
type AdminHandlersOption func(*AdminHandlers)

// WithImageUploads enables signed upload URLs for catalog imagery.
func WithImageUploads(client *storage.ImageURLClient) AdminHandlersOption {
	return func(h *AdminHandlers) {
		h.images = client
	}
}

// NewAdminHandlers constructs a new AdminHandlers instance.
func NewAdminHandlers(authn *auth.Authenticator, catalog services.CatalogService, sessions services.SessionService, opts ...AdminHandlersOption) *AdminHandlers {
	h := &AdminHandlers{
		authn:    authn,
		catalog:  catalog,
		sessions: sessions,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers the /admin endpoints behind the admin role gate.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
	}

	r.Route("/categories", func(cr chi.Router) {
		cr.Get("/", h.listCategories)
		cr.Post("/", h.saveCategory)
		cr.Put("/{categoryId}", h.saveCategory)
		cr.Delete("/{categoryId}", h.deleteCategory)
		cr.Post("/{categoryId}/image-url", h.signImageUpload(storage.CategoryImagePath, "categoryId"))
	})
	r.Route("/products", func(pr chi.Router) {
		pr.Get("/", h.listProducts)
		pr.Post("/", h.saveProduct)
		pr.Put("/{productId}", h.saveProduct)
		pr.Delete("/{productId}", h.deleteProduct)
		pr.Post("/{productId}/image-url", h.signImageUpload(storage.ProductImagePath, "productId"))
	})
	r.Route("/sessions", func(sr chi.Router) {
		sr.Get("/", h.listSessions)
		sr.Post("/{sessionId}/cancel", h.cancelSession)
	})
}

func (h *AdminHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	categories, err := h.catalog.ListCategories(ctx, true)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"categories": categories})
}

type adminCategoryRequest struct {
	Name      localizedTextRequest `json:"name"`
	ImageRef  string               `json:"image_ref"`
	SortOrder int                  `json:"sort_order"`
	Active    bool                 `json:"active"`
}

type localizedTextRequest struct {
	Ar string `json:"ar"`
	En string `json:"en"`
}

func (t localizedTextRequest) toDomain() domain.LocalizedText {
	return domain.LocalizedText{Ar: t.Ar, En: t.En}
}

func (h *AdminHandlers) saveCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	var req adminCategoryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	category, err := h.catalog.SaveCategory(ctx, services.SaveCategoryCommand{
		ID:        chi.URLParam(r, "categoryId"),
		Name:      req.Name.toDomain(),
		ImageRef:  req.ImageRef,
		SortOrder: req.SortOrder,
		Active:    req.Active,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, map[string]any{"category": category})
}

func (h *AdminHandlers) deleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.catalog.DeleteCategory(ctx, chi.URLParam(r, "categoryId")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := h.catalog.ListProducts(ctx, services.ProductFilter{
		CategoryID:      strings.TrimSpace(r.URL.Query().Get("category")),
		IncludeInactive: true,
		Pagination:      parsePageQuery(r, defaultCatalogPageSize, maxCatalogPageSize),
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	payload := map[string]any{"products": page.Items}
	if page.NextPageToken != "" {
		payload["next_page_token"] = page.NextPageToken
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type adminProductRequest struct {
	CategoryID  string               `json:"category_id"`
	Name        localizedTextRequest `json:"name"`
	Description localizedTextRequest `json:"description"`
	BasePrice   int64                `json:"base_price"`
	Currency    string               `json:"currency"`
	ImageRef    string               `json:"image_ref"`
	Tiers       []adminTierRequest   `json:"tiers"`
	Active      bool                 `json:"active"`
}

type adminTierRequest struct {
	MinCount     int                  `json:"min_count"`
	Price        int64                `json:"price"`
	SavingsLabel localizedTextRequest `json:"savings_label"`
}

func (h *AdminHandlers) saveProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxAdminBodySize)
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	var req adminProductRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	schedule := make(domain.DiscountSchedule, 0, len(req.Tiers))
	for _, tier := range req.Tiers {
		schedule = append(schedule, domain.DiscountTier{
			MinCount:     tier.MinCount,
			Price:        tier.Price,
			SavingsLabel: tier.SavingsLabel.toDomain(),
		})
	}

	product, err := h.catalog.SaveProduct(ctx, services.SaveProductCommand{
		ID:          chi.URLParam(r, "productId"),
		CategoryID:  req.CategoryID,
		Name:        req.Name.toDomain(),
		Description: req.Description.toDomain(),
		BasePrice:   req.BasePrice,
		Currency:    req.Currency,
		ImageRef:    req.ImageRef,
		Schedule:    schedule,
		Active:      req.Active,
	})
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}

	status := http.StatusOK
	if r.Method == http.MethodPost {
		status = http.StatusCreated
	}
	writeJSONResponse(w, status, map[string]any{"product": product})
}

func (h *AdminHandlers) deleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.catalog.DeleteProduct(ctx, chi.URLParam(r, "productId")); err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type imageUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

// signImageUpload issues a short-lived PUT URL so the admin client can push
// imagery straight to the assets bucket. The returned object path is what the
// client should persist as the entity's image_ref.
func (h *AdminHandlers) signImageUpload(pathFor func(id, fileName string) (string, error), idParam string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if h.images == nil {
			httpx.WriteError(ctx, w, httpx.NewError("uploads_disabled", "image uploads are not configured", http.StatusNotImplemented))
			return
		}

		body, err := readLimitedBody(r, maxAdminBodySize)
		if err != nil {
			writeBodyError(w, r, err)
			return
		}
		var req imageUploadRequest
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
			return
		}

		object, err := pathFor(chi.URLParam(r, idParam), req.FileName)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid file name", http.StatusBadRequest))
			return
		}
		result, err := h.images.SignUpload(ctx, object, req.ContentType)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to sign upload", http.StatusBadRequest))
			return
		}

		writeJSONResponse(w, http.StatusCreated, map[string]any{
			"upload_url": result.URL,
			"method":     result.Method,
			"object":     result.Object,
			"headers":    result.Headers,
			"expires_at": formatTime(result.ExpiresAt),
		})
	}
}

func (h *AdminHandlers) listSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page, err := h.sessions.ListSessions(ctx, services.SessionFilter{
		Visibility: domain.Visibility(strings.TrimSpace(r.URL.Query().Get("visibility"))),
		CreatorID:  strings.TrimSpace(r.URL.Query().Get("creator")),
		Pagination: parsePageQuery(r, defaultSessionPageSize, maxSessionPageSize),
	})
	if err != nil {
		writeSessionError(ctx, w, err)
		return
	}

	locale := requestLocale(r)
	items := make([]sessionPayload, 0, len(page.Items))
	for _, view := range page.Items {
		items = append(items, buildSessionPayload(view, locale))
	}
	payload := map[string]any{"sessions": items}
	if page.NextPageToken != "" {
		payload["next_page_token"] = page.NextPageToken
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *AdminHandlers) cancelSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, _ := auth.IdentityFromContext(ctx)
	actorID := ""
	if identity != nil {
		actorID = identity.UID
	}

	view, err := h.sessions.CancelSession(ctx, services.CancelSessionCommand{
		SessionID: chi.URLParam(r, "sessionId"),
		ActorID:   actorID,
		AsAdmin:   true,
	})
	if err != nil {
		writeSessionError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"session": buildSessionPayload(view, requestLocale(r))})
}
