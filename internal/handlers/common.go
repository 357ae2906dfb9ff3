package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/jam3a-shop/api/internal/domain"
	"github.com/jam3a-shop/api/internal/platform/auth"
	"github.com/jam3a-shop/api/internal/platform/httpx"
	"github.com/jam3a-shop/api/internal/services"
)

const defaultMaxBodySize = 32 * 1024

var (
	errEmptyBody    = errors.New("request body is empty")
	errBodyTooLarge = errors.New("request body too large")
)

var localeMatcher = language.NewMatcher([]language.Tag{
	language.Arabic,
	language.English,
})

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = defaultMaxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

// requestLocale picks the response language: the token locale claim wins,
// then an explicit ?lang= override, then Accept-Language. Arabic is the
// default.
func requestLocale(r *http.Request) language.Tag {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.Locale != language.Und {
		return identity.Locale
	}
	if lang := strings.TrimSpace(r.URL.Query().Get("lang")); lang != "" {
		if tag, err := language.Parse(lang); err == nil {
			matched, _, _ := localeMatcher.Match(tag)
			return matched
		}
	}
	if header := strings.TrimSpace(r.Header.Get("Accept-Language")); header != "" {
		if tags, _, err := language.ParseAcceptLanguage(header); err == nil && len(tags) > 0 {
			matched, _, _ := localeMatcher.Match(tags...)
			return matched
		}
	}
	return language.Arabic
}

func parsePageQuery(r *http.Request, defaultSize, maxSize int) domain.Pagination {
	pager := domain.Pagination{
		PageSize:  defaultSize,
		PageToken: strings.TrimSpace(r.URL.Query().Get("pageToken")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("pageSize")); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil && size > 0 {
			pager.PageSize = size
		}
	}
	if maxSize > 0 && pager.PageSize > maxSize {
		pager.PageSize = maxSize
	}
	return pager
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

type categoryPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ImageRef  string `json:"image_ref,omitempty"`
	SortOrder int    `json:"sort_order"`
	Active    bool   `json:"active"`
}

type productPayload struct {
	ID          string        `json:"id"`
	CategoryID  string        `json:"category_id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	BasePrice   int64         `json:"base_price"`
	Currency    string        `json:"currency"`
	ImageRef    string        `json:"image_ref,omitempty"`
	Tiers       []tierPayload `json:"tiers"`
	Active      bool          `json:"active"`
}

type tierPayload struct {
	MinCount     int    `json:"min_count"`
	UnitPrice    int64  `json:"unit_price"`
	Savings      int64  `json:"savings,omitempty"`
	SavingsLabel string `json:"savings_label,omitempty"`
}

type sessionPayload struct {
	ID             string         `json:"id"`
	Product        productPayload `json:"product"`
	CreatorID      string         `json:"creator_id"`
	TargetSize     int            `json:"target_size"`
	Headcount      int            `json:"headcount"`
	SlotsRemaining int            `json:"slots_remaining"`
	State          string         `json:"state"`
	UnitPrice      int64          `json:"unit_price"`
	Savings        int64          `json:"savings"`
	Tiers          []tierPayload  `json:"tiers"`
	Visibility     string         `json:"visibility"`
	PaymentMode    string         `json:"payment_mode"`
	PaymentStatus  string         `json:"payment_status,omitempty"`
	ExpiresAt      string         `json:"expires_at"`
	CreatedAt      string         `json:"created_at"`
	CancelledAt    string         `json:"cancelled_at,omitempty"`
}

func buildCategoryPayload(category services.Category, locale language.Tag) categoryPayload {
	return categoryPayload{
		ID:        category.ID,
		Name:      category.Name.Resolve(locale),
		ImageRef:  category.ImageRef,
		SortOrder: category.SortOrder,
		Active:    category.Active,
	}
}

func buildProductPayload(product services.Product, locale language.Tag) productPayload {
	tiers := make([]tierPayload, 0, len(product.Schedule))
	for _, tier := range product.Schedule {
		tiers = append(tiers, tierPayload{
			MinCount:     tier.MinCount,
			UnitPrice:    tier.Price,
			Savings:      product.BasePrice - tier.Price,
			SavingsLabel: tier.SavingsLabel.Resolve(locale),
		})
	}
	return productPayload{
		ID:          product.ID,
		CategoryID:  product.CategoryID,
		Name:        product.Name.Resolve(locale),
		Description: product.Description.Resolve(locale),
		BasePrice:   product.BasePrice,
		Currency:    product.Currency,
		ImageRef:    product.ImageRef,
		Tiers:       tiers,
		Active:      product.Active,
	}
}

func buildTierPreviews(previews []services.TierPreview, locale language.Tag) []tierPayload {
	tiers := make([]tierPayload, 0, len(previews))
	for _, preview := range previews {
		tiers = append(tiers, tierPayload{
			MinCount:     preview.MinCount,
			UnitPrice:    preview.UnitPrice,
			Savings:      preview.Savings,
			SavingsLabel: preview.SavingsLabel.Resolve(locale),
		})
	}
	return tiers
}

func buildSessionPayload(view services.SessionView, locale language.Tag) sessionPayload {
	session := view.Session
	payload := sessionPayload{
		ID:             session.ID,
		Product:        buildProductPayload(session.Product, locale),
		CreatorID:      session.CreatorID,
		TargetSize:     session.TargetSize,
		Headcount:      len(session.Participants),
		SlotsRemaining: view.SlotsRemaining,
		State:          string(view.State),
		UnitPrice:      view.CurrentPrice.UnitPrice,
		Savings:        view.CurrentPrice.Savings,
		Tiers:          buildTierPreviews(view.TierPreviews, locale),
		Visibility:     string(session.Visibility),
		PaymentMode:    string(session.PaymentMode),
		ExpiresAt:      formatTime(session.ExpiresAt),
		CreatedAt:      formatTime(session.CreatedAt),
	}
	if session.Payment != nil {
		payload.PaymentStatus = session.Payment.Status
	}
	if session.CancelledAt != nil {
		payload.CancelledAt = formatTime(*session.CancelledAt)
	}
	return payload
}
