package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/jam3a-shop/api/internal/domain"
	pfirestore "github.com/jam3a-shop/api/internal/platform/firestore"
	"github.com/jam3a-shop/api/internal/repositories"
)

const draftsCollection = "wizard_drafts"

// WizardRepository persists session creation drafts, one document per user.
type WizardRepository struct {
	drafts *pfirestore.BaseRepository[domain.SessionDraft]
	clock  func() time.Time
}

// WizardRepositoryOption customises the wizard repository.
type WizardRepositoryOption func(*WizardRepository)

// WithWizardClock injects a custom clock, primarily for tests.
func WithWizardClock(clock func() time.Time) WizardRepositoryOption {
	return func(r *WizardRepository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewWizardRepository constructs a Firestore-backed wizard draft repository.
func NewWizardRepository(provider *pfirestore.Provider, opts ...WizardRepositoryOption) (*WizardRepository, error) {
	if provider == nil {
		return nil, errors.New("wizard repository requires firestore provider")
	}
	repo := &WizardRepository{
		drafts: pfirestore.NewBaseRepository[domain.SessionDraft](provider, draftsCollection),
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Find loads the draft owned by userID.
func (r *WizardRepository) Find(ctx context.Context, userID string) (domain.SessionDraft, error) {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return domain.SessionDraft{}, repositories.ErrDraftNotFound
	}
	doc, err := r.drafts.Get(ctx, uid)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.SessionDraft{}, repositories.ErrDraftNotFound
		}
		return domain.SessionDraft{}, err
	}
	draft := doc.Data
	draft.UserID = doc.ID
	return draft, nil
}

// Save upserts the draft under the owner's user id.
func (r *WizardRepository) Save(ctx context.Context, draft domain.SessionDraft) (domain.SessionDraft, error) {
	uid := strings.TrimSpace(draft.UserID)
	if uid == "" {
		return domain.SessionDraft{}, errors.New("wizard repository: user id is required")
	}
	now := r.clock().UTC()
	if draft.CreatedAt.IsZero() {
		draft.CreatedAt = now
	}
	draft.UpdatedAt = now
	if _, err := r.drafts.Set(ctx, uid, draft); err != nil {
		return domain.SessionDraft{}, err
	}
	draft.UserID = uid
	return draft, nil
}

// Clear removes the user's draft. Clearing a missing draft is not an error.
func (r *WizardRepository) Clear(ctx context.Context, userID string) error {
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil
	}
	return r.drafts.Delete(ctx, uid)
}

var _ repositories.WizardRepository = (*WizardRepository)(nil)
