package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/jam3a-shop/api/internal/domain"
	pfirestore "github.com/jam3a-shop/api/internal/platform/firestore"
	"github.com/jam3a-shop/api/internal/platform/pagination"
	"github.com/jam3a-shop/api/internal/repositories"
)

const sessionsCollection = "group_sessions"

// SessionRepository persists group sessions in Firestore. Concurrent joins on
// one session are serialised by running the read-modify-write inside a
// Firestore transaction; aborted transactions are retried by the client, so
// the closure passed to Mutate must be safe to re-run.
type SessionRepository struct {
	provider *pfirestore.Provider
	sessions *pfirestore.BaseRepository[domain.GroupSession]
	clock    func() time.Time
	newID    func() string
}

// SessionRepositoryOption customises the session repository.
type SessionRepositoryOption func(*SessionRepository)

// WithSessionClock injects a custom clock, primarily for tests.
func WithSessionClock(clock func() time.Time) SessionRepositoryOption {
	return func(r *SessionRepository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithSessionIDGenerator overrides document id generation.
func WithSessionIDGenerator(gen func() string) SessionRepositoryOption {
	return func(r *SessionRepository) {
		if gen != nil {
			r.newID = gen
		}
	}
}

// NewSessionRepository constructs a Firestore-backed session repository.
func NewSessionRepository(provider *pfirestore.Provider, opts ...SessionRepositoryOption) (*SessionRepository, error) {
	if provider == nil {
		return nil, errors.New("session repository requires firestore provider")
	}
	repo := &SessionRepository{
		provider: provider,
		sessions: pfirestore.NewBaseRepository[domain.GroupSession](provider, sessionsCollection),
		clock:    time.Now,
		newID:    newULID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}
	return repo, nil
}

// Create stores a new session document, failing if the id is already taken.
func (r *SessionRepository) Create(ctx context.Context, session domain.GroupSession) (domain.GroupSession, error) {
	if strings.TrimSpace(session.ID) == "" {
		session.ID = r.newID()
	}
	session.UpdatedAt = r.clock().UTC()
	if _, err := r.sessions.Create(ctx, session.ID, session); err != nil {
		var repoErr *pfirestore.Error
		if errors.As(err, &repoErr) && repoErr.IsConflict() {
			return domain.GroupSession{}, fmt.Errorf("%w: %s", repositories.ErrSessionExists, session.ID)
		}
		return domain.GroupSession{}, err
	}
	return session, nil
}

// FindByID loads a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, sessionID string) (domain.GroupSession, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.GroupSession{}, repositories.ErrSessionNotFound
	}
	doc, err := r.sessions.Get(ctx, id)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.GroupSession{}, repositories.ErrSessionNotFound
		}
		return domain.GroupSession{}, err
	}
	session := doc.Data
	session.ID = doc.ID
	return session, nil
}

// FindByPayment resolves the session whose upfront deposit carries the given
// PSP transaction id. Webhook payloads identify payments, not sessions.
func (r *SessionRepository) FindByPayment(ctx context.Context, transactionID string) (domain.GroupSession, error) {
	txID := strings.TrimSpace(transactionID)
	if txID == "" {
		return domain.GroupSession{}, repositories.ErrSessionNotFound
	}
	docs, err := r.sessions.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("payment.transactionId", "==", txID).Limit(1)
	})
	if err != nil {
		return domain.GroupSession{}, pfirestore.WrapError("sessions.findByPayment", err)
	}
	if len(docs) == 0 {
		return domain.GroupSession{}, repositories.ErrSessionNotFound
	}
	session := docs[0].Data
	session.ID = docs[0].ID
	return session, nil
}

// List returns a page of sessions ordered by creation time descending.
func (r *SessionRepository) List(ctx context.Context, filter repositories.SessionListFilter) (domain.CursorPage[domain.GroupSession], error) {
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
			return domain.CursorPage[domain.GroupSession]{}, fmt.Errorf("sessions.list: invalid page token: %w", err)
		}
		startAfter = cursor.StartAfter
	}

	docs, err := r.sessions.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Visibility != "" {
			q = q.Where("visibility", "==", string(filter.Visibility))
		}
		if creator := strings.TrimSpace(filter.CreatorID); creator != "" {
			q = q.Where("creatorId", "==", creator)
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
		return domain.CursorPage[domain.GroupSession]{}, pfirestore.WrapError("sessions.list", err)
	}

	nextToken := ""
	if fetchLimit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-2]
		token, err := pagination.EncodeToken(pagination.Cursor{
			StartAfter: []any{last.Data.CreatedAt.UTC().Format(time.RFC3339Nano), last.ID},
		})
		if err != nil {
			return domain.CursorPage[domain.GroupSession]{}, fmt.Errorf("sessions.list: encode page token: %w", err)
		}
		nextToken = token
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.GroupSession, 0, len(docs))
	for _, doc := range docs {
		session := doc.Data
		session.ID = doc.ID
		items = append(items, session)
	}
	return domain.CursorPage[domain.GroupSession]{Items: items, NextPageToken: nextToken}, nil
}

// Mutate runs fn against the freshly read session inside a transaction and
// commits whatever fn left in the struct. fn returning an error aborts the
// transaction without writing. The returned session is the committed state.
func (r *SessionRepository) Mutate(ctx context.Context, sessionID string, fn func(session *domain.GroupSession) error) (domain.GroupSession, error) {
	id := strings.TrimSpace(sessionID)
	if id == "" {
		return domain.GroupSession{}, repositories.ErrSessionNotFound
	}
	if fn == nil {
		return domain.GroupSession{}, errors.New("session repository: mutation function is required")
	}

	var committed domain.GroupSession
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.sessions.DocumentRef(ctx, id)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if status.Code(err) == codes.NotFound {
			return repositories.ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		doc, err := r.sessions.Decode(ctx, snapshot)
		if err != nil {
			return fmt.Errorf("sessions.mutate: decode %s: %w", id, err)
		}

		session := doc.Data
		session.ID = doc.ID
		if err := fn(&session); err != nil {
			return err
		}
		session.UpdatedAt = r.clock().UTC()
		if err := tx.Set(ref, session); err != nil {
			return err
		}
		committed = session
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrSessionNotFound) {
			return domain.GroupSession{}, repositories.ErrSessionNotFound
		}
		return domain.GroupSession{}, err
	}
	return committed, nil
}

var _ repositories.SessionRepository = (*SessionRepository)(nil)
