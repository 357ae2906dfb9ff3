package repositories

import "errors"

var (
	// ErrCategoryNotFound indicates the requested category does not exist.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrProductNotFound indicates the requested product does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrSessionNotFound indicates the requested group session does not exist.
	ErrSessionNotFound = errors.New("group session not found")
	// ErrSessionExists indicates a session with the same id was already created.
	ErrSessionExists = errors.New("group session already exists")
	// ErrDraftNotFound indicates the user has no creation draft in progress.
	ErrDraftNotFound = errors.New("session draft not found")
)
