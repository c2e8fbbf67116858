// Package credentials provides storage for encrypted provider credentials.
package credentials

import (
	"context"

	"github.com/dmitrijs2005/debatekeeper/internal/bot/models"
)

// Repository is the persistence contract for credential records. Every write
// is atomic at the row level; Activate is all-or-nothing for the owner's
// (user, provider) pair.
type Repository interface {
	// Create inserts a new credential. The stored record becomes active when
	// it is the owner's first credential for the provider; the decision is
	// made inside the insert so concurrent creates cannot both claim the
	// active flag. Returns common.ErrDuplicateAlias when the (user, alias)
	// pair already exists.
	Create(ctx context.Context, cred *models.Credential) error

	// SelectByUser returns all of the user's credentials ordered by creation
	// time.
	SelectByUser(ctx context.Context, userID int64) ([]*models.Credential, error)

	// SelectActive returns the user's active credential for the provider, or
	// common.ErrNotFound when none is marked active.
	SelectActive(ctx context.Context, userID int64, provider string) (*models.Credential, error)

	// Activate atomically clears the active flag on the owner's other
	// credentials for the same provider and sets it on the target. Returns
	// common.ErrNotFound when the id does not belong to the user.
	Activate(ctx context.Context, userID int64, id string) error

	// DecrementCalls reduces the remaining-call counter by one, floored at
	// zero. Returns common.ErrNotFound for an unknown id.
	DecrementCalls(ctx context.Context, id string) error
}
