package credentials

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/debatekeeper/internal/bot/models"
	"github.com/dmitrijs2005/debatekeeper/internal/common"
)

// InMemoryRepository is a mutex-guarded map implementation used in tests and
// for running the bot without a database.
type InMemoryRepository struct {
	mu    sync.Mutex
	items map[string]*models.Credential
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{items: make(map[string]*models.Credential)}
}

func (r *InMemoryRepository) Create(ctx context.Context, cred *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	firstForProvider := true
	for _, item := range r.items {
		if item.UserID == cred.UserID && item.Alias == cred.Alias {
			return common.ErrDuplicateAlias
		}
		if item.UserID == cred.UserID && item.Provider == cred.Provider {
			firstForProvider = false
		}
	}

	cred.IsActive = firstForProvider
	clone := *cred
	r.items[cred.ID] = &clone
	return nil
}

func (r *InMemoryRepository) SelectByUser(ctx context.Context, userID int64) ([]*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var result []*models.Credential
	for _, item := range r.items {
		if item.UserID == userID {
			clone := *item
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (r *InMemoryRepository) SelectActive(ctx context.Context, userID int64, provider string) (*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, item := range r.items {
		if item.UserID == userID && item.Provider == provider && item.IsActive {
			clone := *item
			return &clone, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *InMemoryRepository) Activate(ctx context.Context, userID int64, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	target, ok := r.items[id]
	if !ok || target.UserID != userID {
		return common.ErrNotFound
	}

	for _, item := range r.items {
		if item.UserID == userID && item.Provider == target.Provider {
			item.IsActive = false
		}
	}
	target.IsActive = true
	return nil
}

func (r *InMemoryRepository) DecrementCalls(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[id]
	if !ok {
		return common.ErrNotFound
	}
	if item.CallsRemaining > 0 {
		item.CallsRemaining--
	}
	return nil
}
