package repositories

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/debatekeeper/internal/bot/repositories/credentials"
)

// InMemoryRepositoryManager backs the repositories with process memory.
// Useful for tests and for trying the bot out without Postgres.
type InMemoryRepositoryManager struct {
	credentials credentials.Repository
}

func (m *InMemoryRepositoryManager) Conn() *sql.DB {
	return nil
}

func (m *InMemoryRepositoryManager) Credentials() credentials.Repository {
	return m.credentials
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}

func NewInMemoryRepositoryManager() RepositoryManager {
	return &InMemoryRepositoryManager{credentials: credentials.NewInMemoryRepository()}
}
