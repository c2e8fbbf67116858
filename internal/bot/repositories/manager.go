// Package repositories wires repository constructors and database migrations
// behind a single manager interface, so the application can run against
// Postgres or fully in memory.
package repositories

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/debatekeeper/internal/bot/repositories/credentials"
)

// RepositoryManager gives access to the repositories and owns schema setup.
type RepositoryManager interface {
	Conn() *sql.DB
	Credentials() credentials.Repository
	RunMigrations(ctx context.Context) error
	Close() error
}
