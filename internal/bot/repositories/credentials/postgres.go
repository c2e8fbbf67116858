package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/debatekeeper/internal/bot/models"
	"github.com/dmitrijs2005/debatekeeper/internal/common"
	"github.com/dmitrijs2005/debatekeeper/internal/dbx"
)

const pgUniqueViolation = "23505"

// Index names from the credentials migration.
const (
	aliasUniqueIndex  = "credentials_user_alias_uq"
	activeUniqueIndex = "credentials_user_provider_active_uq"
)

// PostgresRepository implements credential storage over *sql.DB (pgx stdlib).
// Activate runs its own transaction, so it needs the full DB handle rather
// than a dbx.DBTX.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository constructs a repository bound to the given database.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the credential. The is_active value is computed inside the
// insert: the row is active iff no other credential exists for the same
// (user, provider). A unique violation on (user_id, alias) maps to
// ErrDuplicateAlias.
//
// Two concurrent first-creates for the same (user, provider) can both pass
// the NOT EXISTS subquery and collide on the partial active index; the loser
// retries once and lands inactive because the rival row is visible by then.
func (r *PostgresRepository) Create(ctx context.Context, cred *models.Credential) error {
	query := `
		INSERT INTO credentials (id, user_id, provider, secret_enc, alias, calls_remaining, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6,
			NOT EXISTS (SELECT 1 FROM credentials WHERE user_id = $2 AND provider = $3),
			$7)
		RETURNING is_active;
	`
	for attempt := 0; ; attempt++ {
		err := r.db.QueryRowContext(ctx, query,
			cred.ID, cred.UserID, cred.Provider, cred.SecretEnc, cred.Alias, cred.CallsRemaining, cred.CreatedAt,
		).Scan(&cred.IsActive)
		if err == nil {
			return nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if pgErr.ConstraintName == activeUniqueIndex {
				if attempt == 0 {
					continue
				}
				return fmt.Errorf("db error: %w", err)
			}
			return common.ErrDuplicateAlias
		}
		return fmt.Errorf("db error: %w", err)
	}
}

// SelectByUser returns the user's credentials ordered by creation time.
func (r *PostgresRepository) SelectByUser(ctx context.Context, userID int64) ([]*models.Credential, error) {
	query := `
		SELECT id, user_id, provider, secret_enc, alias, calls_remaining, is_active, created_at
		FROM credentials WHERE user_id = $1
		ORDER BY created_at, id;
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select credentials: %w", err)
	}
	defer rows.Close()

	var result []*models.Credential
	for rows.Next() {
		var item models.Credential
		if err := rows.Scan(
			&item.ID, &item.UserID, &item.Provider, &item.SecretEnc, &item.Alias,
			&item.CallsRemaining, &item.IsActive, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SelectActive returns the active credential for (user, provider).
func (r *PostgresRepository) SelectActive(ctx context.Context, userID int64, provider string) (*models.Credential, error) {
	query := `
		SELECT id, user_id, provider, secret_enc, alias, calls_remaining, is_active, created_at
		FROM credentials WHERE user_id = $1 AND provider = $2 AND is_active;
	`
	var item models.Credential
	err := r.db.QueryRowContext(ctx, query, userID, provider).Scan(
		&item.ID, &item.UserID, &item.Provider, &item.SecretEnc, &item.Alias,
		&item.CallsRemaining, &item.IsActive, &item.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &item, nil
}

// Activate clears the active flag on the owner's other credentials for the
// same provider and sets it on the target, in one transaction. The clear runs
// before the set so the partial unique index never sees two active rows.
func (r *PostgresRepository) Activate(ctx context.Context, userID int64, id string) error {
	return dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		var provider string
		err := tx.QueryRowContext(ctx,
			`SELECT provider FROM credentials WHERE id = $1 AND user_id = $2;`,
			id, userID,
		).Scan(&provider)
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE credentials SET is_active = FALSE
			 WHERE user_id = $1 AND provider = $2 AND is_active AND id <> $3;`,
			userID, provider, id,
		); err != nil {
			return fmt.Errorf("db error: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE credentials SET is_active = TRUE WHERE id = $1;`,
			id,
		); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
}

// DecrementCalls performs one conditional decrement, floored at zero.
func (r *PostgresRepository) DecrementCalls(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET calls_remaining = calls_remaining - 1
		 WHERE id = $1 AND calls_remaining > 0;`,
		id,
	)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Either the counter is already at zero or the id is unknown.
	var exists bool
	err = r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM credentials WHERE id = $1);`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if !exists {
		return common.ErrNotFound
	}
	return nil
}
