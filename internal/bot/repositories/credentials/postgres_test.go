package credentials

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrijs2005/debatekeeper/internal/bot/models"
	"github.com/dmitrijs2005/debatekeeper/internal/common"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func testCred() *models.Credential {
	return &models.Credential{
		ID:             "c1",
		UserID:         42,
		Provider:       "gemini",
		SecretEnc:      "token",
		Alias:          "my gemini",
		CallsRemaining: 10,
		CreatedAt:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCreate_FirstForProviderBecomesActive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cred := testCred()

	mock.ExpectQuery(`INSERT INTO credentials .* RETURNING is_active;`).
		WithArgs(cred.ID, cred.UserID, cred.Provider, cred.SecretEnc, cred.Alias, cred.CallsRemaining, cred.CreatedAt).
		WillReturnRows(sqlmock.NewRows([]string{"is_active"}).AddRow(true))

	if err := repo.Create(context.Background(), cred); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cred.IsActive {
		t.Fatalf("expected first credential for provider to be active")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DuplicateAlias(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO credentials`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: aliasUniqueIndex})

	err := repo.Create(context.Background(), testCred())
	if !errors.Is(err, common.ErrDuplicateAlias) {
		t.Fatalf("want ErrDuplicateAlias, got %v", err)
	}
}

func TestCreate_ActiveIndexRaceRetriesAsInactive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	// A rival insert grabbed the active slot between the NOT EXISTS check
	// and the index update; the retry sees the rival row and lands inactive.
	mock.ExpectQuery(`INSERT INTO credentials`).
		WillReturnError(&pgconn.PgError{Code: pgUniqueViolation, ConstraintName: activeUniqueIndex})
	mock.ExpectQuery(`INSERT INTO credentials`).
		WillReturnRows(sqlmock.NewRows([]string{"is_active"}).AddRow(false))

	cred := testCred()
	if err := repo.Create(context.Background(), cred); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cred.IsActive {
		t.Fatalf("expected race loser to be stored inactive")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_ActiveIndexRaceGivesUpAfterOneRetry(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	raceErr := &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: activeUniqueIndex}
	mock.ExpectQuery(`INSERT INTO credentials`).WillReturnError(raceErr)
	mock.ExpectQuery(`INSERT INTO credentials`).WillReturnError(raceErr)

	err := repo.Create(context.Background(), testCred())
	if err == nil {
		t.Fatalf("expected error after second collision")
	}
	if errors.Is(err, common.ErrDuplicateAlias) {
		t.Fatalf("active index collision must not surface as a duplicate alias: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSelectByUser_OrderedRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	cols := []string{"id", "user_id", "provider", "secret_enc", "alias", "calls_remaining", "is_active", "created_at"}
	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM credentials WHERE user_id = \$1\s+ORDER BY created_at, id;`).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("c1", int64(42), "gemini", "t1", "a", 10, true, now).
			AddRow("c2", int64(42), "groq", "t2", "b", 5, false, now))

	list, err := repo.SelectByUser(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c1" || list[1].ID != "c2" {
		t.Fatalf("unexpected result: %+v", list)
	}
}

func TestSelectActive_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM credentials WHERE user_id = \$1 AND provider = \$2 AND is_active;`).
		WithArgs(int64(42), "gemini").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.SelectActive(context.Background(), 42, "gemini")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestActivate_ClearsOthersThenSetsTarget(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT provider FROM credentials WHERE id = \$1 AND user_id = \$2;`).
		WithArgs("c2", int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"provider"}).AddRow("gemini"))
	mock.ExpectExec(`UPDATE credentials SET is_active = FALSE`).
		WithArgs(int64(42), "gemini", "c2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE credentials SET is_active = TRUE WHERE id = \$1;`).
		WithArgs("c2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := repo.Activate(context.Background(), 42, "c2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestActivate_NotOwned(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT provider FROM credentials`).
		WithArgs("c9", int64(42)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.Activate(context.Background(), 42, "c9")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDecrementCalls_Decrements(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE credentials SET calls_remaining = calls_remaining - 1`).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.DecrementCalls(context.Background(), "c1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDecrementCalls_FlooredAtZero(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE credentials SET calls_remaining = calls_remaining - 1`).
		WithArgs("c1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	if err := repo.DecrementCalls(context.Background(), "c1"); err != nil {
		t.Fatalf("expected floor at zero to be a no-op, got %v", err)
	}
}

func TestDecrementCalls_UnknownID(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE credentials SET calls_remaining = calls_remaining - 1`).
		WithArgs("nope").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.DecrementCalls(context.Background(), "nope")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
