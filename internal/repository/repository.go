// Пакет repository — хранение пользователей и медиа гостевой книги в PostgreSQL.
// SQL пишется вручную и выполняется через pgx.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound — строки с таким ключом нет.
	ErrNotFound = errors.New("запись не найдена")
	// ErrConflict — нарушен уникальный индекс (например, object_key медиа).
	ErrConflict = errors.New("запись с таким ключом уже есть")
	// ErrInvalidRole — роль пользователя вне набора USER/ADMIN/OWNER.
	ErrInvalidRole = errors.New("недопустимая роль пользователя")
)

// pgUniqueViolation — SQLSTATE нарушения уникальности.
const pgUniqueViolation = "23505"

// DBTX покрывает и пул, и открытую транзакцию: репозиторий не знает, с чем работает.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TxRunner открывает транзакции на пуле соединений.
type TxRunner struct {
	pool *pgxpool.Pool
}

func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	return &TxRunner{pool: pool}
}

// RunInTx коммитит, если fn вернула nil, иначе откатывает.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("не удалось открыть транзакцию: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // после Commit это no-op

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("не удалось закоммитить транзакцию: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
