package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MTL667/denbeyers/internal/domain/model"
	"github.com/MTL667/denbeyers/internal/domain/rbac"
)

// UserRepository — доступ к таблице users.
type UserRepository interface {
	// Upsert создаёт пользователя по keycloak_sub или обновляет существующего.
	// Пустые имя и email не затирают сохранённые значения, роль перезаписывается всегда.
	Upsert(ctx context.Context, p model.UserProfile) (*model.User, error)
	// EnsureExists создаёт пользователя, только если sub ещё не встречался.
	// Возвращает true, если запись была создана.
	EnsureExists(ctx context.Context, p model.UserProfile) (bool, error)
}

type userRepo struct {
	db DBTX
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(db DBTX) UserRepository {
	return &userRepo{db: db}
}

const userColumns = `id, keycloak_sub, name, email, role, created_at, updated_at`

func (r *userRepo) Upsert(ctx context.Context, p model.UserProfile) (*model.User, error) {
	if !rbac.IsValidRole(p.Role) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}
	// ID генерируется заранее, но при конфликте остаётся прежним.
	query := fmt.Sprintf(`
		INSERT INTO users (id, keycloak_sub, name, email, role)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		ON CONFLICT (keycloak_sub) DO UPDATE SET
			name = COALESCE(EXCLUDED.name, users.name),
			email = COALESCE(EXCLUDED.email, users.email),
			role = EXCLUDED.role,
			updated_at = now()
		RETURNING %s`, userColumns)

	u, err := scanUser(r.db.QueryRow(ctx, query,
		uuid.NewString(), p.Subject, p.Name, p.Email, p.Role,
	))
	if err != nil {
		return nil, fmt.Errorf("ошибка upsert пользователя: %w", err)
	}
	return u, nil
}

func (r *userRepo) EnsureExists(ctx context.Context, p model.UserProfile) (bool, error) {
	if !rbac.IsValidRole(p.Role) {
		return false, fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO users (id, keycloak_sub, name, email, role)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5)
		ON CONFLICT (keycloak_sub) DO NOTHING`,
		uuid.NewString(), p.Subject, p.Name, p.Email, p.Role,
	)
	if err != nil {
		return false, fmt.Errorf("ошибка создания пользователя: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	if err := row.Scan(
		&u.ID, &u.KeycloakSub, &u.Name, &u.Email, &u.Role, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return u, nil
}
