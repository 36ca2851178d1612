package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/MTL667/denbeyers/internal/domain/model"
)

// Фильтры статуса административного списка.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusHidden   = "hidden"
	StatusSticky   = "sticky"
)

// stickyLockKey — ключ advisory lock, сериализующего закрепление записей.
const stickyLockKey int64 = 0x6762_7374_6963_6b79

// PublicFilter — параметры публичной ленты.
type PublicFilter struct {
	// Type — IMAGE или VIDEO; пусто — все типы
	Type string
	// Cursor — ID последней записи предыдущей страницы
	Cursor string
	Limit  int
}

// AdminFilter — параметры административного списка.
type AdminFilter struct {
	// Type — IMAGE, VIDEO или TEXT; пусто — все типы
	Type string
	// Status — pending, approved, hidden, sticky; пусто — без фильтра
	Status string
	Cursor string
	Limit  int
}

// MediaUpdate — частичное обновление записи. nil-поля не меняются.
type MediaUpdate struct {
	Message     *string
	DisplayName *string
	Approved    *bool
	Visible     *bool
	IsSticky    *bool
	StickyOrder *int
	// ClearStickyOrder обнуляет sticky_order (если StickyOrder не задан)
	ClearStickyOrder bool
}

// MediaRepository — доступ к таблице media_items.
type MediaRepository interface {
	Create(ctx context.Context, item *model.MediaItem) error
	GetByID(ctx context.Context, id string) (*model.MediaItem, error)
	Update(ctx context.Context, id string, upd MediaUpdate) (*model.MediaItem, error)
	Delete(ctx context.Context, id string) error
	// ListPublic возвращает до Limit одобренных видимых записей с согласием,
	// закреплённые первыми. ErrNotFound — курсор не существует.
	ListPublic(ctx context.Context, f PublicFilter) ([]*model.MediaItem, error)
	// ListAdmin возвращает до Limit записей любых статусов с данными автора.
	ListAdmin(ctx context.Context, f AdminFilter) ([]*model.MediaItem, error)
	Stats(ctx context.Context) (*model.MediaStats, error)
	CountSticky(ctx context.Context) (int, error)
	// MaxStickyOrder возвращает наибольший sticky_order среди закреплённых (0, если их нет).
	MaxStickyOrder(ctx context.Context) (int, error)
	// WithStickyLock выполняет fn в транзакции под эксклюзивной блокировкой
	// закрепления: проверка лимита и выдача следующей позиции атомарны.
	WithStickyLock(ctx context.Context, fn func(repo MediaRepository) error) error
}

type mediaRepo struct {
	db DBTX
	tx *TxRunner
}

// NewMediaRepository создаёт репозиторий медиа. Если txr == nil,
// WithStickyLock выполняет fn без собственной транзакции (для использования внутри tx).
func NewMediaRepository(db DBTX, txr *TxRunner) MediaRepository {
	return &mediaRepo{db: db, tx: txr}
}

const mediaColumns = `m.id, m.user_id, m.type, m.s3_key, m.custom_url, m.mime_type, m.size_bytes,
	m.message, m.display_name, m.consent, m.approved, m.visible, m.is_owner_post,
	m.is_sticky, m.sticky_order, m.created_at, m.updated_at`

// Выражения сортировки публичной ленты: закреплённые сверху по sticky_order,
// остальные — новые первыми.
const (
	stickyRankExpr = `CASE WHEN m.is_sticky THEN 0 ELSE 1 END`
	orderRankExpr  = `COALESCE(m.sticky_order, 2147483647)`
)

func (r *mediaRepo) Create(ctx context.Context, item *model.MediaItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	err := r.db.QueryRow(ctx, `
		INSERT INTO media_items (
			id, user_id, type, s3_key, custom_url, mime_type, size_bytes,
			message, display_name, consent, approved, visible, is_owner_post,
			is_sticky, sticky_order
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`,
		item.ID, item.UserID, item.Type, item.S3Key, item.CustomURL, item.MimeType, item.SizeBytes,
		item.Message, item.DisplayName, item.Consent, item.Approved, item.Visible, item.IsOwnerPost,
		item.IsSticky, item.StickyOrder,
	).Scan(&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка создания записи: %w", err)
	}
	return nil
}

func (r *mediaRepo) GetByID(ctx context.Context, id string) (*model.MediaItem, error) {
	query := fmt.Sprintf(`SELECT %s FROM media_items m WHERE m.id = $1`, mediaColumns)

	item, err := scanMedia(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи: %w", err)
	}
	return item, nil
}

func (r *mediaRepo) Update(ctx context.Context, id string, upd MediaUpdate) (*model.MediaItem, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id}
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Message != nil {
		add("message", *upd.Message)
	}
	if upd.DisplayName != nil {
		add("display_name", *upd.DisplayName)
	}
	if upd.Approved != nil {
		add("approved", *upd.Approved)
	}
	if upd.Visible != nil {
		add("visible", *upd.Visible)
	}
	if upd.IsSticky != nil {
		add("is_sticky", *upd.IsSticky)
	}
	switch {
	case upd.StickyOrder != nil:
		add("sticky_order", *upd.StickyOrder)
	case upd.ClearStickyOrder:
		sets = append(sets, "sticky_order = NULL")
	}

	query := fmt.Sprintf(`UPDATE media_items m SET %s WHERE m.id = $1 RETURNING %s`,
		strings.Join(sets, ", "), mediaColumns)

	item, err := scanMedia(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления записи: %w", err)
	}
	return item, nil
}

func (r *mediaRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM media_items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mediaRepo) ListPublic(ctx context.Context, f PublicFilter) ([]*model.MediaItem, error) {
	where := []string{"m.approved", "m.visible", "m.consent"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Type != "" {
		where = append(where, "m.type = "+arg(f.Type))
	}

	if f.Cursor != "" {
		// Позиция курсора в порядке сортировки ленты.
		var (
			stickyRank, orderRank int
			createdAt             time.Time
		)
		err := r.db.QueryRow(ctx, fmt.Sprintf(
			`SELECT %s, %s, m.created_at FROM media_items m WHERE m.id = $1`,
			stickyRankExpr, orderRankExpr), f.Cursor,
		).Scan(&stickyRank, &orderRank, &createdAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("ошибка чтения курсора: %w", err)
		}

		sr, ord, ca, id := arg(stickyRank), arg(orderRank), arg(createdAt), arg(f.Cursor)
		where = append(where, fmt.Sprintf(`(
			%[1]s > %[3]s
			OR (%[1]s = %[3]s AND %[2]s > %[4]s)
			OR (%[1]s = %[3]s AND %[2]s = %[4]s AND (m.created_at, m.id) < (%[5]s, %[6]s::uuid))
		)`, stickyRankExpr, orderRankExpr, sr, ord, ca, id))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM media_items m
		WHERE %s
		ORDER BY %s, %s, m.created_at DESC, m.id DESC
		LIMIT %s`,
		mediaColumns, strings.Join(where, " AND "), stickyRankExpr, orderRankExpr, arg(f.Limit))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения публичной ленты: %w", err)
	}
	defer rows.Close()

	var result []*model.MediaItem
	for rows.Next() {
		item, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *mediaRepo) ListAdmin(ctx context.Context, f AdminFilter) ([]*model.MediaItem, error) {
	where := []string{"TRUE"}
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Type != "" {
		where = append(where, "m.type = "+arg(f.Type))
	}
	switch f.Status {
	case StatusPending:
		where = append(where, "NOT m.approved")
	case StatusApproved:
		where = append(where, "m.approved")
	case StatusHidden:
		where = append(where, "NOT m.visible")
	case StatusSticky:
		where = append(where, "m.is_sticky")
	}

	if f.Cursor != "" {
		var createdAt time.Time
		err := r.db.QueryRow(ctx, `SELECT created_at FROM media_items WHERE id = $1`, f.Cursor).Scan(&createdAt)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("ошибка чтения курсора: %w", err)
		}
		where = append(where, fmt.Sprintf("(m.created_at, m.id) < (%s, %s::uuid)", arg(createdAt), arg(f.Cursor)))
	}

	query := fmt.Sprintf(`
		SELECT %s, u.id, u.name, u.email
		FROM media_items m
		JOIN users u ON u.id = m.user_id
		WHERE %s
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT %s`,
		mediaColumns, strings.Join(where, " AND "), arg(f.Limit))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка модерации: %w", err)
	}
	defer rows.Close()

	var result []*model.MediaItem
	for rows.Next() {
		item := &model.MediaItem{Uploader: &model.Uploader{}}
		dest := append(mediaDest(item), &item.Uploader.ID, &item.Uploader.Name, &item.Uploader.Email)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *mediaRepo) Stats(ctx context.Context) (*model.MediaStats, error) {
	s := &model.MediaStats{}
	err := r.db.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE NOT approved),
			COUNT(*) FILTER (WHERE approved),
			COUNT(*) FILTER (WHERE NOT visible),
			COUNT(*) FILTER (WHERE is_sticky)
		FROM media_items`,
	).Scan(&s.Total, &s.Pending, &s.Approved, &s.Hidden, &s.Sticky)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта статистики: %w", err)
	}
	return s, nil
}

func (r *mediaRepo) CountSticky(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM media_items WHERE is_sticky`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта закреплённых записей: %w", err)
	}
	return n, nil
}

func (r *mediaRepo) MaxStickyOrder(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(sticky_order), 0) FROM media_items WHERE is_sticky`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка получения sticky_order: %w", err)
	}
	return n, nil
}

func (r *mediaRepo) WithStickyLock(ctx context.Context, fn func(repo MediaRepository) error) error {
	if r.tx == nil {
		return fn(r)
	}
	return r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, stickyLockKey); err != nil {
			return fmt.Errorf("ошибка блокировки закрепления: %w", err)
		}
		return fn(&mediaRepo{db: tx})
	})
}

// mediaDest возвращает адреса полей в порядке mediaColumns.
func mediaDest(item *model.MediaItem) []any {
	return []any{
		&item.ID, &item.UserID, &item.Type, &item.S3Key, &item.CustomURL, &item.MimeType, &item.SizeBytes,
		&item.Message, &item.DisplayName, &item.Consent, &item.Approved, &item.Visible, &item.IsOwnerPost,
		&item.IsSticky, &item.StickyOrder, &item.CreatedAt, &item.UpdatedAt,
	}
}

func scanMedia(row pgx.Row) (*model.MediaItem, error) {
	item := &model.MediaItem{}
	if err := row.Scan(mediaDest(item)...); err != nil {
		return nil, err
	}
	return item, nil
}
