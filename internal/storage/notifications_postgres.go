package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	go_json "github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

const pgColumns = `id, owner_id, kind, title, body, action_url, action_label, icon, metadata, is_read, read_at, created_at`

var _ NotificationStore = (*PostgresNotificationStore)(nil)

type PostgresNotificationStore struct {
	pool *pgxpool.Pool
	opts options
	ids  *idGenerator
}

func NewPostgresNotificationStore(pool *pgxpool.Pool, opts ...Option) *PostgresNotificationStore {
	return &PostgresNotificationStore{
		pool: pool,
		opts: buildOptions(opts),
		ids:  newIDGenerator(),
	}
}

func (s *PostgresNotificationStore) List(ctx context.Context, ownerID string, limit int) ([]Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+pgColumns+`
		FROM notifications
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, ownerID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	ns, err := collectPostgres(rows)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return ns, nil
}

func (s *PostgresNotificationStore) Get(ctx context.Context, id string) (Notification, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgColumns+` FROM notifications WHERE id = $1`, id)
	if err != nil {
		return Notification{}, fmt.Errorf("get notification: %w", err)
	}
	return oneOrNotFound(collectPostgres(rows))
}

func (s *PostgresNotificationStore) Insert(ctx context.Context, n Notification) (Notification, error) {
	n, err := prepareInsert(n, s.ids, s.opts.now())
	if err != nil {
		return Notification{}, err
	}
	metadata, err := marshalMetadata(n.Metadata)
	if err != nil {
		return Notification{}, err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (`+pgColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		n.ID, n.OwnerID, string(n.Kind), n.Title, n.Body, n.ActionURL, n.ActionLabel, n.Icon,
		metadata, n.IsRead, n.ReadAt, n.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Notification{}, ErrConflict
		}
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

func (s *PostgresNotificationStore) Update(ctx context.Context, id string, p Patch) (Notification, error) {
	p = p.Normalize(s.opts.now().UTC())
	if p.IsZero() {
		return s.Get(ctx, id)
	}

	rows, err := s.pool.Query(ctx, `
		UPDATE notifications
		SET is_read = $2, read_at = $3
		WHERE id = $1
		RETURNING `+pgColumns, id, *p.IsRead, p.ReadAt)
	if err != nil {
		return Notification{}, fmt.Errorf("update notification: %w", err)
	}
	return oneOrNotFound(collectPostgres(rows))
}

func (s *PostgresNotificationStore) UpdateMany(ctx context.Context, ownerID string, m Match, p Patch) ([]Notification, error) {
	p = p.Normalize(s.opts.now().UTC())
	if p.IsZero() {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		UPDATE notifications
		SET is_read = $2, read_at = $3
		WHERE owner_id = $1 AND (NOT $4 OR is_read = FALSE)
		RETURNING `+pgColumns, ownerID, *p.IsRead, p.ReadAt, m.UnreadOnly)
	if err != nil {
		return nil, fmt.Errorf("update notifications: %w", err)
	}
	ns, err := collectPostgres(rows)
	if err != nil {
		return nil, fmt.Errorf("update notifications: %w", err)
	}
	Sort(ns)
	return ns, nil
}

func (s *PostgresNotificationStore) Delete(ctx context.Context, id string) (Notification, error) {
	rows, err := s.pool.Query(ctx, `DELETE FROM notifications WHERE id = $1 RETURNING `+pgColumns, id)
	if err != nil {
		return Notification{}, fmt.Errorf("delete notification: %w", err)
	}
	return oneOrNotFound(collectPostgres(rows))
}

func (s *PostgresNotificationStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresNotificationStore) Close() error {
	s.pool.Close()
	return nil
}

func collectPostgres(rows pgx.Rows) ([]Notification, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Notification, error) {
		var (
			n        Notification
			kind     string
			metadata []byte
			readAt   *time.Time
		)
		if err := row.Scan(
			&n.ID, &n.OwnerID, &kind, &n.Title, &n.Body, &n.ActionURL, &n.ActionLabel, &n.Icon,
			&metadata, &n.IsRead, &readAt, &n.CreatedAt,
		); err != nil {
			return Notification{}, err
		}
		n.Kind = Kind(kind)
		n.CreatedAt = n.CreatedAt.UTC()
		if readAt != nil {
			at := readAt.UTC()
			n.ReadAt = &at
		}
		md, err := unmarshalMetadata(metadata)
		if err != nil {
			return Notification{}, err
		}
		n.Metadata = md
		return n, nil
	})
}

func oneOrNotFound(ns []Notification, err error) (Notification, error) {
	if err != nil {
		return Notification{}, err
	}
	if len(ns) == 0 {
		return Notification{}, ErrNotFound
	}
	return ns[0], nil
}

func marshalMetadata(md map[string]any) ([]byte, error) {
	if len(md) == 0 {
		return nil, nil
	}
	data, err := go_json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return data, nil
}

func unmarshalMetadata(data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var md map[string]any
	if err := go_json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return md, nil
}
