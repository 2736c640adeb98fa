package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

var _ NotificationStore = (*SQLiteNotificationStore)(nil)

// sqliteRow is the SQLite shape of a notification. Times are stored as unix
// nanoseconds so ORDER BY sorts them exactly.
type sqliteRow struct {
	ID          string         `db:"id"`
	OwnerID     string         `db:"owner_id"`
	Kind        string         `db:"kind"`
	Title       string         `db:"title"`
	Body        sql.NullString `db:"body"`
	ActionURL   sql.NullString `db:"action_url"`
	ActionLabel sql.NullString `db:"action_label"`
	Icon        sql.NullString `db:"icon"`
	Metadata    sql.NullString `db:"metadata"`
	IsRead      bool           `db:"is_read"`
	ReadAt      sql.NullInt64  `db:"read_at"`
	CreatedAt   int64          `db:"created_at"`
}

func toSQLiteRow(n Notification) (sqliteRow, error) {
	md, err := marshalMetadata(n.Metadata)
	if err != nil {
		return sqliteRow{}, err
	}
	r := sqliteRow{
		ID:          n.ID,
		OwnerID:     n.OwnerID,
		Kind:        string(n.Kind),
		Title:       n.Title,
		Body:        nullString(n.Body),
		ActionURL:   nullString(n.ActionURL),
		ActionLabel: nullString(n.ActionLabel),
		Icon:        nullString(n.Icon),
		Metadata:    sql.NullString{String: string(md), Valid: md != nil},
		IsRead:      n.IsRead,
		CreatedAt:   n.CreatedAt.UnixNano(),
	}
	if n.ReadAt != nil {
		r.ReadAt = sql.NullInt64{Int64: n.ReadAt.UnixNano(), Valid: true}
	}
	return r, nil
}

func (r sqliteRow) notification() (Notification, error) {
	md, err := unmarshalMetadata([]byte(r.Metadata.String))
	if err != nil {
		return Notification{}, err
	}
	n := Notification{
		ID:          r.ID,
		OwnerID:     r.OwnerID,
		Kind:        Kind(r.Kind),
		Title:       r.Title,
		Body:        stringPtr(r.Body),
		ActionURL:   stringPtr(r.ActionURL),
		ActionLabel: stringPtr(r.ActionLabel),
		Icon:        stringPtr(r.Icon),
		Metadata:    md,
		IsRead:      r.IsRead,
		CreatedAt:   time.Unix(0, r.CreatedAt).UTC(),
	}
	if r.ReadAt.Valid {
		at := time.Unix(0, r.ReadAt.Int64).UTC()
		n.ReadAt = &at
	}
	return n, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

type SQLiteNotificationStore struct {
	db   *sqlx.DB
	opts options
	ids  *idGenerator
}

// NewSQLiteNotificationStore wraps an open database whose schema has been
// migrated.
func NewSQLiteNotificationStore(db *sqlx.DB, opts ...Option) *SQLiteNotificationStore {
	return &SQLiteNotificationStore{
		db:   db,
		opts: buildOptions(opts),
		ids:  newIDGenerator(),
	}
}

// OpenSQLite opens the database at path with WAL and foreign keys enabled.
func OpenSQLite(path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	return db, nil
}

func (s *SQLiteNotificationStore) List(ctx context.Context, ownerID string, limit int) ([]Notification, error) {
	var rows []sqliteRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM notifications
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, ownerID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return fromSQLiteRows(rows)
}

func (s *SQLiteNotificationStore) Get(ctx context.Context, id string) (Notification, error) {
	return s.get(ctx, s.db, id)
}

func (s *SQLiteNotificationStore) get(ctx context.Context, q sqlx.QueryerContext, id string) (Notification, error) {
	var row sqliteRow
	err := sqlx.GetContext(ctx, q, &row, "SELECT * FROM notifications WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Notification{}, ErrNotFound
	}
	if err != nil {
		return Notification{}, fmt.Errorf("getting notification %s: %w", id, err)
	}
	return row.notification()
}

func (s *SQLiteNotificationStore) Insert(ctx context.Context, n Notification) (Notification, error) {
	n, err := prepareInsert(n, s.ids, s.opts.now())
	if err != nil {
		return Notification{}, err
	}
	row, err := toSQLiteRow(n)
	if err != nil {
		return Notification{}, err
	}

	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO notifications (
			id, owner_id, kind, title, body, action_url, action_label, icon,
			metadata, is_read, read_at, created_at
		) VALUES (
			:id, :owner_id, :kind, :title, :body, :action_url, :action_label, :icon,
			:metadata, :is_read, :read_at, :created_at
		)`, row)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return Notification{}, ErrConflict
		}
		return Notification{}, fmt.Errorf("creating notification: %w", err)
	}
	return n, nil
}

func (s *SQLiteNotificationStore) Update(ctx context.Context, id string, p Patch) (Notification, error) {
	p = p.Normalize(s.opts.now().UTC())
	if p.IsZero() {
		return s.Get(ctx, id)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Notification{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"UPDATE notifications SET is_read = ?, read_at = ? WHERE id = ?",
		*p.IsRead, readAtValue(p), id,
	)
	if err != nil {
		return Notification{}, fmt.Errorf("updating notification %s: %w", id, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return Notification{}, ErrNotFound
	}

	n, err := s.get(ctx, tx, id)
	if err != nil {
		return Notification{}, err
	}
	if err := tx.Commit(); err != nil {
		return Notification{}, fmt.Errorf("committing update: %w", err)
	}
	return n, nil
}

func (s *SQLiteNotificationStore) UpdateMany(ctx context.Context, ownerID string, m Match, p Patch) ([]Notification, error) {
	p = p.Normalize(s.opts.now().UTC())
	if p.IsZero() {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var ids []string
	err = tx.SelectContext(ctx, &ids,
		"SELECT id FROM notifications WHERE owner_id = ? AND (? = 0 OR is_read = 0)",
		ownerID, m.UnreadOnly,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting notifications: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(
		"UPDATE notifications SET is_read = ?, read_at = ? WHERE id IN (?)",
		*p.IsRead, readAtValue(p), ids,
	)
	if err != nil {
		return nil, fmt.Errorf("building update: %w", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("updating notifications: %w", err)
	}

	query, args, err = sqlx.In("SELECT * FROM notifications WHERE id IN (?)", ids)
	if err != nil {
		return nil, fmt.Errorf("building select: %w", err)
	}
	var rows []sqliteRow
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("reading updated notifications: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing update: %w", err)
	}

	ns, err := fromSQLiteRows(rows)
	if err != nil {
		return nil, err
	}
	Sort(ns)
	return ns, nil
}

func (s *SQLiteNotificationStore) Delete(ctx context.Context, id string) (Notification, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return Notification{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	n, err := s.get(ctx, tx, id)
	if err != nil {
		return Notification{}, err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM notifications WHERE id = ?", id); err != nil {
		return Notification{}, fmt.Errorf("deleting notification %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return Notification{}, fmt.Errorf("committing delete: %w", err)
	}
	return n, nil
}

func (s *SQLiteNotificationStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteNotificationStore) Close() error {
	return s.db.Close()
}

func readAtValue(p Patch) sql.NullInt64 {
	if p.ReadAt == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: p.ReadAt.UnixNano(), Valid: true}
}

func fromSQLiteRows(rows []sqliteRow) ([]Notification, error) {
	ns := make([]Notification, 0, len(rows))
	for _, r := range rows {
		n, err := r.notification()
		if err != nil {
			return nil, err
		}
		ns = append(ns, n)
	}
	return ns, nil
}
