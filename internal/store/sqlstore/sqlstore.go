// Package sqlstore keeps records in a single SQLite table keyed by (bucket, id).
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"huddle/internal/db"
	"huddle/internal/domain"
	"huddle/internal/migrate"
	"huddle/internal/store"
)

type Store struct {
	db      *sql.DB
	timeout time.Duration
	now     func() time.Time
}

// Open opens (and migrates) the workspace database. timeout bounds each View/Update.
func Open(ctx context.Context, workspace string, timeout time.Duration) (*Store, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := db.Open(db.Config{Workspace: workspace, BusyTimeout: timeout})
	if err != nil {
		return nil, store.Unavailable("open sqlite", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, store.Unavailable("migrate", err)
	}
	return &Store{db: conn, timeout: timeout, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	return s.run(ctx, false, fn)
}

func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	return s.run(ctx, true, fn)
}

func (s *Store) run(ctx context.Context, writable bool, fn func(store.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return store.Unavailable("begin", err)
	}
	defer sqlTx.Rollback()
	if err := fn(&tx{ctx: ctx, tx: sqlTx, writable: writable, now: s.now}); err != nil {
		return err
	}
	if !writable {
		return nil
	}
	if err := sqlTx.Commit(); err != nil {
		return store.Unavailable("commit", err)
	}
	return nil
}

type tx struct {
	ctx      context.Context
	tx       *sql.Tx
	writable bool
	now      func() time.Time
}

func (t *tx) check(b store.Bucket, id string) error {
	if !t.writable {
		return store.ErrReadOnly
	}
	return store.CheckKey(b, id)
}

func (t *tx) Get(b store.Bucket, id string) ([]byte, error) {
	if err := store.CheckKey(b, id); err != nil {
		return nil, err
	}
	var body []byte
	err := t.tx.QueryRowContext(t.ctx, `SELECT body FROM records WHERE bucket=? AND id=?`, string(b), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", b, id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, store.Unavailable("get", err)
	}
	return body, nil
}

func (t *tx) List(b store.Bucket) ([]store.Record, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("%w: unknown bucket %q", domain.ErrInvalid, b)
	}
	rows, err := t.tx.QueryContext(t.ctx, `SELECT id, body FROM records WHERE bucket=? ORDER BY id`, string(b))
	if err != nil {
		return nil, store.Unavailable("list", err)
	}
	defer rows.Close()
	out := []store.Record{}
	for rows.Next() {
		var r store.Record
		if err := rows.Scan(&r.ID, &r.Data); err != nil {
			return nil, store.Unavailable("list", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, store.Unavailable("list", err)
	}
	return out, nil
}

func (t *tx) Put(b store.Bucket, id string, data []byte) error {
	if err := t.check(b, id); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(t.ctx, `INSERT INTO records(bucket, id, body, updated_at) VALUES(?,?,?,?)
ON CONFLICT(bucket, id) DO UPDATE SET body=excluded.body, updated_at=excluded.updated_at`,
		string(b), id, data, t.stamp())
	if err != nil {
		return store.Unavailable("put", err)
	}
	return nil
}

func (t *tx) Create(b store.Bucket, id string, data []byte) error {
	if err := t.check(b, id); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(t.ctx, `INSERT INTO records(bucket, id, body, updated_at) VALUES(?,?,?,?)
ON CONFLICT(bucket, id) DO NOTHING`, string(b), id, data, t.stamp())
	if err != nil {
		return store.Unavailable("create", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Unavailable("create", err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", b, id, domain.ErrDuplicateID)
	}
	return nil
}

func (t *tx) Delete(b store.Bucket, id string) error {
	if err := t.check(b, id); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(t.ctx, `DELETE FROM records WHERE bucket=? AND id=?`, string(b), id)
	if err != nil {
		return store.Unavailable("delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return store.Unavailable("delete", err)
	}
	if n == 0 {
		return fmt.Errorf("%s/%s: %w", b, id, domain.ErrNotFound)
	}
	return nil
}

func (t *tx) stamp() string {
	return t.now().UTC().Format(time.RFC3339Nano)
}
