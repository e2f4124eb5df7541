// Package fsstore keeps one JSON file per record in a directory per bucket.
//
// The workspace lock file serializes writers across processes (exclusive flock) and keeps readers
// (shared flock) from seeing a half-applied transaction. Every file write lands in a temp file that
// is renamed into place, so a record is never observed partially written.
package fsstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"huddle/internal/domain"
	"huddle/internal/store"
)

const (
	ext            = ".json"
	lockName       = ".huddle.lock"
	defaultTimeout = 5 * time.Second
	lockRetry      = 5 * time.Millisecond
)

type Store struct {
	root    string
	timeout time.Duration
}

type Option func(*Store)

// WithTimeout bounds every View/Update, including the wait for the workspace lock.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// Open prepares the bucket directories under root.
func Open(root string, opts ...Option) (*Store, error) {
	if root == "" {
		root = "."
	}
	s := &Store{root: root, timeout: defaultTimeout}
	for _, opt := range opts {
		opt(s)
	}
	for _, b := range store.Buckets {
		if err := os.MkdirAll(filepath.Join(root, Dir(b)), 0o755); err != nil {
			return nil, store.Unavailable("create bucket dir", err)
		}
	}
	return s, nil
}

// Dir is the bucket's directory relative to the workspace root.
func Dir(b store.Bucket) string {
	switch {
	case b.IsTask():
		return filepath.Join("tasks", string(b))
	case b == store.BucketInbox:
		return filepath.Join("ceo-office", "inbox")
	case b == store.BucketDecisions:
		return filepath.Join("ceo-office", "decisions")
	case b == store.BucketNotifications:
		return filepath.Join("ceo-office", "notifications")
	default:
		return string(b)
	}
}

func (s *Store) Root() string { return s.root }

func (s *Store) Close() error { return nil }

func (s *Store) View(ctx context.Context, fn func(store.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	l, err := acquire(ctx, filepath.Join(s.root, lockName), false)
	if err != nil {
		return err
	}
	defer l.release()
	return fn(&tx{s: s, ctx: ctx})
}

func (s *Store) Update(ctx context.Context, fn func(store.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	l, err := acquire(ctx, filepath.Join(s.root, lockName), true)
	if err != nil {
		return err
	}
	defer l.release()
	t := &tx{s: s, ctx: ctx, writable: true, overlay: map[key]op{}}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return store.Unavailable("commit", err)
	}
	return t.commit()
}

type key struct {
	bucket store.Bucket
	id     string
}

type op struct {
	key
	data []byte
	del  bool
}

// tx buffers writes until the callback returns so a failed Update leaves no trace.
type tx struct {
	s        *Store
	ctx      context.Context
	writable bool
	overlay  map[key]op
	ops      []op
}

func (t *tx) path(b store.Bucket, id string) string {
	return filepath.Join(t.s.root, Dir(b), id+ext)
}

func (t *tx) check(b store.Bucket, id string, write bool) error {
	if write && !t.writable {
		return store.ErrReadOnly
	}
	if err := t.ctx.Err(); err != nil {
		return store.Unavailable("fsstore", err)
	}
	return store.CheckKey(b, id)
}

func (t *tx) Get(b store.Bucket, id string) ([]byte, error) {
	if err := t.check(b, id, false); err != nil {
		return nil, err
	}
	if o, ok := t.overlay[key{b, id}]; ok {
		if o.del {
			return nil, notFound(b, id)
		}
		return append([]byte(nil), o.data...), nil
	}
	data, err := os.ReadFile(t.path(b, id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(b, id)
	}
	if err != nil {
		return nil, store.Unavailable("read "+string(b)+"/"+id, err)
	}
	return data, nil
}

func (t *tx) List(b store.Bucket) ([]store.Record, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("%w: unknown bucket %q", domain.ErrInvalid, b)
	}
	if err := t.ctx.Err(); err != nil {
		return nil, store.Unavailable("fsstore", err)
	}
	dir := filepath.Join(t.s.root, Dir(b))
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, store.Unavailable("list "+string(b), err)
	}
	byID := map[string][]byte{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		id := strings.TrimSuffix(name, ext)
		data, err := os.ReadFile(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, store.Unavailable("read "+string(b)+"/"+id, err)
		}
		byID[id] = data
	}
	for k, o := range t.overlay {
		if k.bucket != b {
			continue
		}
		if o.del {
			delete(byID, k.id)
		} else {
			byID[k.id] = append([]byte(nil), o.data...)
		}
	}
	out := make([]store.Record, 0, len(byID))
	for id, data := range byID {
		out = append(out, store.Record{ID: id, Data: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) exists(b store.Bucket, id string) (bool, error) {
	if o, ok := t.overlay[key{b, id}]; ok {
		return !o.del, nil
	}
	_, err := os.Stat(t.path(b, id))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, store.Unavailable("stat "+string(b)+"/"+id, err)
	}
	return true, nil
}

func (t *tx) Put(b store.Bucket, id string, data []byte) error {
	if err := t.check(b, id, true); err != nil {
		return err
	}
	t.record(op{key: key{b, id}, data: append([]byte(nil), data...)})
	return nil
}

func (t *tx) Create(b store.Bucket, id string, data []byte) error {
	if err := t.check(b, id, true); err != nil {
		return err
	}
	ok, err := t.exists(b, id)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%s/%s: %w", b, id, domain.ErrDuplicateID)
	}
	t.record(op{key: key{b, id}, data: append([]byte(nil), data...)})
	return nil
}

func (t *tx) Delete(b store.Bucket, id string) error {
	if err := t.check(b, id, true); err != nil {
		return err
	}
	ok, err := t.exists(b, id)
	if err != nil {
		return err
	}
	if !ok {
		return notFound(b, id)
	}
	t.record(op{key: key{b, id}, del: true})
	return nil
}

func (t *tx) record(o op) {
	t.overlay[o.key] = o
	t.ops = append(t.ops, o)
}

// Hooks replaced in tests to force failures part-way through a commit.
var (
	rename = os.Rename
	remove = os.Remove
)

// staged is one record's final state within a commit.
type staged struct {
	op
	path   string
	tmp    string
	backup []byte
	had    bool
}

// commit runs in phases so a failed commit leaves the workspace as it was. Puts are first written
// and synced to temp files; nothing visible changes if that fails. Then every put is renamed into
// place before any delete runs, so a crash mid-commit can leave a duplicate but never lose a
// record. Files overwritten or removed are read beforehand and restored if a later step fails.
func (t *tx) commit() error {
	seen := map[key]bool{}
	var puts, dels []*staged
	for i := len(t.ops) - 1; i >= 0; i-- {
		o := t.ops[i]
		if seen[o.key] {
			continue
		}
		seen[o.key] = true
		st := &staged{op: o, path: t.path(o.bucket, o.id)}
		if o.del {
			dels = append([]*staged{st}, dels...)
		} else {
			puts = append([]*staged{st}, puts...)
		}
	}
	all := append(append([]*staged{}, puts...), dels...)

	cleanup := func() {
		for _, st := range puts {
			if st.tmp != "" {
				os.Remove(st.tmp)
			}
		}
	}
	for _, st := range puts {
		tmp, err := writeTemp(st.path, st.data)
		if err != nil {
			cleanup()
			return store.Unavailable("write "+string(st.bucket)+"/"+st.id, err)
		}
		st.tmp = tmp
	}
	for _, st := range all {
		data, err := os.ReadFile(st.path)
		switch {
		case err == nil:
			st.backup, st.had = data, true
		case errors.Is(err, fs.ErrNotExist):
		default:
			cleanup()
			return store.Unavailable("read "+string(st.bucket)+"/"+st.id, err)
		}
	}

	var applied []*staged
	fail := func(what string, st *staged, err error) error {
		cleanup()
		if rerr := rollback(applied); rerr != nil {
			err = fmt.Errorf("%v (rollback: %v)", err, rerr)
		}
		return store.Unavailable(what+" "+string(st.bucket)+"/"+st.id, err)
	}
	for _, st := range puts {
		if err := rename(st.tmp, st.path); err != nil {
			return fail("write", st, err)
		}
		st.tmp = ""
		applied = append(applied, st)
	}
	for _, st := range dels {
		if err := remove(st.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fail("delete", st, err)
		}
		applied = append(applied, st)
	}
	return nil
}

// rollback puts applied records back to their pre-commit state, newest first.
func rollback(applied []*staged) error {
	var errs []error
	for i := len(applied) - 1; i >= 0; i-- {
		st := applied[i]
		var err error
		if st.had {
			err = writeAtomic(st.path, st.backup)
		} else if st.del {
			continue
		} else {
			err = os.Remove(st.path)
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// writeTemp writes data to a synced temp file next to path and returns the temp file's name.
func writeTemp(path string, data []byte) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := writeTemp(path, data)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func notFound(b store.Bucket, id string) error {
	return fmt.Errorf("%s/%s: %w", b, id, domain.ErrNotFound)
}
