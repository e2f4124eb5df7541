// Package app wires a workspace directory to its config, store backend, notifier and engine.
package app

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"huddle/internal/config"
	"huddle/internal/engine"
	"huddle/internal/notify"
	"huddle/internal/store"
	"huddle/internal/store/fsstore"
	"huddle/internal/store/sqlstore"
)

type Workspace struct {
	Root     string
	Config   *config.Config
	Store    store.Store
	Notifier notify.Notifier
	Engine   engine.Engine
}

// Open loads huddle.yml from root (defaults when absent) and opens the workspace.
func Open(ctx context.Context, root string, logger log.FieldLogger) (*Workspace, error) {
	cfg, err := config.LoadOptional(root)
	if err != nil {
		return nil, err
	}
	return OpenWithConfig(ctx, root, cfg, logger)
}

func OpenWithConfig(ctx context.Context, root string, cfg *config.Config, logger log.FieldLogger) (*Workspace, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	st, err := OpenStore(ctx, root, cfg)
	if err != nil {
		return nil, err
	}
	n := notify.Connect(ctx, cfg.Notifier.RedisURL, cfg.Notifier.Timeout, logger)
	logger.WithFields(log.Fields{"workspace": root, "backend": cfg.Store.Backend}).Debug("workspace opened")
	return &Workspace{
		Root:     root,
		Config:   cfg,
		Store:    st,
		Notifier: n,
		Engine:   engine.New(st, n, cfg, logger),
	}, nil
}

// OpenStore opens the configured store backend.
func OpenStore(ctx context.Context, root string, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case config.BackendFS, "":
		return fsstore.Open(root, fsstore.WithTimeout(cfg.Store.Timeout))
	case config.BackendSQLite:
		return sqlstore.Open(ctx, root, cfg.Store.Timeout)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func (w *Workspace) Close() error {
	return errors.Join(w.Notifier.Close(), w.Store.Close())
}
