// Package engine implements the workspace operations: the task lifecycle, the messaging channel, and
// the status, notification and report aggregation. All state lives in the store. The notifier is only
// told about changes after they are committed.
package engine

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"huddle/internal/config"
	"huddle/internal/engine/auth"
	"huddle/internal/events"
	"huddle/internal/notify"
	"huddle/internal/repo"
	"huddle/internal/store"
)

type Engine struct {
	Store    store.Store
	Notifier notify.Notifier
	Config   *config.Config
	Log      log.FieldLogger
	Now      func() time.Time
}

func New(s store.Store, n notify.Notifier, cfg *config.Config, logger log.FieldLogger) Engine {
	if n == nil {
		n = notify.Nop{}
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return Engine{
		Store:    s,
		Notifier: n,
		Config:   cfg,
		Log:      logger,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e Engine) log() log.FieldLogger {
	if e.Log != nil {
		return e.Log
	}
	return log.StandardLogger()
}

func (e Engine) config() *config.Config {
	if e.Config != nil {
		return e.Config
	}
	return config.Default()
}

func (e Engine) policy() auth.Policy {
	return auth.Policy{Supervisor: e.config().Team.Supervisor}
}

func (e Engine) events() events.Writer {
	return events.Writer{Now: e.now}
}

func (e Engine) repo(tx store.Tx) repo.Repo {
	return repo.Repo{
		Tx: tx,
		Corrupt: func(b store.Bucket, id string, err error) {
			e.log().WithError(err).WithFields(log.Fields{"bucket": b, "id": id}).Warn("skipping unreadable record")
		},
	}
}

// signal publishes a wake-up hint. Failures are logged and never reach the caller.
func (e Engine) signal(ctx context.Context, topic string, sig notify.Signal) {
	if e.Notifier == nil {
		return
	}
	timeout := e.config().Notifier.Timeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := e.Notifier.Publish(ctx, topic, sig); err != nil {
		e.log().WithError(err).WithFields(log.Fields{"topic": topic, "type": sig.Type}).Warn("fan-out signal not delivered")
	}
}
