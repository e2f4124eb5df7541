package engine

import (
	"context"
	"fmt"

	"huddle/internal/domain"
	"huddle/internal/notify"
	"huddle/internal/store"
)

// SaveSpec stores a product spec, replacing any earlier version, and tells everyone it changed.
func (e Engine) SaveSpec(ctx context.Context, name string, body map[string]any, actor string) (domain.ProductSpec, error) {
	if err := store.CheckKey(store.BucketSpecs, name); err != nil {
		return domain.ProductSpec{}, err
	}
	if body == nil {
		body = map[string]any{}
	}
	spec := domain.ProductSpec{Name: name, Body: body, UpdatedBy: actor, UpdatedAt: e.now()}
	err := e.Store.Update(ctx, func(tx store.Tx) error {
		return e.repo(tx).PutSpec(spec)
	})
	if err != nil {
		return domain.ProductSpec{}, err
	}
	e.signal(ctx, notify.TopicBroadcast, notify.Signal{Type: notify.SignalSpecUpdate, Product: name})
	return spec, nil
}

func (e Engine) GetSpec(ctx context.Context, name string) (domain.ProductSpec, error) {
	if name == "" {
		return domain.ProductSpec{}, fmt.Errorf("%w: spec name is required", domain.ErrInvalid)
	}
	var spec domain.ProductSpec
	err := e.Store.View(ctx, func(tx store.Tx) error {
		var err error
		spec, err = e.repo(tx).GetSpec(name)
		return err
	})
	return spec, err
}

func (e Engine) ListSpecs(ctx context.Context) ([]domain.ProductSpec, error) {
	var out []domain.ProductSpec
	err := e.Store.View(ctx, func(tx store.Tx) error {
		specs, err := e.repo(tx).ListSpecs()
		out = specs
		return err
	})
	return out, err
}
