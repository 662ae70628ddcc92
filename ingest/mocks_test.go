package ingest

import (
	"context"

	"github.com/sig-0/ratefeed/storage/types"
)

type (
	nameDelegate  func() string
	fetchDelegate func(context.Context) (*types.Snapshot, error)
)

type mockSource struct {
	nameFn  nameDelegate
	fetchFn fetchDelegate
}

func (m *mockSource) Name() string {
	if m.nameFn != nil {
		return m.nameFn()
	}

	return "mock-source"
}

func (m *mockSource) Fetch(ctx context.Context) (*types.Snapshot, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx)
	}

	return nil, nil
}

type runDelegate func(context.Context) error

type mockRunner struct {
	runFn runDelegate
}

func (m *mockRunner) Run(ctx context.Context) error {
	if m.runFn != nil {
		return m.runFn(ctx)
	}

	return nil
}
