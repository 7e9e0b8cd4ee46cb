package repository

import (
	"context"
	"errors"

	"github.com/okian/promptelo/internal/domain/model"
)

// MultiStore writes to every store and reads from the first.
type MultiStore struct {
	stores []Store
}

// NewMultiStore fans writes out to primary and secondaries.
func NewMultiStore(primary Store, secondaries ...Store) *MultiStore {
	return &MultiStore{stores: append([]Store{primary}, secondaries...)}
}

// Save implements Store.Save. All stores are attempted; errors are joined.
func (m *MultiStore) Save(ctx context.Context, res *model.Result) error {
	var errs []error
	for _, s := range m.stores {
		if err := s.Save(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get implements Store.Get.
func (m *MultiStore) Get(ctx context.Context, id string) (*model.Result, error) {
	return m.stores[0].Get(ctx, id)
}

// List implements Store.List.
func (m *MultiStore) List(ctx context.Context, limit int) ([]Summary, error) {
	return m.stores[0].List(ctx, limit)
}

// Count implements Store.Count.
func (m *MultiStore) Count(ctx context.Context) int {
	return m.stores[0].Count(ctx)
}
