// Package state persists the deal detector's cross-cycle state per route.
package state

import (
	"context"

	"github.com/agisilaos/farewatch/internal/model"
)

// Store loads and saves DealState by route key. A missing route loads as the
// zero state.
type Store interface {
	Load(ctx context.Context, route string) (model.DealState, error)
	Save(ctx context.Context, route string, st model.DealState) error
	Reset(ctx context.Context, route string) error
}
