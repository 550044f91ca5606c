package sink

import (
	"context"

	"github.com/roadtones/captionstudy/internal/model"
	"github.com/roadtones/captionstudy/internal/store"
)

// SQLite adapts the response store to the sink interface, for deployments
// that keep records local instead of in a spreadsheet.
type SQLite struct {
	store *store.Store
}

func NewSQLite(s *store.Store) *SQLite {
	return &SQLite{store: s}
}

func (s *SQLite) Append(ctx context.Context, r model.Response) error {
	return s.store.InsertResponse(ctx, r)
}
