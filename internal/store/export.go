package store

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/roadtones/captionstudy/internal/model"
)

// ExportCSV writes every stored record as CSV with the canonical header.
func (s *Store) ExportCSV(ctx context.Context, w io.Writer) error {
	responses, err := s.ListResponses(ctx)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(model.ResponseHeader()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, r := range responses {
		if err := cw.Write(r.Values()); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
