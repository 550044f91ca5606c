package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roadtones/captionstudy/internal/model"
)

// Appender is any destination for one response record.
type Appender interface {
	Append(ctx context.Context, r model.Response) error
}

// Fallback tries the primary target once and, on failure, the secondary
// once. No retries, no queueing; if both fail the record is lost unless the
// participant resubmits.
type Fallback struct {
	primary   Appender
	secondary Appender
}

func NewFallback(primary, secondary Appender) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) Append(ctx context.Context, r model.Response) error {
	primaryErr := f.primary.Append(ctx, r)
	if primaryErr == nil {
		return nil
	}
	slog.Warn("primary sink failed, falling back", "sample_id", r.SampleID, "error", primaryErr)
	if err := f.secondary.Append(ctx, r); err != nil {
		return fmt.Errorf("primary: %v; secondary: %w", primaryErr, err)
	}
	return nil
}
