package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/roadtones/captionstudy/internal/model"
)

// JSONL appends one JSON object per line to a local file. This is the
// backup target when the spreadsheet is unreachable.
type JSONL struct {
	mu   sync.Mutex
	path string
}

func NewJSONL(path string) *JSONL {
	return &JSONL{path: path}
}

func (j *JSONL) Append(_ context.Context, r model.Response) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open backup file: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}
