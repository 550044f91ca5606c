// Package sink persists response records: a Google Sheets primary, a local
// JSONL or SQLite secondary, and a fallback combinator that tries each
// exactly once.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/roadtones/captionstudy/internal/model"
)

// Sheets appends records to one sheet of a Google spreadsheet. The header
// row is written once when the sheet is found empty.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string

	mu         sync.Mutex
	headerDone bool
}

// CredentialsOption resolves Google credentials the usual way: an explicit
// file path wins, then the GOOGLE_APPLICATION_CREDENTIALS_JSON variable for
// environments that inject the key inline. Returns nil when neither is set,
// letting the client fall through to application default credentials.
func CredentialsOption(credFile string) option.ClientOption {
	if credFile != "" {
		return option.WithCredentialsFile(credFile)
	}
	if raw := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"); raw != "" {
		return option.WithCredentialsJSON([]byte(raw))
	}
	return nil
}

// NewSheets builds the sheets client. sheetName is the tab records land on.
func NewSheets(ctx context.Context, spreadsheetID, sheetName string, opts ...option.ClientOption) (*Sheets, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheets client: %w", err)
	}
	return &Sheets{svc: svc, spreadsheetID: spreadsheetID, sheetName: sheetName}, nil
}

// Append writes one record as a row. The first successful call also ensures
// the header row exists.
func (s *Sheets) Append(ctx context.Context, r model.Response) error {
	s.mu.Lock()
	if !s.headerDone {
		if err := s.ensureHeader(ctx); err != nil {
			s.mu.Unlock()
			return err
		}
		s.headerDone = true
	}
	s.mu.Unlock()
	row := make([]interface{}, 0, len(model.ResponseHeader()))
	for _, v := range r.Values() {
		row = append(row, v)
	}
	_, err := s.svc.Spreadsheets.Values.
		Append(s.spreadsheetID, s.sheetName, &sheets.ValueRange{Values: [][]interface{}{row}}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	return nil
}

func (s *Sheets) ensureHeader(ctx context.Context) error {
	resp, err := s.svc.Spreadsheets.Values.
		Get(s.spreadsheetID, s.sheetName+"!A1:A1").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(resp.Values) > 0 {
		return nil
	}
	header := make([]interface{}, 0, len(model.ResponseHeader()))
	for _, h := range model.ResponseHeader() {
		header = append(header, h)
	}
	_, err = s.svc.Spreadsheets.Values.
		Append(s.spreadsheetID, s.sheetName, &sheets.ValueRange{Values: [][]interface{}{header}}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	slog.Info("wrote sheet header", "spreadsheet", s.spreadsheetID, "sheet", s.sheetName)
	return nil
}
