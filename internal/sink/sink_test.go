package sink

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/roadtones/captionstudy/internal/model"
)

type fakeSink struct {
	records []model.Response
	err     error
	calls   int
}

func (f *fakeSink) Append(_ context.Context, r model.Response) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, r)
	return nil
}

func studyResponse() model.Response {
	return model.Response{
		Email:         "participant@example.com",
		Age:           30,
		Gender:        "Female",
		Timestamp:     "2026-03-14 10:30:00",
		StudyPhase:    "user_study_part1",
		VideoID:       "vid_001",
		SampleID:      "cap_001a",
		QuestionText:  "How calm and urgent does the caption sound?",
		UserChoice:    "Moderate",
		WasCorrect:    "N/A",
		AttemptsTaken: "N/A",
	}
}

func TestFallbackUsesPrimary(t *testing.T) {
	primary := &fakeSink{}
	secondary := &fakeSink{}
	f := NewFallback(primary, secondary)

	if err := f.Append(context.Background(), studyResponse()); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(primary.records) != 1 {
		t.Errorf("primary records = %d, want 1", len(primary.records))
	}
	if secondary.calls != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.calls)
	}
}

func TestFallbackOnPrimaryFailure(t *testing.T) {
	primary := &fakeSink{err: errors.New("quota exceeded")}
	secondary := &fakeSink{}
	f := NewFallback(primary, secondary)

	if err := f.Append(context.Background(), studyResponse()); err != nil {
		t.Fatalf("append: %v", err)
	}
	// Exactly one record lands in the secondary, unchanged.
	if len(secondary.records) != 1 {
		t.Fatalf("secondary records = %d, want 1", len(secondary.records))
	}
	got := secondary.records[0]
	if got != studyResponse() {
		t.Errorf("record altered on fallback: %+v", got)
	}
	if got.WasCorrect != "N/A" {
		t.Errorf("was_correct = %q, want N/A for study phases", got.WasCorrect)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("calls = %d/%d, want one attempt each", primary.calls, secondary.calls)
	}
}

func TestFallbackBothFail(t *testing.T) {
	primary := &fakeSink{err: errors.New("unreachable")}
	secondary := &fakeSink{err: errors.New("disk full")}
	f := NewFallback(primary, secondary)

	err := f.Append(context.Background(), studyResponse())
	if err == nil {
		t.Fatal("expected error when both sinks fail")
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("calls = %d/%d, want exactly one attempt each", primary.calls, secondary.calls)
	}
}

func TestJSONLAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.jsonl")
	j := NewJSONL(path)
	ctx := context.Background()

	first := studyResponse()
	second := studyResponse()
	second.UserChoice = "Strong"
	for _, r := range []model.Response{first, second} {
		if err := j.Append(ctx, r); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var got []model.Response
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r model.Response
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		got = append(got, r)
	}
	if err := sc.Err(); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("lines = %d, want 2", len(got))
	}
	if got[0] != first || got[1] != second {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestJSONLFieldOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backup.jsonl")
	j := NewJSONL(path)
	if err := j.Append(context.Background(), studyResponse()); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	// Struct field order matches the documented header order, so the JSON
	// keys appear in the same sequence.
	var prev int
	for _, key := range model.ResponseHeader() {
		idx := bytes.Index(data, []byte(`"`+key+`"`))
		if idx < 0 {
			t.Fatalf("key %q missing from line %s", key, data)
		}
		if idx < prev {
			t.Errorf("key %q out of order", key)
		}
		prev = idx
	}
}
