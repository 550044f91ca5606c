package model

import (
	"testing"
)

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"How " + Highlight("calm") + " does it sound?", "How calm does it sound?"},
		{"<b>bold</b> and <i>italic</i>", "bold and italic"},
		{"  padded  ", "padded"},
	}
	for _, tt := range tests {
		if got := StripMarkup(tt.in); got != tt.want {
			t.Errorf("StripMarkup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestResponseValuesMatchHeader(t *testing.T) {
	r := Response{
		Email:         "participant@example.com",
		Age:           30,
		Gender:        "Female",
		Timestamp:     "2026-03-14 10:30:00",
		StudyPhase:    "quiz",
		VideoID:       "vid_001",
		SampleID:      "quiz_tone_01",
		QuestionText:  "What is the tone?",
		UserChoice:    "Urgent",
		WasCorrect:    "True",
		AttemptsTaken: "1",
	}
	header := ResponseHeader()
	values := r.Values()
	if len(header) != len(values) {
		t.Fatalf("header has %d columns, values has %d", len(header), len(values))
	}
	if values[0] != r.Email || values[1] != "30" || values[len(values)-1] != r.AttemptsTaken {
		t.Errorf("values out of order: %v", values)
	}
}

func TestStepOrdering(t *testing.T) {
	steps := []Step{StepWatching, StepSummary, StepComprehension, StepContent, StepQuestions}
	for i := 1; i < len(steps); i++ {
		if steps[i] <= steps[i-1] {
			t.Fatalf("step %v not after %v", steps[i], steps[i-1])
		}
	}
	if StepWatching.String() != "watching" || StepQuestions.String() != "questions" {
		t.Error("step names wrong")
	}
}
