package model

import (
	"regexp"
	"strconv"
	"strings"
)

// Phase is the top-level stage of a participant session.
type Phase string

const (
	PhaseDemographics    Phase = "demographics"
	PhaseIntroVideo      Phase = "intro_video"
	PhaseTutorialTone    Phase = "tutorial_tone"
	PhaseTutorialFactual Phase = "tutorial_factual"
	PhaseQuiz            Phase = "quiz"
	PhaseQuizResults     Phase = "quiz_results"
	PhaseStudy           Phase = "study"
	PhaseDone            Phase = "done"
)

// Step is the sub-state of progress through a single item's reveal sequence.
// It only moves forward within an item and resets when the item changes.
type Step int

const (
	StepWatching Step = iota + 1
	StepSummary
	StepComprehension
	StepContent
	StepQuestions
)

func (s Step) String() string {
	switch s {
	case StepWatching:
		return "watching"
	case StepSummary:
		return "summary"
	case StepComprehension:
		return "comprehension"
	case StepContent:
		return "content"
	case StepQuestions:
		return "questions"
	}
	return "unknown"
}

// QuestionKind selects the correctness rule for a question.
type QuestionKind string

const (
	// KindSingle requires the submitted option to equal the correct option.
	KindSingle QuestionKind = "single"
	// KindMultiTwo requires exactly two selections whose set equals the
	// correct set.
	KindMultiTwo QuestionKind = "multi_two"
	// KindOrdinal has no inherent correctness; any value is valid once the
	// control has been interacted with.
	KindOrdinal QuestionKind = "ordinal"
)

// Question is a fully-resolved prompt. Templates and trait substitutions are
// applied by the content loader, so nothing is formatted at render time.
type Question struct {
	ID          string
	Kind        QuestionKind
	Prompt      string // may carry highlight markup, stripped when persisted
	Options     []string
	Correct     []string // empty for ordinal questions
	Explanation string
}

// Scored reports whether answers to the question are graded.
func (q Question) Scored() bool { return len(q.Correct) > 0 }

// Comprehension is the single-choice gating check verifying the participant
// watched the video.
type Comprehension struct {
	Correct     string
	Distractors []string
}

// Media describes the video attached to an item. Duration is in seconds,
// already defaulted by the content loader when the file could not be probed.
type Media struct {
	VideoID     string
	Path        string
	Duration    int
	Orientation string
}

// Participant identity, captured once at intake and read-only afterwards.
type Participant struct {
	Email  string
	Age    int
	Gender string
}

// Response is one persisted answer record. The field order of Header/Values
// is the sink contract and must not change.
type Response struct {
	Email         string `json:"email"`
	Age           int    `json:"age"`
	Gender        string `json:"gender"`
	Timestamp     string `json:"timestamp"`
	StudyPhase    string `json:"study_phase"`
	VideoID       string `json:"video_id"`
	SampleID      string `json:"sample_id"`
	QuestionText  string `json:"question_text"`
	UserChoice    string `json:"user_choice"`
	WasCorrect    string `json:"was_correct"`
	AttemptsTaken string `json:"attempts_taken"`
}

// ResponseHeader is the column order shared by every sink.
func ResponseHeader() []string {
	return []string{
		"email", "age", "gender", "timestamp", "study_phase", "video_id",
		"sample_id", "question_text", "user_choice", "was_correct",
		"attempts_taken",
	}
}

// Values returns the record's fields in header order.
func (r Response) Values() []string {
	return []string{
		r.Email, strconv.Itoa(r.Age), r.Gender, r.Timestamp, r.StudyPhase,
		r.VideoID, r.SampleID, r.QuestionText, r.UserChoice, r.WasCorrect,
		r.AttemptsTaken,
	}
}

var tagRe = regexp.MustCompile(`<[^<]+?>`)

// StripMarkup removes HTML markup from a prompt before it is persisted,
// keeping the visible text only.
func StripMarkup(s string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(s, ""))
}

// Highlight wraps a trait name in the markup the frontend styles as an
// emphasized trait.
func Highlight(trait string) string {
	return "<b class='highlight-trait'>" + trait + "</b>"
}
