package flow

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roadtones/captionstudy/internal/model"
)

// Feedback is the result of a scored quiz submission, held until the
// participant acknowledges it. Acknowledging persists the record and
// advances.
type Feedback struct {
	QuestionID     string
	Choices        []string
	Correct        bool
	CorrectAnswers []string
	Explanation    string
}

// ItemView is the transient per-item presentation state: the reveal step,
// the cached comprehension option order, and which questions have been
// touched. Cleared whenever its item is left behind.
type ItemView struct {
	Step            model.Step
	VideoDone       bool
	SummaryRevealed bool
	SummaryTyped    bool // typing animation already played once
	CompOptions     []string // shuffled once, stable for the item's lifetime
	CompChoice      string
	CompAnswered    bool
	Interacted      map[string]bool
	Feedback        *Feedback
}

// Session is one participant's mutable flow state. It is private to the
// participant; the embedded mutex serializes the request handlers that share
// it. Controller methods assume the caller holds the lock.
type Session struct {
	sync.Mutex

	ID        string
	CreatedAt time.Time

	Participant model.Participant
	IntakeDone  bool

	Phase model.Phase

	QuizPart int
	QuizItem int
	QuizSub  int
	Score    int
	Awarded  map[string]bool // question IDs that already earned a point

	StudyPart     int // 1..3 while Phase is study, 0 before
	VideoIdx      int
	CaptionIdx    int
	ComparisonIdx int
	ChangeIdx     int

	Views map[string]*ItemView
}

// NewSession starts a participant at the intake form.
func NewSession() *Session {
	return &Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Phase:     model.PhaseDemographics,
		Awarded:   make(map[string]bool),
		Views:     make(map[string]*ItemView),
	}
}

// itemKey identifies the item whose view state is active. Part-1 captions
// get their own key because each caption restarts the question screen
// without replaying the video.
func (s *Session) itemKey() string {
	switch s.Phase {
	case model.PhaseQuiz:
		return fmt.Sprintf("quiz/%d/%d", s.QuizPart, s.QuizItem)
	case model.PhaseStudy:
		switch s.StudyPart {
		case 1:
			return fmt.Sprintf("study/1/%d/%d", s.VideoIdx, s.CaptionIdx)
		case 2:
			return fmt.Sprintf("study/2/%d", s.ComparisonIdx)
		case 3:
			return fmt.Sprintf("study/3/%d", s.ChangeIdx)
		}
	}
	return string(s.Phase)
}

// clearViews drops all transient per-item state, so a jump never leaks a
// stale step into a freshly entered part.
func (s *Session) clearViews() {
	s.Views = make(map[string]*ItemView)
}
