// Package flow owns the study-flow state machine: the phase sequence from
// intake to completion, the per-item reveal steps, quiz scoring and the
// hand-off of submitted answers to the response sink. All transitions go
// through the Controller; nothing else mutates a Session.
package flow

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/roadtones/captionstudy/internal/content"
	"github.com/roadtones/captionstudy/internal/model"
	"github.com/roadtones/captionstudy/internal/question"
)

// Sink persists one response record at a time.
type Sink interface {
	Append(ctx context.Context, r model.Response) error
}

// DefaultPassThreshold is the number of correct quiz answers required to
// enter the main study.
const DefaultPassThreshold = 5

// Config tunes controller policy.
type Config struct {
	// PassThreshold is the minimum quiz score to enter the main study.
	PassThreshold int
	// AdvanceOnSaveFailure lets the flow continue past a failed sink write.
	// Off by default: a lost record blocks until the participant retries.
	AdvanceOnSaveFailure bool
}

// Controller applies user actions to a Session. Methods expect the caller to
// hold the session lock; the controller itself is stateless apart from
// configuration and is safe to share.
type Controller struct {
	catalog *content.Catalog
	sink    Sink
	cfg     Config

	now     func() time.Time
	shuffle func(n int, swap func(i, j int))
}

func NewController(catalog *content.Catalog, sink Sink, cfg Config) *Controller {
	if cfg.PassThreshold <= 0 {
		cfg.PassThreshold = DefaultPassThreshold
	}
	return &Controller{
		catalog: catalog,
		sink:    sink,
		cfg:     cfg,
		now:     time.Now,
		shuffle: rand.Shuffle,
	}
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

var debugParticipant = model.Participant{Email: "debug@test.com", Age: 25, Gender: "Prefer not to say"}

// Intake captures participant identity once. On success the session moves to
// the intro video; identity fields are read-only afterwards.
func (c *Controller) Intake(s *Session, email string, age int, gender string, consent bool) error {
	if s.Phase != model.PhaseDemographics {
		return ErrNotAllowed
	}
	email = strings.TrimSpace(email)
	if !emailRe.MatchString(email) {
		return &IntakeError{Field: "email", Reason: "must be a valid email address"}
	}
	if age < 18 || age > 120 {
		return &IntakeError{Field: "age", Reason: "participants must be between 18 and 120"}
	}
	if strings.TrimSpace(gender) == "" {
		return &IntakeError{Field: "gender", Reason: "required"}
	}
	if !consent {
		return &IntakeError{Field: "consent", Reason: "consent is required to participate"}
	}
	s.Participant = model.Participant{Email: email, Age: age, Gender: gender}
	s.IntakeDone = true
	s.Phase = model.PhaseIntroVideo
	return nil
}

// DebugIntake bypasses the form with canned identity values. Development
// aid, wired only when the server runs with the debug flag.
func (c *Controller) DebugIntake(s *Session) error {
	if s.Phase != model.PhaseDemographics {
		return ErrNotAllowed
	}
	s.Participant = debugParticipant
	s.IntakeDone = true
	s.Phase = model.PhaseIntroVideo
	return nil
}

// Item is the renderer's view of whatever the session currently points at:
// one quiz sub-question, or a study question set.
type Item struct {
	SampleID      string
	Title         string
	Media         model.Media
	Summary       string
	Comprehension *model.Comprehension
	Captions      []string
	Questions     []model.Question
	Traits        []string
	PhaseLabel    string
	CaptionIndex  int // part-1 caption progress within the video
	CaptionTotal  int
}

// Current resolves the active item. Returns false between phases or when
// indices point past the catalog.
func (c *Controller) Current(s *Session) (Item, bool) {
	switch s.Phase {
	case model.PhaseQuiz:
		parts := c.catalog.QuizParts()
		if s.QuizPart >= len(parts) || s.QuizItem >= len(parts[s.QuizPart].Items) {
			return Item{}, false
		}
		item := parts[s.QuizPart].Items[s.QuizItem]
		if s.QuizSub >= len(item.Questions) {
			return Item{}, false
		}
		return Item{
			SampleID:      item.SampleID,
			Title:         item.Title,
			Media:         item.Media,
			Summary:       item.Summary,
			Comprehension: item.Comprehension,
			Captions:      item.Captions,
			Questions:     []model.Question{item.Questions[s.QuizSub]},
			Traits:        item.Traits,
			PhaseLabel:    "quiz",
		}, true

	case model.PhaseStudy:
		study := c.catalog.StudyParts()
		switch s.StudyPart {
		case 1:
			if s.VideoIdx >= len(study.Ratings) {
				return Item{}, false
			}
			video := study.Ratings[s.VideoIdx]
			if s.CaptionIdx >= len(video.Captions) {
				return Item{}, false
			}
			caption := video.Captions[s.CaptionIdx]
			return Item{
				SampleID:      caption.CaptionID,
				Title:         "Caption Rating",
				Media:         video.Media,
				Summary:       video.Summary,
				Comprehension: video.Comprehension,
				Captions:      []string{caption.Text},
				Questions:     caption.Questions,
				Traits:        caption.Traits,
				PhaseLabel:    "user_study_part1",
				CaptionIndex:  s.CaptionIdx,
				CaptionTotal:  len(video.Captions),
			}, true
		case 2:
			if s.ComparisonIdx >= len(study.Comparisons) {
				return Item{}, false
			}
			item := study.Comparisons[s.ComparisonIdx]
			return Item{
				SampleID:      item.ComparisonID,
				Title:         "Caption Comparison",
				Media:         item.Media,
				Summary:       item.Summary,
				Comprehension: item.Comprehension,
				Captions:      []string{item.CaptionA, item.CaptionB},
				Questions:     item.Questions,
				Traits:        item.Traits,
				PhaseLabel:    "user_study_part2",
			}, true
		case 3:
			if s.ChangeIdx >= len(study.Changes) {
				return Item{}, false
			}
			item := study.Changes[s.ChangeIdx]
			return Item{
				SampleID:      item.ChangeID,
				Title:         "Intensity Change",
				Media:         item.Media,
				Summary:       item.Summary,
				Comprehension: item.Comprehension,
				Captions:      []string{item.CaptionA, item.CaptionB},
				Questions:     item.Questions,
				Traits:        item.Traits,
				PhaseLabel:    "user_study_part3",
			}, true
		}
	}
	return Item{}, false
}

// View returns the active item's presentation state, creating it on first
// access. Comprehension options are shuffled exactly once here and cached
// for the item's lifetime. A part-1 caption after the first skips straight
// to the content step since its video was already watched.
func (c *Controller) View(s *Session) *ItemView {
	key := s.itemKey()
	if v, ok := s.Views[key]; ok {
		return v
	}
	v := &ItemView{Step: model.StepWatching, Interacted: make(map[string]bool)}
	if s.Phase == model.PhaseStudy && s.StudyPart == 1 && s.CaptionIdx > 0 {
		v.Step = model.StepContent
		v.VideoDone = true
		v.SummaryRevealed = true
		// The summary typed out with the first caption; render it statically.
		v.SummaryTyped = true
	}
	if item, ok := c.Current(s); ok && item.Comprehension != nil {
		opts := append([]string{item.Comprehension.Correct}, item.Comprehension.Distractors...)
		c.shuffle(len(opts), func(i, j int) { opts[i], opts[j] = opts[j], opts[i] })
		v.CompOptions = opts
	}
	s.Views[key] = v
	return v
}

// VisibleQuestions applies progressive disclosure: every question already
// interacted with plus the next one.
func (c *Controller) VisibleQuestions(s *Session) []model.Question {
	item, ok := c.Current(s)
	if !ok {
		return nil
	}
	view := c.View(s)
	interacted := 0
	for _, q := range item.Questions {
		if view.Interacted[q.ID] {
			interacted++
		}
	}
	return item.Questions[:question.VisibleCount(len(item.Questions), interacted)]
}

// Interact marks a question as touched, unlocking the next one visually.
func (c *Controller) Interact(s *Session, questionID string) {
	view := c.View(s)
	if view.Step == model.StepQuestions {
		view.Interacted[questionID] = true
	}
}

// FinishVideo marks the current video complete, either because it played
// out or via the manual override, and reveals the summary.
func (c *Controller) FinishVideo(s *Session) {
	view := c.View(s)
	view.VideoDone = true
	if view.Step == model.StepWatching {
		view.Step = model.StepSummary
		view.SummaryRevealed = true
	}
}

// SkipToQuestions jumps the reveal sequence straight to the question stage,
// marking the summary shown and bypassing the comprehension check. No-op if
// the questions are already visible.
func (c *Controller) SkipToQuestions(s *Session) error {
	if s.Phase != model.PhaseQuiz && s.Phase != model.PhaseStudy {
		return ErrNotAllowed
	}
	view := c.View(s)
	if view.Step >= model.StepQuestions {
		return nil
	}
	view.VideoDone = true
	view.SummaryRevealed = true
	view.SummaryTyped = true
	view.Step = model.StepQuestions
	return nil
}

// SubmitComprehension answers the video check. One attempt; feedback shows
// the correct answer and the wrong pick, then Proceed moves on.
func (c *Controller) SubmitComprehension(s *Session, choice string) (correct bool, answer string, err error) {
	view := c.View(s)
	if view.Step != model.StepComprehension || view.CompAnswered {
		return false, "", ErrNotAllowed
	}
	item, ok := c.Current(s)
	if !ok || item.Comprehension == nil {
		return false, "", ErrNotAllowed
	}
	view.CompChoice = choice
	view.CompAnswered = true
	return choice == item.Comprehension.Correct, item.Comprehension.Correct, nil
}

// SubmitQuizAnswer grades the active quiz question and stores feedback for
// the participant to acknowledge. The score is awarded at most once per
// question; persistence happens on the acknowledging Proceed.
func (c *Controller) SubmitQuizAnswer(s *Session, questionID string, choices []string) (*Feedback, error) {
	if s.Phase != model.PhaseQuiz {
		return nil, ErrNotAllowed
	}
	view := c.View(s)
	if view.Step != model.StepQuestions {
		return nil, ErrNotAllowed
	}
	if view.Feedback != nil {
		return nil, ErrAlreadyAnswered
	}
	item, ok := c.Current(s)
	if !ok {
		return nil, ErrNotAllowed
	}
	q := item.Questions[0]
	if q.ID != questionID {
		return nil, fmt.Errorf("question %s is not active", questionID)
	}
	correct, err := question.Score(q, choices)
	if err != nil {
		return nil, err
	}
	if correct && q.Scored() && !s.Awarded[q.ID] {
		s.Awarded[q.ID] = true
		s.Score++
	}
	view.Feedback = &Feedback{
		QuestionID:     q.ID,
		Choices:        choices,
		Correct:        correct,
		CorrectAnswers: q.Correct,
		Explanation:    q.Explanation,
	}
	return view.Feedback, nil
}

// SubmitStudyAnswers validates and persists the active study question set,
// one record per question, then advances to the next item. A failed sink
// write blocks the advance unless AdvanceOnSaveFailure is set.
func (c *Controller) SubmitStudyAnswers(ctx context.Context, s *Session, answers map[string][]string) error {
	if s.Phase != model.PhaseStudy {
		return ErrNotAllowed
	}
	view := c.View(s)
	if view.Step != model.StepQuestions {
		return ErrNotAllowed
	}
	item, ok := c.Current(s)
	if !ok {
		return ErrNotAllowed
	}
	if err := question.Validate(item.Questions, answers); err != nil {
		return err
	}
	for _, q := range item.Questions {
		if _, err := question.Score(q, answers[q.ID]); err != nil {
			return err
		}
	}
	for _, q := range item.Questions {
		r := c.record(s, item, q.Prompt, question.JoinChoices(answers[q.ID]), "N/A", "N/A")
		if err := c.sink.Append(ctx, r); err != nil {
			if !c.cfg.AdvanceOnSaveFailure {
				return &SaveError{Err: err}
			}
			slog.Warn("response not saved, advancing anyway", "sample_id", item.SampleID, "error", err)
		}
	}
	c.advanceStudyItem(s)
	return nil
}

// Proceed applies the generic forward action for the current phase or step.
// Calling it when there is nothing to advance is a no-op.
func (c *Controller) Proceed(ctx context.Context, s *Session) error {
	switch s.Phase {
	case model.PhaseDemographics:
		return ErrNotAllowed
	case model.PhaseIntroVideo:
		s.Phase = model.PhaseTutorialTone
	case model.PhaseTutorialTone:
		s.Phase = model.PhaseTutorialFactual
	case model.PhaseTutorialFactual:
		c.enterQuiz(s)
	case model.PhaseQuiz, model.PhaseStudy:
		return c.proceedItem(ctx, s)
	case model.PhaseQuizResults:
		if _, _, passed := c.Results(s); !passed {
			return ErrQuizFailed
		}
		s.Phase = model.PhaseStudy
		s.StudyPart = 1
		s.VideoIdx, s.CaptionIdx, s.ComparisonIdx, s.ChangeIdx = 0, 0, 0, 0
		s.clearViews()
		c.advanceStudy(s)
	case model.PhaseDone:
	}
	return nil
}

func (c *Controller) proceedItem(ctx context.Context, s *Session) error {
	view := c.View(s)
	item, ok := c.Current(s)
	if !ok {
		return ErrNotAllowed
	}
	switch view.Step {
	case model.StepWatching:
		// Proceed during playback is the manual override.
		view.VideoDone = true
		view.SummaryRevealed = true
		view.Step = model.StepSummary
	case model.StepSummary:
		if item.Comprehension != nil {
			view.Step = model.StepComprehension
		} else {
			view.Step = model.StepContent
		}
	case model.StepComprehension:
		if !view.CompAnswered {
			return ErrNotAllowed
		}
		view.Step = model.StepContent
	case model.StepContent:
		view.Step = model.StepQuestions
	case model.StepQuestions:
		if s.Phase == model.PhaseStudy {
			return nil // study sets advance via SubmitStudyAnswers
		}
		return c.acknowledgeQuizFeedback(ctx, s, view, item)
	}
	return nil
}

// acknowledgeQuizFeedback persists the answered question and advances to
// the next sub-question or item. The advance is withheld on a failed write
// unless AdvanceOnSaveFailure is set.
func (c *Controller) acknowledgeQuizFeedback(ctx context.Context, s *Session, view *ItemView, item Item) error {
	fb := view.Feedback
	if fb == nil {
		return ErrNotAllowed
	}
	q := item.Questions[0]
	wasCorrect := "False"
	if fb.Correct {
		wasCorrect = "True"
	}
	r := c.record(s, item, q.Prompt, question.JoinChoices(fb.Choices), wasCorrect, "1")
	if err := c.sink.Append(ctx, r); err != nil {
		if !c.cfg.AdvanceOnSaveFailure {
			return &SaveError{Err: err}
		}
		slog.Warn("response not saved, advancing anyway", "sample_id", item.SampleID, "error", err)
	}
	view.Feedback = nil
	s.QuizSub++
	c.normalizeQuiz(s)
	return nil
}

// PassThreshold is the configured minimum score to enter the main study.
func (c *Controller) PassThreshold() int { return c.cfg.PassThreshold }

// Results reports the quiz outcome against the passing threshold.
func (c *Controller) Results(s *Session) (score, total int, passed bool) {
	return s.Score, c.catalog.TotalScorableQuizQuestions(), s.Score >= c.cfg.PassThreshold
}

// JumpToQuizPart resets to the start of the given quiz part, discarding all
// per-item view state.
func (c *Controller) JumpToQuizPart(s *Session, part int) error {
	if s.Phase != model.PhaseQuiz {
		return ErrNotAllowed
	}
	if part < 0 || part >= len(c.catalog.QuizParts()) {
		return fmt.Errorf("no quiz part %d", part)
	}
	s.QuizPart, s.QuizItem, s.QuizSub = part, 0, 0
	s.clearViews()
	c.normalizeQuiz(s)
	return nil
}

// JumpToStudyPart resets to the start of study part 1, 2 or 3, discarding
// all indices and per-item view state.
func (c *Controller) JumpToStudyPart(s *Session, part int) error {
	if s.Phase != model.PhaseStudy {
		return ErrNotAllowed
	}
	if part < 1 || part > 3 {
		return fmt.Errorf("no study part %d", part)
	}
	s.StudyPart = part
	s.VideoIdx, s.CaptionIdx, s.ComparisonIdx, s.ChangeIdx = 0, 0, 0, 0
	s.clearViews()
	c.advanceStudy(s)
	return nil
}

// RestartQuiz zeroes the quiz indices and score and returns to the quiz,
// preserving participant identity.
func (c *Controller) RestartQuiz(s *Session) error {
	if s.Phase != model.PhaseQuiz && s.Phase != model.PhaseQuizResults {
		return ErrNotAllowed
	}
	s.Score = 0
	s.Awarded = make(map[string]bool)
	c.enterQuiz(s)
	return nil
}

func (c *Controller) enterQuiz(s *Session) {
	s.Phase = model.PhaseQuiz
	s.QuizPart, s.QuizItem, s.QuizSub = 0, 0, 0
	s.clearViews()
	c.normalizeQuiz(s)
}

// normalizeQuiz walks the indices forward past exhausted sub-questions,
// items and empty parts, moving to quiz results when every part is done.
// The phase transition fires exactly once because the walk stops at the
// first valid position.
func (c *Controller) normalizeQuiz(s *Session) {
	parts := c.catalog.QuizParts()
	for s.QuizPart < len(parts) {
		items := parts[s.QuizPart].Items
		if s.QuizItem >= len(items) {
			s.QuizPart++
			s.QuizItem, s.QuizSub = 0, 0
			continue
		}
		if s.QuizSub >= len(items[s.QuizItem].Questions) {
			s.QuizItem++
			s.QuizSub = 0
			continue
		}
		return
	}
	s.Phase = model.PhaseQuizResults
}

func (c *Controller) advanceStudyItem(s *Session) {
	delete(s.Views, s.itemKey())
	switch s.StudyPart {
	case 1:
		s.CaptionIdx++
	case 2:
		s.ComparisonIdx++
	case 3:
		s.ChangeIdx++
	}
	c.advanceStudy(s)
}

// advanceStudy normalizes the study indices: exhausted captions advance the
// video, exhausted parts advance to the next part, and finishing part 3
// completes the study.
func (c *Controller) advanceStudy(s *Session) {
	study := c.catalog.StudyParts()
	for {
		switch s.StudyPart {
		case 1:
			if s.VideoIdx >= len(study.Ratings) {
				s.StudyPart = 2
				s.ComparisonIdx = 0
				continue
			}
			if s.CaptionIdx >= len(study.Ratings[s.VideoIdx].Captions) {
				s.VideoIdx++
				s.CaptionIdx = 0
				continue
			}
			return
		case 2:
			if s.ComparisonIdx >= len(study.Comparisons) {
				s.StudyPart = 3
				s.ChangeIdx = 0
				continue
			}
			return
		case 3:
			if s.ChangeIdx >= len(study.Changes) {
				s.Phase = model.PhaseDone
			}
			return
		default:
			return
		}
	}
}

func (c *Controller) record(s *Session, item Item, prompt, choice, wasCorrect, attempts string) model.Response {
	videoID := item.Media.VideoID
	if videoID == "" {
		videoID = "N/A"
	}
	return model.Response{
		Email:         s.Participant.Email,
		Age:           s.Participant.Age,
		Gender:        s.Participant.Gender,
		Timestamp:     c.now().Format("2006-01-02 15:04:05"),
		StudyPhase:    item.PhaseLabel,
		VideoID:       videoID,
		SampleID:      item.SampleID,
		QuestionText:  model.StripMarkup(prompt),
		UserChoice:    choice,
		WasCorrect:    wasCorrect,
		AttemptsTaken: attempts,
	}
}
