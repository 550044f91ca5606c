package handler

import (
	"context"
	"strconv"

	"github.com/roadtones/captionstudy/internal/content"
	"github.com/roadtones/captionstudy/internal/flow"
	"github.com/roadtones/captionstudy/internal/i18n"
	"github.com/roadtones/captionstudy/internal/model"
)

// Screen is the full render state for the client. Exactly one of the
// phase-specific blocks is set.
type Screen struct {
	Phase     string `json:"phase"`
	Title     string `json:"title"`
	StudyPart int    `json:"study_part,omitempty"`

	Intake   *intakeView             `json:"intake,omitempty"`
	Intro    *introView              `json:"intro,omitempty"`
	Tutorial *content.TutorialScreen `json:"tutorial,omitempty"`
	Item     *itemView               `json:"item,omitempty"`
	Results  *resultsView            `json:"results,omitempty"`
	Message  string                  `json:"message,omitempty"`

	QuizParts []string `json:"quiz_parts,omitempty"`
}

type intakeView struct {
	Title        string `json:"title"`
	ConsentLabel string `json:"consent_label"`
}

type introView struct {
	Body     string `json:"body"`
	VideoURL string `json:"video_url,omitempty"`
}

type comprehensionView struct {
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	Answered      bool     `json:"answered"`
	Choice        string   `json:"choice,omitempty"`
	CorrectAnswer string   `json:"correct_answer,omitempty"` // revealed after answering
}

type questionView struct {
	ID         string   `json:"id"`
	Prompt     string   `json:"prompt"`
	Options    []string `json:"options"`
	Multi      bool     `json:"multi"`
	Interacted bool     `json:"interacted"`
}

type feedbackView struct {
	Message        string   `json:"message"`
	Correct        bool     `json:"correct"`
	Choices        []string `json:"choices"`
	CorrectAnswers []string `json:"correct_answers"`
	Explanation    string   `json:"explanation,omitempty"`
}

type itemView struct {
	SampleID      string             `json:"sample_id"`
	Title         string             `json:"title"`
	PhaseLabel    string             `json:"phase_label"`
	Step          string             `json:"step"`
	VideoURL      string             `json:"video_url"`
	VideoDuration int                `json:"video_duration"`
	Orientation   string             `json:"orientation"`
	VideoDone     bool               `json:"video_done"`
	Summary       string             `json:"summary,omitempty"`
	TypeSummary   bool               `json:"type_summary"`
	Comprehension *comprehensionView `json:"comprehension,omitempty"`
	Captions      []string           `json:"captions,omitempty"`
	CaptionIndex  int                `json:"caption_index,omitempty"`
	CaptionTotal  int                `json:"caption_total,omitempty"`
	Questions     []questionView     `json:"questions,omitempty"`
	Feedback      *feedbackView      `json:"feedback,omitempty"`
	Definitions   map[string]string  `json:"definitions,omitempty"`
}

type resultsView struct {
	Score   int    `json:"score"`
	Total   int    `json:"total"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

func (h *Handler) buildScreen(ctx context.Context, s *flow.Session) Screen {
	screen := Screen{
		Phase: string(s.Phase),
		Title: i18n.T(ctx, "AppTitle"),
	}
	ins := h.catalog.Instructions()

	switch s.Phase {
	case model.PhaseDemographics:
		screen.Intake = &intakeView{
			Title:        i18n.T(ctx, "IntakeTitle"),
			ConsentLabel: i18n.T(ctx, "ConsentLabel"),
		}
	case model.PhaseIntroVideo:
		screen.Title = i18n.T(ctx, "IntroTitle")
		screen.Intro = &introView{
			Body:     i18n.T(ctx, "IntroBody"),
			VideoURL: mediaURL(ins.IntroVideoPath),
		}
	case model.PhaseTutorialTone:
		screen.Tutorial = &ins.ToneTutorial
	case model.PhaseTutorialFactual:
		screen.Tutorial = &ins.FactualTutorial
	case model.PhaseQuiz:
		screen.Title = i18n.T(ctx, "QuizTitle")
		screen.Message = i18n.Tp(ctx, "QuizIntro", h.catalog.TotalScorableQuizQuestions())
		screen.Item = h.buildItem(ctx, s)
		for _, p := range h.catalog.QuizParts() {
			screen.QuizParts = append(screen.QuizParts, p.Name)
		}
	case model.PhaseQuizResults:
		screen.Title = i18n.T(ctx, "ResultsTitle")
		score, total, passed := h.ctrl.Results(s)
		msg := i18n.T(ctx, "QuizPassed")
		if !passed {
			msg = i18n.Td(ctx, "QuizFailed", map[string]any{"Threshold": h.ctrl.PassThreshold()})
		}
		screen.Results = &resultsView{
			Score:   score,
			Total:   total,
			Passed:  passed,
			Message: i18n.Td(ctx, "ResultsScore", map[string]any{"Score": score, "Total": total}) + " " + msg,
		}
	case model.PhaseStudy:
		screen.Title = i18n.T(ctx, "StudyPart"+strconv.Itoa(s.StudyPart)+"Title")
		screen.StudyPart = s.StudyPart
		screen.Item = h.buildItem(ctx, s)
	case model.PhaseDone:
		screen.Message = i18n.T(ctx, "ThankYou")
	}
	return screen
}

// buildItem renders the active item according to its reveal step: the
// summary appears from the summary step on, captions from the content step,
// and questions only at the question step, progressively.
func (h *Handler) buildItem(ctx context.Context, s *flow.Session) *itemView {
	item, ok := h.ctrl.Current(s)
	if !ok {
		return nil
	}
	view := h.ctrl.View(s)

	iv := &itemView{
		SampleID:      item.SampleID,
		Title:         item.Title,
		PhaseLabel:    item.PhaseLabel,
		Step:          view.Step.String(),
		VideoURL:      mediaURL(item.Media.Path),
		VideoDuration: item.Media.Duration,
		Orientation:   item.Media.Orientation,
		VideoDone:     view.VideoDone,
		CaptionIndex:  item.CaptionIndex,
		CaptionTotal:  item.CaptionTotal,
	}

	if view.Step >= model.StepSummary && view.SummaryRevealed {
		iv.Summary = item.Summary
		// Typing animation plays on the first reveal only; afterwards the
		// summary renders statically.
		if !view.SummaryTyped {
			iv.TypeSummary = true
			view.SummaryTyped = true
		}
	}

	if view.Step == model.StepComprehension {
		cv := &comprehensionView{
			Prompt:   i18n.T(ctx, "ComprehensionPrompt"),
			Options:  view.CompOptions,
			Answered: view.CompAnswered,
		}
		if view.CompAnswered {
			cv.Choice = view.CompChoice
			cv.CorrectAnswer = item.Comprehension.Correct
		}
		iv.Comprehension = cv
	}

	if view.Step >= model.StepContent {
		iv.Captions = item.Captions
	}

	if view.Step == model.StepQuestions {
		for _, q := range h.ctrl.VisibleQuestions(s) {
			iv.Questions = append(iv.Questions, questionView{
				ID:         q.ID,
				Prompt:     q.Prompt,
				Options:    q.Options,
				Multi:      q.Kind == model.KindMultiTwo,
				Interacted: view.Interacted[q.ID],
			})
		}
		if fb := view.Feedback; fb != nil {
			msg := i18n.T(ctx, "CorrectFeedback")
			if !fb.Correct {
				msg = i18n.T(ctx, "IncorrectFeedback")
			}
			iv.Feedback = &feedbackView{
				Message:        msg,
				Correct:        fb.Correct,
				Choices:        fb.Choices,
				CorrectAnswers: fb.CorrectAnswers,
				Explanation:    fb.Explanation,
			}
		}
	}

	if len(item.Traits) > 0 {
		defs := make(map[string]string, len(item.Traits))
		for _, trait := range item.Traits {
			if trait == "" {
				continue
			}
			defs[trait] = h.catalog.Definition(trait)
		}
		iv.Definitions = defs
	}
	return iv
}

func mediaURL(path string) string {
	if path == "" {
		return ""
	}
	return "/media/" + path
}
