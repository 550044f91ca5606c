// Package content loads and validates the immutable study catalog: quiz
// parts, study parts, question templates, trait definitions and tutorial
// instructions. Question templates are resolved into fully-specified prompts
// here, once, so nothing downstream formats templates at render time.
package content

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roadtones/captionstudy/internal/model"
)

// File names expected inside the content directory.
const (
	studyDataFile    = "study_data.json"
	quizDataFile     = "quiz_data.json"
	questionsFile    = "questions.json"
	definitionsFile  = "definitions.json"
	instructionsFile = "instructions.json"
)

// defaultDuration is used when a video file cannot be probed.
const defaultDuration = 10

// PartKind tags a part with its question style.
type PartKind string

const (
	PartIdentification  PartKind = "identification"
	PartControllability PartKind = "controllability"
	PartQuality         PartKind = "quality"
)

// LoadError is a fatal content problem; the caller must halt rather than run
// with a partial catalog.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load %s: %v", e.Path, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// QuizItem is one screening-quiz sample with its resolved questions.
type QuizItem struct {
	SampleID      string
	Media         model.Media
	Summary       string
	Captions      []string // one caption, or A/B pair
	Comprehension *model.Comprehension
	Questions     []model.Question
	Traits        []string
	Title         string
}

// QuizPart is an ordered group of quiz items sharing a question style.
type QuizPart struct {
	Name  string
	Kind  PartKind
	Items []QuizItem
}

// RatedCaption is one caption of a part-1 video with its five rating
// questions.
type RatedCaption struct {
	CaptionID string
	Text      string
	Questions []model.Question
	Traits    []string
}

// RatedVideo is a part-1 item: one video carrying several captions.
type RatedVideo struct {
	Media         model.Media
	Summary       string
	Comprehension *model.Comprehension
	Captions      []RatedCaption
}

// ComparisonItem is a part-2 pairwise comparison.
type ComparisonItem struct {
	ComparisonID  string
	Media         model.Media
	Summary       string
	Comprehension *model.Comprehension
	CaptionA      string
	CaptionB      string
	Questions     []model.Question
	Traits        []string
}

// ChangeItem is a part-3 intensity-change judgement.
type ChangeItem struct {
	ChangeID      string
	Media         model.Media
	Summary       string
	Comprehension *model.Comprehension
	CaptionA      string
	CaptionB      string
	Category      string
	Trait         string
	ChangeType    string
	Questions     []model.Question
	Traits        []string
}

// StudyParts holds the three main-study parts in their fixed order.
type StudyParts struct {
	Ratings     []RatedVideo
	Comparisons []ComparisonItem
	Changes     []ChangeItem
}

// TutorialScreen is one informational screen shown before the quiz.
type TutorialScreen struct {
	Title     string   `json:"title"`
	Body      []string `json:"body"`
	VideoPath string   `json:"video_path"`
	ImagePath string   `json:"image_path"`
}

// Instructions carries intro and tutorial material.
type Instructions struct {
	IntroVideoPath  string         `json:"intro_video_path"`
	ToneTutorial    TutorialScreen `json:"tone_tutorial"`
	FactualTutorial TutorialScreen `json:"factual_tutorial"`
}

// Catalog is the read-only content store. Created once at startup, never
// mutated afterwards.
type Catalog struct {
	quiz         []QuizPart
	study        StudyParts
	definitions  map[string]string
	instructions Instructions
}

func (c *Catalog) QuizParts() []QuizPart          { return c.quiz }
func (c *Catalog) StudyParts() StudyParts         { return c.study }
func (c *Catalog) Definitions() map[string]string { return c.definitions }
func (c *Catalog) Instructions() Instructions     { return c.instructions }

// TotalScorableQuizQuestions counts one per quiz sub-question: quality items
// contribute one per bundled question, everything else one per item.
func (c *Catalog) TotalScorableQuizQuestions() int {
	total := 0
	for _, part := range c.quiz {
		for _, item := range part.Items {
			total += len(item.Questions)
		}
	}
	return total
}

// Definition resolves a trait name against the flattened definitions map.
func (c *Catalog) Definition(term string) string {
	if d, ok := c.definitions[term]; ok {
		return d
	}
	return "Definition not found."
}

// Load reads and validates the full catalog from dir. Any missing file,
// malformed JSON or missing referenced media is fatal.
func Load(dir string) (*Catalog, error) {
	var raw struct {
		study        rawStudyData
		quiz         []rawQuizPart
		questions    rawQuestions
		definitions  rawDefinitions
		instructions Instructions
	}

	if err := readJSON(filepath.Join(dir, studyDataFile), &raw.study); err != nil {
		return nil, err
	}
	quizPath := filepath.Join(dir, quizDataFile)
	quizData, err := os.ReadFile(quizPath)
	if err != nil {
		return nil, &LoadError{Path: quizPath, Err: err}
	}
	raw.quiz, err = decodeQuizParts(quizData)
	if err != nil {
		return nil, &LoadError{Path: quizPath, Err: err}
	}
	if err := readJSON(filepath.Join(dir, questionsFile), &raw.questions); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, definitionsFile), &raw.definitions); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, instructionsFile), &raw.instructions); err != nil {
		return nil, err
	}

	c := &Catalog{
		definitions:  flattenDefinitions(raw.definitions),
		instructions: raw.instructions,
	}

	if err := validateMedia(dir, raw.instructions); err != nil {
		return nil, err
	}

	c.quiz, err = resolveQuizParts(dir, raw.quiz)
	if err != nil {
		return nil, err
	}
	c.study, err = resolveStudyParts(dir, raw.study, raw.questions)
	if err != nil {
		return nil, err
	}

	slog.Info("content loaded",
		"quiz_parts", len(c.quiz),
		"scorable_questions", c.TotalScorableQuizQuestions(),
		"rating_videos", len(c.study.Ratings),
		"comparisons", len(c.study.Comparisons),
		"changes", len(c.study.Changes),
		"definitions", len(c.definitions),
	)
	return c, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &LoadError{Path: path, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &LoadError{Path: path, Err: err}
	}
	return nil
}

func validateMedia(dir string, ins Instructions) error {
	paths := []string{ins.IntroVideoPath, ins.ToneTutorial.VideoPath,
		ins.ToneTutorial.ImagePath, ins.FactualTutorial.VideoPath,
		ins.FactualTutorial.ImagePath}
	for _, p := range paths {
		if p == "" {
			continue
		}
		full := filepath.Join(dir, p)
		if _, err := os.Stat(full); err != nil {
			return &LoadError{Path: full, Err: err}
		}
	}
	return nil
}

// loadMedia checks the video exists and probes its duration and orientation.
// A probe failure is expected variability and falls back to defaults; a
// missing file is fatal.
func loadMedia(dir, videoID, videoPath string) (model.Media, error) {
	full := filepath.Join(dir, videoPath)
	if _, err := os.Stat(full); err != nil {
		return model.Media{}, &LoadError{Path: full, Err: err}
	}
	m := model.Media{
		VideoID:     videoID,
		Path:        videoPath,
		Duration:    defaultDuration,
		Orientation: "landscape",
	}
	meta, err := probeVideo(full)
	if err != nil {
		slog.Warn("could not probe video, using defaults", "path", full, "error", err)
		return m, nil
	}
	if meta.duration > 0 {
		m.Duration = meta.duration
	}
	if meta.height > meta.width && meta.width > 0 {
		m.Orientation = "portrait"
	}
	return m, nil
}

func flattenDefinitions(raw rawDefinitions) map[string]string {
	flat := make(map[string]string)
	for _, group := range []map[string]string{raw.Tones, raw.WritingStyles, raw.Applications} {
		for k, v := range group {
			flat[k] = v
		}
	}
	return flat
}

func comprehension(correct string, distractors []string) *model.Comprehension {
	if correct == "" || len(distractors) == 0 {
		return nil
	}
	return &model.Comprehension{Correct: correct, Distractors: distractors}
}

// formatTraits joins highlighted trait names the way prompts embed them.
func formatTraits(traits []string) string {
	var hl []string
	for _, t := range traits {
		if t != "" {
			hl = append(hl, model.Highlight(t))
		}
	}
	return strings.Join(hl, " and ")
}
