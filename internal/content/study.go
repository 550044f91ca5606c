package content

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roadtones/captionstudy/internal/model"
)

// Fixed ordinal scales per rating category. A style template override may
// replace the style scale for specific traits.
var baseOptions = map[string][]string{
	"tone_relevance":      {"Not at all", "Weak", "Moderate", "Strong", "Very Strong"},
	"factual_consistency": {"Contradicts", "Inaccurate", "Partially", "Mostly Accurate", "Accurate"},
	"usefulness":          {"Not at all", "Slightly", "Moderately", "Very", "Extremely"},
	"human_likeness":      {"Robotic", "Unnatural", "Moderate", "Very Human-like", "Natural"},
}

var comparisonOptions = []string{"Caption A", "Caption B", "Both Equal / Neither", "Cannot Determine"}

var yesNoOptions = []string{"Yes", "No"}

const factualConsistencyPrompt = "Is the core factual content consistent across both captions?"

func resolveStudyParts(dir string, raw rawStudyData, questions rawQuestions) (StudyParts, error) {
	var out StudyParts

	for i, rv := range raw.Part1Ratings {
		media, err := loadMedia(dir, rv.VideoID, rv.VideoPath)
		if err != nil {
			return out, fmt.Errorf("part1 video %d: %w", i, err)
		}
		video := RatedVideo{
			Media:         media,
			Summary:       rv.VideoSummary,
			Comprehension: comprehension(rv.RoadEventAnswer, rv.DistractorAnswers),
		}
		for _, rc := range rv.Captions {
			video.Captions = append(video.Captions, resolveRatedCaption(rc, questions.Part1))
		}
		if len(video.Captions) == 0 {
			slog.Warn("part1 video has no captions", "video_id", rv.VideoID)
		}
		out.Ratings = append(out.Ratings, video)
	}

	for i, rc := range raw.Part2Comparisons {
		media, err := loadMedia(dir, rc.VideoID, rc.VideoPath)
		if err != nil {
			return out, fmt.Errorf("part2 comparison %d: %w", i, err)
		}
		item := ComparisonItem{
			ComparisonID:  rc.ComparisonID,
			Media:         media,
			Summary:       rc.VideoSummary,
			Comprehension: comprehension(rc.RoadEventAnswer, rc.DistractorAnswers),
			CaptionA:      rc.CaptionA,
			CaptionB:      rc.CaptionB,
		}
		toneTraits := orderedKeys(rc.ControlScores.Tone)
		styleTraits := orderedKeys(rc.ControlScores.WritingStyle)
		item.Questions = resolveComparisonQuestions(questions.Part2, toneTraits, styleTraits)
		item.Traits = append(append(item.Traits, toneTraits...), styleTraits...)
		out.Comparisons = append(out.Comparisons, item)
	}

	for i, rch := range raw.Part3IntensityChange {
		fields := orderedKeys(rch.FieldToChange)
		if len(fields) == 0 {
			slog.Warn("skipping intensity-change item with no field_to_change", "change_id", rch.ChangeID)
			continue
		}
		media, err := loadMedia(dir, rch.VideoID, rch.VideoPath)
		if err != nil {
			return out, fmt.Errorf("part3 change %d: %w", i, err)
		}
		var fieldValues map[string]string
		_ = json.Unmarshal(rch.FieldToChange, &fieldValues)

		category := fields[0]
		item := ChangeItem{
			ChangeID:      rch.ChangeID,
			Media:         media,
			Summary:       rch.VideoSummary,
			Comprehension: comprehension(rch.RoadEventAnswer, rch.DistractorAnswers),
			CaptionA:      rch.CaptionA,
			CaptionB:      rch.CaptionB,
			Category:      category,
			Trait:         fieldValues[category],
			ChangeType:    rch.ChangeType,
		}
		item.Questions = resolveChangeQuestions(item, questions.Part3)
		if item.Trait != "" {
			item.Traits = append(item.Traits, item.Trait)
		}
		out.Changes = append(out.Changes, item)
	}

	return out, nil
}

func templateByID(templates []rawTemplate, id string) (rawTemplate, bool) {
	for _, t := range templates {
		if t.ID == id {
			return t, true
		}
	}
	return rawTemplate{}, false
}

func templateText(templates []rawTemplate, id, fallback string) string {
	if t, ok := templateByID(templates, id); ok && t.Text != "" {
		return t.Text
	}
	return fallback
}

// resolveRatedCaption builds the five part-1 rating questions for one
// caption: tone, style (with per-trait override), factual consistency,
// usefulness for the application, human-likeness.
func resolveRatedCaption(rc rawRatedCaption, templates []rawTemplate) RatedCaption {
	toneTraits := orderedKeys(rc.ControlScores.Tone)
	if len(toneTraits) > 2 {
		toneTraits = toneTraits[:2]
	}
	styleTraits := orderedKeys(rc.ControlScores.WritingStyle)
	mainStyle := ""
	if len(styleTraits) > 0 {
		mainStyle = styleTraits[0]
	}
	application := rc.Application
	if application == "" {
		application = "the intended application"
	}

	styleCfg, _ := templateByID(templates, "style_relevance")
	styleDefaultText := styleCfg.DefaultText
	if styleDefaultText == "" {
		styleDefaultText = "How {} is the caption's style?"
	}
	styleOptions := styleCfg.DefaultOptions
	if len(styleOptions) == 0 {
		styleOptions = []string{"Not at all", "Weak", "Moderate", "Strong", "Very Strong"}
	}
	override, hasOverride := styleCfg.Overrides[mainStyle]
	styleText := styleDefaultText
	if hasOverride && override.Text != "" {
		styleText = override.Text
	}
	if hasOverride && len(override.Options) > 0 {
		styleOptions = override.Options
	}
	// Overrides without a placeholder are complete sentences; otherwise the
	// default template is filled with the highlighted style name.
	var stylePrompt string
	if hasOverride && !strings.Contains(styleText, "{}") {
		stylePrompt = styleText
	} else {
		stylePrompt = strings.ReplaceAll(styleDefaultText, "{}", formatTraits([]string{mainStyle}))
	}

	tonePrompt := strings.ReplaceAll(
		templateText(templates, "tone_relevance", "How {} does the caption sound?"),
		"{}", formatTraits(toneTraits))
	factPrompt := templateText(templates, "factual_consistency", "How factually accurate is the caption?")
	usefulPrompt := strings.ReplaceAll(
		templateText(templates, "usefulness", "How useful is this caption for {}?"),
		"{}", model.Highlight(application))
	humanPrompt := templateText(templates, "human_likeness", "How human-like does this caption sound?")

	ordinal := func(id, prompt string, options []string) model.Question {
		return model.Question{ID: id, Kind: model.KindOrdinal, Prompt: prompt, Options: options}
	}

	caption := RatedCaption{
		CaptionID: rc.CaptionID,
		Text:      rc.Text,
		Questions: []model.Question{
			ordinal("tone_relevance", tonePrompt, baseOptions["tone_relevance"]),
			ordinal("style_relevance", stylePrompt, styleOptions),
			ordinal("factual_consistency", factPrompt, baseOptions["factual_consistency"]),
			ordinal("usefulness", usefulPrompt, baseOptions["usefulness"]),
			ordinal("human_likeness", humanPrompt, baseOptions["human_likeness"]),
		},
	}
	caption.Traits = append(caption.Traits, toneTraits...)
	caption.Traits = append(caption.Traits, rc.Application)
	if mainStyle != "" {
		caption.Traits = append(caption.Traits, mainStyle)
	}
	return caption
}

func resolveComparisonQuestions(templates []rawTemplate, toneTraits, styleTraits []string) []model.Question {
	mainStyle := ""
	if len(styleTraits) > 0 {
		mainStyle = styleTraits[0]
	}
	var out []model.Question
	for _, t := range templates {
		var prompt string
		switch t.ID {
		case "q2_style":
			text := t.DefaultText
			if text == "" {
				text = "Which caption's style is more {}?"
			}
			if override, ok := t.Overrides[mainStyle]; ok && override.Text != "" {
				text = override.Text
			}
			if strings.Contains(text, "{}") {
				prompt = strings.ReplaceAll(text, "{}", formatTraits(styleTraits))
			} else {
				prompt = text
			}
		case "q1_tone":
			prompt = strings.ReplaceAll(t.Text, "{}", formatTraits(toneTraits))
		default:
			prompt = t.Text
		}
		out = append(out, model.Question{
			ID:      t.ID,
			Kind:    model.KindOrdinal,
			Prompt:  prompt,
			Options: comparisonOptions,
		})
	}
	return out
}

func resolveChangeQuestions(item ChangeItem, templates map[string]string) []model.Question {
	key := titleCase(item.Category)
	if item.Category == "writing_style" {
		key = "Style"
	}
	tmpl, ok := templates[key]
	if !ok {
		tmpl = "Has the intensity of {} {change_type} from Caption A to B?"
	}
	trait := "the trait"
	if item.Trait != "" {
		trait = model.Highlight(item.Trait)
	}
	change := item.ChangeType
	if change == "" {
		change = "changed"
	}
	prompt := strings.ReplaceAll(tmpl, "{}", trait)
	prompt = strings.ReplaceAll(prompt, "{change_type}", change)

	return []model.Question{
		{ID: item.ChangeID + "_q1", Kind: model.KindOrdinal, Prompt: prompt, Options: yesNoOptions},
		{ID: item.ChangeID + "_q2", Kind: model.KindOrdinal, Prompt: factualConsistencyPrompt, Options: yesNoOptions},
	}
}
