package content

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roadtones/captionstudy/internal/model"
)

// Raw mirrors of the JSON content files. Part and trait order is meaningful
// (prompts reference "the first two tones"), so objects whose key order
// matters are decoded with a token walk instead of a plain map.

type rawQuizItem struct {
	SampleID          string            `json:"sample_id"`
	VideoID           string            `json:"video_id"`
	VideoPath         string            `json:"video_path"`
	VideoSummary      string            `json:"video_summary"`
	Caption           string            `json:"caption"`
	CaptionA          string            `json:"caption_A"`
	CaptionB          string            `json:"caption_B"`
	Category          string            `json:"category"`
	Options           []string          `json:"options"`
	CorrectAnswer     json.RawMessage   `json:"correct_answer"`
	QuestionType      string            `json:"question_type"`
	Explanation       string            `json:"explanation"`
	ToneToCompare     string            `json:"tone_to_compare"`
	ComparisonType    string            `json:"comparison_type"`
	Application       string            `json:"application"`
	Questions         []rawSubQuestion  `json:"questions"`
	RoadEventAnswer   string            `json:"road_event_answer"`
	DistractorAnswers []string          `json:"distractor_answers"`
	ControlScores     rawControlScores  `json:"control_scores"`
}

type rawSubQuestion struct {
	QuestionText  string          `json:"question_text"`
	Options       []string        `json:"options"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	QuestionType  string          `json:"question_type"`
	Explanation   string          `json:"explanation"`
}

type rawQuizPart struct {
	Name  string
	Items []rawQuizItem
}

type rawControlScores struct {
	Tone         json.RawMessage `json:"tone"`
	WritingStyle json.RawMessage `json:"writing_style"`
}

type rawStudyData struct {
	Part1Ratings []struct {
		VideoID           string           `json:"video_id"`
		VideoPath         string           `json:"video_path"`
		VideoSummary      string           `json:"video_summary"`
		RoadEventAnswer   string           `json:"road_event_answer"`
		DistractorAnswers []string         `json:"distractor_answers"`
		Captions          []rawRatedCaption `json:"captions"`
	} `json:"part1_ratings"`
	Part2Comparisons []struct {
		ComparisonID      string           `json:"comparison_id"`
		VideoID           string           `json:"video_id"`
		VideoPath         string           `json:"video_path"`
		VideoSummary      string           `json:"video_summary"`
		CaptionA          string           `json:"caption_A"`
		CaptionB          string           `json:"caption_B"`
		RoadEventAnswer   string           `json:"road_event_answer"`
		DistractorAnswers []string         `json:"distractor_answers"`
		ControlScores     rawControlScores `json:"control_scores"`
	} `json:"part2_comparisons"`
	Part3IntensityChange []struct {
		ChangeID          string            `json:"change_id"`
		VideoID           string            `json:"video_id"`
		VideoPath         string            `json:"video_path"`
		VideoSummary      string            `json:"video_summary"`
		CaptionA          string            `json:"caption_A"`
		CaptionB          string            `json:"caption_B"`
		FieldToChange     json.RawMessage   `json:"field_to_change"`
		ChangeType        string            `json:"change_type"`
		RoadEventAnswer   string            `json:"road_event_answer"`
		DistractorAnswers []string          `json:"distractor_answers"`
	} `json:"part3_intensity_change"`
}

type rawRatedCaption struct {
	CaptionID     string           `json:"caption_id"`
	Text          string           `json:"text"`
	Application   string           `json:"application"`
	ControlScores rawControlScores `json:"control_scores"`
}

type rawTemplate struct {
	ID             string                 `json:"id"`
	Text           string                 `json:"text"`
	DefaultText    string                 `json:"default_text"`
	DefaultOptions []string               `json:"default_options"`
	Overrides      map[string]rawOverride `json:"overrides"`
}

type rawOverride struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type rawQuestions struct {
	Part1 []rawTemplate     `json:"part1_questions"`
	Part2 []rawTemplate     `json:"part2_questions"`
	Part3 map[string]string `json:"part3_questions"`
}

type rawDefinitions struct {
	Tones         map[string]string `json:"tones"`
	WritingStyles map[string]string `json:"writing_styles"`
	Applications  map[string]string `json:"applications"`
}

// decodeQuizParts decodes the quiz file preserving part order. The file is a
// single JSON object mapping part name to its item list.
func decodeQuizParts(data []byte) ([]rawQuizPart, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("quiz data must be a JSON object, got %v", tok)
	}
	var parts []rawQuizPart
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := keyTok.(string)
		var items []rawQuizItem
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("part %q: %w", name, err)
		}
		parts = append(parts, rawQuizPart{Name: name, Items: items})
	}
	return parts, nil
}

// orderedKeys returns an object's keys in file order.
func orderedKeys(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}
	var keys []string
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil
		}
		if k, ok := keyTok.(string); ok {
			keys = append(keys, k)
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil
		}
	}
	return keys
}

// answerSet decodes a correct_answer that is either a string or a list.
func answerSet(raw json.RawMessage) []string {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var one string
	if err := json.Unmarshal(raw, &one); err == nil {
		return []string{one}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

func partKindFromName(name string) (PartKind, error) {
	switch {
	case strings.Contains(name, "Identification"):
		return PartIdentification, nil
	case strings.Contains(name, "Controllability"):
		return PartControllability, nil
	case strings.Contains(name, "Quality"):
		return PartQuality, nil
	}
	return "", fmt.Errorf("quiz part %q has no recognizable kind", name)
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func resolveQuizParts(dir string, parts []rawQuizPart) ([]QuizPart, error) {
	var out []QuizPart
	for _, rp := range parts {
		kind, err := partKindFromName(rp.Name)
		if err != nil {
			return nil, err
		}
		part := QuizPart{Name: rp.Name, Kind: kind}
		if len(rp.Items) == 0 {
			slog.Warn("quiz part has no items", "part", rp.Name)
		}
		for i, ri := range rp.Items {
			item, err := resolveQuizItem(dir, kind, ri)
			if err != nil {
				return nil, fmt.Errorf("quiz part %q item %d: %w", rp.Name, i, err)
			}
			part.Items = append(part.Items, item)
		}
		out = append(out, part)
	}
	return out, nil
}

func resolveQuizItem(dir string, kind PartKind, ri rawQuizItem) (QuizItem, error) {
	media, err := loadMedia(dir, ri.VideoID, ri.VideoPath)
	if err != nil {
		return QuizItem{}, err
	}
	item := QuizItem{
		SampleID:      ri.SampleID,
		Media:         media,
		Summary:       ri.VideoSummary,
		Comprehension: comprehension(ri.RoadEventAnswer, ri.DistractorAnswers),
	}
	category := ri.Category
	if category == "" {
		category = "tone"
	}

	switch kind {
	case PartIdentification:
		item.Title = titleCase(category) + " Identification"
		item.Captions = []string{ri.Caption}
		q := model.Question{
			ID:          ri.SampleID + "_identify",
			Kind:        model.KindSingle,
			Options:     ri.Options,
			Correct:     answerSet(ri.CorrectAnswer),
			Explanation: ri.Explanation,
		}
		if ri.QuestionType == "multi" {
			q.Kind = model.KindMultiTwo
		}
		switch strings.ToLower(category) {
		case "tone":
			q.Prompt = "What is the most dominant tone in the caption?"
		case "style":
			q.Prompt = "What is the most dominant style in the caption?"
		default:
			q.Prompt = fmt.Sprintf("Identify the most dominant %s in the caption", strings.ToLower(category))
		}
		if len(q.Correct) == 0 {
			return QuizItem{}, fmt.Errorf("sample %s: scored question without correct answer", ri.SampleID)
		}
		item.Questions = []model.Question{q}
		item.Traits = append(item.Traits, ri.Options...)

	case PartControllability:
		item.Title = titleCase(category) + " Comparison"
		item.Captions = []string{ri.CaptionA, ri.CaptionB}
		change := ri.ComparisonType
		if change == "" {
			change = "changed"
		}
		options := ri.Options
		if len(options) == 0 {
			options = []string{"Yes", "No"}
		}
		q := model.Question{
			ID:          ri.SampleID + "_compare",
			Kind:        model.KindSingle,
			Prompt:      fmt.Sprintf("From Caption A to B, has the level of %s %s?", model.Highlight(ri.ToneToCompare), change),
			Options:     options,
			Correct:     answerSet(ri.CorrectAnswer),
			Explanation: ri.Explanation,
		}
		if len(q.Correct) == 0 {
			return QuizItem{}, fmt.Errorf("sample %s: scored question without correct answer", ri.SampleID)
		}
		item.Questions = []model.Question{q}
		if ri.ToneToCompare != "" {
			item.Traits = append(item.Traits, ri.ToneToCompare)
		}

	case PartQuality:
		item.Title = "Caption Quality Rating"
		item.Captions = []string{ri.Caption}
		for j, sq := range ri.Questions {
			prompt := sq.QuestionText
			if ri.Application != "" {
				prompt = strings.ReplaceAll(prompt, "{}", model.Highlight(ri.Application))
			}
			q := model.Question{
				ID:          fmt.Sprintf("%s_q%d", ri.SampleID, j+1),
				Kind:        model.KindSingle,
				Prompt:      prompt,
				Options:     sq.Options,
				Correct:     answerSet(sq.CorrectAnswer),
				Explanation: sq.Explanation,
			}
			if sq.QuestionType == "multi" {
				q.Kind = model.KindMultiTwo
			}
			if len(q.Correct) == 0 {
				return QuizItem{}, fmt.Errorf("sample %s question %d: scored question without correct answer", ri.SampleID, j+1)
			}
			item.Questions = append(item.Questions, q)
		}
		if ri.Application != "" {
			item.Traits = append(item.Traits, ri.Application)
		}
	}
	return item, nil
}
