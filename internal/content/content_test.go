package content

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roadtones/captionstudy/internal/model"
)

func loadTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load(filepath.Join("testdata", "content"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

func TestLoadQuizParts(t *testing.T) {
	c := loadTestCatalog(t)

	parts := c.QuizParts()
	if len(parts) != 3 {
		t.Fatalf("expected 3 quiz parts, got %d", len(parts))
	}
	wantKinds := []PartKind{PartIdentification, PartControllability, PartQuality}
	for i, part := range parts {
		if part.Kind != wantKinds[i] {
			t.Errorf("part %d: kind = %q, want %q", i, part.Kind, wantKinds[i])
		}
	}

	ident := parts[0].Items
	if len(ident) != 2 {
		t.Fatalf("identification items = %d, want 2", len(ident))
	}
	if got := ident[0].Questions[0].Kind; got != model.KindSingle {
		t.Errorf("first identification question kind = %q, want single", got)
	}
	if got := ident[1].Questions[0].Kind; got != model.KindMultiTwo {
		t.Errorf("multi identification question kind = %q, want multi_two", got)
	}
	if got := len(ident[1].Questions[0].Correct); got != 2 {
		t.Errorf("multi question correct set size = %d, want 2", got)
	}

	ctrl := parts[1].Items[0]
	prompt := ctrl.Questions[0].Prompt
	if !strings.Contains(prompt, "urgency") || !strings.Contains(prompt, "increased") {
		t.Errorf("controllability prompt missing trait or change type: %q", prompt)
	}

	quality := parts[2].Items[0]
	if len(quality.Questions) != 2 {
		t.Fatalf("quality questions = %d, want 2", len(quality.Questions))
	}
	if !strings.Contains(quality.Questions[1].Prompt, "driver assistance") {
		t.Errorf("application placeholder not substituted: %q", quality.Questions[1].Prompt)
	}

	if got := c.TotalScorableQuizQuestions(); got != 5 {
		t.Errorf("TotalScorableQuizQuestions = %d, want 5", got)
	}
}

func TestLoadStudyPartOne(t *testing.T) {
	c := loadTestCatalog(t)

	ratings := c.StudyParts().Ratings
	if len(ratings) != 1 {
		t.Fatalf("part1 videos = %d, want 1", len(ratings))
	}
	captions := ratings[0].Captions
	if len(captions) != 2 {
		t.Fatalf("captions = %d, want 2", len(captions))
	}

	first := captions[0]
	if len(first.Questions) != 5 {
		t.Fatalf("rating questions = %d, want 5", len(first.Questions))
	}
	wantIDs := []string{"tone_relevance", "style_relevance", "factual_consistency", "usefulness", "human_likeness"}
	for i, q := range first.Questions {
		if q.ID != wantIDs[i] {
			t.Errorf("question %d: id = %q, want %q", i, q.ID, wantIDs[i])
		}
		if q.Kind != model.KindOrdinal {
			t.Errorf("question %q: kind = %q, want ordinal", q.ID, q.Kind)
		}
		if q.Scored() {
			t.Errorf("question %q must not be scored", q.ID)
		}
	}

	// The tone prompt carries the first two traits in file order.
	tone := first.Questions[0].Prompt
	if !strings.Contains(tone, "calm") || !strings.Contains(tone, "urgent") {
		t.Errorf("tone prompt missing first two traits: %q", tone)
	}
	if strings.Contains(tone, "formal") {
		t.Errorf("tone prompt must not carry the third trait: %q", tone)
	}

	// The second caption's style is "poetic", which has a full-sentence
	// override with its own scale.
	stylized := captions[1].Questions[1]
	if stylized.Prompt != "Does the caption read like poetry?" {
		t.Errorf("style override not applied: %q", stylized.Prompt)
	}
	if stylized.Options[4] != "Completely" {
		t.Errorf("style override options not applied: %v", stylized.Options)
	}
}

func TestLoadStudyPartTwo(t *testing.T) {
	c := loadTestCatalog(t)

	comparisons := c.StudyParts().Comparisons
	if len(comparisons) != 1 {
		t.Fatalf("comparisons = %d, want 1", len(comparisons))
	}
	questions := comparisons[0].Questions
	if len(questions) != 4 {
		t.Fatalf("comparison questions = %d, want 4", len(questions))
	}
	if !strings.Contains(questions[0].Prompt, "urgent") || !strings.Contains(questions[0].Prompt, "polite") {
		t.Errorf("tone comparison prompt missing traits: %q", questions[0].Prompt)
	}
	for _, q := range questions {
		if len(q.Options) != 4 || q.Options[0] != "Caption A" {
			t.Errorf("question %q: unexpected options %v", q.ID, q.Options)
		}
	}
}

func TestLoadStudyPartThree(t *testing.T) {
	c := loadTestCatalog(t)

	changes := c.StudyParts().Changes
	if len(changes) != 1 {
		t.Fatalf("changes = %d, want 1 (empty field_to_change item skipped)", len(changes))
	}
	item := changes[0]
	if item.Category != "tone" || item.Trait != "urgency" {
		t.Errorf("category/trait = %q/%q, want tone/urgency", item.Category, item.Trait)
	}
	if len(item.Questions) != 2 {
		t.Fatalf("change questions = %d, want 2", len(item.Questions))
	}
	q1 := item.Questions[0]
	if !strings.Contains(q1.Prompt, "urgency") || !strings.Contains(q1.Prompt, "increased") {
		t.Errorf("change prompt missing substitutions: %q", q1.Prompt)
	}
	if item.Questions[1].Prompt != factualConsistencyPrompt {
		t.Errorf("second question = %q", item.Questions[1].Prompt)
	}
}

func TestLoadMediaDefaults(t *testing.T) {
	c := loadTestCatalog(t)

	// Fixture videos are not real MP4s; the probe fails and defaults apply.
	media := c.QuizParts()[0].Items[0].Media
	if media.Duration != defaultDuration {
		t.Errorf("duration = %d, want default %d", media.Duration, defaultDuration)
	}
	if media.Orientation != "landscape" {
		t.Errorf("orientation = %q, want landscape", media.Orientation)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(t.TempDir())
	if err == nil {
		t.Fatal("expected error for empty content dir")
	}
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected LoadError, got %T: %v", err, err)
	}
}

func TestDefinitionLookup(t *testing.T) {
	c := loadTestCatalog(t)

	if got := c.Definition("poetic"); !strings.Contains(got, "Figurative") {
		t.Errorf("Definition(poetic) = %q", got)
	}
	if got := c.Definition("nonexistent"); got != "Definition not found." {
		t.Errorf("Definition fallback = %q", got)
	}
}

func TestOrderedKeys(t *testing.T) {
	keys := orderedKeys([]byte(`{"zebra": 1, "apple": 2, "mango": 3}`))
	want := []string{"zebra", "apple", "mango"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}
}

func mp4Box(typ string, body []byte) []byte {
	out := make([]byte, 8, 8+len(body))
	binary.BigEndian.PutUint32(out[:4], uint32(8+len(body)))
	copy(out[4:8], typ)
	return append(out, body...)
}

func TestProbeVideo(t *testing.T) {
	mvhd := make([]byte, 20)
	binary.BigEndian.PutUint32(mvhd[12:16], 600)  // timescale
	binary.BigEndian.PutUint32(mvhd[16:20], 7500) // duration: 12.5s, rounds up
	tkhd := make([]byte, 84)
	binary.BigEndian.PutUint32(tkhd[76:80], 720<<16)
	binary.BigEndian.PutUint32(tkhd[80:84], 1280<<16)
	moov := mp4Box("moov", append(mp4Box("mvhd", mvhd), mp4Box("trak", mp4Box("tkhd", tkhd))...))
	data := append(mp4Box("ftyp", []byte("isom")), moov...)

	path := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	meta, err := probeVideo(path)
	if err != nil {
		t.Fatalf("probeVideo: %v", err)
	}
	if meta.duration != 13 {
		t.Errorf("duration = %d, want 13", meta.duration)
	}
	if meta.width != 720 || meta.height != 1280 {
		t.Errorf("dimensions = %dx%d, want 720x1280", meta.width, meta.height)
	}
}

func TestProbeVideoGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.mp4")
	if err := os.WriteFile(path, []byte("not a movie"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := probeVideo(path); err == nil {
		t.Fatal("expected error for non-MP4 data")
	}
}
