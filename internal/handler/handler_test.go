package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roadtones/captionstudy/internal/content"
	"github.com/roadtones/captionstudy/internal/flow"
	"github.com/roadtones/captionstudy/internal/i18n"
	"github.com/roadtones/captionstudy/internal/model"
	"github.com/roadtones/captionstudy/internal/session"
)

type memSink struct {
	records []model.Response
	fail    bool
}

func (m *memSink) Append(_ context.Context, r model.Response) error {
	if m.fail {
		return errors.New("sink unavailable")
	}
	m.records = append(m.records, r)
	return nil
}

type testEnv struct {
	srv     *httptest.Server
	client  *http.Client
	catalog *content.Catalog
	sink    *memSink
}

func newTestEnv(t *testing.T, cfg flow.Config) *testEnv {
	t.Helper()
	if err := i18n.Init("en"); err != nil {
		t.Fatalf("i18n: %v", err)
	}
	dir := filepath.Join("testdata", "content")
	catalog, err := content.Load(dir)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	sink := &memSink{}
	ctrl := flow.NewController(catalog, sink, cfg)
	reg := session.NewRegistry(time.Hour)
	h := New(reg, ctrl, catalog, dir, true)

	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	h.Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	jar, _ := cookiejar.New(nil)
	return &testEnv{srv: srv, client: &http.Client{Jar: jar}, catalog: catalog, sink: sink}
}

func (e *testEnv) post(t *testing.T, path string, body any) (int, Screen) {
	t.Helper()
	var buf bytes.Buffer
	if body == nil {
		buf.WriteString("{}")
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatal(err)
	}
	resp, err := e.client.Post(e.srv.URL+path, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var screen Screen
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&screen); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode, screen
}

func (e *testEnv) get(t *testing.T, path string) (int, Screen) {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	var screen Screen
	if resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(&screen); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode, screen
}

// toQuizQuestions drives a fresh session to the first quiz question screen.
func (e *testEnv) toQuizQuestions(t *testing.T) Screen {
	t.Helper()
	e.post(t, "/api/intake/debug", nil)
	var screen Screen
	for i := 0; i < 4; i++ {
		_, screen = e.post(t, "/api/proceed", nil)
		if screen.Phase == "quiz" {
			break
		}
	}
	if screen.Phase != "quiz" {
		t.Fatalf("phase = %s, want quiz", screen.Phase)
	}
	_, screen = e.post(t, "/api/video/finish", nil)
	if screen.Item.Step != "summary" {
		t.Fatalf("step = %s, want summary", screen.Item.Step)
	}
	_, screen = e.post(t, "/api/proceed", nil)
	if screen.Item.Step != "comprehension" {
		t.Fatalf("step = %s, want comprehension", screen.Item.Step)
	}
	correct := e.catalog.QuizParts()[0].Items[0].Comprehension.Correct
	_, screen = e.post(t, "/api/comprehension", map[string]string{"choice": correct})
	if !screen.Item.Comprehension.Answered {
		t.Fatal("comprehension not marked answered")
	}
	_, screen = e.post(t, "/api/proceed", nil) // -> content
	_, screen = e.post(t, "/api/proceed", nil) // -> questions
	if screen.Item.Step != "questions" {
		t.Fatalf("step = %s, want questions", screen.Item.Step)
	}
	return screen
}

func TestIntakeValidationStatus(t *testing.T) {
	e := newTestEnv(t, flow.Config{})

	status, _ := e.post(t, "/api/intake", map[string]any{
		"email": "not-an-email", "age": 30, "gender": "Female", "consent": true,
	})
	if status != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", status)
	}

	status, screen := e.post(t, "/api/intake", map[string]any{
		"email": "participant@example.com", "age": 30, "gender": "Female", "consent": true,
	})
	if status != http.StatusOK || screen.Phase != "intro_video" {
		t.Errorf("status/phase = %d/%s, want 200/intro_video", status, screen.Phase)
	}
}

func TestSessionCookiePersists(t *testing.T) {
	e := newTestEnv(t, flow.Config{})

	status, screen := e.post(t, "/api/intake/debug", nil)
	if status != http.StatusOK || screen.Phase != "intro_video" {
		t.Fatalf("debug intake: %d/%s", status, screen.Phase)
	}
	if screen.Intro == nil || screen.Intro.VideoURL == "" {
		t.Error("intro screen missing video")
	}

	// The same cookie resolves to the same session on the next read.
	_, screen = e.get(t, "/api/session")
	if screen.Phase != "intro_video" {
		t.Errorf("phase after re-read = %s, want intro_video", screen.Phase)
	}
}

func TestScreenTitlesPerPhase(t *testing.T) {
	e := newTestEnv(t, flow.Config{})

	_, screen := e.post(t, "/api/intake/debug", nil)
	if screen.Title != "Welcome" {
		t.Errorf("intro title = %q", screen.Title)
	}
	for i := 0; i < 4 && screen.Phase != "quiz"; i++ {
		_, screen = e.post(t, "/api/proceed", nil)
	}
	if screen.Phase != "quiz" {
		t.Fatalf("phase = %s, want quiz", screen.Phase)
	}
	if screen.Title != "Screening Quiz" {
		t.Errorf("quiz title = %q", screen.Title)
	}
	if screen.Message != "The screening quiz has 5 questions." {
		t.Errorf("quiz message = %q", screen.Message)
	}
}

func TestQuizAnswerEndpoint(t *testing.T) {
	e := newTestEnv(t, flow.Config{})
	screen := e.toQuizQuestions(t)

	if len(screen.Item.Questions) != 1 {
		t.Fatalf("questions = %d, want 1", len(screen.Item.Questions))
	}
	firstSample := screen.Item.SampleID
	q := screen.Item.Questions[0]

	status, screen := e.post(t, "/api/answer", map[string]any{
		"question_id": q.ID, "choices": []string{"Urgent"},
	})
	if status != http.StatusOK {
		t.Fatalf("answer status = %d", status)
	}
	fb := screen.Item.Feedback
	if fb == nil || !fb.Correct {
		t.Fatalf("feedback = %+v, want correct", fb)
	}

	// Double submission is rejected while feedback is pending.
	status, _ = e.post(t, "/api/answer", map[string]any{
		"question_id": q.ID, "choices": []string{"Calm"},
	})
	if status != http.StatusConflict {
		t.Errorf("double submit status = %d, want 409", status)
	}

	// Acknowledging persists the record and moves to the next item.
	status, screen = e.post(t, "/api/proceed", nil)
	if status != http.StatusOK {
		t.Fatalf("proceed status = %d", status)
	}
	if len(e.sink.records) != 1 {
		t.Errorf("records = %d, want 1", len(e.sink.records))
	}
	if screen.Item.SampleID == firstSample {
		t.Error("item did not advance")
	}
}

func TestSaveFailureReturnsBadGateway(t *testing.T) {
	e := newTestEnv(t, flow.Config{})
	screen := e.toQuizQuestions(t)
	q := screen.Item.Questions[0]

	e.post(t, "/api/answer", map[string]any{"question_id": q.ID, "choices": []string{"Urgent"}})
	e.sink.fail = true
	status, _ := e.post(t, "/api/proceed", nil)
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", status)
	}

	// The identical retry succeeds once the sink recovers.
	e.sink.fail = false
	status, _ = e.post(t, "/api/proceed", nil)
	if status != http.StatusOK {
		t.Errorf("retry status = %d, want 200", status)
	}
	if len(e.sink.records) != 1 {
		t.Errorf("records = %d, want 1", len(e.sink.records))
	}
}

func TestSkipToQuestionsEndpoint(t *testing.T) {
	e := newTestEnv(t, flow.Config{})
	e.post(t, "/api/intake/debug", nil)
	var screen Screen
	for i := 0; i < 4; i++ {
		_, screen = e.post(t, "/api/proceed", nil)
		if screen.Phase == "quiz" {
			break
		}
	}

	status, screen := e.post(t, "/api/skip", nil)
	if status != http.StatusOK || screen.Item.Step != "questions" {
		t.Errorf("status/step = %d/%s, want 200/questions", status, screen.Item.Step)
	}
	if screen.Item.Summary == "" {
		t.Error("skip should reveal the summary")
	}
	if screen.Item.TypeSummary {
		t.Error("skip should not replay the typing animation")
	}
}

func TestDefinitionEndpoint(t *testing.T) {
	e := newTestEnv(t, flow.Config{})

	resp, err := e.client.Get(e.srv.URL + "/api/definitions/poetic")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["definition"] == "" || body["definition"] == "Definition not found." {
		t.Errorf("definition = %q", body["definition"])
	}

	resp2, err := e.client.Get(e.srv.URL + "/api/definitions/unknown-trait")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if err := json.NewDecoder(resp2.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["definition"] != "Definition not found." {
		t.Errorf("fallback definition = %q", body["definition"])
	}
}

func TestQuizJumpEndpoint(t *testing.T) {
	e := newTestEnv(t, flow.Config{})
	e.toQuizQuestions(t)

	status, screen := e.post(t, "/api/quiz/jump/1", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if screen.Item.Step != "watching" {
		t.Errorf("step after jump = %s, want watching", screen.Item.Step)
	}
	if screen.Item.SampleID != e.catalog.QuizParts()[1].Items[0].SampleID {
		t.Errorf("item after jump = %s", screen.Item.SampleID)
	}

	status, _ = e.post(t, "/api/quiz/jump/9", nil)
	if status == http.StatusOK {
		t.Error("out-of-range jump accepted")
	}
}

func TestStudyAnswersValidation(t *testing.T) {
	e := newTestEnv(t, flow.Config{PassThreshold: 1})
	screen := e.toQuizQuestions(t)

	// Pass the quiz quickly: answer everything correctly.
	for screen.Phase == "quiz" {
		if screen.Item.Step != "questions" {
			_, screen = e.post(t, "/api/skip", nil)
		}
		q := screen.Item.Questions[0]
		choices := findCorrect(e.catalog, q.ID)
		if _, s := e.post(t, "/api/answer", map[string]any{"question_id": q.ID, "choices": choices}); s.Item == nil || s.Item.Feedback == nil {
			t.Fatalf("no feedback for %s", q.ID)
		}
		_, screen = e.post(t, "/api/proceed", nil)
	}
	if screen.Phase != "quiz_results" || !screen.Results.Passed {
		t.Fatalf("results screen: %+v", screen.Results)
	}
	_, screen = e.post(t, "/api/proceed", nil)
	if screen.Phase != "study" || screen.StudyPart != 1 {
		t.Fatalf("phase/part = %s/%d", screen.Phase, screen.StudyPart)
	}
	if screen.Title != "Part 1: Caption Ratings" {
		t.Errorf("study title = %q", screen.Title)
	}

	_, screen = e.post(t, "/api/skip", nil)
	if len(screen.Item.Questions) != 1 {
		t.Fatalf("visible questions = %d, want 1 before interactions", len(screen.Item.Questions))
	}

	// Submitting an incomplete set is a validation error with a localized
	// message naming the open questions.
	q := screen.Item.Questions[0]
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(map[string]any{
		"answers": map[string][]string{q.ID: {q.Options[0]}},
	}); err != nil {
		t.Fatal(err)
	}
	resp, err := e.client.Post(e.srv.URL+"/api/ratings", "application/json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("incomplete submit status = %d, want 422", resp.StatusCode)
	}
	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(apiErr.Error, "Please answer") {
		t.Errorf("validation message = %q", apiErr.Error)
	}

	// Interacting reveals the next question.
	_, screen = e.post(t, "/api/interact", map[string]string{"question_id": q.ID})
	if len(screen.Item.Questions) != 2 {
		t.Errorf("visible after interact = %d, want 2", len(screen.Item.Questions))
	}
}

// findCorrect looks up a quiz question's correct answer set in the catalog.
func findCorrect(c *content.Catalog, questionID string) []string {
	for _, part := range c.QuizParts() {
		for _, item := range part.Items {
			for _, q := range item.Questions {
				if q.ID == questionID {
					return q.Correct
				}
			}
		}
	}
	return nil
}
