// Package handler exposes the study as a JSON API plus static media. Every
// state-changing route resolves the participant's session from a cookie,
// applies one controller action, and returns the refreshed screen.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/roadtones/captionstudy/internal/content"
	"github.com/roadtones/captionstudy/internal/flow"
	"github.com/roadtones/captionstudy/internal/i18n"
	"github.com/roadtones/captionstudy/internal/question"
	"github.com/roadtones/captionstudy/internal/session"
)

const sessionCookie = "captionstudy_session"

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	registry   *session.Registry
	ctrl       *flow.Controller
	catalog    *content.Catalog
	contentDir string
	debug      bool
}

// New creates a new Handler. debug enables the intake bypass route.
func New(reg *session.Registry, ctrl *flow.Controller, catalog *content.Catalog, contentDir string, debug bool) *Handler {
	return &Handler{registry: reg, ctrl: ctrl, catalog: catalog, contentDir: contentDir, debug: debug}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/session", h.handleScreen)
	r.Post("/api/intake", h.handleIntake)
	if h.debug {
		r.Post("/api/intake/debug", h.handleDebugIntake)
	}
	r.Post("/api/proceed", h.handleProceed)
	r.Post("/api/video/finish", h.handleFinishVideo)
	r.Post("/api/skip", h.handleSkip)
	r.Post("/api/comprehension", h.handleComprehension)
	r.Post("/api/interact", h.handleInteract)
	r.Post("/api/answer", h.handleQuizAnswer)
	r.Post("/api/ratings", h.handleStudyAnswers)
	r.Post("/api/quiz/jump/{part}", h.handleQuizJump)
	r.Post("/api/study/jump/{part}", h.handleStudyJump)
	r.Post("/api/quiz/restart", h.handleQuizRestart)
	r.Get("/api/definitions/{term}", h.handleDefinition)
	r.Handle("/media/*", http.StripPrefix("/media/", http.FileServer(http.Dir(h.contentDir))))
}

// sessionFor resolves or creates the request's session. The returned session
// is locked; the caller must unlock it.
func (h *Handler) sessionFor(w http.ResponseWriter, r *http.Request) *flow.Session {
	var s *flow.Session
	if c, err := r.Cookie(sessionCookie); err == nil {
		if found, ok := h.registry.Get(c.Value); ok {
			s = found
		}
	}
	if s == nil {
		token, created := h.registry.Create()
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    token,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		s = created
	}
	s.Lock()
	return s
}

func (h *Handler) handleScreen(w http.ResponseWriter, r *http.Request) {
	s := h.sessionFor(w, r)
	defer s.Unlock()
	h.writeScreen(w, r, s)
}

func (h *Handler) handleIntake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email   string `json:"email"`
		Age     int    `json:"age"`
		Gender  string `json:"gender"`
		Consent bool   `json:"consent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s := h.sessionFor(w, r)
	defer s.Unlock()
	if err := h.ctrl.Intake(s, req.Email, req.Age, req.Gender, req.Consent); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeScreen(w, r, s)
}

func (h *Handler) handleDebugIntake(w http.ResponseWriter, r *http.Request) {
	s := h.sessionFor(w, r)
	defer s.Unlock()
	if err := h.ctrl.DebugIntake(s); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeScreen(w, r, s)
}

func (h *Handler) handleProceed(w http.ResponseWriter, r *http.Request) {
	s := h.sessionFor(w, r)
	defer s.Unlock()
	if err := h.ctrl.Proceed(r.Context(), s); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeScreen(w, r, s)
}

func (h *Handler) handleFinishVideo(w http.ResponseWriter, r *http.Request) {
	s := h.sessionFor(w, r)
	defer s.Unlock()
	h.ctrl.FinishVideo(s)
	h.writeScreen(w, r, s)
}

func (h *Handler) handleSkip(w http.ResponseWriter, r *http.Request) {
	s := h.sessionFor(w, r)
	defer s.Unlock()
	if err := h.ctrl.SkipToQuestions(s); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeScreen(w, r, s)
}

func (h *Handler) handleComprehension(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Choice string `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s := h.sessionFor(w, r)
	defer s.Unlock()
	if _, _, err := h.ctrl.SubmitComprehension(s, req.Choice); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeScreen(w, r, s)
}

func (h *Handler) handleInteract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID string `json:"question_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s := h.sessionFor(w, r)
	defer s.Unlock()
	h.ctrl.Interact(s, req.QuestionID)
	h.writeScreen(w, r, s)
}

func (h *Handler) handleQuizAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID string   `json:"question_id"`
		Choices    []string `json:"choices"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s := h.sessionFor(w, r)
	defer s.Unlock()
	if _, err := h.ctrl.SubmitQuizAnswer(s, req.QuestionID, req.Choices); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeScreen(w, r, s)
}

func (h *Handler) handleStudyAnswers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Answers map[string][]string `json:"answers"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s := h.sessionFor(w, r)
	defer s.Unlock()
	if err := h.ctrl.SubmitStudyAnswers(r.Context(), s, req.Answers); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeScreen(w, r, s)
}

func (h *Handler) handleQuizJump(w http.ResponseWriter, r *http.Request) {
	part, err := strconv.Atoi(chi.URLParam(r, "part"))
	if err != nil {
		http.Error(w, "invalid part", http.StatusBadRequest)
		return
	}
	s := h.sessionFor(w, r)
	defer s.Unlock()
	if err := h.ctrl.JumpToQuizPart(s, part); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeScreen(w, r, s)
}

func (h *Handler) handleStudyJump(w http.ResponseWriter, r *http.Request) {
	part, err := strconv.Atoi(chi.URLParam(r, "part"))
	if err != nil {
		http.Error(w, "invalid part", http.StatusBadRequest)
		return
	}
	s := h.sessionFor(w, r)
	defer s.Unlock()
	if err := h.ctrl.JumpToStudyPart(s, part); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeScreen(w, r, s)
}

func (h *Handler) handleQuizRestart(w http.ResponseWriter, r *http.Request) {
	s := h.sessionFor(w, r)
	defer s.Unlock()
	if err := h.ctrl.RestartQuiz(s); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeScreen(w, r, s)
}

func (h *Handler) handleDefinition(w http.ResponseWriter, r *http.Request) {
	term := chi.URLParam(r, "term")
	writeJSON(w, http.StatusOK, map[string]string{
		"term":       term,
		"definition": h.catalog.Definition(term),
	})
}

func (h *Handler) writeScreen(w http.ResponseWriter, r *http.Request, s *flow.Session) {
	writeJSON(w, http.StatusOK, h.buildScreen(r.Context(), s))
}

type apiError struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps domain errors to statuses: invalid input 422, disallowed
// actions 409, failed persistence 502.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	var ie *flow.IntakeError
	if errors.As(err, &ie) {
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: ie.Reason, Field: ie.Field})
		return
	}
	var ve *question.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusUnprocessableEntity, apiError{
			Error: i18n.T(ctx, "AnswerRequired") + " " + ve.Error(),
		})
		return
	}
	var sc *question.ErrSelectionCount
	if errors.As(err, &sc) {
		writeJSON(w, http.StatusUnprocessableEntity, apiError{Error: sc.Error()})
		return
	}
	var se *flow.SaveError
	if errors.As(err, &se) {
		slog.Error("response save failed", "error", se.Err)
		writeJSON(w, http.StatusBadGateway, apiError{Error: i18n.T(ctx, "SaveFailed")})
		return
	}
	switch {
	case errors.Is(err, flow.ErrNotAllowed), errors.Is(err, flow.ErrAlreadyAnswered), errors.Is(err, flow.ErrQuizFailed):
		writeJSON(w, http.StatusConflict, apiError{Error: err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, apiError{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
