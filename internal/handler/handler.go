// Package handler exposes the exam session over a JSON HTTP API consumed by
// the browser frontend.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"examsim/internal/i18n"
	"examsim/internal/model"
	"examsim/internal/session"
	"examsim/internal/store"

	"github.com/go-chi/chi/v5"
)

// Extractor is the LLM surface the handler needs beyond question loading,
// which the session drives itself.
type Extractor interface {
	ExtractExamInfo(ctx context.Context, examText string) (*model.ExamMetadata, error)
	GenerateHint(ctx context.Context, q model.Question, level int) (string, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	session *session.Session
	store   *store.Store
	ai      Extractor
}

// New creates a new Handler.
func New(sess *session.Session, st *store.Store, ai Extractor) *Handler {
	return &Handler{session: sess, store: st, ai: ai}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/exam", func(r chi.Router) {
		r.Post("/source", h.handleSetSource)
		r.Post("/metadata/extract", h.handleExtractMetadata)
		r.Put("/metadata", h.handleSetMetadata)
		r.Post("/sections/{name}/load", h.handleLoadSection)
		r.Post("/start", h.handleStart)
		r.Post("/answer", h.handleAnswer)
		r.Post("/questions/{id}/hint", h.handleHint)
		r.Post("/navigate", h.handleNavigate)
		r.Post("/pause", h.handlePause)
		r.Post("/resume", h.handleResume)
		r.Post("/submit", h.handleSubmit)
		r.Post("/reset", h.handleReset)
		r.Get("/state", h.handleState)
		r.Get("/results", h.handleResults)
		r.Get("/history", h.handleHistory)
		r.Get("/history/{id}", h.handleHistoryEntry)
		r.Delete("/history/{id}", h.handleDeleteHistoryEntry)
		r.Get("/export", h.handleExport)
	})
}

// questionView is a Question as sent to the browser: the correct answer stays
// server-side until the exam is submitted.
type questionView struct {
	ID             string   `json:"id"`
	Text           string   `json:"text"`
	Options        []string `json:"options"`
	Section        string   `json:"section"`
	OriginalNumber string   `json:"original_number,omitempty"`
}

type stateView struct {
	State           model.SessionState  `json:"state"`
	Metadata        *model.ExamMetadata `json:"metadata,omitempty"`
	Questions       []questionView      `json:"questions"`
	Answers         []model.UserAnswer  `json:"answers"`
	LoadedSections  []string            `json:"loaded_sections"`
	CurrentQuestion int                 `json:"current_question"`
	CurrentSection  string              `json:"current_section,omitempty"`
}

func (h *Handler) stateView() stateView {
	questions := h.session.Questions()
	views := make([]questionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, questionView{
			ID:             q.ID,
			Text:           q.Text,
			Options:        q.Options,
			Section:        q.Section,
			OriginalNumber: q.OriginalNumber,
		})
	}
	idx, sect := h.session.CurrentPosition()
	view := stateView{
		State:           h.session.State(),
		Metadata:        h.session.Metadata(),
		Questions:       views,
		Answers:         h.session.Answers(),
		CurrentQuestion: idx,
		CurrentSection:  sect,
		LoadedSections:  []string{},
	}
	if view.Metadata != nil {
		for _, s := range view.Metadata.Sections {
			if h.session.IsSectionLoaded(s) {
				view.LoadedSections = append(view.LoadedSections, s)
			}
		}
	}
	return view
}

func (h *Handler) handleSetSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "exam text cannot be empty")
		return
	}
	h.session.SetSourceText(req.Text)
	respondJSON(w, http.StatusOK, h.stateView())
}

func (h *Handler) handleExtractMetadata(w http.ResponseWriter, r *http.Request) {
	text := h.session.SourceText()
	if text == "" {
		respondError(w, http.StatusBadRequest, "no exam text uploaded")
		return
	}
	meta, err := h.ai.ExtractExamInfo(r.Context(), text)
	if err != nil {
		slog.Error("metadata extraction failed", "error", err)
		respondError(w, http.StatusBadGateway, "metadata extraction failed")
		return
	}
	// Returned for review; the client applies it with PUT /metadata, possibly
	// after manual edits.
	respondJSON(w, http.StatusOK, meta)
}

func (h *Handler) handleSetMetadata(w http.ResponseWriter, r *http.Request) {
	var meta model.ExamMetadata
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(meta.Sections) == 0 {
		respondError(w, http.StatusBadRequest, "metadata must declare at least one section")
		return
	}
	h.session.SetMetadata(meta)
	respondJSON(w, http.StatusOK, h.stateView())
}

func (h *Handler) handleLoadSection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	outcome, err := h.session.LoadSection(r.Context(), name)
	if err != nil {
		if errors.Is(err, session.ErrUnknownSection) || errors.Is(err, session.ErrNoMetadata) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("section load failed", "section", name, "error", err)
		respondError(w, http.StatusBadGateway, "question extraction failed")
		return
	}

	resp := struct {
		Outcome session.LoadOutcome `json:"outcome"`
		Message string              `json:"message,omitempty"`
		State   stateView           `json:"state"`
	}{Outcome: outcome, State: h.stateView()}

	tr := i18n.FromContext(r.Context())
	data := map[string]any{"Section": name}
	switch outcome {
	case session.LoadEmpty:
		resp.Message = tr.Td("SectionEmpty", data)
	case session.LoadInProgress:
		resp.Message = tr.Td("SectionLoading", data)
	case session.LoadAlreadyLoaded:
		resp.Message = tr.Td("SectionAlreadyLoaded", data)
	case session.LoadCommitted:
		resp.Message = tr.Tp("QuestionsLoaded", h.session.CountInSection(name))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Start(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, h.stateView())
}

func (h *Handler) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QuestionID       string  `json:"question_id"`
		SelectedOption   *string `json:"selected_option"`
		TimeTakenSeconds int     `json:"time_taken_seconds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QuestionID == "" {
		respondError(w, http.StatusBadRequest, "question_id is required")
		return
	}

	if err := h.session.Answer(req.QuestionID, req.SelectedOption); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TimeTakenSeconds > 0 {
		if err := h.session.AddTime(req.QuestionID, req.TimeTakenSeconds); err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	respondJSON(w, http.StatusOK, h.stateView())
}

func (h *Handler) handleHint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	q, err := h.session.Question(id)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	rec, err := h.session.RecordHint(id)
	if err != nil {
		if errors.Is(err, session.ErrHintLimit) {
			respondError(w, http.StatusConflict, i18n.FromContext(r.Context()).T("HintLimitReached"))
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	hint, err := h.ai.GenerateHint(r.Context(), q, rec.Level)
	if err != nil {
		slog.Error("hint generation failed", "question_id", id, "error", err)
		respondError(w, http.StatusBadGateway, "hint generation failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"level": rec.Level,
		"hint":  hint,
	})
}

func (h *Handler) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index   *int   `json:"index,omitempty"`
		Section string `json:"section,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var (
		outcome session.NavOutcome
		message string
	)
	switch {
	case req.Index != nil:
		outcome = h.session.NavigateToQuestion(*req.Index)
	case req.Section != "":
		var err error
		outcome, err = h.session.NavigateToSection(r.Context(), req.Section)
		if err != nil {
			if errors.Is(err, session.ErrUnknownSection) {
				respondError(w, http.StatusBadRequest, err.Error())
				return
			}
			slog.Error("section navigation failed", "section", req.Section, "error", err)
			respondError(w, http.StatusBadGateway, "question extraction failed")
			return
		}
		tr := i18n.FromContext(r.Context())
		data := map[string]any{"Section": req.Section}
		switch outcome {
		case session.NavEmptySection:
			message = tr.Td("SectionEmpty", data)
		case session.NavInProgress:
			message = tr.Td("SectionLoading", data)
		}
	default:
		respondError(w, http.StatusBadRequest, "navigate needs an index or a section")
		return
	}

	respondJSON(w, http.StatusOK, struct {
		Outcome session.NavOutcome `json:"outcome"`
		Message string             `json:"message,omitempty"`
		State   stateView          `json:"state"`
	}{Outcome: outcome, Message: message, State: h.stateView()})
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.session.Pause()
	respondJSON(w, http.StatusOK, h.stateView())
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.session.Resume()
	respondJSON(w, http.StatusOK, h.stateView())
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	alreadyFinished := h.session.State() == model.StateFinished
	h.session.Submit()
	if h.session.State() != model.StateFinished {
		respondError(w, http.StatusBadRequest, i18n.FromContext(r.Context()).T("ExamNotStarted"))
		return
	}

	results := h.session.Results()
	if !alreadyFinished && h.store != nil {
		if _, err := h.store.ArchiveResult(results); err != nil {
			slog.Error("archive result failed", "error", err)
		}
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.session.Reset()
	respondJSON(w, http.StatusOK, h.stateView())
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.stateView())
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.session.Results())
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	results, err := h.store.ListResults()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if results == nil {
		results = []model.ArchivedResult{}
	}
	respondJSON(w, http.StatusOK, results)
}

func (h *Handler) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.GetResult(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entry == nil {
		respondError(w, http.StatusNotFound, "result not found")
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleDeleteHistoryEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteResult(chi.URLParam(r, "id")); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	export, err := h.store.ExportResults()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="exam-results.json"`)
	respondJSON(w, http.StatusOK, export)
}
