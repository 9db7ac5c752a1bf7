package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"examsim/internal/i18n"
	"examsim/internal/model"
	"examsim/internal/session"
	"examsim/internal/store"

	"github.com/go-chi/chi/v5"
)

type stubAI struct {
	meta      *model.ExamMetadata
	questions map[string][]model.Question
	hint      string
}

func (a *stubAI) ExtractExamInfo(_ context.Context, _ string) (*model.ExamMetadata, error) {
	return a.meta, nil
}

func (a *stubAI) ExtractQuestions(_ context.Context, _ string, _ []string, target string) ([]model.Question, error) {
	return a.questions[target], nil
}

func (a *stubAI) GenerateHint(_ context.Context, _ model.Question, level int) (string, error) {
	return fmt.Sprintf("%s (level %d)", a.hint, level), nil
}

func question(id, section string) model.Question {
	return model.Question{
		ID:            id,
		Text:          "question " + id,
		Options:       []string{"opt a", "opt b", "opt c"},
		CorrectAnswer: "opt a",
		Section:       section,
	}
}

func newTestServer(t *testing.T, ai *stubAI) (*httptest.Server, *session.Session) {
	t.Helper()
	tr, err := i18n.New("en")
	if err != nil {
		t.Fatalf("i18n.New: %v", err)
	}
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sess := session.New(ai, st)
	h := New(sess, st, ai)

	r := chi.NewRouter()
	r.Use(tr.Middleware)
	h.Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, sess
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func TestFullExamFlow(t *testing.T) {
	ai := &stubAI{
		meta: &model.ExamMetadata{Name: "Sample Exam", Sections: []string{"A", "B"}},
		questions: map[string][]model.Question{
			"A": {question("a1", "A"), question("a2", "A")},
			"B": {question("b1", "B")},
		},
		hint: "think about it",
	}
	srv, _ := newTestServer(t, ai)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/exam/source", map[string]string{"text": "paper body"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set source: status %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/exam/metadata/extract", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("extract metadata: status %d (%s)", resp.StatusCode, body)
	}
	var meta model.ExamMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		t.Fatalf("decode metadata: %v", err)
	}
	if meta.Name != "Sample Exam" {
		t.Errorf("metadata name = %q", meta.Name)
	}

	resp, _ = doJSON(t, http.MethodPut, srv.URL+"/api/exam/metadata", meta)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("set metadata: status %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/exam/sections/A/load", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("load section: status %d (%s)", resp.StatusCode, body)
	}
	var loadResp struct {
		Outcome session.LoadOutcome `json:"outcome"`
		Message string              `json:"message"`
		State   struct {
			Questions []questionView `json:"questions"`
		} `json:"state"`
	}
	if err := json.Unmarshal(body, &loadResp); err != nil {
		t.Fatalf("decode load response: %v", err)
	}
	if loadResp.Outcome != session.LoadCommitted {
		t.Errorf("load outcome = %q", loadResp.Outcome)
	}
	if loadResp.Message != "2 questions loaded." {
		t.Errorf("load message = %q", loadResp.Message)
	}
	if len(loadResp.State.Questions) != 2 {
		t.Errorf("expected 2 questions, got %d", len(loadResp.State.Questions))
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/exam/start", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("start: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/exam/answer", map[string]any{
		"question_id":        "a1",
		"selected_option":    "opt a",
		"time_taken_seconds": 12,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("answer: status %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/exam/submit", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("submit: status %d (%s)", resp.StatusCode, body)
	}
	var results model.OverallResults
	if err := json.Unmarshal(body, &results); err != nil {
		t.Fatalf("decode results: %v", err)
	}
	if results.TotalQuestions != 2 || results.CorrectAnswers != 1 || results.SkippedAnswers != 1 {
		t.Errorf("results tallies = %d/%d/%d", results.TotalQuestions, results.CorrectAnswers, results.SkippedAnswers)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/exam/history", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history: status %d", resp.StatusCode)
	}
	var history []model.ArchivedResult
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 || history[0].Results.ExamName != "Sample Exam" {
		t.Errorf("history = %+v, want the one archived result", history)
	}

	// A second submit is a no-op and must not archive a duplicate.
	doJSON(t, http.MethodPost, srv.URL+"/api/exam/submit", nil)
	_, body = doJSON(t, http.MethodGet, srv.URL+"/api/exam/history", nil)
	if err := json.Unmarshal(body, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("duplicate submit archived again: %d entries", len(history))
	}
}

func TestLoadEmptySectionReturnsLocalizedMessage(t *testing.T) {
	ai := &stubAI{
		meta: &model.ExamMetadata{Name: "Sample", Sections: []string{"A"}},
		questions: map[string][]model.Question{
			"A": nil,
		},
	}
	srv, _ := newTestServer(t, ai)

	doJSON(t, http.MethodPost, srv.URL+"/api/exam/source", map[string]string{"text": "paper"})
	doJSON(t, http.MethodPut, srv.URL+"/api/exam/metadata", ai.meta)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/exam/sections/A/load", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("empty section load should be 200, got %d", resp.StatusCode)
	}
	var loadResp struct {
		Outcome session.LoadOutcome `json:"outcome"`
		Message string              `json:"message"`
	}
	if err := json.Unmarshal(body, &loadResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loadResp.Outcome != session.LoadEmpty {
		t.Errorf("outcome = %q, want empty", loadResp.Outcome)
	}
	if loadResp.Message != `No multiple-choice questions were found in section "A".` {
		t.Errorf("message = %q", loadResp.Message)
	}
}

func TestLoadUnknownSectionRejected(t *testing.T) {
	ai := &stubAI{meta: &model.ExamMetadata{Sections: []string{"A"}}}
	srv, _ := newTestServer(t, ai)

	doJSON(t, http.MethodPost, srv.URL+"/api/exam/source", map[string]string{"text": "paper"})
	doJSON(t, http.MethodPut, srv.URL+"/api/exam/metadata", ai.meta)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/exam/sections/Z/load", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("unknown section load: status %d, want 400", resp.StatusCode)
	}
}

func TestHintEndpointCapsAtThree(t *testing.T) {
	ai := &stubAI{
		meta: &model.ExamMetadata{Sections: []string{"A"}},
		questions: map[string][]model.Question{
			"A": {question("a1", "A")},
		},
		hint: "a nudge",
	}
	srv, _ := newTestServer(t, ai)

	doJSON(t, http.MethodPost, srv.URL+"/api/exam/source", map[string]string{"text": "paper"})
	doJSON(t, http.MethodPut, srv.URL+"/api/exam/metadata", ai.meta)
	doJSON(t, http.MethodPost, srv.URL+"/api/exam/sections/A/load", nil)
	doJSON(t, http.MethodPost, srv.URL+"/api/exam/start", nil)

	for want := 1; want <= 3; want++ {
		resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/exam/questions/a1/hint", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("hint %d: status %d", want, resp.StatusCode)
		}
		var hintResp struct {
			Level int    `json:"level"`
			Hint  string `json:"hint"`
		}
		if err := json.Unmarshal(body, &hintResp); err != nil {
			t.Fatalf("decode hint: %v", err)
		}
		if hintResp.Level != want {
			t.Errorf("hint level = %d, want %d", hintResp.Level, want)
		}
		if hintResp.Hint == "" {
			t.Error("empty hint text")
		}
	}

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/exam/questions/a1/hint", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("fourth hint: status %d, want 409", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/exam/questions/nope/hint", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown question hint: status %d, want 404", resp.StatusCode)
	}
}

func TestNavigateBySectionAndIndex(t *testing.T) {
	ai := &stubAI{
		meta: &model.ExamMetadata{Sections: []string{"A", "B"}},
		questions: map[string][]model.Question{
			"A": {question("a1", "A")},
			"B": {question("b1", "B")},
		},
	}
	srv, _ := newTestServer(t, ai)

	doJSON(t, http.MethodPost, srv.URL+"/api/exam/source", map[string]string{"text": "paper"})
	doJSON(t, http.MethodPut, srv.URL+"/api/exam/metadata", ai.meta)
	doJSON(t, http.MethodPost, srv.URL+"/api/exam/sections/A/load", nil)
	doJSON(t, http.MethodPost, srv.URL+"/api/exam/start", nil)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/exam/navigate", map[string]string{"section": "B"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("navigate to section: status %d (%s)", resp.StatusCode, body)
	}
	var navResp struct {
		Outcome session.NavOutcome `json:"outcome"`
		State   struct {
			CurrentQuestion int    `json:"current_question"`
			CurrentSection  string `json:"current_section"`
		} `json:"state"`
	}
	if err := json.Unmarshal(body, &navResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if navResp.Outcome != session.NavMoved || navResp.State.CurrentSection != "B" {
		t.Errorf("navigate = %+v", navResp)
	}

	idx := 0
	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/exam/navigate", map[string]any{"index": idx})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("navigate to index: status %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, &navResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if navResp.State.CurrentQuestion != 0 {
		t.Errorf("current question = %d, want 0", navResp.State.CurrentQuestion)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/exam/navigate", map[string]any{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty navigate: status %d, want 400", resp.StatusCode)
	}
}

func TestSetSourceValidation(t *testing.T) {
	ai := &stubAI{}
	srv, _ := newTestServer(t, ai)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/exam/source", map[string]string{"text": ""})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty text: status %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/exam/metadata/extract", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("extract without text: status %d, want 400", resp.StatusCode)
	}
}

func TestStateReflectsSnapshotRestore(t *testing.T) {
	ai := &stubAI{
		meta: &model.ExamMetadata{Sections: []string{"A"}},
		questions: map[string][]model.Question{
			"A": {question("a1", "A")},
		},
	}
	srv, sess := newTestServer(t, ai)

	doJSON(t, http.MethodPost, srv.URL+"/api/exam/source", map[string]string{"text": "paper"})
	doJSON(t, http.MethodPut, srv.URL+"/api/exam/metadata", ai.meta)
	doJSON(t, http.MethodPost, srv.URL+"/api/exam/sections/A/load", nil)
	doJSON(t, http.MethodPost, srv.URL+"/api/exam/start", nil)

	// Simulate a reload: a fresh session restored from the persisted snapshot.
	snap := sess.Snapshot()
	sess.Restore(snap)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/exam/state", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("state: status %d", resp.StatusCode)
	}
	var state struct {
		State     model.SessionState `json:"state"`
		Questions []questionView     `json:"questions"`
	}
	if err := json.Unmarshal(body, &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if state.State != model.StateRunning || len(state.Questions) != 1 {
		t.Errorf("restored state = %+v", state)
	}
}
