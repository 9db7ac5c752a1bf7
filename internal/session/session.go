// Package session implements the exam session state machine: section-by-section
// question loading, answer bookkeeping, pause semantics, navigation, and the
// serialization contract that lets a session survive a reload.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"examsim/internal/model"
	"examsim/internal/score"
)

// Loader is the external collaborator that extracts one section's questions
// from the exam source text. A call either fails as a whole or returns the
// validated records; zero records is a legitimate success.
type Loader interface {
	ExtractQuestions(ctx context.Context, examText string, sections []string, target string) ([]model.Question, error)
}

// Persister stores the serialized session snapshot. Writes are fire-and-forget
// from the session's perspective: failures are logged, never surfaced.
type Persister interface {
	SaveSnapshot(snap model.Snapshot) error
	ClearSnapshot() error
}

var (
	// ErrNoMetadata means the operation needs exam metadata that is not set.
	ErrNoMetadata = errors.New("exam metadata not set")
	// ErrNoSections means the metadata declares no sections.
	ErrNoSections = errors.New("exam has no sections")
	// ErrUnknownSection means the target section is not declared in the metadata.
	ErrUnknownSection = errors.New("section not declared in exam metadata")
	// ErrUnknownQuestion means no loaded question has the given id.
	ErrUnknownQuestion = errors.New("unknown question id")
	// ErrInvalidOption means the selected option is not one of the question's options.
	ErrInvalidOption = errors.New("selected option not among question options")
	// ErrFirstSectionNotLoaded means Start was called before the first section loaded.
	ErrFirstSectionNotLoaded = errors.New("first section not loaded yet")
	// ErrNoQuestions means Start was called with zero questions loaded.
	ErrNoQuestions = errors.New("no questions loaded")
	// ErrFinished means the session has been submitted.
	ErrFinished = errors.New("exam already submitted")
	// ErrHintLimit means the question already used all three hint levels.
	ErrHintLimit = errors.New("hint limit reached")
)

// LoadOutcome tells the caller how a LoadSection call ended.
type LoadOutcome string

const (
	// LoadCommitted means the section was fetched and committed with questions.
	LoadCommitted LoadOutcome = "loaded"
	// LoadEmpty means the section was committed but yielded zero valid questions.
	LoadEmpty LoadOutcome = "empty"
	// LoadAlreadyLoaded means the section was committed earlier; treated as success.
	LoadAlreadyLoaded LoadOutcome = "already_loaded"
	// LoadInProgress means another call for the same section is in flight.
	LoadInProgress LoadOutcome = "in_progress"
	// LoadIgnored means the session was reset or finished and the call did nothing.
	LoadIgnored LoadOutcome = "ignored"
)

// NavOutcome tells the caller how a navigation call ended.
type NavOutcome string

const (
	// NavMoved means the current question changed.
	NavMoved NavOutcome = "moved"
	// NavEmptySection means the section is loaded but has no questions; the
	// section became current with no current question. Not an error.
	NavEmptySection NavOutcome = "empty_section"
	// NavInProgress means the section is still loading; nothing changed.
	NavInProgress NavOutcome = "in_progress"
	// NavIgnored means the call was a no-op (paused, finished, out of bounds).
	NavIgnored NavOutcome = "ignored"
)

// Session is the aggregate root for one exam attempt. All mutation goes
// through its methods; the mutex makes the check-then-act sequences atomic so
// two callers racing to load the same section still produce exactly one commit.
type Session struct {
	mu      sync.Mutex
	loader  Loader
	persist Persister

	// gen invalidates in-flight loads that started before a reset.
	gen      uint64
	inflight map[string]bool

	sourceText     string
	meta           *model.ExamMetadata
	bank           *Bank
	answers        map[string]*model.UserAnswer
	currentIndex   int
	currentSection string
	startTime      *time.Time
	endTime        *time.Time
	paused         bool
}

// New creates an empty session.
func New(loader Loader, persist Persister) *Session {
	return &Session{
		loader:       loader,
		persist:      persist,
		inflight:     make(map[string]bool),
		bank:         NewBank(nil),
		answers:      make(map[string]*model.UserAnswer),
		currentIndex: -1,
	}
}

func (s *Session) finished() bool { return s.endTime != nil }
func (s *Session) started() bool  { return s.startTime != nil }

// State derives the lifecycle state from the session fields.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() model.SessionState {
	switch {
	case s.finished():
		return model.StateFinished
	case s.started() && s.paused:
		return model.StatePaused
	case s.started():
		return model.StateRunning
	case s.meta != nil:
		return model.StateMetadataSet
	default:
		return model.StateEmpty
	}
}

// SetSourceText resets the entire session and installs new exam source text.
// Stale questions and answers from a previous paper must never leak into a
// new upload, so everything except the new text is wiped.
func (s *Session) SetSourceText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.sourceText = text
	s.saveLocked()
}

// SourceText returns the current exam source text.
func (s *Session) SourceText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceText
}

// SetMetadata installs exam metadata and moves the session to MetadataSet.
// Previously loaded questions and answers are cleared: a metadata change
// invalidates prior extraction. No-op once the exam has started.
func (s *Session) SetMetadata(meta model.ExamMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started() {
		return
	}

	meta.Sections = dedupe(meta.Sections)
	s.meta = &meta
	s.gen++
	s.inflight = make(map[string]bool)
	s.bank = NewBank(meta.Sections)
	s.answers = make(map[string]*model.UserAnswer)
	s.currentIndex = -1
	s.currentSection = ""
	if len(meta.Sections) > 0 {
		s.currentSection = meta.Sections[0]
	}
	s.saveLocked()
}

// Metadata returns a copy of the current exam metadata, or nil.
func (s *Session) Metadata() *model.ExamMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.meta == nil {
		return nil
	}
	m := *s.meta
	m.Sections = append([]string(nil), s.meta.Sections...)
	return &m
}

// LoadSection fetches and commits one section's questions through the loader.
// Already-loaded and currently-loading sections are treated as success so
// repeated calls never trigger duplicate extraction. On loader failure the
// session state is exactly as before the call.
func (s *Session) LoadSection(ctx context.Context, name string) (LoadOutcome, error) {
	s.mu.Lock()
	if s.finished() {
		s.mu.Unlock()
		return LoadIgnored, nil
	}
	if s.meta == nil {
		s.mu.Unlock()
		return LoadIgnored, ErrNoMetadata
	}
	if !s.meta.HasSection(name) {
		s.mu.Unlock()
		return LoadIgnored, fmt.Errorf("%w: %q", ErrUnknownSection, name)
	}
	if s.bank.IsLoaded(name) {
		s.mu.Unlock()
		return LoadAlreadyLoaded, nil
	}
	if s.inflight[name] {
		s.mu.Unlock()
		return LoadInProgress, nil
	}
	s.inflight[name] = true
	gen := s.gen
	text := s.sourceText
	sections := append([]string(nil), s.meta.Sections...)
	s.mu.Unlock()

	questions, err := s.loader.ExtractQuestions(ctx, text, sections, name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		// The session was reset or re-metadata'd while the call was in
		// flight; the result belongs to a dead exam.
		return LoadIgnored, nil
	}
	delete(s.inflight, name)
	if s.finished() {
		// Submitted while the call was in flight. The session is terminal;
		// committing now would change the bank and the archived results.
		return LoadIgnored, nil
	}
	if err != nil {
		return LoadIgnored, fmt.Errorf("extract questions for %q: %w", name, err)
	}

	added, ok := s.bank.AddSection(name, questions)
	if !ok {
		return LoadAlreadyLoaded, nil
	}
	for _, q := range added {
		s.answers[q.ID] = &model.UserAnswer{QuestionID: q.ID}
	}
	s.saveLocked()
	if len(added) == 0 {
		return LoadEmpty, nil
	}
	return LoadCommitted, nil
}

// IsSectionLoaded reports whether a section has been committed.
func (s *Session) IsSectionLoaded(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bank.IsLoaded(name)
}

// Start begins the timed attempt. The first declared section must already be
// loaded and at least one question must exist. Answers are reinitialized for
// every loaded question.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() {
		return nil
	}
	if s.meta == nil {
		return ErrNoMetadata
	}
	if len(s.meta.Sections) == 0 {
		return ErrNoSections
	}
	if !s.bank.IsLoaded(s.meta.Sections[0]) {
		return ErrFirstSectionNotLoaded
	}
	questions := s.bank.Questions()
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	now := time.Now()
	s.startTime = &now
	s.endTime = nil
	s.paused = false
	s.currentIndex = 0
	s.currentSection = questions[0].Section
	s.answers = make(map[string]*model.UserAnswer, len(questions))
	for _, q := range questions {
		s.answers[q.ID] = &model.UserAnswer{QuestionID: q.ID}
	}
	s.saveLocked()
	return nil
}

// Answer records the selected option (nil = skipped) for a question.
// No-op while paused or after submission.
func (s *Session) Answer(questionID string, selected *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() || s.paused || !s.started() {
		return nil
	}
	q := s.questionByIDLocked(questionID)
	if q == nil {
		return fmt.Errorf("%w: %q", ErrUnknownQuestion, questionID)
	}
	if selected != nil && !q.HasOption(*selected) {
		return fmt.Errorf("%w: %q", ErrInvalidOption, *selected)
	}
	ans := s.answers[questionID]
	ans.SelectedOption = selected
	if selected == nil {
		ans.IsCorrect = nil
	} else {
		correct := *selected == q.CorrectAnswer
		ans.IsCorrect = &correct
	}
	s.saveLocked()
	return nil
}

// AddTime accumulates best-effort seconds spent on a question.
func (s *Session) AddTime(questionID string, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() || seconds <= 0 {
		return nil
	}
	ans := s.answers[questionID]
	if ans == nil {
		return fmt.Errorf("%w: %q", ErrUnknownQuestion, questionID)
	}
	ans.TimeTakenSeconds += seconds
	s.saveLocked()
	return nil
}

// HintLevel returns how many hints the question has used so far.
func (s *Session) HintLevel(questionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ans := s.answers[questionID]; ans != nil {
		return len(ans.Hints)
	}
	return 0
}

// RecordHint reserves the next hint level for a question. Levels rise
// monotonically per question and cap at three.
func (s *Session) RecordHint(questionID string) (model.HintRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() {
		return model.HintRecord{}, ErrFinished
	}
	ans := s.answers[questionID]
	if ans == nil {
		return model.HintRecord{}, fmt.Errorf("%w: %q", ErrUnknownQuestion, questionID)
	}
	if len(ans.Hints) >= 3 {
		return model.HintRecord{}, ErrHintLimit
	}
	rec := model.HintRecord{Level: len(ans.Hints) + 1, At: time.Now()}
	ans.Hints = append(ans.Hints, rec)
	s.saveLocked()
	return rec, nil
}

// NavigateToQuestion moves to the question at the given global index.
// No-op while paused, after submission, or when the index is out of bounds.
func (s *Session) NavigateToQuestion(index int) NavOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.navigateToQuestionLocked(index)
}

func (s *Session) navigateToQuestionLocked(index int) NavOutcome {
	if s.finished() || s.paused || !s.started() {
		return NavIgnored
	}
	questions := s.bank.Questions()
	if index < 0 || index >= len(questions) {
		return NavIgnored
	}
	s.currentIndex = index
	s.currentSection = questions[index].Section
	s.saveLocked()
	return NavMoved
}

// NavigateToSection jumps to the first question of a section, loading it first
// when needed. A section loading in another call reports NavInProgress and
// changes nothing. A loaded section with zero questions becomes current with
// no current question (NavEmptySection); that is a condition, not an error.
func (s *Session) NavigateToSection(ctx context.Context, name string) (NavOutcome, error) {
	s.mu.Lock()
	if s.finished() || s.paused || !s.started() {
		s.mu.Unlock()
		return NavIgnored, nil
	}
	if s.meta == nil || !s.meta.HasSection(name) {
		s.mu.Unlock()
		return NavIgnored, fmt.Errorf("%w: %q", ErrUnknownSection, name)
	}
	if s.inflight[name] {
		s.mu.Unlock()
		return NavInProgress, nil
	}
	loaded := s.bank.IsLoaded(name)
	s.mu.Unlock()

	if !loaded {
		outcome, err := s.LoadSection(ctx, name)
		if err != nil {
			return NavIgnored, err
		}
		if outcome == LoadInProgress {
			return NavInProgress, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() || s.paused {
		return NavIgnored, nil
	}
	if idx := s.bank.FirstIndexOf(name); idx >= 0 {
		s.currentIndex = idx
		s.currentSection = name
		s.saveLocked()
		return NavMoved, nil
	}
	s.currentSection = name
	s.currentIndex = -1
	s.saveLocked()
	return NavEmptySection, nil
}

// Pause suspends the attempt. When the current question is still unattempted
// it is deferred: demoted to the end of its own section's run, or to the very
// end of the list when no other question of that section remains. The current
// position is recomputed against the new ordering.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() || !s.started() || s.paused {
		return
	}
	s.deferCurrentLocked()
	s.paused = true
	s.saveLocked()
}

func (s *Session) deferCurrentLocked() {
	questions := s.bank.Questions()
	i := s.currentIndex
	if i < 0 || i >= len(questions) {
		return
	}
	q := questions[i]
	ans := s.answers[q.ID]
	if ans == nil || !ans.Skipped() {
		return
	}

	rest := make([]model.Question, 0, len(questions)-1)
	rest = append(rest, questions[:i]...)
	rest = append(rest, questions[i+1:]...)

	insert := len(rest)
	for j := len(rest) - 1; j >= 0; j-- {
		if rest[j].Section == q.Section {
			insert = j + 1
			break
		}
	}

	out := make([]model.Question, 0, len(questions))
	out = append(out, rest[:insert]...)
	out = append(out, q)
	out = append(out, rest[insert:]...)
	s.bank.Reorder(out)

	if s.currentIndex >= len(out) {
		s.currentIndex = len(out) - 1
	}
	if s.currentIndex >= 0 {
		s.currentSection = out[s.currentIndex].Section
	}
}

// Resume clears the paused flag. No-op when finished or not started.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() || !s.started() {
		return
	}
	s.paused = false
	s.saveLocked()
}

// Submit ends the attempt. The session becomes terminal: every later mutating
// call is a no-op.
func (s *Session) Submit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished() || !s.started() {
		return
	}
	now := time.Now()
	s.endTime = &now
	s.paused = false
	s.saveLocked()
}

// Reset wipes the session back to Empty and clears the persisted snapshot.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	if s.persist != nil {
		if err := s.persist.ClearSnapshot(); err != nil {
			slog.Warn("clear snapshot failed", "error", err)
		}
	}
}

func (s *Session) resetLocked() {
	s.gen++
	s.inflight = make(map[string]bool)
	s.sourceText = ""
	s.meta = nil
	s.bank = NewBank(nil)
	s.answers = make(map[string]*model.UserAnswer)
	s.currentIndex = -1
	s.currentSection = ""
	s.startTime = nil
	s.endTime = nil
	s.paused = false
}

// Results computes the scoring report for the current state.
func (s *Session) Results() model.OverallResults {
	s.mu.Lock()
	defer s.mu.Unlock()
	return score.Compute(s.meta, s.bank.Questions(), s.answersLocked(), s.startTime, s.endTime)
}

// Questions returns a copy of the loaded questions in display order.
func (s *Session) Questions() []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Question(nil), s.bank.Questions()...)
}

// Answers returns a copy of the user answers aligned with Questions.
func (s *Session) Answers() []model.UserAnswer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answersLocked()
}

// CountInSection returns how many loaded questions belong to a section.
func (s *Session) CountInSection(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bank.CountInSection(name)
}

// Question returns the loaded question with the given id.
func (s *Session) Question(id string) (model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if q := s.questionByIDLocked(id); q != nil {
		return *q, nil
	}
	return model.Question{}, fmt.Errorf("%w: %q", ErrUnknownQuestion, id)
}

// CurrentPosition returns the current question index (-1 when none) and the
// current section name.
func (s *Session) CurrentPosition() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentIndex, s.currentSection
}

func (s *Session) answersLocked() []model.UserAnswer {
	questions := s.bank.Questions()
	out := make([]model.UserAnswer, 0, len(questions))
	for _, q := range questions {
		if ans := s.answers[q.ID]; ans != nil {
			out = append(out, *ans)
		} else {
			out = append(out, model.UserAnswer{QuestionID: q.ID})
		}
	}
	return out
}

func (s *Session) questionByIDLocked(id string) *model.Question {
	questions := s.bank.Questions()
	for i := range questions {
		if questions[i].ID == id {
			return &questions[i]
		}
	}
	return nil
}

func (s *Session) saveLocked() {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveSnapshot(s.snapshotLocked()); err != nil {
		slog.Warn("save snapshot failed", "error", err)
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
