package model

import "time"

// SessionState represents the lifecycle state of an exam session.
type SessionState string

const (
	// StateEmpty is a session with no exam loaded yet.
	StateEmpty SessionState = "empty"
	// StateMetadataSet is a session whose exam metadata has been set but not started.
	StateMetadataSet SessionState = "metadata_set"
	// StateRunning is an active, unpaused session.
	StateRunning SessionState = "running"
	// StatePaused is an active session that the user paused.
	StatePaused SessionState = "paused"
	// StateFinished is a submitted session; terminal, no further mutation.
	StateFinished SessionState = "finished"
)

// ExamMetadata describes one exam paper as extracted from its source text or
// entered manually. It is immutable once the exam starts.
type ExamMetadata struct {
	Name             string   `json:"name"`
	Duration         string   `json:"duration,omitempty"`
	Sections         []string `json:"sections"`
	TotalMarks       *float64 `json:"total_marks,omitempty"`
	TotalQuestions   *int     `json:"total_questions,omitempty"`
	MarksPerQuestion *float64 `json:"marks_per_question,omitempty"`
	// NegativeMarking is the free-form descriptor from the paper, e.g. "1/4"
	// or "none". Interpretation happens in the score package.
	NegativeMarking string `json:"negative_marking,omitempty"`
}

// SectionIndex returns the position of a section in the declared order, or -1.
func (m *ExamMetadata) SectionIndex(name string) int {
	for i, s := range m.Sections {
		if s == name {
			return i
		}
	}
	return -1
}

// HasSection reports whether name is one of the declared sections.
func (m *ExamMetadata) HasSection(name string) bool {
	return m.SectionIndex(name) >= 0
}

// Question is a single multiple-choice question. Questions are created when
// their section is loaded and never mutated afterwards.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Section       string   `json:"section"`
	// OriginalNumber is the question number printed in the source paper,
	// kept as a string ("12", "3a"). Used only for stable ordering.
	OriginalNumber string `json:"original_number,omitempty"`
}

// HasOption reports whether opt is one of the question's options.
func (q *Question) HasOption(opt string) bool {
	for _, o := range q.Options {
		if o == opt {
			return true
		}
	}
	return false
}

// HintRecord is one hint handed out for a question.
type HintRecord struct {
	Level int       `json:"level"`
	At    time.Time `json:"at"`
}

// UserAnswer tracks the user's response to one question. Exactly one exists
// per loaded question. A nil SelectedOption means the question was skipped.
type UserAnswer struct {
	QuestionID       string       `json:"question_id"`
	SelectedOption   *string      `json:"selected_option"`
	IsCorrect        *bool        `json:"is_correct"`
	TimeTakenSeconds int          `json:"time_taken_seconds"`
	Hints            []HintRecord `json:"hints,omitempty"`
}

// Skipped reports whether the question was left unanswered.
func (a *UserAnswer) Skipped() bool {
	return a.SelectedOption == nil
}

// NegativeMarking is the closed interpretation of the free-form negative
// marking descriptor. Anything unrecognized maps to NegativeNone.
type NegativeMarking string

const (
	NegativeNone    NegativeMarking = "none"
	NegativeQuarter NegativeMarking = "quarter"
	NegativeThird   NegativeMarking = "third"
)

// Factor returns the per-wrong-answer penalty as a fraction of the mark value.
func (n NegativeMarking) Factor() float64 {
	switch n {
	case NegativeQuarter:
		return 0.25
	case NegativeThird:
		return 1.0 / 3.0
	default:
		return 0
	}
}

// Snapshot is the JSON-serializable projection of a session, sufficient to
// reconstruct its full state after a reload.
type Snapshot struct {
	SourceText      string        `json:"source_text,omitempty"`
	Metadata        *ExamMetadata `json:"metadata,omitempty"`
	Questions       []Question    `json:"questions"`
	Answers         []UserAnswer  `json:"answers"`
	LoadedSections  []string      `json:"loaded_sections"`
	CurrentQuestion int           `json:"current_question"`
	CurrentSection  string        `json:"current_section,omitempty"`
	StartTime       *time.Time    `json:"start_time,omitempty"`
	EndTime         *time.Time    `json:"end_time,omitempty"`
	Paused          bool          `json:"paused"`
}
