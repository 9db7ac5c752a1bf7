package model

import "time"

// SectionResult is the per-section scoring summary.
type SectionResult struct {
	Section      string  `json:"section"`
	Total        int     `json:"total"`
	Correct      int     `json:"correct"`
	Wrong        int     `json:"wrong"`
	Skipped      int     `json:"skipped"`
	ScorePercent float64 `json:"score_percent"`
}

// OverallResults is the final scoring report for one exam session.
// A session with zero questions produces a zeroed report with an empty
// Sections list; that is a valid outcome, not an error.
type OverallResults struct {
	ExamName         string          `json:"exam_name,omitempty"`
	TotalQuestions   int             `json:"total_questions"`
	CorrectAnswers   int             `json:"correct_answers"`
	WrongAnswers     int             `json:"wrong_answers"`
	SkippedAnswers   int             `json:"skipped_answers"`
	AchievedMarks    float64         `json:"achieved_marks"`
	FinalScore       float64         `json:"final_score"`
	NegativeMarking  NegativeMarking `json:"negative_marking"`
	TimeTakenSeconds int             `json:"time_taken_seconds"`
	Sections         []SectionResult `json:"sections"`
}

// ArchivedResult is one finished exam kept in the local results history.
type ArchivedResult struct {
	ID      string         `json:"id"`
	TakenAt time.Time      `json:"taken_at"`
	Results OverallResults `json:"results"`
}

// ResultsExport is the top-level JSON structure for the export command.
type ResultsExport struct {
	ExportedAt time.Time        `json:"exported_at"`
	NumResults int              `json:"num_results"`
	Results    []ArchivedResult `json:"results"`
}
