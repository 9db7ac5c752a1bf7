// Package score computes exam results from final session state.
// All functions are pure; they never mutate their inputs.
package score

import (
	"math"
	"strings"
	"time"

	"examsim/internal/model"
)

// ParseNegativeMarking interprets the free-form negative marking descriptor
// from an exam paper. The matching is a deliberate best-effort substring
// heuristic: anything unrecognized yields NegativeNone (no penalty) rather
// than guessing.
func ParseNegativeMarking(s string) model.NegativeMarking {
	ls := strings.ToLower(strings.TrimSpace(s))
	switch {
	case ls == "":
		return model.NegativeNone
	case strings.Contains(ls, "1/4") || strings.Contains(ls, "0.25"):
		return model.NegativeQuarter
	case strings.Contains(ls, "1/3") || strings.Contains(ls, "0.33"):
		return model.NegativeThird
	default:
		return model.NegativeNone
	}
}

// markValue returns the marks one question is worth.
func markValue(meta *model.ExamMetadata) float64 {
	if meta == nil {
		return 1
	}
	if meta.MarksPerQuestion != nil && *meta.MarksPerQuestion > 0 {
		return *meta.MarksPerQuestion
	}
	if meta.TotalMarks != nil && meta.TotalQuestions != nil && *meta.TotalQuestions > 0 {
		return *meta.TotalMarks / float64(*meta.TotalQuestions)
	}
	return 1
}

// Compute builds the overall results for a finished (or in-progress) session.
// Questions and answers are paired by position; answers[i] must belong to
// questions[i]. Sections appear in the order declared by the metadata.
func Compute(meta *model.ExamMetadata, questions []model.Question, answers []model.UserAnswer, start, end *time.Time) model.OverallResults {
	res := model.OverallResults{
		NegativeMarking: model.NegativeNone,
		Sections:        []model.SectionResult{},
	}
	if meta != nil {
		res.ExamName = meta.Name
		res.NegativeMarking = ParseNegativeMarking(meta.NegativeMarking)
	}
	if start != nil && end != nil && end.After(*start) {
		res.TimeTakenSeconds = int(end.Sub(*start).Seconds())
	}
	if len(questions) == 0 {
		return res
	}

	mark := markValue(meta)
	factor := res.NegativeMarking.Factor()

	type tally struct {
		total, correct, wrong, skipped int
	}
	tallies := map[string]*tally{}
	var order []string
	if meta != nil {
		order = append([]string(nil), meta.Sections...)
	}

	for i, q := range questions {
		t := tallies[q.Section]
		if t == nil {
			t = &tally{}
			tallies[q.Section] = t
			if meta == nil || !meta.HasSection(q.Section) {
				order = append(order, q.Section)
			}
		}
		t.total++
		if i >= len(answers) || answers[i].Skipped() {
			t.skipped++
			continue
		}
		if answers[i].IsCorrect != nil && *answers[i].IsCorrect {
			t.correct++
		} else {
			t.wrong++
		}
	}

	for _, name := range order {
		t, ok := tallies[name]
		if !ok {
			continue
		}
		sr := model.SectionResult{
			Section: name,
			Total:   t.total,
			Correct: t.correct,
			Wrong:   t.wrong,
			Skipped: t.skipped,
		}
		if t.total > 0 {
			raw := (float64(t.correct)*mark - float64(t.wrong)*mark*factor) / (float64(t.total) * mark) * 100
			sr.ScorePercent = round2(math.Max(0, raw))
		}
		res.Sections = append(res.Sections, sr)
		res.TotalQuestions += t.total
		res.CorrectAnswers += t.correct
		res.WrongAnswers += t.wrong
		res.SkippedAnswers += t.skipped
	}

	achieved := float64(res.CorrectAnswers)*mark - float64(res.WrongAnswers)*mark*factor
	res.AchievedMarks = round2(math.Max(0, achieved))

	var score float64
	if meta != nil && meta.TotalMarks != nil && *meta.TotalMarks > 0 {
		score = achieved / *meta.TotalMarks * 100
	} else if res.TotalQuestions > 0 {
		score = float64(res.CorrectAnswers) / float64(res.TotalQuestions) * 100
	}
	res.FinalScore = round2(math.Max(0, score))

	return res
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
