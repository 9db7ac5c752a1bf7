package session

import (
	"sort"
	"strconv"
	"strings"

	"examsim/internal/model"
)

// Bank is the single source of truth for which sections have been loaded and
// for the global display order of all loaded questions.
type Bank struct {
	sections  []string
	loaded    map[string]bool
	questions []model.Question
}

// NewBank creates a bank for an exam with the given declared section order.
func NewBank(sections []string) *Bank {
	return &Bank{
		sections: append([]string(nil), sections...),
		loaded:   make(map[string]bool),
	}
}

// IsLoaded reports whether a section's questions have been committed.
func (b *Bank) IsLoaded(name string) bool {
	return b.loaded[name]
}

// LoadedSections returns the loaded section names in declared order.
func (b *Bank) LoadedSections() []string {
	var out []string
	for _, s := range b.sections {
		if b.loaded[s] {
			out = append(out, s)
		}
	}
	return out
}

// AddSection commits the questions of one section. It is a no-op returning
// ok=false when the section is already loaded. Questions whose correct answer
// is not among their options, or with fewer than two options, or with empty
// text, are dropped here; they must never reach the session. Any stale
// questions lingering for the section are replaced. The full set is re-sorted
// into the deterministic global order afterwards.
func (b *Bank) AddSection(name string, questions []model.Question) (added []model.Question, ok bool) {
	if b.loaded[name] {
		return nil, false
	}

	kept := b.questions[:0]
	for _, q := range b.questions {
		if q.Section != name {
			kept = append(kept, q)
		}
	}
	b.questions = kept

	for _, q := range questions {
		if strings.TrimSpace(q.Text) == "" || len(q.Options) < 2 || !q.HasOption(q.CorrectAnswer) {
			continue
		}
		q.Section = name
		added = append(added, q)
	}

	b.questions = append(b.questions, added...)
	b.loaded[name] = true
	b.sortQuestions()
	return added, true
}

// Questions returns all loaded questions in global display order.
// The returned slice is the bank's own; callers must not modify it.
func (b *Bank) Questions() []model.Question {
	return b.questions
}

// FirstIndexOf returns the global index of the first question in the given
// section, or -1 when the section has no questions.
func (b *Bank) FirstIndexOf(section string) int {
	for i, q := range b.questions {
		if q.Section == section {
			return i
		}
	}
	return -1
}

// CountInSection returns how many questions belong to a section.
func (b *Bank) CountInSection(section string) int {
	n := 0
	for _, q := range b.questions {
		if q.Section == section {
			n++
		}
	}
	return n
}

// Reorder replaces the global order with the given permutation of the current
// question set. Used by the pause deferral; the bank does not re-sort after.
func (b *Bank) Reorder(questions []model.Question) {
	b.questions = questions
}

// Restore rebuilds the bank from persisted state, keeping the given question
// order verbatim (it may carry a pause-deferral permutation). Sections outside
// the declared list and questions violating the option invariant are dropped.
func (b *Bank) Restore(loaded []string, questions []model.Question) {
	b.loaded = make(map[string]bool)
	declared := make(map[string]bool, len(b.sections))
	for _, s := range b.sections {
		declared[s] = true
	}
	for _, s := range loaded {
		if declared[s] {
			b.loaded[s] = true
		}
	}
	b.questions = nil
	for _, q := range questions {
		if b.loaded[q.Section] && len(q.Options) >= 2 && q.HasOption(q.CorrectAnswer) {
			b.questions = append(b.questions, q)
		}
	}
}

// Reset drops all questions and loaded-section marks, keeping the section order.
func (b *Bank) Reset() {
	b.loaded = make(map[string]bool)
	b.questions = nil
}

// sortQuestions orders by section position in the declared order, then by the
// numeric value of the original question number. Non-numeric or missing
// numbers sort after numeric ones, with a lexical tie-break. The sort is
// stable so equal keys keep their insertion order.
func (b *Bank) sortQuestions() {
	idx := make(map[string]int, len(b.sections))
	for i, s := range b.sections {
		idx[s] = i
	}
	sort.SliceStable(b.questions, func(i, j int) bool {
		qi, qj := b.questions[i], b.questions[j]
		if idx[qi.Section] != idx[qj.Section] {
			return idx[qi.Section] < idx[qj.Section]
		}
		return questionNumberLess(qi.OriginalNumber, qj.OriginalNumber)
	})
}

// questionNumberLess compares original question numbers: numeric before
// non-numeric, numeric ascending, non-numeric lexically.
func questionNumberLess(a, b string) bool {
	na, errA := strconv.Atoi(strings.TrimSpace(a))
	nb, errB := strconv.Atoi(strings.TrimSpace(b))
	switch {
	case errA == nil && errB == nil:
		if na != nb {
			return na < nb
		}
		return a < b
	case errA == nil:
		return true
	case errB == nil:
		return false
	default:
		return a < b
	}
}
