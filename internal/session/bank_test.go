package session

import (
	"testing"

	"examsim/internal/model"
)

func mkQuestion(id, section, number string) model.Question {
	return model.Question{
		ID:             id,
		Text:           "question " + id,
		Options:        []string{"opt a", "opt b", "opt c"},
		CorrectAnswer:  "opt a",
		Section:        section,
		OriginalNumber: number,
	}
}

func bankIDs(b *Bank) []string {
	var ids []string
	for _, q := range b.Questions() {
		ids = append(ids, q.ID)
	}
	return ids
}

func TestBankAddSectionFiltersInvalidQuestions(t *testing.T) {
	b := NewBank([]string{"A"})

	bad1 := mkQuestion("bad1", "A", "1")
	bad1.CorrectAnswer = "not an option"
	bad2 := mkQuestion("bad2", "A", "2")
	bad2.Options = []string{"only one"}
	bad2.CorrectAnswer = "only one"
	bad3 := mkQuestion("bad3", "A", "3")
	bad3.Text = "   "
	good := mkQuestion("good", "A", "4")

	added, ok := b.AddSection("A", []model.Question{bad1, bad2, bad3, good})
	if !ok {
		t.Fatal("AddSection reported already loaded")
	}
	if len(added) != 1 || added[0].ID != "good" {
		t.Fatalf("expected only the valid question to survive, got %v", added)
	}
	if len(b.Questions()) != 1 {
		t.Fatalf("expected 1 question in bank, got %d", len(b.Questions()))
	}
}

func TestBankAddSectionIdempotent(t *testing.T) {
	b := NewBank([]string{"A"})

	if _, ok := b.AddSection("A", []model.Question{mkQuestion("q1", "A", "1")}); !ok {
		t.Fatal("first AddSection failed")
	}
	if _, ok := b.AddSection("A", []model.Question{mkQuestion("q2", "A", "2")}); ok {
		t.Fatal("second AddSection for same section should report already loaded")
	}
	if got := bankIDs(b); len(got) != 1 || got[0] != "q1" {
		t.Errorf("bank contents changed by rejected add: %v", got)
	}
}

func TestBankSectionOrderWinsOverLoadOrder(t *testing.T) {
	b := NewBank([]string{"A", "B"})

	// B loads first; A loads later with numbers out of order.
	b.AddSection("B", []model.Question{mkQuestion("b1", "B", "1")})
	b.AddSection("A", []model.Question{
		mkQuestion("a2", "A", "2"),
		mkQuestion("a1", "A", "1"),
	})

	want := []string{"a1", "a2", "b1"}
	got := bankIDs(b)
	if len(got) != len(want) {
		t.Fatalf("expected %d questions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestBankNumericBeforeLexicalOrdering(t *testing.T) {
	b := NewBank([]string{"A"})
	b.AddSection("A", []model.Question{
		mkQuestion("qx", "A", "2b"),
		mkQuestion("q10", "A", "10"),
		mkQuestion("q2", "A", "2"),
		mkQuestion("qnone", "A", ""),
	})

	// Numeric ascending first (2 before 10), then non-numeric lexically.
	want := []string{"q2", "q10", "qnone", "qx"}
	got := bankIDs(b)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestBankFirstIndexAndCount(t *testing.T) {
	b := NewBank([]string{"A", "B"})
	b.AddSection("A", []model.Question{mkQuestion("a1", "A", "1"), mkQuestion("a2", "A", "2")})
	b.AddSection("B", nil)

	if idx := b.FirstIndexOf("A"); idx != 0 {
		t.Errorf("FirstIndexOf(A) = %d, want 0", idx)
	}
	if idx := b.FirstIndexOf("B"); idx != -1 {
		t.Errorf("FirstIndexOf(B) = %d, want -1 (empty section)", idx)
	}
	if !b.IsLoaded("B") {
		t.Error("empty section should still be marked loaded")
	}
	if n := b.CountInSection("A"); n != 2 {
		t.Errorf("CountInSection(A) = %d, want 2", n)
	}
}

func TestBankRestoreKeepsOrderAndValidates(t *testing.T) {
	b := NewBank([]string{"A", "B"})

	bad := mkQuestion("bad", "A", "9")
	bad.CorrectAnswer = "elsewhere"
	stray := mkQuestion("stray", "C", "1")

	// Deliberately not sorted: restore must keep the given permutation.
	b.Restore([]string{"A", "C"}, []model.Question{
		mkQuestion("a2", "A", "2"),
		mkQuestion("a1", "A", "1"),
		bad,
		stray,
	})

	got := bankIDs(b)
	want := []string{"a2", "a1"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("restored order = %v, want %v", got, want)
	}
	if b.IsLoaded("C") {
		t.Error("undeclared section must not restore as loaded")
	}
}
