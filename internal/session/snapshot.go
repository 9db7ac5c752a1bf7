package session

import "examsim/internal/model"

// Snapshot projects the full session state into its serializable form.
func (s *Session) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() model.Snapshot {
	snap := model.Snapshot{
		SourceText:      s.sourceText,
		Questions:       append([]model.Question{}, s.bank.Questions()...),
		Answers:         s.answersLocked(),
		LoadedSections:  s.bank.LoadedSections(),
		CurrentQuestion: s.currentIndex,
		CurrentSection:  s.currentSection,
		Paused:          s.paused,
	}
	if s.meta != nil {
		m := *s.meta
		m.Sections = append([]string(nil), s.meta.Sections...)
		snap.Metadata = &m
	}
	if s.startTime != nil {
		t := *s.startTime
		snap.StartTime = &t
	}
	if s.endTime != nil {
		t := *s.endTime
		snap.EndTime = &t
	}
	return snap
}

// Restore rebuilds the session from a snapshot, validating it against its own
// metadata: loaded sections outside the declared list and questions violating
// the option invariant are discarded. When the snapshot was mid-attempt
// (started, not submitted) the previously active question and section are
// resumed; otherwise navigation resets to the first question.
func (s *Session) Restore(snap model.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.sourceText = snap.SourceText
	if snap.Metadata == nil {
		return
	}

	meta := *snap.Metadata
	meta.Sections = dedupe(meta.Sections)
	s.meta = &meta
	s.bank = NewBank(meta.Sections)
	s.bank.Restore(snap.LoadedSections, snap.Questions)

	questions := s.bank.Questions()
	byID := make(map[string]bool, len(questions))
	for _, q := range questions {
		byID[q.ID] = true
		s.answers[q.ID] = &model.UserAnswer{QuestionID: q.ID}
	}
	for _, a := range snap.Answers {
		if !byID[a.QuestionID] {
			continue
		}
		ans := a
		s.answers[a.QuestionID] = &ans
	}

	if snap.StartTime != nil {
		t := *snap.StartTime
		s.startTime = &t
	}
	if snap.EndTime != nil {
		t := *snap.EndTime
		s.endTime = &t
	}
	s.paused = snap.Paused && s.started() && !s.finished()

	if s.started() && !s.finished() &&
		snap.CurrentQuestion >= 0 && snap.CurrentQuestion < len(questions) {
		s.currentIndex = snap.CurrentQuestion
		s.currentSection = questions[s.currentIndex].Section
		return
	}

	if len(questions) > 0 {
		s.currentIndex = 0
		s.currentSection = questions[0].Section
	} else {
		s.currentIndex = -1
		if len(meta.Sections) > 0 {
			s.currentSection = meta.Sections[0]
		}
	}
}
