// Package prompts builds the LLM prompts from embedded templates.
package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"examsim/internal/model"
)

//go:embed templates/*.txt
var templateFS embed.FS

// maxExamTextRunes caps how much of the paper is sent per request. Papers
// longer than this get truncated with a marker so the model knows text is
// missing.
const maxExamTextRunes = 60000

var (
	loadOnce     sync.Once
	loadErr      error
	examInfoTmpl *template.Template
	sectionTmpl  *template.Template
	hintTmpl     *template.Template
)

func load() error {
	loadOnce.Do(func() {
		parse := func(name string) *template.Template {
			if loadErr != nil {
				return nil
			}
			content, err := templateFS.ReadFile("templates/" + name + ".txt")
			if err != nil {
				loadErr = fmt.Errorf("read prompt template %s: %w", name, err)
				return nil
			}
			tmpl, err := template.New(name).Parse(string(content))
			if err != nil {
				loadErr = fmt.Errorf("parse prompt template %s: %w", name, err)
				return nil
			}
			return tmpl
		}
		examInfoTmpl = parse("exam_info")
		sectionTmpl = parse("section_questions")
		hintTmpl = parse("hint")
	})
	return loadErr
}

type examInfoData struct {
	ExamText string
}

type sectionData struct {
	ExamText    string
	AllSections string
	Section     string
}

type hintData struct {
	QuestionText string
	Options      string
	Level        int
}

// BuildExamInfo builds the metadata extraction prompt for an exam paper.
func BuildExamInfo(examText string) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	return execute(examInfoTmpl, examInfoData{ExamText: truncate(examText)})
}

// BuildSectionQuestions builds the prompt extracting one section's questions.
func BuildSectionQuestions(examText string, sections []string, target string) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	return execute(sectionTmpl, sectionData{
		ExamText:    truncate(examText),
		AllSections: strings.Join(sections, ", "),
		Section:     target,
	})
}

// BuildHint builds a hint prompt for a question at the given level (1..3).
func BuildHint(q model.Question, level int) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	if level < 1 {
		level = 1
	}
	if level > 3 {
		level = 3
	}
	return execute(hintTmpl, hintData{
		QuestionText: q.Text,
		Options:      strings.Join(q.Options, "\n"),
		Level:        level,
	})
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func truncate(text string) string {
	if utf8.RuneCountInString(text) <= maxExamTextRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxExamTextRunes]) + "\n\n[Paper truncated due to length]"
}
