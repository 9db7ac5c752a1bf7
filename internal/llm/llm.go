// Package llm extracts exam metadata, questions, and hints from an exam
// paper's raw text through an OpenAI-compatible chat API.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"examsim/internal/llm/prompts"
	"examsim/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
)

// metadataRecord is the raw metadata shape the model is asked to produce.
type metadataRecord struct {
	ExamName         string   `json:"exam_name"`
	Duration         string   `json:"duration"`
	Sections         []string `json:"sections" validate:"required,min=1"`
	TotalMarks       *float64 `json:"total_marks"`
	TotalQuestions   *int     `json:"total_questions"`
	MarksPerQuestion *float64 `json:"marks_per_question"`
	NegativeMarking  string   `json:"negative_marking"`
}

// questionRecord is the raw question shape the model is asked to produce.
// Records failing validation are dropped, never surfaced to the session.
type questionRecord struct {
	QuestionText   string   `json:"question_text" validate:"required"`
	Options        []string `json:"options" validate:"required,min=2,unique"`
	CorrectAnswer  string   `json:"correct_answer" validate:"required"`
	OriginalNumber string   `json:"original_number"`
}

type questionList struct {
	Questions []questionRecord `json:"questions"`
}

// Client wraps an OpenAI-compatible API client.
type Client struct {
	api      *openai.Client
	model    string
	validate *validator.Validate
}

// New creates a new LLM client.
func New(baseURL, apiKey, modelName string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		api:      openai.NewClientWithConfig(config),
		model:    modelName,
		validate: validator.New(),
	}
}

// Ping verifies the API endpoint is reachable and the credentials work.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.ListModels(ctx); err != nil {
		return fmt.Errorf("LLM endpoint unreachable: %w", err)
	}
	return nil
}

// ExtractExamInfo pulls the exam metadata (name, sections, marking scheme)
// out of the paper text without extracting any questions.
func (c *Client) ExtractExamInfo(ctx context.Context, examText string) (*model.ExamMetadata, error) {
	prompt, err := prompts.BuildExamInfo(examText)
	if err != nil {
		return nil, err
	}

	raw, err := c.completeJSON(ctx, prompt, 0.1)
	if err != nil {
		return nil, fmt.Errorf("exam info extraction: %w", err)
	}

	var rec metadataRecord
	if err := json.Unmarshal([]byte(stripJSONFence(raw)), &rec); err != nil {
		return nil, fmt.Errorf("parse exam info response: %w (raw: %s)", err, raw)
	}
	if err := c.validate.Struct(&rec); err != nil {
		return nil, fmt.Errorf("exam info failed validation: %w", err)
	}

	return &model.ExamMetadata{
		Name:             strings.TrimSpace(rec.ExamName),
		Duration:         strings.TrimSpace(rec.Duration),
		Sections:         rec.Sections,
		TotalMarks:       rec.TotalMarks,
		TotalQuestions:   rec.TotalQuestions,
		MarksPerQuestion: rec.MarksPerQuestion,
		NegativeMarking:  strings.TrimSpace(rec.NegativeMarking),
	}, nil
}

// ExtractQuestions pulls one section's multiple-choice questions out of the
// paper text. Records whose correct answer is not among their options, or that
// fail field validation, are dropped with a log line. Zero questions is a
// legitimate result.
func (c *Client) ExtractQuestions(ctx context.Context, examText string, sections []string, target string) ([]model.Question, error) {
	prompt, err := prompts.BuildSectionQuestions(examText, sections, target)
	if err != nil {
		return nil, err
	}

	raw, err := c.completeJSON(ctx, prompt, 0.2)
	if err != nil {
		return nil, fmt.Errorf("question extraction for %q: %w", target, err)
	}
	return c.parseQuestions(raw, target)
}

func (c *Client) parseQuestions(raw, target string) ([]model.Question, error) {
	var list questionList
	if err := json.Unmarshal([]byte(stripJSONFence(raw)), &list); err != nil {
		return nil, fmt.Errorf("parse questions response: %w (raw: %s)", err, raw)
	}

	questions := make([]model.Question, 0, len(list.Questions))
	for i, rec := range list.Questions {
		if err := c.validate.Struct(&rec); err != nil {
			slog.Debug("dropping invalid question record", "section", target, "index", i, "error", err)
			continue
		}
		q := model.Question{
			ID:             uuid.NewString(),
			Text:           strings.TrimSpace(rec.QuestionText),
			Options:        rec.Options,
			CorrectAnswer:  rec.CorrectAnswer,
			Section:        target,
			OriginalNumber: strings.TrimSpace(rec.OriginalNumber),
		}
		if !q.HasOption(q.CorrectAnswer) {
			slog.Debug("dropping question with correct answer outside options", "section", target, "index", i)
			continue
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// GenerateHint produces a hint for a question without revealing the answer.
// Level runs 1 (vaguest) to 3 (most specific).
func (c *Client) GenerateHint(ctx context.Context, q model.Question, level int) (string, error) {
	prompt, err := prompts.BuildHint(q, level)
	if err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return "", fmt.Errorf("hint generation: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices for hint")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *Client) completeJSON(ctx context.Context, prompt string, temperature float32) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("LLM API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("LLM returned no choices")
	}
	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "raw", raw)
	return raw, nil
}

// stripJSONFence removes a markdown code fence some models wrap JSON in even
// when asked for a bare object.
func stripJSONFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
