// Package summary generates short AI summaries of note content. The
// feature is premium-gated at the API layer; this package only talks to
// the model provider.
package summary

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// Model used for summaries.
const Model = "gpt-5-mini"

const systemPrompt = "You summarize personal notes. Reply with a single " +
	"plain-text paragraph of at most three sentences. Do not add headings, " +
	"bullet points, or commentary."

// maxInputChars bounds what we send to the provider per request.
const maxInputChars = 32_000

// Summarizer produces a short summary of a note.
type Summarizer interface {
	Summarize(ctx context.Context, title, content string) (string, error)
	IsMock() bool
}

// OpenAISummarizer implements Summarizer against the OpenAI API.
type OpenAISummarizer struct {
	client openai.Client
}

// NewOpenAISummarizer creates a summarizer using the given API key.
func NewOpenAISummarizer(apiKey string) *OpenAISummarizer {
	return &OpenAISummarizer{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// IsMock returns false for the real summarizer.
func (s *OpenAISummarizer) IsMock() bool { return false }

// Summarize sends the note to the model and returns a short summary.
func (s *OpenAISummarizer) Summarize(ctx context.Context, title, content string) (string, error) {
	input := fmt.Sprintf("Title: %s\n\n%s", title, content)
	if len(input) > maxInputChars {
		input = input[:maxInputChars]
	}

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(input),
		},
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("summarize: empty response")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// MockSummarizer returns deterministic summaries for tests and local
// development without an API key.
type MockSummarizer struct {
	mu    sync.Mutex
	Calls []string
}

// NewMockSummarizer creates a mock summarizer.
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{}
}

// IsMock returns true for the mock summarizer.
func (m *MockSummarizer) IsMock() bool { return true }

// Summarize records the call and returns the first sentence of the content.
func (m *MockSummarizer) Summarize(ctx context.Context, title, content string) (string, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, title)
	m.mu.Unlock()

	text := strings.TrimSpace(content)
	if text == "" {
		return "Summary of " + title, nil
	}
	if idx := strings.IndexAny(text, ".!?\n"); idx >= 0 {
		text = text[:idx+1]
	}
	return strings.TrimSpace(text), nil
}
