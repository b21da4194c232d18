package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"github.com/systemtwo/research/internal/config"
)

var ErrNoChoices = errors.New("engine: no choices in completion response")

// LLM runs the crew against an OpenAI-compatible chat completion endpoint.
// Each task sees the findings of the tasks before it.
type LLM struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

func NewLLM(apiKey string, cfg config.LLMConfig) *LLM {
	oc := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return &LLM{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

func (l *LLM) Run(ctx context.Context, subject string, progress func(string)) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(subject))
	for _, n := range setupNotices {
		progress(n)
	}

	var findings []string
	var last string
	for _, t := range crewTasks {
		progress(t.noticeFor(symbol))
		out, err := l.complete(ctx, t, symbol, findings)
		if err != nil {
			return "", fmt.Errorf("%s: %w", strings.ToLower(t.title), err)
		}
		findings = append(findings, fmt.Sprintf("## %s\n\n%s", t.title, out))
		last = out
	}
	return last, nil
}

func (l *LLM) complete(ctx context.Context, t task, symbol string, findings []string) (string, error) {
	user := fmt.Sprintf(t.prompt, symbol)
	if len(findings) > 0 {
		user += "\n\nFindings so far:\n\n" + strings.Join(findings, "\n\n")
	}
	req := openai.ChatCompletionRequest{
		Model:       l.model,
		MaxTokens:   l.maxTokens,
		Temperature: l.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: fmt.Sprintf("You are the %s. %s", t.by.role, t.by.objective)},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	resp, err := l.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
