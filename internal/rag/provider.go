package rag

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/resilience"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/pkg/anthropic"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/pkg/openai"
)

// Completion is one chat model response.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
}

// ChatModel abstracts the answer model so the chain works against either
// provider.
type ChatModel interface {
	Complete(ctx context.Context, system, user string) (*Completion, error)
	// Service names the backing provider for circuit breaker bookkeeping.
	Service() string
}

type openAIChat struct {
	client openai.Client
	model  string
}

// NewOpenAIChat adapts an OpenAI client as the answer model.
func NewOpenAIChat(client openai.Client, model string) ChatModel {
	return &openAIChat{client: client, model: model}
}

func (c *openAIChat) Service() string { return resilience.ServiceOpenAI }

func (c *openAIChat) Complete(ctx context.Context, system, user string) (*Completion, error) {
	temp := 0.0
	resp, err := c.client.ChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, eris.New("rag: chat completion returned no choices")
	}
	return &Completion{
		Text:         resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

type anthropicChat struct {
	client anthropic.Client
	model  string
}

// NewAnthropicChat adapts an Anthropic client as the answer model.
func NewAnthropicChat(client anthropic.Client, model string) ChatModel {
	return &anthropicChat{client: client, model: model}
}

func (c *anthropicChat) Service() string { return resilience.ServiceAnthropic }

func (c *anthropicChat) Complete(ctx context.Context, system, user string) (*Completion, error) {
	temp := 0.0
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       c.model,
		MaxTokens:   2048,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, err
	}
	return &Completion{
		Text:         resp.Text,
		Model:        resp.Model,
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
