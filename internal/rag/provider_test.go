package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuamatalon/Cognitive-Companion-Agent/internal/resilience"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/pkg/anthropic"
	"github.com/joshuamatalon/Cognitive-Companion-Agent/pkg/openai"
)

type stubOpenAI struct {
	req openai.ChatCompletionRequest
}

func (s *stubOpenAI) Embed(_ context.Context, _ []string) (*openai.EmbeddingResponse, error) {
	return &openai.EmbeddingResponse{}, nil
}

func (s *stubOpenAI) ChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionResponse, error) {
	s.req = req
	return &openai.ChatCompletionResponse{
		Model:   "gpt-4o",
		Choices: []openai.Choice{{Message: openai.Message{Role: "assistant", Content: "hello"}}},
		Usage:   openai.Usage{PromptTokens: 12, CompletionTokens: 4},
	}, nil
}

type stubAnthropic struct {
	req anthropic.MessageRequest
}

func (s *stubAnthropic) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	s.req = req
	return &anthropic.MessageResponse{
		Model: "claude-sonnet-4-5-20250929",
		Text:  "hi there",
		Usage: anthropic.TokenUsage{InputTokens: 20, OutputTokens: 6},
	}, nil
}

func TestOpenAIChat_Complete(t *testing.T) {
	t.Parallel()

	stub := &stubOpenAI{}
	chat := NewOpenAIChat(stub, "gpt-4o")
	assert.Equal(t, resilience.ServiceOpenAI, chat.Service())

	comp, err := chat.Complete(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)

	assert.Equal(t, "hello", comp.Text)
	assert.Equal(t, 12, comp.InputTokens)
	assert.Equal(t, 4, comp.OutputTokens)

	require.Len(t, stub.req.Messages, 2)
	assert.Equal(t, "system", stub.req.Messages[0].Role)
	assert.Equal(t, "system prompt", stub.req.Messages[0].Content)
	assert.Equal(t, "user", stub.req.Messages[1].Role)
	require.NotNil(t, stub.req.Temperature)
	assert.Zero(t, *stub.req.Temperature)
}

func TestAnthropicChat_Complete(t *testing.T) {
	t.Parallel()

	stub := &stubAnthropic{}
	chat := NewAnthropicChat(stub, "claude-sonnet-4-5-20250929")
	assert.Equal(t, resilience.ServiceAnthropic, chat.Service())

	comp, err := chat.Complete(context.Background(), "system prompt", "user prompt")
	require.NoError(t, err)

	assert.Equal(t, "hi there", comp.Text)
	assert.Equal(t, 20, comp.InputTokens)

	assert.Equal(t, "system prompt", stub.req.System)
	require.Len(t, stub.req.Messages, 1)
	assert.Equal(t, "user", stub.req.Messages[0].Role)
}
