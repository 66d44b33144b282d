package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIGenerator generates text with the OpenAI chat completions API.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

func NewOpenAIGenerator(apiKey, model string) *OpenAIGenerator {
	if model == "" {
		model = defaultOpenAIModel
		slog.Warn("LLM_MODEL not set, defaulting", "model", model)
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return newOpenAIGenerator(openai.DefaultConfig(apiKey), model)
}

func newOpenAIGenerator(cfg openai.ClientConfig, model string) *OpenAIGenerator {
	return &OpenAIGenerator{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAIGenerator) Name() string { return "openai" }

func (o *OpenAIGenerator) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openAIRequest(o.model, req))
	if err != nil {
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", errors.New("OpenAI returned no content")
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

func openAIRequest(model string, req GenerationRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, t := range req.History {
		role := openai.ChatMessageRoleAssistant
		if t.Role == RoleUser {
			role = openai.ChatMessageRoleUser
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: t.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})

	out := openai.ChatCompletionRequest{Model: model, Messages: messages}
	if req.JSON {
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}
	return out
}
