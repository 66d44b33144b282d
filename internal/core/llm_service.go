package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModelName = "gemini-1.5-flash-latest"

// LLMService generates text with Gemini.
type LLMService struct {
	client    *genai.Client
	modelName string
}

func NewLLMService(ctx context.Context, apiKey, modelName string) (*LLMService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if modelName == "" {
		modelName = defaultGeminiModelName
	}
	slog.Info("Initializing Gemini client", "model", modelName)
	return &LLMService{client: client, modelName: modelName}, nil
}

func (s *LLMService) Name() string { return "gemini" }

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			slog.Error("Error closing GenAI client", "error", err)
		} else {
			slog.Info("GenAI client closed")
		}
	}
}

func (s *LLMService) Generate(ctx context.Context, req GenerationRequest) (string, error) {
	model := s.client.GenerativeModel(s.modelName)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
		model.ResponseSchema = req.Schema
	}

	history, message := geminiHistory(req.History, req.Prompt)

	chatSession := model.StartChat()
	chatSession.History = history

	resp, err := chatSession.SendMessage(ctx, message...)
	if err != nil {
		return "", fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("gemini response was empty or had no valid candidates")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			slog.Debug("Gemini response part was not text", "type", fmt.Sprintf("%T", part))
		}
	}

	if responseText.Len() == 0 {
		return "", errors.New("gemini response contained no text")
	}
	return responseText.String(), nil
}

// geminiHistory maps a conversation onto Gemini chat contents. Gemini expects the chat
// to open with a user turn and to alternate roles, so a synthetic opener is added when
// the conversation starts with the assistant, and a trailing user turn is folded into
// the outgoing message together with the prompt.
func geminiHistory(turns []Turn, prompt string) ([]*genai.Content, []genai.Part) {
	var history []*genai.Content
	if len(turns) > 0 && turns[0].Role != RoleUser {
		history = append(history, &genai.Content{
			Role:  "user",
			Parts: []genai.Part{genai.Text("I'd like to log an activity I just finished.")},
		})
	}
	for _, t := range turns {
		role := "model"
		if t.Role == RoleUser {
			role = "user"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(t.Content)}})
	}

	message := []genai.Part{genai.Text(prompt)}
	if n := len(history); n > 0 && history[n-1].Role == "user" {
		last := history[n-1]
		history = history[:n-1]
		message = append(append([]genai.Part{}, last.Parts...), genai.Text(prompt))
	}
	return history, message
}
