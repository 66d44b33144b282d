package core

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiHistory_OpensWithUserAndFoldsTrailingUserTurn(t *testing.T) {
	turns := []Turn{
		{Role: RoleAssistant, Content: "How was your yoga session?"},
		{Role: RoleUser, Content: "Relaxing."},
	}

	history, message := geminiHistory(turns, "Ask a follow-up.")

	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, genai.Text("How was your yoga session?"), history[1].Parts[0])

	require.Len(t, message, 2)
	assert.Equal(t, genai.Text("Relaxing."), message[0])
	assert.Equal(t, genai.Text("Ask a follow-up."), message[1])
}

func TestGeminiHistory_Empty(t *testing.T) {
	history, message := geminiHistory(nil, "Ask an opening question.")
	assert.Empty(t, history)
	assert.Equal(t, []genai.Part{genai.Text("Ask an opening question.")}, message)
}

func TestOpenAIGenerator_Generate(t *testing.T) {
	var got openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"summary\":\"ok\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"
	gen := newOpenAIGenerator(cfg, "gpt-test")

	out, err := gen.Generate(context.Background(), GenerationRequest{
		System:  "system",
		Prompt:  "report please",
		History: []Turn{{Role: RoleAssistant, Content: "q1"}, {Role: RoleUser, Content: "a1"}},
		JSON:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, out)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, got.Messages[1].Role)
	assert.Equal(t, openai.ChatMessageRoleUser, got.Messages[2].Role)
	assert.Equal(t, "report please", got.Messages[3].Content)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, got.ResponseFormat.Type)
}

func TestOpenAIGenerator_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = srv.URL + "/v1"

	_, err := newOpenAIGenerator(cfg, "gpt-test").Generate(context.Background(), GenerationRequest{Prompt: "hi"})
	require.Error(t, err)
}
