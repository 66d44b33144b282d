package core

import (
	"context"

	"github.com/google/generative-ai-go/genai"
)

// GenerationRequest is one prompt to a text-generation provider.
type GenerationRequest struct {
	System  string
	Prompt  string
	History []Turn // prior conversation, oldest first
	JSON    bool   // require a JSON document in the reply
	// Schema constrains JSON output on providers that support response schemas.
	Schema *genai.Schema
}

// TextGenerator turns a prompt (plus optional history) into generated text.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Name() string
}
