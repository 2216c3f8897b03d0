package grader

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-1.5-flash"

// GeminiBackend uses Google's Gemini models
type GeminiBackend struct {
	client    *genai.Client
	modelName string
}

// NewGeminiBackend creates a Gemini client for apiKey
func NewGeminiBackend(ctx context.Context, apiKey, modelName string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiBackend{client: client, modelName: modelName}, nil
}

func (b *GeminiBackend) Name() string { return "gemini" }

// Close releases the underlying client
func (b *GeminiBackend) Close() error {
	return b.client.Close()
}

// Complete asks the model for a JSON answer
func (b *GeminiBackend) Complete(ctx context.Context, p Prompt) (string, error) {
	model := b.client.GenerativeModel(b.modelName)
	model.SystemInstruction = genai.NewUserContent(genai.Text(p.System))
	model.ResponseMIMEType = "application/json"
	if p.Temperature > 0 {
		model.SetTemperature(float32(p.Temperature))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(p.User))
	if err != nil {
		return "", classifyGeminiError(err)
	}
	return responseText(resp)
}

// Transcribe sends the recording inline and asks for a verbatim transcript
func (b *GeminiBackend) Transcribe(ctx context.Context, audio []byte, mimeType, lang string) (string, error) {
	model := b.client.GenerativeModel(b.modelName)

	instruction := "Transcribe this recording verbatim. Return only the transcript text."
	if lang != "" {
		instruction += " The speaker uses language code " + lang + "."
	}

	resp, err := model.GenerateContent(ctx,
		genai.Blob{MIMEType: mimeType, Data: audio},
		genai.Text(instruction),
	)
	if err != nil {
		return "", classifyGeminiError(err)
	}
	text, err := responseText(resp)
	return strings.TrimSpace(text), err
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("gemini returned no content")
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("gemini returned an empty answer")
	}
	return sb.String(), nil
}

// classifyGeminiError turns API errors into StatusError so retry rules apply
func classifyGeminiError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &StatusError{Provider: "gemini", StatusCode: apiErr.Code, Body: apiErr.Message}
	}
	return fmt.Errorf("gemini request failed: %w", err)
}
