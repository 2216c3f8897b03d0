package grader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultOpenAIBaseURL is the OpenAI API base URL
	DefaultOpenAIBaseURL = "https://api.openai.com"
	// DefaultOpenAIModel is used when no model is configured
	DefaultOpenAIModel = "gpt-4o-mini"
	// DefaultTranscribeModel is the speech-to-text model
	DefaultTranscribeModel = "whisper-1"
)

// OpenAIConfig holds configuration for an OpenAI-compatible backend
type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	TranscribeModel string
	Timeout         time.Duration
}

// OpenAIBackend speaks the OpenAI chat completions and transcription APIs
type OpenAIBackend struct {
	apiKey          string
	baseURL         string
	model           string
	transcribeModel string
	httpClient      *http.Client
}

// NewOpenAIBackend creates a new OpenAI-compatible backend
func NewOpenAIBackend(config OpenAIConfig) *OpenAIBackend {
	if config.BaseURL == "" {
		config.BaseURL = DefaultOpenAIBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultOpenAIModel
	}
	if config.TranscribeModel == "" {
		config.TranscribeModel = DefaultTranscribeModel
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &OpenAIBackend{
		apiKey:          config.APIKey,
		baseURL:         strings.TrimRight(config.BaseURL, "/"),
		model:           config.Model,
		transcribeModel: config.TranscribeModel,
		httpClient:      &http.Client{Timeout: config.Timeout},
	}
}

func (b *OpenAIBackend) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type jsonSchema struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
	Strict bool                   `json:"strict,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

// Complete sends a chat completion request with a JSON schema response format
func (b *OpenAIBackend) Complete(ctx context.Context, p Prompt) (string, error) {
	req := chatRequest{
		Model: b.model,
		Messages: []chatMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		Temperature:    p.Temperature,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	if p.Schema != nil {
		req.ResponseFormat = &responseFormat{
			Type:       "json_schema",
			JSONSchema: &jsonSchema{Name: p.SchemaName, Schema: p.Schema},
		}
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	respBody, err := b.do(httpReq)
	if err != nil {
		return "", err
	}

	var result chatResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from %s", b.Name())
	}
	return result.Choices[0].Message.Content, nil
}

// Transcribe uploads audio to the transcription endpoint
func (b *OpenAIBackend) Transcribe(ctx context.Context, audio []byte, mimeType, lang string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	ext := "webm"
	if exts, _ := mime.ExtensionsByType(mimeType); len(exts) > 0 {
		ext = strings.TrimPrefix(exts[0], ".")
	}
	part, err := writer.CreateFormFile("file", "answer."+ext)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("failed to write audio: %w", err)
	}
	_ = writer.WriteField("model", b.transcribeModel)
	_ = writer.WriteField("response_format", "json")
	if lang != "" {
		_ = writer.WriteField("language", lang)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finish form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v1/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	respBody, err := b.do(httpReq)
	if err != nil {
		return "", err
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to decode transcription: %w", err)
	}
	return strings.TrimSpace(result.Text), nil
}

func (b *OpenAIBackend) do(req *http.Request) ([]byte, error) {
	req.Header.Set("Authorization", "Bearer "+b.apiKey)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{
			Provider:   b.Name(),
			StatusCode: resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: ParseRetryAfter(resp),
		}
	}
	return respBody, nil
}
