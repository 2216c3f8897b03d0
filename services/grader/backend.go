package grader

import "context"

// Prompt is one role-separated request with a declared output schema
type Prompt struct {
	System     string
	User       string
	SchemaName string
	Schema     map[string]interface{}
	// Temperature 0 lets the backend pick its default
	Temperature float64
}

// Backend is a large language model provider
type Backend interface {
	// Complete returns the raw text of the model's JSON answer
	Complete(ctx context.Context, p Prompt) (string, error)
	// Transcribe converts recorded speech to text
	Transcribe(ctx context.Context, audio []byte, mimeType, lang string) (string, error)
	Name() string
}
