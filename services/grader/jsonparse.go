package grader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSONFound is returned when the model answer holds no JSON object
var ErrNoJSONFound = errors.New("no JSON object found in model output")

// SchemaError reports a model answer that does not match the declared schema
type SchemaError struct {
	Op     string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: invalid grader output: %s", e.Op, e.Reason)
}

func schemaErrorf(op, format string, args ...interface{}) error {
	return &SchemaError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// StripCodeFence removes a surrounding ``` or ```json wrapper
func StripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// language tag such as "json" on the opening fence line
		if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, "{[") {
			s = s[nl+1:]
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// extractObject returns the first balanced {...} block, honouring strings
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case c == '{' && !inString:
			depth++
		case c == '}' && !inString:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

// DecodeJSON strips fences and decodes the model answer into target.
// Trailing content after the object is rejected.
func DecodeJSON(op, raw string, target interface{}) error {
	cleaned := StripCodeFence(raw)
	if !strings.HasPrefix(cleaned, "{") {
		cleaned = extractObject(cleaned)
	}
	if cleaned == "" {
		return &SchemaError{Op: op, Reason: ErrNoJSONFound.Error()}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(cleaned)))
	dec.UseNumber()
	if err := dec.Decode(target); err != nil {
		return schemaErrorf(op, "decode: %v", err)
	}
	if dec.More() {
		return schemaErrorf(op, "unexpected trailing data")
	}
	return nil
}
