package validation

import (
	"testing"

	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
	Kind     string `json:"kind" validate:"omitempty,test_kind"`
}

func TestCheckReportsJSONFieldNames(t *testing.T) {
	v := NewValidator()
	err := v.Check(sample{Email: "nope", Password: "12345678", Kind: "math"})
	require.Error(t, err)

	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Equal(t, "Invalid email format", appErr.Fields["email"])
	assert.Contains(t, appErr.Fields, "password")
	assert.Equal(t, "Unknown test kind", appErr.Fields["kind"])
}

func TestCheckPasses(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.Check(sample{Email: "a@b.uz", Password: "secret123", Kind: "reading"}))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "abc", SanitizeString("  a\x00bc "))
}
