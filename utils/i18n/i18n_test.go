package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromAcceptLanguage(t *testing.T) {
	cases := map[string]Lang{
		"":                     English,
		"ru-RU,ru;q=0.9":       Russian,
		"uz":                   Uzbek,
		"de-DE,de;q=0.9":       English,
		"fr;q=0.8, ru;q=0.5":   Russian,
		"not a language;;;q=x": English,
	}
	for header, want := range cases {
		assert.Equal(t, want, FromAcceptLanguage(header), "header %q", header)
	}
}

func TestMessageFallsBack(t *testing.T) {
	assert.Equal(t, "Недостаточно токенов для начала теста", Message(Russian, "INSUFFICIENT_TOKENS", "x"))
	assert.Equal(t, "custom", Message(Uzbek, "SOMETHING_ELSE", "custom"))
}
