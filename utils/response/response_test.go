package response

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, err error, lang string) (int, Response, string) {
	t.Helper()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return FromError(c, err) })

	req := httptest.NewRequest("GET", "/", nil)
	if lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	resp, testErr := app.Test(req)
	require.NoError(t, testErr)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var out Response
	require.NoError(t, json.Unmarshal(body, &out))
	return resp.StatusCode, out, resp.Header.Get("Retry-After")
}

func TestStatusFor(t *testing.T) {
	cases := map[apperr.Kind]int{
		apperr.KindValidation:          400,
		apperr.KindUnauthenticated:     401,
		apperr.KindUnauthorized:        403,
		apperr.KindNotFound:            404,
		apperr.KindConflict:            409,
		apperr.KindSessionNotCompleted: 409,
		apperr.KindInsufficientTokens:  402,
		apperr.KindRateLimited:         429,
		apperr.KindUpstreamUnavailable: 502,
		apperr.KindBusy:                503,
		apperr.KindInternal:            500,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusFor(kind), kind.String())
	}
}

func TestFromErrorInsufficientTokens(t *testing.T) {
	status, body, _ := serve(t, apperr.InsufficientTokens(5, 10), "")
	assert.Equal(t, 402, status)
	assert.False(t, body.Success)
	assert.Equal(t, "INSUFFICIENT_TOKENS", body.Error.Code)
}

func TestFromErrorLocalizes(t *testing.T) {
	_, body, _ := serve(t, apperr.SessionTerminal("completed"), "ru")
	assert.Equal(t, "SESSION_TERMINAL", body.Error.Code)
	assert.Equal(t, "Эта сессия теста уже завершена", body.Error.Message)
}

func TestFromErrorHidesInternalCause(t *testing.T) {
	status, body, _ := serve(t, errors.New("pq: relation does not exist"), "")
	assert.Equal(t, 500, status)
	assert.Equal(t, "INTERNAL", body.Error.Code)
	assert.NotContains(t, body.Error.Message, "relation")
}

func TestFromErrorRetryAfter(t *testing.T) {
	status, _, retryAfter := serve(t, apperr.RateLimited("slow down", 1500*time.Millisecond), "")
	assert.Equal(t, 429, status)
	assert.Equal(t, "2", retryAfter)
}

func TestCalculatePagination(t *testing.T) {
	meta := CalculatePagination(2, 10, 25)
	assert.Equal(t, 3, meta.TotalPages)
	assert.Equal(t, 2, meta.CurrentPage)

	meta = CalculatePagination(0, 500, 0)
	assert.Equal(t, 1, meta.CurrentPage)
	assert.Equal(t, 100, meta.PerPage)
}
