package tests

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/speaknowly/speaknowly-api/api"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/ledger"
	"github.com/speaknowly/speaknowly-api/services/pricing"
	"github.com/speaknowly/speaknowly-api/services/progress"
	"github.com/speaknowly/speaknowly-api/services/session"
	"github.com/speaknowly/speaknowly-api/testutil"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/cache"
	"github.com/speaknowly/speaknowly-api/utils/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type testApp struct {
	db  *gorm.DB
	mr  *miniredis.Miniredis
	app *fiber.App
}

// newTestApp mounts the listening routes behind a header-based stand-in for
// the JWT middleware
func newTestApp(t *testing.T) *testApp {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	redisCache := cache.NewFromClient(client)

	db := testutil.NewDB(t)
	testutil.SetPrices(t, db, 20, 10)

	orch := session.New(session.Deps{
		DB:      db,
		Ledger:  ledger.NewService(db),
		Pricing: pricing.NewService(db),
	})
	h := NewTestsHandler(orch, progress.NewService(db), redisCache, validation.NewValidator())

	app := fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		raw := c.Get("X-User-ID")
		if raw == "" {
			return c.Next()
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return fiber.ErrBadRequest
		}
		var user model.User
		if err := db.Preload("Tariff").First(&user, id).Error; err != nil {
			return fiber.ErrUnauthorized
		}
		c.Locals("user_id", user.ID)
		c.Locals("user", &user)
		return c.Next()
	})

	listening := app.Group("/tests/listening")
	listening.Post("/start", h.StartListening)
	listening.Get("/session/:id", h.GetListening)
	listening.Post("/session/:id/submit", h.SubmitListening)
	listening.Post("/session/:id/cancel", h.CancelListening)
	listening.Get("/session/:id/analyse", h.ListeningAnalysis)
	app.Get("/tests/history", h.History)
	app.Get("/tests/top", h.Top)

	return &testApp{db: db, mr: mr, app: app}
}

func (a *testApp) do(t *testing.T, method, path string, user *model.User, body interface{}) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if user != nil {
		req.Header.Set("X-User-ID", strconv.FormatUint(uint64(user.ID), 10))
	}

	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func (a *testApp) balance(t *testing.T, userID uint) int {
	t.Helper()
	var user model.User
	require.NoError(t, a.db.First(&user, userID).Error)
	return user.TokenBalance
}

func (a *testApp) questionIDs(t *testing.T) []uint {
	t.Helper()
	var questions []model.ListeningQuestion
	require.NoError(t, a.db.Order("question_index").Find(&questions).Error)
	ids := make([]uint, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	return ids
}

func startListening(t *testing.T, a *testApp, user *model.User) uint {
	t.Helper()
	status, env := a.do(t, fiber.MethodPost, "/tests/listening/start", user, nil)
	require.Equal(t, fiber.StatusCreated, status)
	var view ListeningView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.NotZero(t, view.ID)
	return view.ID
}

func TestStartListeningDebitsTokens(t *testing.T) {
	a := newTestApp(t)
	user := testutil.NewUser(t, a.db, 100)
	testutil.ListeningExam(t, a.db)

	id := startListening(t, a, user)
	assert.Equal(t, 90, a.balance(t, user.ID))

	status, env := a.do(t, fiber.MethodGet, fmt.Sprintf("/tests/listening/session/%d", id), user, nil)
	assert.Equal(t, fiber.StatusOK, status)
	var view ListeningView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, model.SessionStatusStarted, view.Status)
	assert.NotContains(t, string(env.Data), "correct_answer")
}

func TestStartListeningWithoutTokens(t *testing.T) {
	a := newTestApp(t)
	user := testutil.NewUser(t, a.db, 5)
	testutil.ListeningExam(t, a.db)

	status, env := a.do(t, fiber.MethodPost, "/tests/listening/start", user, nil)
	assert.Equal(t, fiber.StatusPaymentRequired, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INSUFFICIENT_TOKENS", env.Error.Code)
	assert.Equal(t, 5, a.balance(t, user.ID))
}

func TestSubmitListeningThenAnalysisIsPending(t *testing.T) {
	a := newTestApp(t)
	user := testutil.NewUser(t, a.db, 100)
	testutil.ListeningExam(t, a.db)
	id := startListening(t, a, user)
	questions := a.questionIDs(t)
	require.Len(t, questions, 2)

	body := ListeningSubmitRequest{Answers: []ListeningAnswerRequest{
		{QuestionID: questions[0], Answer: "A"},
		{QuestionID: questions[1], Answer: []interface{}{"c", "b"}},
	}}
	status, env := a.do(t, fiber.MethodPost, fmt.Sprintf("/tests/listening/session/%d/submit", id), user, body)
	require.Equal(t, fiber.StatusOK, status, "%s", env.Data)

	var result session.ListeningSubmitResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 2, result.TotalCorrect)
	assert.Equal(t, model.SessionStatusCompleted, result.Status)

	status, _ = a.do(t, fiber.MethodGet, fmt.Sprintf("/tests/listening/session/%d/analyse", id), user, nil)
	assert.Equal(t, fiber.StatusAccepted, status)
}

func TestSubmitListeningRejectsEmptyBody(t *testing.T) {
	a := newTestApp(t)
	user := testutil.NewUser(t, a.db, 100)
	testutil.ListeningExam(t, a.db)
	id := startListening(t, a, user)

	status, env := a.do(t, fiber.MethodPost, fmt.Sprintf("/tests/listening/session/%d/submit", id), user, ListeningSubmitRequest{})
	assert.Equal(t, fiber.StatusBadRequest, status)
	require.NotNil(t, env.Error)
}

func TestForeignListeningSessionIsNotFound(t *testing.T) {
	a := newTestApp(t)
	owner := testutil.NewUser(t, a.db, 100)
	other := testutil.NewUser(t, a.db, 100)
	testutil.ListeningExam(t, a.db)
	id := startListening(t, a, owner)

	status, _ := a.do(t, fiber.MethodGet, fmt.Sprintf("/tests/listening/session/%d", id), other, nil)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, _ = a.do(t, fiber.MethodPost, fmt.Sprintf("/tests/listening/session/%d/cancel", id), other, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestListeningRequiresCaller(t *testing.T) {
	a := newTestApp(t)
	status, _ := a.do(t, fiber.MethodPost, "/tests/listening/start", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestCancelThenHistory(t *testing.T) {
	a := newTestApp(t)
	user := testutil.NewUser(t, a.db, 100)
	testutil.ListeningExam(t, a.db)
	id := startListening(t, a, user)

	status, _ := a.do(t, fiber.MethodPost, fmt.Sprintf("/tests/listening/session/%d/cancel", id), user, nil)
	require.Equal(t, fiber.StatusOK, status)

	status, env := a.do(t, fiber.MethodGet, "/tests/history?kind=LISTENING", user, nil)
	require.Equal(t, fiber.StatusOK, status)
	var entries []progress.HistoryEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].SessionID)
}

func TestTopIsCached(t *testing.T) {
	a := newTestApp(t)
	user := testutil.NewUser(t, a.db, 0)

	status, _ := a.do(t, fiber.MethodGet, "/tests/top?limit=3", user, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.True(t, a.mr.Exists("leaderboard:3"))
	assert.Greater(t, a.mr.TTL("leaderboard:3"), time.Duration(0))

	status, _ = a.do(t, fiber.MethodGet, "/tests/top?limit=3", user, nil)
	assert.Equal(t, fiber.StatusOK, status)
}

func TestViewProjectionFailureIsInternal(t *testing.T) {
	_, err := newWritingView(nil)
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	view, err := newWritingView(&model.Writing{ID: 4, Status: model.SessionStatusStarted, Lang: "ru"})
	require.NoError(t, err)
	assert.EqualValues(t, 4, view.ID)
	assert.Equal(t, model.SessionStatusStarted, view.Status)
}

func TestListeningStartStoresLanguage(t *testing.T) {
	a := newTestApp(t)
	user := testutil.NewUser(t, a.db, 100)
	testutil.ListeningExam(t, a.db)

	status, env := a.do(t, fiber.MethodPost, "/tests/listening/start?lang=ru", user, nil)
	require.Equal(t, fiber.StatusCreated, status)
	var view ListeningView
	require.NoError(t, json.Unmarshal(env.Data, &view))

	var stored model.ListeningSession
	require.NoError(t, a.db.First(&stored, view.ID).Error)
	assert.Equal(t, "ru", stored.Lang)
}
