package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/database"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services"
	"github.com/speaknowly/speaknowly-api/services/ledger"
	"github.com/speaknowly/speaknowly-api/services/pricing"
	"github.com/speaknowly/speaknowly-api/testutil"
	"github.com/speaknowly/speaknowly-api/utils/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type adminResult struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

type adminEnv struct {
	db    *gorm.DB
	staff *model.User
	app   *fiber.App
}

func newAdminEnv(t *testing.T) *adminEnv {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.SetPrices(t, db, 20, 10)
	staff := testutil.NewUser(t, db, 0, testutil.Staff())

	h := &AdminHandler{
		Store:     database.NewGORMStore(db),
		Ledger:    ledger.NewService(db),
		Pricing:   pricing.NewService(db),
		Tariffs:   services.NewTariffService(db),
		Validator: validation.NewValidator(),
	}

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", staff.ID)
		c.Locals("user", staff)
		return c.Next()
	})
	app.Get("/admin/users", h.ListUsers)
	app.Get("/admin/users/:id", h.GetUser)
	app.Delete("/admin/users/:id", h.DeleteUser)
	app.Post("/admin/users/:id/tokens", h.AdjustTokens)
	app.Put("/admin/prices/:kind", h.SetPrice)
	app.Get("/admin/ledger/reconcile", h.ReconcileLedger)
	app.Get("/admin/analysis/dead-letters", h.ListDeadLetters)

	return &adminEnv{db: db, staff: staff, app: app}
}

func (e *adminEnv) do(t *testing.T, method, path string, body interface{}) (int, adminResult) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out adminResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestAdjustTokensCreditAndDeduct(t *testing.T) {
	e := newAdminEnv(t)
	user := testutil.NewUser(t, e.db, 10)
	path := fmt.Sprintf("/admin/users/%d/tokens", user.ID)

	status, out := e.do(t, fiber.MethodPost, path, AdjustTokensRequest{Kind: "custom_addition", Amount: 15})
	require.Equal(t, fiber.StatusOK, status)
	var credited struct {
		Balance int `json:"balance"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &credited))
	assert.Equal(t, 25, credited.Balance)

	status, _ = e.do(t, fiber.MethodPost, path, AdjustTokensRequest{Kind: "custom_deduction", Amount: 5, Description: "manual fix"})
	require.Equal(t, fiber.StatusOK, status)

	var row model.TokenTransaction
	require.NoError(t, e.db.Where("user_id = ? AND kind = ?", user.ID, model.TransactionCustomDeduction).First(&row).Error)
	assert.Equal(t, -5, row.Amount)
	assert.Equal(t, 20, row.BalanceAfter)
	assert.Equal(t, "manual fix", row.Description)
}

func TestAdjustTokensCannotOverdraw(t *testing.T) {
	e := newAdminEnv(t)
	user := testutil.NewUser(t, e.db, 3)

	status, out := e.do(t, fiber.MethodPost, fmt.Sprintf("/admin/users/%d/tokens", user.ID),
		AdjustTokensRequest{Kind: "custom_deduction", Amount: 4})
	assert.Equal(t, fiber.StatusPaymentRequired, status)
	require.NotNil(t, out.Error)

	var fresh model.User
	require.NoError(t, e.db.First(&fresh, user.ID).Error)
	assert.Equal(t, 3, fresh.TokenBalance)
}

func TestAdjustTokensValidatesKind(t *testing.T) {
	e := newAdminEnv(t)
	user := testutil.NewUser(t, e.db, 3)

	status, _ := e.do(t, fiber.MethodPost, fmt.Sprintf("/admin/users/%d/tokens", user.ID),
		AdjustTokensRequest{Kind: "daily_bonus", Amount: 4})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = e.do(t, fiber.MethodPost, fmt.Sprintf("/admin/users/%d/tokens", user.ID),
		AdjustTokensRequest{Kind: "refund", Amount: 0})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestGetUserReportsLedgerConsistency(t *testing.T) {
	e := newAdminEnv(t)
	user := testutil.NewUser(t, e.db, 10)

	status, out := e.do(t, fiber.MethodGet, fmt.Sprintf("/admin/users/%d", user.ID), nil)
	require.Equal(t, fiber.StatusOK, status)
	var body struct {
		LedgerConsistent bool `json:"ledger_consistent"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &body))
	assert.True(t, body.LedgerConsistent)

	require.NoError(t, e.db.Model(&model.User{}).Where("id = ?", user.ID).UpdateColumn("token_balance", 99).Error)
	status, out = e.do(t, fiber.MethodGet, "/admin/ledger/reconcile", nil)
	require.Equal(t, fiber.StatusOK, status)
	var report struct {
		Consistent    bool                 `json:"consistent"`
		Discrepancies []ledger.Discrepancy `json:"discrepancies"`
	}
	require.NoError(t, json.Unmarshal(out.Data, &report))
	assert.False(t, report.Consistent)
	require.Len(t, report.Discrepancies, 1)
	assert.Equal(t, user.ID, report.Discrepancies[0].UserID)
}

func TestGetUnknownUser(t *testing.T) {
	e := newAdminEnv(t)
	status, _ := e.do(t, fiber.MethodGet, "/admin/users/9999", nil)
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestDeleteUser(t *testing.T) {
	e := newAdminEnv(t)
	user := testutil.NewUser(t, e.db, 0)

	status, _ := e.do(t, fiber.MethodDelete, fmt.Sprintf("/admin/users/%d", e.staff.ID), nil)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = e.do(t, fiber.MethodDelete, fmt.Sprintf("/admin/users/%d", user.ID), nil)
	require.Equal(t, fiber.StatusOK, status)
	var count int64
	require.NoError(t, e.db.Model(&model.User{}).Where("id = ?", user.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListUsersSearch(t *testing.T) {
	e := newAdminEnv(t)
	user := testutil.NewUser(t, e.db, 0)
	testutil.NewUser(t, e.db, 0)

	status, out := e.do(t, fiber.MethodGet, "/admin/users?search="+user.Email[:8], nil)
	require.Equal(t, fiber.StatusOK, status)
	var users []model.User
	require.NoError(t, json.Unmarshal(out.Data, &users))
	require.Len(t, users, 1)
	assert.Equal(t, user.ID, users[0].ID)
}

func TestSetPrice(t *testing.T) {
	e := newAdminEnv(t)

	status, _ := e.do(t, fiber.MethodPut, "/admin/prices/writing", SetPriceRequest{Regular: 30, Trial: 15})
	require.Equal(t, fiber.StatusOK, status)

	var price model.TestPrice
	require.NoError(t, e.db.Where("test_kind = ?", model.TestKindWriting).First(&price).Error)
	assert.Equal(t, 30, price.PriceRegular)
	assert.Equal(t, 15, price.PriceTrial)

	status, _ = e.do(t, fiber.MethodPut, "/admin/prices/chess", SetPriceRequest{Regular: 1})
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestDeadLettersWithoutWorker(t *testing.T) {
	e := newAdminEnv(t)
	status, _ := e.do(t, fiber.MethodGet, "/admin/analysis/dead-letters", nil)
	assert.Equal(t, fiber.StatusBadGateway, status)
}
