package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services"
	"github.com/speaknowly/speaknowly-api/services/ledger"
	"github.com/speaknowly/speaknowly-api/testutil"
	"github.com/speaknowly/speaknowly-api/utils/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type stubGateway struct{}

func (stubGateway) CreateCheckout(ctx context.Context, orderID string, amount int64, item string, customer services.CheckoutCustomer) (*services.Checkout, error) {
	return &services.Checkout{Token: "snap-" + orderID, RedirectURL: "https://pay.test/" + orderID}, nil
}

type paymentEnv struct {
	db   *gorm.DB
	svc  *services.PaymentService
	user *model.User
	app  *fiber.App
}

func newPaymentEnv(t *testing.T) *paymentEnv {
	t.Helper()
	db := testutil.NewDB(t)
	user := testutil.NewUser(t, db, 0)
	svc := services.NewPaymentService(db, ledger.NewService(db), stubGateway{}, services.NewNotificationService(db), "server-key")
	h := NewPaymentHandler(svc, services.NewTariffService(db), validation.NewValidator())

	app := fiber.New()
	app.Post("/payments/webhook", h.Webhook)
	caller := func(c *fiber.Ctx) error {
		c.Locals("user_id", user.ID)
		c.Locals("user", user)
		return c.Next()
	}
	app.Get("/tariffs", caller, h.ListTariffs)
	app.Post("/payments", caller, h.CreatePayment)
	app.Get("/payments", caller, h.ListPayments)

	return &paymentEnv{db: db, svc: svc, user: user, app: app}
}

func (e *paymentEnv) do(t *testing.T, method, path string, payload interface{}) (int, json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out.Data
}

func notification(svc *services.PaymentService, orderID, status, gross string) services.PaymentNotification {
	return services.PaymentNotification{
		OrderID:           orderID,
		StatusCode:        "200",
		GrossAmount:       gross,
		TransactionStatus: status,
		SignatureKey:      svc.Signature(orderID, "200", gross),
		PaymentType:       "qris",
	}
}

func TestCheckoutAndSettlementWebhook(t *testing.T) {
	e := newPaymentEnv(t)
	premium := testutil.PremiumTariff(t, e.db)

	status, data := e.do(t, fiber.MethodPost, "/payments", CreatePaymentRequest{TariffID: premium.ID})
	require.Equal(t, fiber.StatusCreated, status)
	var payment model.TariffPayment
	require.NoError(t, json.Unmarshal(data, &payment))
	assert.Equal(t, model.PaymentStatusPending, payment.Status)
	assert.Equal(t, "snap-"+payment.OrderID, payment.SnapToken)

	status, _ = e.do(t, fiber.MethodPost, "/payments/webhook", notification(e.svc, payment.OrderID, "settlement", "100.00"))
	require.Equal(t, fiber.StatusOK, status)

	var user model.User
	require.NoError(t, e.db.Preload("Tariff").First(&user, e.user.ID).Error)
	assert.Equal(t, 50, user.TokenBalance)
	assert.True(t, user.IsPremium())

	status, data = e.do(t, fiber.MethodGet, "/payments", nil)
	require.Equal(t, fiber.StatusOK, status)
	var history []model.TariffPayment
	require.NoError(t, json.Unmarshal(data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, model.PaymentStatusSettled, history[0].Status)
}

func TestWebhookRejectsForgedSignature(t *testing.T) {
	e := newPaymentEnv(t)
	premium := testutil.PremiumTariff(t, e.db)
	payment, err := e.svc.CreatePayment(context.Background(), e.user.ID, premium.ID)
	require.NoError(t, err)

	forged := notification(e.svc, payment.OrderID, "settlement", "100.00")
	forged.SignatureKey = "deadbeef"
	status, _ := e.do(t, fiber.MethodPost, "/payments/webhook", forged)
	assert.Equal(t, fiber.StatusUnauthorized, status)

	var user model.User
	require.NoError(t, e.db.First(&user, e.user.ID).Error)
	assert.Zero(t, user.TokenBalance)
}

func TestCreatePaymentRequiresTariff(t *testing.T) {
	e := newPaymentEnv(t)
	status, _ := e.do(t, fiber.MethodPost, "/payments", CreatePaymentRequest{})
	assert.Equal(t, fiber.StatusBadRequest, status)
}
