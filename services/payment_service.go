package services

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/rs/zerolog/log"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/ledger"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultPaymentTimeout bounds one call to the payment gateway
const DefaultPaymentTimeout = 30 * time.Second

// PaymentConfig configures the Midtrans Snap gateway
type PaymentConfig struct {
	ServerKey  string
	Production bool
	Timeout    time.Duration
}

// CheckoutCustomer is the buyer passed to the gateway
type CheckoutCustomer struct {
	FirstName string
	LastName  string
	Email     string
}

// Checkout is what the gateway returns for a new order
type Checkout struct {
	Token       string
	RedirectURL string
}

// PaymentGateway creates hosted checkouts
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, orderID string, amount int64, item string, customer CheckoutCustomer) (*Checkout, error)
}

// MidtransGateway creates Snap transactions
type MidtransGateway struct {
	client  snap.Client
	timeout time.Duration
}

// NewMidtransGateway creates a Snap client for the configured environment
func NewMidtransGateway(config PaymentConfig) *MidtransGateway {
	if config.Timeout <= 0 {
		config.Timeout = DefaultPaymentTimeout
	}
	midtrans.DefaultGoHttpClient = &http.Client{Timeout: config.Timeout}

	env := midtrans.Sandbox
	if config.Production {
		env = midtrans.Production
	}
	g := &MidtransGateway{timeout: config.Timeout}
	g.client.New(config.ServerKey, env)
	return g
}

// CreateCheckout opens a Snap transaction for one item
func (g *MidtransGateway) CreateCheckout(ctx context.Context, orderID string, amount int64, item string, customer CheckoutCustomer) (*Checkout, error) {
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  orderID,
			GrossAmt: amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: customer.FirstName,
			LName: customer.LastName,
			Email: customer.Email,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    orderID,
			Price: amount,
			Qty:   1,
			Name:  item,
		}},
	}

	type result struct {
		resp *snap.Response
		err  *midtrans.Error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := g.client.CreateTransaction(req)
		done <- result{resp, err}
	}()

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	select {
	case r := <-done:
		if r.err != nil {
			return nil, apperr.Upstream("payment gateway rejected the order", r.err)
		}
		return &Checkout{Token: r.resp.Token, RedirectURL: r.resp.RedirectURL}, nil
	case <-ctx.Done():
		return nil, apperr.Upstream("payment gateway timed out", ctx.Err())
	}
}

// PaymentNotification is the gateway's webhook payload
type PaymentNotification struct {
	OrderID           string `json:"order_id"`
	StatusCode        string `json:"status_code"`
	GrossAmount       string `json:"gross_amount"`
	SignatureKey      string `json:"signature_key"`
	TransactionStatus string `json:"transaction_status"`
	FraudStatus       string `json:"fraud_status"`
	PaymentType       string `json:"payment_type"`
	TransactionID     string `json:"transaction_id"`
}

// PaymentService sells tariffs. A settled payment assigns the tariff and
// credits its token grant exactly once.
type PaymentService struct {
	db        *gorm.DB
	ledger    *ledger.Service
	gateway   PaymentGateway
	notifier  *NotificationService
	serverKey string
	now       func() time.Time
}

// NewPaymentService creates a payment service. notifier may be nil.
func NewPaymentService(db *gorm.DB, l *ledger.Service, gateway PaymentGateway, notifier *NotificationService, serverKey string) *PaymentService {
	return &PaymentService{
		db:        db,
		ledger:    l,
		gateway:   gateway,
		notifier:  notifier,
		serverKey: serverKey,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Signature computes SHA512(order_id + status_code + gross_amount + server_key)
func (s *PaymentService) Signature(orderID, statusCode, grossAmount string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + s.serverKey))
	return hex.EncodeToString(sum[:])
}

// CreatePayment starts a checkout of tariffID. A user may hold one pending payment at a time.
func (s *PaymentService) CreatePayment(ctx context.Context, userID, tariffID uint) (*model.TariffPayment, error) {
	var tariff model.Tariff
	err := s.db.WithContext(ctx).Where("id = ? AND is_active = ?", tariffID, true).First(&tariff).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("tariff")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tariff: %w", err)
	}
	if tariff.IsDefault || tariff.Price <= 0 {
		return nil, apperr.Validation("the free tariff cannot be purchased")
	}

	var user model.User
	payment := model.TariffPayment{
		UserID:   userID,
		TariffID: tariff.ID,
		OrderID:  fmt.Sprintf("SN-%d-%s", userID, strings.ReplaceAll(uuid.NewString(), "-", "")[:12]),
		Amount:   tariff.Price,
		Status:   model.PaymentStatusPending,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// the user row lock serializes concurrent checkouts
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "email", "first_name", "last_name").
			First(&user, userID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("user")
			}
			return fmt.Errorf("failed to lock user: %w", err)
		}

		var pending int64
		if err := tx.Model(&model.TariffPayment{}).
			Where("user_id = ? AND status = ?", userID, model.PaymentStatusPending).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("failed to check pending payments: %w", err)
		}
		if pending > 0 {
			return apperr.NewCode(apperr.KindConflict, apperr.CodePendingPayment, "a payment is already pending")
		}
		return tx.Create(&payment).Error
	})
	if err != nil {
		return nil, err
	}

	checkout, err := s.gateway.CreateCheckout(ctx, payment.OrderID, int64(math.Round(tariff.Price)), tariff.Name, CheckoutCustomer{
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
	})
	if err != nil {
		if uerr := s.db.WithContext(context.WithoutCancel(ctx)).Model(&payment).
			Update("status", model.PaymentStatusFailed).Error; uerr != nil {
			log.Error().Err(uerr).Str("order_id", payment.OrderID).Msg("failed to mark payment failed")
		}
		return nil, err
	}

	payment.SnapToken = checkout.Token
	payment.RedirectURL = checkout.RedirectURL
	if err := s.db.WithContext(ctx).Model(&payment).Updates(map[string]interface{}{
		"snap_token":   checkout.Token,
		"redirect_url": checkout.RedirectURL,
	}).Error; err != nil {
		return nil, fmt.Errorf("failed to store checkout: %w", err)
	}

	log.Info().Uint("user_id", userID).Uint("tariff_id", tariff.ID).Str("order_id", payment.OrderID).Msg("payment created")
	payment.Tariff = tariff
	return &payment, nil
}

// gatewayStatus maps a gateway transaction status to ours; ok is false for
// statuses that do not change the payment
func gatewayStatus(n PaymentNotification) (model.PaymentStatus, bool) {
	switch strings.ToLower(n.TransactionStatus) {
	case "capture":
		switch strings.ToLower(n.FraudStatus) {
		case "", "accept":
			return model.PaymentStatusSettled, true
		case "challenge":
			return model.PaymentStatusPending, false
		}
		return model.PaymentStatusFailed, true
	case "settlement":
		return model.PaymentStatusSettled, true
	case "deny", "cancel", "failure":
		return model.PaymentStatusFailed, true
	case "expire":
		return model.PaymentStatusExpired, true
	}
	return model.PaymentStatusPending, false
}

// HandleNotification applies a signed webhook. Repeated deliveries are no-ops.
func (s *PaymentService) HandleNotification(ctx context.Context, n PaymentNotification) (*model.TariffPayment, error) {
	want := s.Signature(n.OrderID, n.StatusCode, n.GrossAmount)
	if n.SignatureKey == "" || subtle.ConstantTimeCompare([]byte(strings.ToLower(n.SignatureKey)), []byte(want)) != 1 {
		return nil, apperr.Unauthenticated("invalid payment signature")
	}

	var payment model.TariffPayment
	err := s.db.WithContext(ctx).Preload("Tariff").Where("order_id = ?", n.OrderID).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("payment")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}

	status, ok := gatewayStatus(n)
	if !ok {
		return &payment, nil
	}
	if status == model.PaymentStatusSettled {
		if gross, err := strconv.ParseFloat(n.GrossAmount, 64); err != nil || math.Abs(gross-payment.Amount) > 0.005 {
			return nil, apperr.Validation(fmt.Sprintf("gross amount %q does not match order %s", n.GrossAmount, n.OrderID))
		}
		return s.settle(ctx, &payment, n.PaymentType)
	}

	res := s.db.WithContext(ctx).Model(&model.TariffPayment{}).
		Where("id = ? AND status = ?", payment.ID, model.PaymentStatusPending).
		Update("status", status)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update payment: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		payment.Status = status
		log.Info().Str("order_id", payment.OrderID).Str("status", string(status)).Msg("payment closed")
	}
	return &payment, nil
}

func (s *PaymentService) settle(ctx context.Context, payment *model.TariffPayment, method string) (*model.TariffPayment, error) {
	now := s.now()
	applied := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// a late settlement still wins over a local expiry
		res := tx.Model(&model.TariffPayment{}).
			Where("id = ? AND status <> ?", payment.ID, model.PaymentStatusSettled).
			Updates(map[string]interface{}{
				"status":         model.PaymentStatusSettled,
				"paid_at":        now,
				"payment_method": method,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to settle payment: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true

		if err := tx.Model(&model.User{}).Where("id = ?", payment.UserID).
			Update("tariff_id", payment.TariffID).Error; err != nil {
			return fmt.Errorf("failed to assign tariff: %w", err)
		}
		if payment.Tariff.TokensGrant > 0 {
			desc := fmt.Sprintf("Tariff %s (order %s)", payment.Tariff.Name, payment.OrderID)
			if _, err := s.ledger.CreditTx(tx, payment.UserID, model.TransactionCustomAddition, payment.Tariff.TokensGrant, desc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied {
		payment.Status = model.PaymentStatusSettled
		payment.PaidAt = &now
		payment.PaymentMethod = method
		log.Info().Uint("user_id", payment.UserID).Str("order_id", payment.OrderID).Int("tokens", payment.Tariff.TokensGrant).Msg("payment settled")

		if s.notifier != nil {
			_, nerr := s.notifier.CreateNotification(ctx, CreateNotificationRequest{
				UserID:   payment.UserID,
				Type:     model.NotificationTypeSuccess,
				Category: model.NotificationCategoryPayment,
				Title:    fmt.Sprintf("%s is active", payment.Tariff.Name),
				Message:  fmt.Sprintf("%d tokens were added to your balance.", payment.Tariff.TokensGrant),
				Metadata: &model.NotificationMetadata{Tokens: payment.Tariff.TokensGrant, OrderID: payment.OrderID},
			})
			if nerr != nil {
				log.Warn().Err(nerr).Str("order_id", payment.OrderID).Msg("failed to notify payment")
			}
		}
	}
	return payment, nil
}

// ListPayments returns the user's payments, newest first
func (s *PaymentService) ListPayments(ctx context.Context, userID uint, limit, offset int) ([]model.TariffPayment, int64, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}
	query := s.db.WithContext(ctx).Model(&model.TariffPayment{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count payments: %w", err)
	}
	var payments []model.TariffPayment
	if err := query.Preload("Tariff").Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&payments).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list payments: %w", err)
	}
	return payments, total, nil
}

// ExpireStale marks pending payments older than olderThan as expired
func (s *PaymentService) ExpireStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.TariffPayment{}).
		Where("status = ? AND created_at < ?", model.PaymentStatusPending, s.now().Add(-olderThan)).
		Update("status", model.PaymentStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to expire payments: %w", res.Error)
	}
	return res.RowsAffected, nil
}
