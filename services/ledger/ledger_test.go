package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/testutil"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebitAtExactBalance(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	user := testutil.NewUser(t, db, 10)

	balance, err := svc.Debit(ctx, user.ID, model.TransactionTestWriting, 10, "writing")
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	_, err = svc.Debit(ctx, user.ID, model.TransactionTestWriting, 1, "writing")
	assert.Equal(t, apperr.KindInsufficientTokens, apperr.KindOf(err))
}

func TestDebitBelowPriceLeavesLedgerUntouched(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	user := testutil.NewUser(t, db, 9)

	_, err := svc.Debit(ctx, user.ID, model.TransactionTestReading, 10, "reading")
	assert.True(t, apperr.Is(err, apperr.KindInsufficientTokens))

	var count int64
	require.NoError(t, db.Model(&model.TokenTransaction{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	balance, err := svc.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, balance)
}

func TestInvalidAmount(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	user := testutil.NewUser(t, db, 10)

	for _, amount := range []int{0, -5} {
		_, err := svc.Debit(context.Background(), user.ID, model.TransactionTestReading, amount, "")
		assert.Equal(t, apperr.CodeInvalidAmount, apperr.CodeOf(err))

		_, err = svc.Credit(context.Background(), user.ID, model.TransactionCustomAddition, amount, "")
		assert.Equal(t, apperr.CodeInvalidAmount, apperr.CodeOf(err))
	}
}

func TestDebitThenCreditRestoresBalance(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()
	user := testutil.NewUser(t, db, 50)

	_, err := svc.Debit(ctx, user.ID, model.TransactionTestSpeaking, 15, "speaking")
	require.NoError(t, err)
	balance, err := svc.Credit(ctx, user.ID, model.TransactionRefund, 15, "refund")
	require.NoError(t, err)
	assert.Equal(t, 50, balance)

	rows, total, err := svc.List(ctx, user.ID, ListFilter{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Amount+rows[1].Amount)

	d, err := svc.Reconcile(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestListFilterByKind(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()
	user := testutil.NewUser(t, db, 50)

	_, err := svc.Debit(ctx, user.ID, model.TransactionTestSpeaking, 5, "")
	require.NoError(t, err)
	_, err = svc.Debit(ctx, user.ID, model.TransactionTestReading, 5, "")
	require.NoError(t, err)

	rows, total, err := svc.List(ctx, user.ID, ListFilter{Kind: model.TransactionTestReading}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, -5, rows[0].Amount)
	assert.Equal(t, 40, rows[0].BalanceAfter)
}

func TestConcurrentDebitsNeverOverdraw(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()
	user := testutil.NewUser(t, db, 30)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, poor int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Debit(ctx, user.ID, model.TransactionTestListening, 10, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if apperr.Is(err, apperr.KindInsufficientTokens) {
				poor++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, ok)
	assert.Equal(t, 2, poor)

	balance, err := svc.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	d, err := svc.Reconcile(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestDailyBonusOncePerUTCDay(t *testing.T) {
	db := testutil.NewDB(t)
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	svc := NewService(db).WithClock(func() time.Time { return now })
	ctx := context.Background()
	user := testutil.NewUser(t, db, 0)

	balance, err := svc.ClaimDailyBonus(ctx, user.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, balance)

	_, err = svc.ClaimDailyBonus(ctx, user.ID, 5)
	assert.Equal(t, apperr.CodeAlreadyClaimed, apperr.CodeOf(err))

	now = now.Add(2 * time.Hour)
	balance, err = svc.ClaimDailyBonus(ctx, user.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestReconcileDetectsDrift(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()
	user := testutil.NewUser(t, db, 20)
	healthy := testutil.NewUser(t, db, 7)

	require.NoError(t, db.Model(&model.User{}).Where("id = ?", user.ID).UpdateColumn("token_balance", 25).Error)

	out, err := svc.ReconcileAll(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, user.ID, out[0].UserID)
	assert.Equal(t, 25, out[0].StoredBalance)
	assert.Equal(t, 20, out[0].LedgerBalance)
	assert.NotEqual(t, healthy.ID, out[0].UserID)
}

func TestUnknownUser(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := NewService(db).Debit(context.Background(), 999, model.TransactionTestReading, 1, "")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
