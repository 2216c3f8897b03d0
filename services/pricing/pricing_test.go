package pricing

import (
	"context"
	"testing"

	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/testutil"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceForTrialAndRegular(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SetPrices(t, db, 20, 10)
	svc := NewService(db)
	ctx := context.Background()

	free := testutil.NewUser(t, db, 0)
	quote, err := svc.PriceFor(ctx, free.ID, model.TestKindListening)
	require.NoError(t, err)
	assert.Equal(t, 10, quote.Amount)
	assert.True(t, quote.Trial)

	premium := testutil.NewUser(t, db, 0, testutil.WithTariff(testutil.PremiumTariff(t, db)))
	quote, err = svc.PriceFor(ctx, premium.ID, model.TestKindListening)
	require.NoError(t, err)
	assert.Equal(t, 20, quote.Amount)
	assert.False(t, quote.Trial)
}

func TestPriceForDoesNotAssignTariff(t *testing.T) {
	db := testutil.NewDB(t)
	testutil.SetPrices(t, db, 20, 10)
	user := testutil.NewUser(t, db, 0)
	require.NoError(t, db.Model(&model.User{}).Where("id = ?", user.ID).Update("tariff_id", nil).Error)

	quote, err := NewService(db).PriceFor(context.Background(), user.ID, model.TestKindWriting)
	require.NoError(t, err)
	assert.Equal(t, 10, quote.Amount)

	var reloaded model.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	assert.Nil(t, reloaded.TariffID)
}

func TestSetUpserts(t *testing.T) {
	db := testutil.NewDB(t)
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.Set(ctx, model.TestKindReading, 20, 10)
	require.NoError(t, err)
	_, err = svc.Set(ctx, model.TestKindReading, 25, 12)
	require.NoError(t, err)

	prices, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, prices, 1)
	assert.Equal(t, 25, prices[0].PriceRegular)

	_, err = svc.Set(ctx, model.TestKindReading, 0, 12)
	assert.Equal(t, apperr.CodeInvalidAmount, apperr.CodeOf(err))
}
