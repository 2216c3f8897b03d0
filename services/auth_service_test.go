package services

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/speaknowly/speaknowly-api/model"
	"github.com/speaknowly/speaknowly-api/services/media"
	"github.com/speaknowly/speaknowly-api/testutil"
	"github.com/speaknowly/speaknowly-api/utils/apperr"
	"github.com/speaknowly/speaknowly-api/utils/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeGoogle struct {
	identity *GoogleIdentity
}

func (f *fakeGoogle) Verify(idToken string) (*GoogleIdentity, error) {
	if idToken != "good" || f.identity == nil {
		return nil, errors.New("bad token")
	}
	return f.identity, nil
}

type authFixture struct {
	svc    *AuthService
	db     *gorm.DB
	sender *fakeSender
	google *fakeGoogle
	jwt    *auth.JWTManager
}

func newAuth(t *testing.T) authFixture {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.DefaultTariff(t, db)
	store, err := media.NewLocalStore(t.TempDir(), "/media")
	require.NoError(t, err)

	sender := &fakeSender{}
	google := &fakeGoogle{}
	jwt := auth.NewJWTManager(auth.JWTConfig{Secret: "test-secret", Expiry: time.Hour, RefreshExpiry: 24 * time.Hour})
	svc := NewAuthService(db, AuthConfig{
		JWT:          jwt,
		Verification: NewVerificationService(db, nil, sender),
		Google:       google,
		Media:        store,
	})
	return authFixture{svc: svc, db: db, sender: sender, google: google, jwt: jwt}
}

func TestRegisterVerifyLogin(t *testing.T) {
	f := newAuth(t)
	ctx := context.Background()

	user, err := f.svc.Register(ctx, RegisterInput{Email: " Ann@Example.com ", Password: "Secret123", FirstName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", user.Email)
	assert.False(t, user.IsActive)
	require.NotNil(t, user.TariffID)

	_, _, err = f.svc.Login(ctx, "ann@example.com", "Secret123")
	assert.Equal(t, apperr.CodeInactiveUser, apperr.CodeOf(err))

	verified, pair, err := f.svc.Verify(ctx, "ann@example.com", f.sender.last())
	require.NoError(t, err)
	assert.True(t, verified.IsActive)
	assert.NotEmpty(t, pair.AccessToken)

	_, err = f.svc.Register(ctx, RegisterInput{Email: "ann@example.com", Password: "Other1234"})
	assert.Equal(t, apperr.CodeEmailTaken, apperr.CodeOf(err))

	_, _, err = f.svc.Login(ctx, "ANN@example.com", "wrong-pass")
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
	_, _, err = f.svc.Login(ctx, "nobody@example.com", "Secret123")
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	loggedIn, _, err := f.svc.Login(ctx, "ANN@example.com", "Secret123")
	require.NoError(t, err)
	assert.NotNil(t, loggedIn.LastLogin)
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	f := newAuth(t)
	ctx := context.Background()
	user := testutil.NewUser(t, f.db, 0)

	pair, err := f.jwt.IssuePair(user)
	require.NoError(t, err)

	next, err := f.svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	_, err = f.svc.Refresh(ctx, next.AccessToken)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	access, err := f.jwt.ValidateToken(next.AccessToken)
	require.NoError(t, err)
	require.NoError(t, f.svc.Logout(ctx, access, next.RefreshToken))

	blacklist := auth.NewBlacklistService(f.db)
	revoked, err := blacklist.IsTokenRevoked(ctx, access.ID)
	require.NoError(t, err)
	assert.True(t, revoked)
	_, err = f.svc.Refresh(ctx, next.RefreshToken)
	assert.Error(t, err)
}

func TestPasswordResetRevokesTokens(t *testing.T) {
	f := newAuth(t)
	ctx := context.Background()
	user := testutil.NewUser(t, f.db, 0)
	pair, err := f.jwt.IssuePair(user)
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "missing@example.com"))
	assert.Empty(t, f.sender.sent)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, user.Email))
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, model.VerificationPasswordReset, f.sender.sent[0].purpose)

	require.NoError(t, f.svc.ResetPassword(ctx, user.Email, f.sender.last(), "NewSecret1"))
	_, _, err = f.svc.Login(ctx, user.Email, "NewSecret1")
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, pair.RefreshToken)
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
}

func TestGoogleLogin(t *testing.T) {
	f := newAuth(t)
	ctx := context.Background()

	_, _, _, err := f.svc.GoogleLogin(ctx, "forged")
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))

	f.google.identity = &GoogleIdentity{Subject: "g-1", Email: "Gina@Example.com", EmailVerified: true, GivenName: "Gina", Picture: "https://img/g.png"}
	user, pair, created, err := f.svc.GoogleLogin(ctx, "good")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "gina@example.com", user.Email)
	assert.Equal(t, model.ProviderGoogle, user.Provider)
	assert.True(t, user.IsActive)
	assert.NotEmpty(t, pair.AccessToken)

	again, _, created, err := f.svc.GoogleLogin(ctx, "good")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, user.ID, again.ID)

	f.google.identity.EmailVerified = false
	_, _, _, err = f.svc.GoogleLogin(ctx, "good")
	assert.True(t, apperr.Is(err, apperr.KindUnauthenticated))
}

func TestUploadPhotoStoresThumbnail(t *testing.T) {
	f := newAuth(t)
	ctx := context.Background()
	user := testutil.NewUser(t, f.db, 0)

	var src bytes.Buffer
	require.NoError(t, png.Encode(&src, imaging.New(1200, 800, color.NRGBA{R: 200, A: 255})))

	updated, err := f.svc.UploadPhoto(ctx, user.ID, src.Bytes())
	require.NoError(t, err)
	assert.Contains(t, updated.PhotoURL, "user_photos/")

	_, err = f.svc.UploadPhoto(ctx, user.ID, []byte("not an image"))
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}
