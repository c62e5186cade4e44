package service

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mkovalev/emarket/internal/config"
	"github.com/mkovalev/emarket/internal/models"
)

func newTokenService(t *testing.T) *TokenService {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, config.Migrate(db))
	return &TokenService{
		DB:            db,
		JWTSecret:     []byte("test-jwt-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
}

func TestRotateToken(t *testing.T) {
	svc := newTokenService(t)

	refresh, err := svc.SignRefreshToken(7, "user")
	require.NoError(t, err)
	require.NoError(t, svc.SaveRefreshToken(refresh, 7))

	newAccess, newRefresh, err := svc.RotateToken(refresh)
	require.NoError(t, err)
	assert.NotEmpty(t, newAccess)
	assert.NotEqual(t, refresh, newRefresh)

	// the rotated-out token is revoked and cannot be rotated again
	var old models.RefreshToken
	require.NoError(t, svc.DB.Where("token = ?", refresh).First(&old).Error)
	assert.True(t, old.Revoked)

	_, _, err = svc.RotateToken(refresh)
	assert.Error(t, err)

	// the replacement is live
	_, err = svc.ValidateRefresh(newRefresh)
	assert.NoError(t, err)
}

func TestValidateRefreshRejectsAccessToken(t *testing.T) {
	svc := newTokenService(t)

	access, err := svc.SignAccessToken(7, "user")
	require.NoError(t, err)

	_, err = svc.ValidateRefresh(access)
	assert.Error(t, err, "an access token must not pass as a refresh token")
}

func TestValidateRefreshUnknownToken(t *testing.T) {
	svc := newTokenService(t)

	refresh, err := svc.SignRefreshToken(7, "user")
	require.NoError(t, err)

	// well signed but never persisted: revocation checks need the row
	_, err = svc.ValidateRefresh(refresh)
	assert.Error(t, err)
}

func runMiddleware(t *testing.T, svc *TokenService, mw echo.MiddlewareFunc, cookies ...*http.Cookie) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := mw(func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"userID": c.Get("userID"), "role": c.Get("role")})
	})
	return rec, handler(c)
}

func TestAutoRefreshMiddleware(t *testing.T) {
	svc := newTokenService(t)

	access, err := svc.SignAccessToken(7, "user")
	require.NoError(t, err)

	rec, err := runMiddleware(t, svc, svc.AutoRefreshMiddleware,
		&http.Cookie{Name: "accessToken", Value: access, Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAutoRefreshMiddlewareRotatesExpiredAccess(t *testing.T) {
	svc := newTokenService(t)

	expiredClaims := jwt.MapClaims{
		"sub":  float64(7),
		"role": "user",
		"exp":  time.Now().Add(-time.Minute).Unix(),
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, expiredClaims).SignedString(svc.JWTSecret)
	require.NoError(t, err)

	refresh, err := svc.SignRefreshToken(7, "user")
	require.NoError(t, err)
	require.NoError(t, svc.SaveRefreshToken(refresh, 7))

	rec, err := runMiddleware(t, svc, svc.AutoRefreshMiddleware,
		&http.Cookie{Name: "accessToken", Value: expired, Path: "/"},
		&http.Cookie{Name: "refreshToken", Value: refresh, Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	fresh := map[string]bool{}
	for _, ck := range rec.Result().Cookies() {
		fresh[ck.Name] = ck.Value != ""
	}
	assert.True(t, fresh["accessToken"], "a fresh access cookie must be issued")
	assert.True(t, fresh["refreshToken"], "the refresh cookie must be rotated")
}

func TestAutoRefreshMiddlewareRejectsAnonymous(t *testing.T) {
	svc := newTokenService(t)

	_, err := runMiddleware(t, svc, svc.AutoRefreshMiddleware)
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusUnauthorized, he.Code)
}

func TestAutoRefreshMiddlewareAdmin(t *testing.T) {
	svc := newTokenService(t)

	userAccess, err := svc.SignAccessToken(7, "user")
	require.NoError(t, err)
	_, err = runMiddleware(t, svc, svc.AutoRefreshMiddlewareAdmin,
		&http.Cookie{Name: "accessToken", Value: userAccess, Path: "/"})
	he, ok := err.(*echo.HTTPError)
	require.True(t, ok)
	assert.Equal(t, http.StatusForbidden, he.Code)

	adminAccess, err := svc.SignAccessToken(3, "admin")
	require.NoError(t, err)
	rec, err := runMiddleware(t, svc, svc.AutoRefreshMiddlewareAdmin,
		&http.Cookie{Name: "accessToken", Value: adminAccess, Path: "/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)
}
