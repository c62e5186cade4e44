package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mkovalev/emarket/internal/config"
	"github.com/mkovalev/emarket/internal/payment"
	"github.com/mkovalev/emarket/internal/repo"
	"github.com/mkovalev/emarket/internal/storage"
)

var (
	testJWTSecret     = []byte("test-jwt-secret")
	testRefreshSecret = []byte("test-refresh-secret")
	testWebhookSecret = "test-webhook-secret"
)

type testEnv struct {
	DB    *gorm.DB
	E     *echo.Echo
	A     *AuthHandler
	P     *ProductHandler
	O     *OrderHandler
	Pay   *PaymentHandler
	Blobs *storage.DiskStore
	Mail  *fakeMailer
	GW    *fakeGateway
}

type fakeMailer struct {
	To, Subject, Body string
	Sent              int
}

func (m *fakeMailer) Send(to, subject, body string) error {
	m.To, m.Subject, m.Body = to, subject, body
	m.Sent++
	return nil
}

type fakeGateway struct {
	LastParams *payment.SessionParams
	Err        error
}

func (g *fakeGateway) CreateCheckoutSession(_ context.Context, params *payment.SessionParams) (*payment.CheckoutSession, error) {
	if g.Err != nil {
		return nil, g.Err
	}
	g.LastParams = params
	return &payment.CheckoutSession{
		ID:        "cs_test_123",
		URL:       "https://gateway.test/pay/cs_test_123",
		Metadata:  params.Metadata,
		LineItems: params.LineItems,
	}, nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err, "failed to open in-memory db")
	require.NoError(t, config.Migrate(db), "failed to migrate tables")

	blobs, err := storage.NewDiskStore(t.TempDir())
	require.NoError(t, err)

	mail := &fakeMailer{}
	gw := &fakeGateway{}
	orderRepo := &repo.OrderRepo{DB: db}

	env := &testEnv{
		DB:    db,
		E:     echo.New(),
		Blobs: blobs,
		Mail:  mail,
		GW:    gw,
	}
	env.A = &AuthHandler{
		DB:            db,
		JWTSecret:     testJWTSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Mailer:        mail,
		BaseURL:       "http://localhost:8080",
	}
	env.P = &ProductHandler{
		DB:        db,
		JWTSecret: testJWTSecret,
		Blobs:     blobs,
		BaseURL:   "http://localhost:8080",
	}
	env.O = &OrderHandler{
		DB:        db,
		Repo:      orderRepo,
		JWTSecret: testJWTSecret,
	}
	env.Pay = &PaymentHandler{
		DB:            db,
		Repo:          orderRepo,
		Gateway:       gw,
		WebhookSecret: testWebhookSecret,
		JWTSecret:     testJWTSecret,
		BaseURL:       "http://localhost:8080",
	}
	return env
}

func (env *testEnv) doJSONRequest(method, path string, payload any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, *http.Request, echo.Context) {
	var body *bytes.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c := env.E.NewContext(req, rec)
	return rec, req, c
}

func accessToken(t *testing.T, userID uint, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  time.Now().Add(15 * time.Minute).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testJWTSecret)
	require.NoError(t, err)
	return token
}

func authCookie(t *testing.T, userID uint, role string) *http.Cookie {
	t.Helper()
	return &http.Cookie{Name: "accessToken", Value: accessToken(t, userID, role), Path: "/"}
}
