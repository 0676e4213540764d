package middleware

import (
	"context"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/artworkup/api/internal/auth"
)

type stubVerifier struct {
	userID string
}

func (s stubVerifier) Validate(token string) (*auth.Claims, error) {
	if token != "oidc-token" {
		return nil, assert.AnError
	}
	return &auth.Claims{UserID: s.userID}, nil
}

func newAuthApp(m *AuthMiddleware) *fiber.App {
	app := fiber.New()
	app.Get("/me", m.Authenticate(), func(c *fiber.Ctx) error {
		return c.SendString(GetUserID(c))
	})
	return app
}

func get(t *testing.T, app *fiber.App, path, authHeader string) (int, string) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	buf := make([]byte, 512)
	n, _ := resp.Body.Read(buf)
	return resp.StatusCode, string(buf[:n])
}

func TestAuthenticate(t *testing.T) {
	legacy, err := auth.GenerateLegacyToken("secret", "legacy-user", "", time.Hour)
	require.NoError(t, err)

	both := newAuthApp(NewAuthMiddleware(stubVerifier{userID: "oidc-user"}, "secret"))
	oidcOnly := newAuthApp(NewAuthMiddleware(stubVerifier{userID: "oidc-user"}, ""))
	legacyOnly := newAuthApp(NewAuthMiddleware(nil, "secret"))

	tests := []struct {
		name       string
		app        *fiber.App
		path       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"oidc token", both, "/me", "Bearer oidc-token", 200, "oidc-user"},
		{"legacy fallback", both, "/me", "Bearer " + legacy, 200, "legacy-user"},
		{"legacy rejected without secret", oidcOnly, "/me", "Bearer " + legacy, 401, ""},
		{"legacy only", legacyOnly, "/me", "Bearer " + legacy, 200, "legacy-user"},
		{"query token", legacyOnly, "/me?token=" + legacy, "", 200, "legacy-user"},
		{"missing header", both, "/me", "", 401, ""},
		{"bad scheme", both, "/me", "Basic abc", 401, ""},
		{"bad token", legacyOnly, "/me", "Bearer nope", 401, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := get(t, tt.app, tt.path, tt.header)
			assert.Equal(t, tt.wantStatus, status)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, body)
			}
		})
	}
}

func TestRateLimiter_JobLimit(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	defer rdb.Close()
	require.NoError(t, rdb.Ping(context.Background()).Err())

	rl := NewRateLimiter(rdb, zap.NewNop())
	prefix := "test-" + time.Now().Format("150405.000000")
	app := fiber.New()
	app.Post("/start", rl.Limit(prefix, 2, time.Minute), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	t.Cleanup(func() {
		keys, _ := rdb.Keys(context.Background(), "ratelimit:"+prefix+":*").Result()
		if len(keys) > 0 {
			rdb.Del(context.Background(), keys...)
		}
	})

	var codes []int
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("POST", "/start", nil), -1)
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}
