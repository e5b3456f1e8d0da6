package middleware

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

const testSecret = "middleware-test-secret"

func newAuthApp(secret string) *fiber.App {
	auth := NewAuthMiddleware(secret)
	app := fiber.New()
	app.Get("/me", auth.Authenticate(), func(c *fiber.Ctx) error {
		return c.SendString(GetUserID(c))
	})
	return app
}

func get(t *testing.T, app *fiber.App, path, token string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func TestAuthenticate_DisabledWithoutSecret(t *testing.T) {
	resp := get(t, newAuthApp(""), "/me", "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthenticate(t *testing.T) {
	auth := NewAuthMiddleware(testSecret)
	valid, err := auth.GenerateToken("user-1", "u@example.com", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	otherKey, _ := NewAuthMiddleware("other-secret").GenerateToken("user-1", "", time.Hour)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		UserID: "user-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	expiredToken, _ := expired.SignedString([]byte(testSecret))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, UserClaims{UserID: "user-1"})
	noneToken, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"valid", valid, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong key", otherKey, http.StatusUnauthorized},
		{"expired", expiredToken, http.StatusUnauthorized},
		{"unsigned", noneToken, http.StatusUnauthorized},
	}
	app := newAuthApp(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, app, "/me", tt.token)
			if resp.StatusCode != tt.status {
				t.Errorf("expected %d, got %d", tt.status, resp.StatusCode)
			}
		})
	}
}

func TestAuthenticate_BadHeaderFormat(t *testing.T) {
	app := newAuthApp(testSecret)
	req, _ := http.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token abc")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestRateLimiter_NilRedisPassesThrough(t *testing.T) {
	rl := NewRateLimiter(nil)
	app := fiber.New()
	app.Get("/", rl.RenderLimit(1), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	for i := 0; i < 3; i++ {
		if resp := get(t, app, "/", ""); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
}

func TestRateLimiter_Redis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	prefix := "test-" + time.Now().Format("150405.000000")
	rl := NewRateLimiter(client)
	app := fiber.New()
	app.Get("/", rl.Limit(prefix, 2, time.Minute), func(c *fiber.Ctx) error { return c.SendStatus(http.StatusOK) })

	for i := 0; i < 2; i++ {
		resp := get(t, app, "/", "")
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, resp.StatusCode)
		}
	}
	resp := get(t, app, "/", "")
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}
}
