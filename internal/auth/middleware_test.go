package auth

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret, userID, role string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newApp() *fiber.App {
	app := fiber.New()
	app.Get("/private", JWTMiddleware("secret"), func(c *fiber.Ctx) error {
		if UserID(c) == "" {
			return fiber.NewError(fiber.StatusUnauthorized)
		}
		return c.SendString(UserID(c) + " " + Token(c))
	})
	app.Post("/host", JWTMiddleware("secret"), RequireRole(RoleHost), func(c *fiber.Ctx) error {
		return c.SendStatus(http.StatusOK)
	})
	return app
}

func request(t *testing.T, app *fiber.App, method, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return resp.StatusCode
}

func TestJWTMiddleware(t *testing.T) {
	app := newApp()

	if code := request(t, app, http.MethodGet, "/private", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for missing token, got %d", code)
	}

	valid := signToken(t, "secret", "user-1", RoleParticipant, 15*time.Minute)
	if code := request(t, app, http.MethodGet, "/private", valid); code != http.StatusOK {
		t.Fatalf("expected ok, got %d", code)
	}

	expired := signToken(t, "secret", "user-1", RoleParticipant, -time.Minute)
	if code := request(t, app, http.MethodGet, "/private", expired); code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for expired token, got %d", code)
	}

	forged := signToken(t, "other", "user-1", RoleParticipant, 15*time.Minute)
	if code := request(t, app, http.MethodGet, "/private", forged); code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized for wrong secret, got %d", code)
	}

	anonymous := signToken(t, "secret", "", RoleParticipant, 15*time.Minute)
	if code := request(t, app, http.MethodGet, "/private", anonymous); code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized without user id, got %d", code)
	}
}

func TestRequireRole(t *testing.T) {
	app := newApp()

	participant := signToken(t, "secret", "user-1", RoleParticipant, 15*time.Minute)
	if code := request(t, app, http.MethodPost, "/host", participant); code != http.StatusForbidden {
		t.Fatalf("expected forbidden for participant, got %d", code)
	}

	host := signToken(t, "secret", "user-2", RoleHost, 15*time.Minute)
	if code := request(t, app, http.MethodPost, "/host", host); code != http.StatusOK {
		t.Fatalf("expected ok for host, got %d", code)
	}
}

func TestJWTMiddlewareKeepsToken(t *testing.T) {
	app := newApp()
	token := signToken(t, "secret", "user-1", RoleHost, 15*time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if got, want := string(body), "user-1 "+token; got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestBearerFromHeader(t *testing.T) {
	cases := map[string]string{
		"Bearer abc":   "abc",
		"bearer abc":   "abc",
		"Basic abc":    "",
		"Bearer":       "",
		"":             "",
		"Bearer  abc ": "abc",
	}
	for header, want := range cases {
		if got := bearerFromHeader(header); got != want {
			t.Fatalf("bearerFromHeader(%q) = %q, want %q", header, got, want)
		}
	}
}
