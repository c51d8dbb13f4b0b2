package auth

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"inbox-backend/internal/api"
)

const testSecret = "test-secret"

func newMiddlewareApp(t *testing.T, extra ...fiber.Handler) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *api.AppError
			if errors.As(err, &appErr) {
				return c.Status(appErr.Status).JSON(api.ErrorResponse{Error: appErr})
			}
			return c.Status(500).SendString(err.Error())
		},
	})
	handlers := append([]fiber.Handler{AuthMiddleware(testSecret)}, extra...)
	handlers = append(handlers, func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return errors.New("handler reached without a user in Locals")
		}
		return c.JSON(fiber.Map{"id": user.ID})
	})
	app.Get("/protected", handlers...)
	return app
}

func TestAuthMiddleware_RejectsMissingAndMalformedHeaders(t *testing.T) {
	app := newMiddlewareApp(t)

	req, _ := http.NewRequest("GET", "/protected", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401 without a header, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401 for a non-Bearer scheme, got %d", resp.StatusCode)
	}
}

func TestAuthMiddleware_AcceptsValidTokenAndSetsUser(t *testing.T) {
	app := newMiddlewareApp(t)

	token, err := GenerateAccessToken("u1", "agent@example.com", []string{"agent"}, testSecret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 with a valid token, got %d", resp.StatusCode)
	}
}

func TestAuthMiddleware_RejectsTokenSignedWithWrongSecret(t *testing.T) {
	app := newMiddlewareApp(t)

	token, err := GenerateAccessToken("u1", "agent@example.com", nil, "other-secret")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 401 {
		t.Fatalf("expected 401 for a foreign signature, got %d", resp.StatusCode)
	}
}

func TestRequireAdmin_GatesOnRole(t *testing.T) {
	app := newMiddlewareApp(t, RequireAdmin())

	agent, _ := GenerateAccessToken("u1", "agent@example.com", []string{"agent"}, testSecret)
	req, _ := http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+agent)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 403 {
		t.Fatalf("expected 403 for a non-admin, got %d", resp.StatusCode)
	}

	admin, _ := GenerateAccessToken("u2", "admin@example.com", []string{"admin"}, testSecret)
	req, _ = http.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 for an admin, got %d", resp.StatusCode)
	}
}
