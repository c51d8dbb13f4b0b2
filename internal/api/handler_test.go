package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func newTestApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *AppError
			if errors.As(err, &appErr) {
				return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
			}
			return c.Status(500).JSON(ErrorResponse{Error: &AppError{Code: "INTERNAL_ERROR", Message: err.Error()}})
		},
	})
	RegisterRoutes(app, h)
	return app
}

func TestLookupConstraints_DependencyAndStaticFilters(t *testing.T) {
	app := newTestApp(NewHandler(nil, nil, nil))

	body := `{
		"config": {
			"related_module_name": "contacts",
			"display_field": "name",
			"depends_on": "account_id",
			"dependency_filter": {"field": "account_id", "operator": "equals", "target_field": "account_id"},
			"additional_settings": {
				"show_recent": true,
				"recent_limit": 5,
				"filters": [{"field": "status", "operator": "=", "value": "active"}]
			}
		},
		"context": {"account_id": "acc-42"}
	}`

	req, _ := http.NewRequest("POST", "/api/lookups/constraints", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out struct {
		Data struct {
			Constraints []struct {
				Field    string `json:"field"`
				Operator string `json:"operator"`
				Value    any    `json:"value"`
			} `json:"constraints"`
			Where []struct {
				Method string `json:"method"`
				Params []any  `json:"params"`
			} `json:"where"`
			ShowRecent  bool `json:"show_recent"`
			RecentLimit int  `json:"recent_limit"`
		} `json:"data"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("parse response: %v\n%s", err, raw)
	}

	if len(out.Data.Constraints) != 2 {
		t.Fatalf("expected static + dependency constraints, got %v", out.Data.Constraints)
	}
	if out.Data.Constraints[0].Field != "status" || out.Data.Constraints[0].Value != "active" {
		t.Fatalf("unexpected static filter: %+v", out.Data.Constraints[0])
	}
	if out.Data.Constraints[1].Field != "account_id" || out.Data.Constraints[1].Operator != "=" || out.Data.Constraints[1].Value != "acc-42" {
		t.Fatalf("unexpected dependency constraint: %+v", out.Data.Constraints[1])
	}
	if len(out.Data.Where) != 1 || out.Data.Where[0].Method != "where" {
		t.Fatalf("unexpected where clauses: %+v", out.Data.Where)
	}
	if !out.Data.ShowRecent || out.Data.RecentLimit != 5 {
		t.Fatalf("recent settings not honored: show=%v limit=%d", out.Data.ShowRecent, out.Data.RecentLimit)
	}
}

func TestLookupConstraints_MissingContextKeySkipsDependency(t *testing.T) {
	app := newTestApp(NewHandler(nil, nil, nil))

	body := `{
		"config": {
			"related_module_name": "contacts",
			"depends_on": "account_id",
			"dependency_filter": {"field": "account_id", "operator": "equals", "target_field": "account_id"}
		},
		"context": {}
	}`

	req, _ := http.NewRequest("POST", "/api/lookups/constraints", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out struct {
		Data struct {
			Constraints []any `json:"constraints"`
			Where       []any `json:"where"`
		} `json:"data"`
	}
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("parse response: %v\n%s", err, raw)
	}
	if len(out.Data.Constraints) != 0 || len(out.Data.Where) != 0 {
		t.Fatalf("missing context key should contribute nothing, got %+v", out.Data)
	}
}

func TestLookupConstraints_RejectsInvalidOperator(t *testing.T) {
	app := newTestApp(NewHandler(nil, nil, nil))

	body := `{
		"config": {
			"related_module_name": "contacts",
			"depends_on": "account_id",
			"dependency_filter": {"field": "account_id", "operator": "is_empty", "target_field": "account_id"}
		},
		"context": {}
	}`

	req, _ := http.NewRequest("POST", "/api/lookups/constraints", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 400 {
		t.Fatalf("expected 400 for visibility-only operator, got %d", resp.StatusCode)
	}

	var errResp ErrorResponse
	raw, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(raw, &errResp); err != nil {
		t.Fatalf("parse error response: %v", err)
	}
	if errResp.Error.Code != "INVALID_PAYLOAD" {
		t.Fatalf("expected INVALID_PAYLOAD, got %s", errResp.Error.Code)
	}
}
