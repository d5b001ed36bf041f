package http_test

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	httptransport "github.com/parkfair/contest-service/internal/api/http"
	"github.com/parkfair/contest-service/internal/observability"
	apperrors "github.com/parkfair/contest-service/pkg/util/errorutil"
)

func newMiddlewareApp(t *testing.T) *fiber.App {
	t.Helper()
	app := fiber.New()
	httptransport.RegisterMiddlewares(app, zap.NewNop(), observability.NewMetrics(), 5*time.Second)
	app.Get("/config", func(c *fiber.Ctx) error {
		return apperrors.NewConfigError("mail dispatch credential missing")
	})
	app.Get("/gone", func(c *fiber.Ctx) error {
		return apperrors.NewGone("approval already resolved")
	})
	app.Get("/missing", func(c *fiber.Ctx) error {
		return pgx.ErrNoRows
	})
	app.Get("/panic", func(c *fiber.Ctx) error {
		panic("boom")
	})
	return app
}

func TestErrorMiddlewareMapsDomainCodes(t *testing.T) {
	app := newMiddlewareApp(t)

	cases := []struct {
		path       string
		wantStatus int
		wantCode   string
	}{
		{"/config", fiber.StatusInternalServerError, apperrors.CodeConfig},
		{"/gone", fiber.StatusGone, apperrors.CodeGone},
		{"/missing", fiber.StatusNotFound, apperrors.CodeNotFound},
		{"/panic", fiber.StatusInternalServerError, apperrors.CodeInternal},
	}
	for _, tc := range cases {
		resp, err := app.Test(httptest.NewRequest("GET", tc.path, nil), -1)
		if err != nil {
			t.Fatalf("%s: app.Test: %v", tc.path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != tc.wantStatus {
			t.Errorf("%s: status = %d, want %d", tc.path, resp.StatusCode, tc.wantStatus)
		}
		var decoded struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &decoded); err != nil {
			t.Fatalf("%s: decode %q: %v", tc.path, body, err)
		}
		if decoded.Error.Code != tc.wantCode {
			t.Errorf("%s: code = %s, want %s", tc.path, decoded.Error.Code, tc.wantCode)
		}
	}
}
