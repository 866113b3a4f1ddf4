package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"duel-match-system/services"
)

func whoAmI(c *fiber.Ctx) error {
	roles, _ := c.Locals("user_roles").([]string)
	lang, _ := c.Locals("lang").(language.Tag)
	return c.JSON(fiber.Map{
		"user_id": c.Locals("user_id"),
		"roles":   roles,
		"lang":    lang.String(),
	})
}

func do(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := map[string]interface{}{}
	_ = json.Unmarshal(raw, &body)
	return resp.StatusCode, body
}

func TestGatewayAuthMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("gw-secret"))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	cases := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"Bearer wrong", http.StatusUnauthorized},
		{"Bearer gw-secret", http.StatusOK},
		{"gw-secret", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		status, _ := do(t, app, req)
		assert.Equal(t, tc.status, status, tc.header)
	}
}

func TestUserContextMiddleware(t *testing.T) {
	app := fiber.New()
	app.Get("/me", UserContextMiddleware(), whoAmI)

	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Contains(t, body["error"], "X-User-ID")

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", " alice ")
	req.Header.Set("X-User-Roles", "player, admin,,")
	req.Header.Set("Accept-Language", "es-ES,es;q=0.9")
	status, body = do(t, app, req)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", body["user_id"])
	assert.Equal(t, []interface{}{"player", "admin"}, body["roles"])
	assert.Equal(t, "es", body["lang"])

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", "bob")
	req.Header.Set("X-User-Language", "fr")
	req.Header.Set("Accept-Language", "es")
	_, body = do(t, app, req)
	assert.Equal(t, "fr", body["lang"], "the stored preference wins over the browser")
}

func TestSSEAuthMiddleware(t *testing.T) {
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/validate", r.URL.Path)
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		if in["access_token"] != "good-token" {
			http.Error(w, "expired", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(services.ValidateResponse{UserID: "alice", DeviceID: in["device_id"], Roles: []string{"player"}})
	}))
	defer authSrv.Close()

	app := fiber.New()
	app.Get("/matches/:id/events", SSEAuthMiddleware(services.NewAuthServiceClient(authSrv.URL, "svc")), whoAmI)

	status, _ := do(t, app, httptest.NewRequest(http.MethodGet, "/matches/m1/events?token=good-token", nil))
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = do(t, app, httptest.NewRequest(http.MethodGet, "/matches/m1/events?token=bad&device_id=d1", nil))
	assert.Equal(t, http.StatusUnauthorized, status)

	status, body := do(t, app, httptest.NewRequest(http.MethodGet, "/matches/m1/events?token=good-token&device_id=d1&lang=fr", nil))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", body["user_id"])
	assert.Equal(t, "fr", body["lang"])
}
