package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coupgame/coupd/pkg/database"
	"github.com/coupgame/coupd/pkg/models"
	"github.com/coupgame/coupd/pkg/services"
	"github.com/coupgame/coupd/test/util"
)

var adminHeaders = map[string]string{
	"X-User-ID":      "u-admin",
	"X-Display-Name": "admin",
	"X-Privileges":   PrivilegeStartGame,
}

func playerHeaders(name string) map[string]string {
	return map[string]string{
		"X-User-ID":      "u-" + name,
		"X-Display-Name": name,
	}
}

func newTestRouter(t *testing.T) *gin.Engine {
	pool := util.SetupTestDatabase(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rng := rand.New(rand.NewPCG(11, 12))

	server := NewServer(
		database.NewClientFromPool(pool),
		services.NewSessionService(pool, rng, logger),
		services.NewPlayerService(pool, rng, logger),
		services.NewChatService(pool, nil, logger),
		logger,
	)
	return server.Router()
}

func request(t *testing.T, router *gin.Engine, method, path string, headers map[string]string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

func createSessionOverHTTP(t *testing.T, router *gin.Engine) string {
	t.Helper()
	w := request(t, router, http.MethodPost, "/admin/sessions", adminHeaders, gin.H{
		"name":        "http table",
		"max_players": 4,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id, ok := decode(t, w)["session_id"].(string)
	require.True(t, ok)
	return id
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)
	w := request(t, router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decode(t, w)["status"])
}

func TestAdminRoutesRequirePrivilege(t *testing.T) {
	router := newTestRouter(t)

	w := request(t, router, http.MethodPost, "/admin/sessions", nil, gin.H{"name": "x", "max_players": 3})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = request(t, router, http.MethodPost, "/admin/sessions", playerHeaders("alice"), gin.H{"name": "x", "max_players": 3})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	id := createSessionOverHTTP(t, router)

	// Joining needs an identity.
	w := request(t, router, http.MethodPost, "/game/sessions/"+id+"/join", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	for _, name := range []string{"alice", "bob"} {
		w = request(t, router, http.MethodPost, "/game/sessions/"+id+"/join", playerHeaders(name), nil)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	// Starting with fewer than two players was rejected above the API; here
	// the roster is complete.
	w = request(t, router, http.MethodPost, "/admin/sessions/"+id+"/start", adminHeaders, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(t, router, http.MethodGet, "/game/sessions/"+id+"/status", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode(t, w)
	assert.Equal(t, "active", status["status"])
	assert.Equal(t, "action", status["current_phase"])
	assert.Equal(t, float64(1), status["turn_number"])
	assert.Greater(t, status["time_remaining_seconds"], float64(0))

	// Submit and read back a pending action.
	w = request(t, router, http.MethodPost, "/game/actions/"+id, playerHeaders("alice"), gin.H{"action": "income"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(t, router, http.MethodGet, "/game/actions/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	actions, ok := decode(t, w)["actions"].([]any)
	require.True(t, ok)
	assert.Len(t, actions, 1)

	// Game state hides hands from unauthenticated callers.
	w = request(t, router, http.MethodGet, "/game/state/"+id, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := decode(t, w)
	assert.Empty(t, state["your_hand"])
}

func TestSetActionValidationOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	id := createSessionOverHTTP(t, router)
	for _, name := range []string{"alice", "bob"} {
		request(t, router, http.MethodPost, "/game/sessions/"+id+"/join", playerHeaders(name), nil)
	}
	request(t, router, http.MethodPost, "/admin/sessions/"+id+"/start", adminHeaders, nil)

	// Coup needs 7 coins.
	w := request(t, router, http.MethodPost, "/game/actions/"+id, playerHeaders("alice"),
		gin.H{"action": "coup", "target_display_name": "bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestUnknownSessionReturns404(t *testing.T) {
	router := newTestRouter(t)
	w := request(t, router, http.MethodGet, "/game/sessions/absent", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestChannelBindingsOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	id := createSessionOverHTTP(t, router)

	w := request(t, router, http.MethodPost, "/admin/sessions/"+id+"/discord-channel",
		adminHeaders, gin.H{"channel_id": "chan-9"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = request(t, router, http.MethodGet, "/game/sessions/discord-channels", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	bindings, ok := decode(t, w)["bindings"].([]any)
	require.True(t, ok)
	require.Len(t, bindings, 1)
	binding := bindings[0].(map[string]any)
	assert.Equal(t, id, binding["session_id"])
	assert.Equal(t, "chan-9", binding["channel_id"])

	w = request(t, router, http.MethodDelete, "/admin/sessions/"+id+"/discord-channel", adminHeaders, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChatOverHTTP(t *testing.T) {
	router := newTestRouter(t)
	id := createSessionOverHTTP(t, router)

	w := request(t, router, http.MethodPost, "/game/chat/"+id+"/send", playerHeaders("alice"),
		gin.H{"content": "good luck all", "platform": string(models.PlatformWeb)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = request(t, router, http.MethodGet, "/game/chat/"+id+"/messages", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "good luck all")
}
