package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func identityRouter() *gin.Engine {
	router := gin.New()
	router.Use(identity())
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": callerID(c), "name": callerName(c)})
	})
	router.GET("/user-only", requireUser(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/admin-only", requirePrivilege(PrivilegeStartGame), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func perform(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdentityHeaders(t *testing.T) {
	router := identityRouter()

	w := perform(router, http.MethodGet, "/whoami", map[string]string{
		"X-User-ID":      "u1",
		"X-Display-Name": "alice",
	})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"u1","name":"alice"}`, w.Body.String())

	// Display name falls back to the user id.
	w = perform(router, http.MethodGet, "/whoami", map[string]string{"X-User-ID": "u1"})
	assert.JSONEq(t, `{"user_id":"u1","name":"u1"}`, w.Body.String())
}

func TestRequireUser(t *testing.T) {
	router := identityRouter()

	w := perform(router, http.MethodGet, "/user-only", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(router, http.MethodGet, "/user-only", map[string]string{"X-User-ID": "u1"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequirePrivilege(t *testing.T) {
	router := identityRouter()

	w := perform(router, http.MethodGet, "/admin-only", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = perform(router, http.MethodGet, "/admin-only", map[string]string{"X-User-ID": "u1"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = perform(router, http.MethodGet, "/admin-only", map[string]string{
		"X-User-ID":    "u1",
		"X-Privileges": "OTHER, START_GAME",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}
