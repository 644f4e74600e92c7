package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/coupgame/coupd/pkg/services"
)

func TestRespondErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"validation", services.NewValidationError("name", "must not be empty"), http.StatusBadRequest},
		{"not found", fmt.Errorf("session x: %w", services.ErrNotFound), http.StatusNotFound},
		{"invalid state", fmt.Errorf("already started: %w", services.ErrInvalidState), http.StatusBadRequest},
		{"precondition", fmt.Errorf("not enough coins: %w", services.ErrPreconditionFailed), http.StatusBadRequest},
		{"unauthenticated", services.ErrUnauthenticated, http.StatusUnauthorized},
		{"forbidden", services.ErrForbidden, http.StatusForbidden},
		{"rate limited", services.ErrRateLimited, http.StatusTooManyRequests},
		{"transient", services.ErrTransient, http.StatusServiceUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondError(c, tc.err)
			assert.Equal(t, tc.code, w.Code)
			assert.Contains(t, w.Body.String(), "error")
		})
	}
}

func TestRespondErrorHidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, errors.New("pq: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.JSONEq(t, `{"error":"internal server error"}`, w.Body.String())
}
