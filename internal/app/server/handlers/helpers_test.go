package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safeapps-io/money-back/internal/core/domain"
)

func TestWriteProtocolError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", domain.ErrInvalidSignature, http.StatusBadRequest, "validation"},
		{"conflict", domain.ErrInviteAlreadyUsed, http.StatusConflict, "conflict"},
		{"owner offline", domain.ErrOwnerOffline, http.StatusConflict, "offline"},
		{"joining user offline", fmt.Errorf("resolve: %w", domain.ErrJoiningUserOffline), http.StatusConflict, "offline"},
		{"infrastructure", errors.New("redis: connection refused"), http.StatusBadGateway, "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeProtocolError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var body errorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Code)
		})
	}
}

func TestWriteProtocolErrorHidesInternals(t *testing.T) {
	rec := httptest.NewRecorder()
	writeProtocolError(rec, errors.New("dial tcp 10.0.0.5:6379: connect: connection refused"))

	assert.NotContains(t, rec.Body.String(), "10.0.0.5", "infrastructure detail must not leak")
	assert.Contains(t, rec.Body.String(), "temporary failure")
}

func TestTicketFromRequest(t *testing.T) {
	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/events", nil)
		r.Header.Set("Authorization", "Bearer abc123")
		assert.Equal(t, "abc123", ticketFromRequest(r))
	})

	t.Run("query fallback for event streams", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/events?ticket=abc123", nil)
		assert.Equal(t, "abc123", ticketFromRequest(r))
	})

	t.Run("malformed header yields nothing", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/events?ticket=abc123", nil)
		r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		assert.Empty(t, ticketFromRequest(r))
	})
}
