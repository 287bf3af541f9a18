package llm

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	base := errors.New("boom")

	transient := NewTransientError(base)
	assert.True(t, IsTransient(transient))
	assert.False(t, IsFatal(transient))
	assert.ErrorIs(t, transient, base)

	fatal := NewFatalError(base)
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsTransient(fatal))
	assert.ErrorIs(t, fatal, base)

	// Wrapping preserves the classification.
	wrapped := fmt.Errorf("call failed: %w", transient)
	assert.True(t, IsTransient(wrapped))

	plain := errors.New("unclassified")
	assert.False(t, IsTransient(plain))
	assert.False(t, IsFatal(plain))
}

func TestClassifyHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		transient bool
	}{
		{http.StatusTooManyRequests, true},
		{http.StatusRequestTimeout, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
		{http.StatusServiceUnavailable, true},
		{http.StatusGatewayTimeout, true},
		{http.StatusUnauthorized, false},
		{http.StatusForbidden, false},
		{http.StatusBadRequest, false},
		{http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := classifyHTTPError(tt.status, []byte("details"))
			assert.Equal(t, tt.transient, IsTransient(err))
			assert.Equal(t, !tt.transient, IsFatal(err))
			assert.Contains(t, err.Error(), fmt.Sprintf("status %d", tt.status))
		})
	}
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := RetryConfig{
		MaxAttempts:         3,
		BackoffBase:         time.Second,
		TransientMultiplier: 2.0,
		MaxBackoff:          10 * time.Second,
	}

	tests := []struct {
		name      string
		attempt   int
		transient bool
		want      time.Duration
	}{
		{"first attempt", 0, false, time.Second},
		{"first attempt transient", 0, true, 2 * time.Second},
		{"second attempt", 1, false, 2 * time.Second},
		{"second attempt transient", 1, true, 4 * time.Second},
		{"third attempt transient", 2, true, 8 * time.Second},
		{"capped", 5, true, 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cfg.Backoff(tt.attempt, tt.transient))
		})
	}
}
