package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New([]string{"-route-server-url", "http://routes.example.com"})
	require.NoError(t, err)

	assert.Equal(t, "http://routes.example.com", cfg.RouteServerURL)
	assert.Equal(t, 60*time.Second, cfg.RouteServerTTL)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 100, cfg.AcceptorPool)
	assert.Equal(t, DefaultTimeouts(), cfg.Timeouts)
}

func TestNewRequiresRouteServerURL(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestNewTimeoutOverrides(t *testing.T) {
	cfg, err := New([]string{
		"-route-server-url", "http://routes.example.com",
		"-timeout-connecting-ms", "1500",
		"-timeout-receiving-response-ms", "30000",
	})
	require.NoError(t, err)

	assert.Equal(t, 1500*time.Millisecond, cfg.Timeouts.Connecting)
	assert.Equal(t, 30*time.Second, cfg.Timeouts.ReceivingResponse)
	assert.Equal(t, DefaultTimeouts().SendingRequestBody, cfg.Timeouts.SendingRequestBody)
}

func TestNewTTLEnvOverride(t *testing.T) {
	t.Setenv("ROUTE_SERVER_TTL_MS", "5000")
	cfg, err := New([]string{"-route-server-url", "http://routes.example.com"})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.RouteServerTTL)
}
