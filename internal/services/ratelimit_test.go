package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/temcen/filmtaste/internal/config"
)

func TestRateLimitService_WithoutRedisAllows(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{RateLimit: config.RateLimitConfig{Default: 100, Window: time.Hour}}}
	service := NewRateLimitService(cfg, testLogger(), nil)

	allowed, info, err := service.IsAllowed("42", "")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 100, info.Limit)
	assert.Equal(t, 100, info.Remaining)
}

func TestRateLimitService_TierLimits(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{RateLimit: config.RateLimitConfig{Default: 100, Window: time.Hour}}}
	service := NewRateLimitService(cfg, testLogger(), nil)

	assert.Equal(t, 100, service.getLimitForTier(""))
	assert.Equal(t, 100, service.getLimitForTier("free"))
	assert.Equal(t, 1000, service.getLimitForTier("internal"))
}
