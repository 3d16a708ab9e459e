package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "REDIS_ADDR", "CANVAS_WIDTH", "LAYOUT_ITERATIONS", "HEARTBEAT_INTERVAL",
		"PRESENCE_RETENTION", "THROTTLE_INTERVAL", "CORS_ORIGINS",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 800.0, cfg.Layout.CanvasWidth)
	assert.Equal(t, 300, cfg.Layout.Iterations)
	assert.Equal(t, 30*time.Second, cfg.Presence.HeartbeatInterval)
	assert.Equal(t, 5*time.Minute, cfg.Presence.Retention)
	assert.Equal(t, 50*time.Millisecond, cfg.Presence.ThrottleInterval)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("CANVAS_WIDTH", "1024.5")
	t.Setenv("HEARTBEAT_INTERVAL", "10s")
	t.Setenv("PRESENCE_RETENTION", "1m")
	t.Setenv("THROTTLE_INTERVAL", "not-a-duration")
	t.Setenv("CORS_ORIGINS", " https://a.test , ,https://b.test")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, 1024.5, cfg.Layout.CanvasWidth)
	assert.Equal(t, 10*time.Second, cfg.Presence.HeartbeatInterval)
	assert.Equal(t, time.Minute, cfg.Presence.Retention)
	assert.Equal(t, 50*time.Millisecond, cfg.Presence.ThrottleInterval, "invalid values fall back to the default")
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.IsProduction())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:   ServerConfig{Port: "8080"},
			Redis:    RedisConfig{Addr: "localhost:6379"},
			Layout:   LayoutConfig{CanvasWidth: 800, CanvasHeight: 600, Iterations: 300},
			Presence: PresenceConfig{HeartbeatInterval: 30 * time.Second, Retention: 5 * time.Minute},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing port", func(c *Config) { c.Server.Port = "" }, "PORT"},
		{"missing redis", func(c *Config) { c.Redis.Addr = "" }, "REDIS_ADDR"},
		{"zero canvas", func(c *Config) { c.Layout.CanvasHeight = 0 }, "CANVAS_WIDTH"},
		{"zero iterations", func(c *Config) { c.Layout.Iterations = 0 }, "LAYOUT_ITERATIONS"},
		{"retention shorter than timeout", func(c *Config) { c.Presence.Retention = time.Minute }, "PRESENCE_RETENTION"},
		{"negative throttle", func(c *Config) { c.Presence.ThrottleInterval = -time.Second }, "THROTTLE_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}
