package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_PORT", "8081")

	cfg := Load()
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "8081", cfg.Port)
	assert.Equal(t, "http://localhost:5000/api", cfg.APIURL)
	assert.Equal(t, "ws://localhost:5000/ws", cfg.LiveURL)
	assert.Equal(t, []string{"user", "admin"}, cfg.AllowedRoles)
	assert.Equal(t, time.Minute, cfg.HoldWarning)
	assert.Equal(t, 500*time.Millisecond, cfg.ReconnectMin)
	assert.Equal(t, 15*time.Second, cfg.ReconnectMax)
	assert.False(t, cfg.Receipts.Enabled)
	assert.Equal(t, DBConfig{}, cfg.DB)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 30*time.Second, cfg.Cache.TTL)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("APP_PORT", "80")
	t.Setenv("ALLOWED_ROLES", " user , ")
	t.Setenv("HOLD_WARNING", "90")
	t.Setenv("RECONNECT_MIN", "2s")
	t.Setenv("RECONNECT_MAX", "1s")
	t.Setenv("CACHE_TTL", "0s")
	t.Setenv("RECEIPTS_ENABLED", "yes")
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://broker/")
	t.Setenv("DB_USER", "u")
	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_NAME", "cinema")

	cfg := Load()
	assert.Equal(t, []string{"user"}, cfg.AllowedRoles)
	assert.Equal(t, 90*time.Second, cfg.HoldWarning)
	assert.Equal(t, 2*time.Second, cfg.ReconnectMax)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, ReceiptsConfig{Enabled: true, URL: "amqp://broker/"}, cfg.Receipts)
	assert.Equal(t, DBConfig{User: "u", Host: "db", Port: "3306", Name: "cinema"}, cfg.DB)
}

func TestLoadRedisConfig_HostPortWins(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("REDIS_DB", "2")
	rc := LoadRedisConfig()
	assert.Equal(t, "redis:6379", rc.Addr)
	assert.Equal(t, 2, rc.DB)
}
