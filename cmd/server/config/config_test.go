package config

import (
	"testing"
	"time"
)

func TestLoadServer_Defaults(t *testing.T) {
	t.Setenv("HTTP_ADDR", "")
	t.Setenv("OBS_ADDR", "")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.ObsAddr != ":9090" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadServer_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("OBS_ADDR", ":7001")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Addr != ":7000" || cfg.ObsAddr != ":7001" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadRedis(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_STREAM", "stock_holds")
	t.Setenv("REDIS_HEALTHCHECK_TIMEOUT", "2s")
	t.Setenv("REDIS_HOLD_TTL", "10m")
	t.Setenv("REDIS_STREAM_MAXLEN", "1000")

	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.URL != "redis://localhost:6379/0" {
		t.Fatalf("unexpected redis url: %s", cfg.URL)
	}
	if cfg.Stream != "stock_holds" {
		t.Fatalf("unexpected stream: %s", cfg.Stream)
	}
	if cfg.HealthcheckTimeout != 2*time.Second {
		t.Fatalf("unexpected healthcheck timeout: %v", cfg.HealthcheckTimeout)
	}
	if cfg.HoldTTL != 10*time.Minute {
		t.Fatalf("unexpected hold ttl: %v", cfg.HoldTTL)
	}
	if cfg.StreamMaxLen != 1000 {
		t.Fatalf("unexpected stream maxlen: %d", cfg.StreamMaxLen)
	}
}

func TestLoadRedis_WithOptionalFields(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_HEALTHCHECK_TIMEOUT", "1s")
	t.Setenv("REDIS_HOLD_TTL", "1m")
	t.Setenv("REDIS_STREAM_MAXLEN", "10")
	t.Setenv("REDIS_DIAL_TIMEOUT", "3s")
	t.Setenv("REDIS_READ_TIMEOUT", "4s")
	t.Setenv("REDIS_WRITE_TIMEOUT", "5s")
	t.Setenv("REDIS_POOL_SIZE", "9")
	t.Setenv("REDIS_MIN_IDLE_CONNS", "2")
	t.Setenv("REDIS_MAX_RETRIES", "3")

	cfg, err := LoadRedis()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.DialTimeout == nil || *cfg.DialTimeout != 3*time.Second {
		t.Fatalf("unexpected dial timeout: %v", cfg.DialTimeout)
	}
	if cfg.PoolSize == nil || *cfg.PoolSize != 9 {
		t.Fatalf("unexpected pool size: %v", cfg.PoolSize)
	}
	if cfg.MaxRetries == nil || *cfg.MaxRetries != 3 {
		t.Fatalf("unexpected max retries: %v", cfg.MaxRetries)
	}
}

func TestLoadRedis_RequiresURL(t *testing.T) {
	t.Setenv("REDIS_URL", "")

	if _, err := LoadRedis(); err == nil {
		t.Fatalf("expected error when REDIS_URL is empty")
	}
}

func TestLoadRedis_RejectsBadDuration(t *testing.T) {
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("REDIS_HEALTHCHECK_TIMEOUT", "not-a-duration")

	if _, err := LoadRedis(); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestLoadPayments_Defaults(t *testing.T) {
	t.Setenv("PAYMENT_MAX_ATTEMPTS", "")
	t.Setenv("PAYMENT_BASE_DELAY", "")
	t.Setenv("PAYMENT_ATTEMPT_TIMEOUT", "")
	t.Setenv("PAYMENT_RETRY_ON_DECLINE", "")

	cfg, err := LoadPayments()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxAttempts != 3 || cfg.BaseDelay != time.Second || cfg.AttemptTimeout != 10*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.RetryOnDecline {
		t.Fatalf("declines should be retried by default")
	}
	if cfg.BreakerFailures != 0 || cfg.BreakerCooldown != 0 {
		t.Fatalf("breaker should be off by default: %+v", cfg)
	}
}

func TestLoadPayments_Overrides(t *testing.T) {
	t.Setenv("PAYMENT_MAX_ATTEMPTS", "5")
	t.Setenv("PAYMENT_BASE_DELAY", "250ms")
	t.Setenv("PAYMENT_ATTEMPT_TIMEOUT", "3s")
	t.Setenv("PAYMENT_RETRY_ON_DECLINE", "false")
	t.Setenv("PAYMENT_BREAKER_FAILURES", "4")
	t.Setenv("PAYMENT_BREAKER_COOLDOWN", "30s")

	cfg, err := LoadPayments()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MaxAttempts != 5 || cfg.BaseDelay != 250*time.Millisecond {
		t.Fatalf("unexpected retry config: %+v", cfg)
	}
	if cfg.RetryOnDecline {
		t.Fatalf("expected declines not retried")
	}
	if cfg.BreakerFailures != 4 || cfg.BreakerCooldown != 30*time.Second {
		t.Fatalf("unexpected breaker config: %+v", cfg)
	}
}

func TestLoadPayments_RejectsZeroAttempts(t *testing.T) {
	t.Setenv("PAYMENT_MAX_ATTEMPTS", "0")

	if _, err := LoadPayments(); err == nil {
		t.Fatalf("expected error for zero attempts")
	}
}

func TestLoadAudit(t *testing.T) {
	t.Setenv("AUDIT_LOG_PATH", " /tmp/audit.log ")

	cfg, err := LoadAudit()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Path != "/tmp/audit.log" {
		t.Fatalf("unexpected path: %q", cfg.Path)
	}
}
