package redis

import (
	"testing"
	"time"

	"github.com/mverdugo-dev/tempora-backend/pkg/config"
)

func TestOptionsFromConfig_URLWins(t *testing.T) {
	cfg := config.RedisConfig{
		URL:          "redis://:secret@redis.internal:6380/2",
		PoolSize:     15,
		MinIdleConns: 3,
		DialTimeout:  2 * time.Second,
	}
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != "redis.internal:6380" {
		t.Fatalf("unexpected addr %q", opts.Addr)
	}
	if opts.DB != 2 {
		t.Fatalf("expected db 2, got %d", opts.DB)
	}
	if opts.PoolSize != 15 {
		t.Fatalf("expected pool size from config, got %d", opts.PoolSize)
	}
}

func TestOptionsFromConfig_RequiresURLOrAddr(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatal("expected error when neither URL nor address is set")
	}
}

func TestLockKeyNamespacing(t *testing.T) {
	c := &Client{}
	if got := c.LockKey("sync"); got != "tpa:lock:sync" {
		t.Fatalf("unexpected lock key %q", got)
	}
	if got := c.LockKey("cron", "production"); got != "tpa:lock:cron:production" {
		t.Fatalf("unexpected lock key %q", got)
	}
	if got := c.LockKey(""); got != "tpa:lock" {
		t.Fatalf("blank scope should collapse, got %q", got)
	}
}
