package config

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v9"
	"go.uber.org/zap"
)

func envOf(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"BOT_TOKEN":      "123:abc",
		"DB_HOST":        "localhost",
		"DB_USER":        "shop",
		"DB_PASSWORD":    "secret",
		"DB_NAME":        "shop",
		"ADMIN_IDS":      "1, 2,,3",
		"LOG_LEVEL":      "warning",
		"ITEMS_PER_PAGE": "10",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "host=localhost user=shop password=secret dbname=shop port=5432 sslmode=disable"
	if cfg.DatabaseURL != want {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, want)
	}
	if len(cfg.AdminIDs) != 3 || !cfg.IsAdminID(2) || cfg.IsAdminID(4) {
		t.Errorf("unexpected admin ids %v", cfg.AdminIDs)
	}
	if cfg.LogLevel != "WARN" {
		t.Errorf("LogLevel = %q, want WARN", cfg.LogLevel)
	}
	if cfg.BotMode != BotModePolling || cfg.EventsDriver != EventsNone {
		t.Errorf("unexpected defaults: mode=%s events=%s", cfg.BotMode, cfg.EventsDriver)
	}
	if !cfg.Tunables.PaymentSandbox() || cfg.Tunables.ItemsPerPage() != 10 {
		t.Errorf("unexpected tunables")
	}
}

func TestFromEnvValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing token", map[string]string{"DATABASE_URL": "postgres://x"}},
		{"webhook without url", map[string]string{"BOT_TOKEN": "t", "DATABASE_URL": "postgres://x", "BOT_MODE": "webhook"}},
		{"kafka without brokers", map[string]string{"BOT_TOKEN": "t", "DATABASE_URL": "postgres://x", "EVENTS_DRIVER": "kafka"}},
		{"bad admin id", map[string]string{"BOT_TOKEN": "t", "DATABASE_URL": "postgres://x", "ADMIN_IDS": "abc"}},
		{"bad log level", map[string]string{"BOT_TOKEN": "t", "DATABASE_URL": "postgres://x", "LOG_LEVEL": "loud"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromEnv(envOf(tt.env)); err == nil {
				t.Errorf("expected error")
			}
		})
	}
}

func TestTunablesApply(t *testing.T) {
	tun := NewTunables(true, "", 5, "INFO")

	changed, err := tun.Apply(map[string]any{
		"payment_sandbox":  "false",
		"items_per_page":   float64(20),
		"payment_api_base": "https://pay.example.com",
		"unknown":          1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(changed) != 3 {
		t.Errorf("expected 3 changes, got %v", changed)
	}
	if tun.PaymentSandbox() || tun.ItemsPerPage() != 20 || tun.PaymentAPIBase() != "https://pay.example.com" {
		t.Errorf("tunables not applied")
	}

	if _, err := tun.Apply(map[string]any{"items_per_page": 0}); err == nil {
		t.Errorf("expected error for zero page size")
	}
}

func TestRefresherRefresh(t *testing.T) {
	db, mock := redismock.NewClientMock()
	tun := NewTunables(true, "", 5, "INFO")
	r := NewRefresher(db, "prod", tun, zap.NewNop())

	var got []string
	r.OnChange = func(changed []string) { got = changed }

	mock.ExpectGet("config:prod").SetVal(`{"log_level":"debug"}`)

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tun.LogLevel() != "DEBUG" {
		t.Errorf("LogLevel = %q, want DEBUG", tun.LogLevel())
	}
	if len(got) != 1 || got[0] != "log_level" {
		t.Errorf("OnChange got %v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRefresherMissingKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	r := NewRefresher(db, "dev", NewTunables(true, "", 5, "INFO"), zap.NewNop())

	mock.ExpectGet("config:dev").RedisNil()

	if err := r.Refresh(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
