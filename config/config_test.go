package config

import (
	"testing"
	"time"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 3001 || cfg.Addr() != ":3001" {
		t.Fatalf("unexpected port %d", cfg.Port)
	}
	if cfg.SessionTTL != 7*24*time.Hour {
		t.Fatalf("unexpected session ttl %v", cfg.SessionTTL)
	}
	if cfg.SessionCookie != "omocrm.sid" || !cfg.CookieSecure {
		t.Fatalf("unexpected cookie settings %q %v", cfg.SessionCookie, cfg.CookieSecure)
	}
	if cfg.AuthPolicy != "server-session" || cfg.StorageBackend != "postgres" {
		t.Fatalf("unexpected defaults %q %q", cfg.AuthPolicy, cfg.StorageBackend)
	}
	if cfg.Login != "" || cfg.Password != "" {
		t.Fatal("credentials must default to empty")
	}
	if cfg.BoardCacheTTL != 5*time.Minute {
		t.Fatalf("unexpected cache ttl %v", cfg.BoardCacheTTL)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"PORT":            "8080",
		"LOGIN":           "admin",
		"PASSWORD":        "secret",
		"STORAGE_BACKEND": "sqlite",
		"DATABASE_URL":    "boards.db",
		"BOARD_CACHE_TTL": "0",
		"COOKIE_SECURE":   "false",
		"DEBUG":           "true",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Addr() != ":8080" || cfg.Login != "admin" || cfg.Password != "secret" {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.BoardCacheTTL != 0 || cfg.CookieSecure || !cfg.Debug {
		t.Fatalf("unexpected toggles %+v", cfg)
	}
}

func TestLoadFromRejectsInvalidValues(t *testing.T) {
	cases := []map[string]string{
		{"PORT": "abc"},
		{"PORT": "0"},
		{"SESSION_TTL": "0s"},
		{"BOARD_CACHE_TTL": "-1m"},
		{"SESSION_COOKIE": " "},
	}
	for _, vars := range cases {
		if _, err := LoadFrom(vars); err == nil {
			t.Fatalf("expected error for %v", vars)
		}
	}
}

func TestOriginsDedupes(t *testing.T) {
	cfg := Config{
		FrontendOrigin: "http://localhost:5173/",
		AllowedOrigins: []string{" https://omocrm.pro ", "http://localhost:5173", ""},
	}
	got := cfg.Origins()
	want := []string{"http://localhost:5173", "https://omocrm.pro"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
