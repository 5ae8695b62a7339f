package config

import (
	"testing"
	"time"
)

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("SUBMIT_GRACE", "90s")
	t.Setenv("QUIZ_VIOLATION_LIMIT", "5")
	t.Setenv("QUIZ_DISABLE_PUSH", "true")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("TIME_WARNING_BEFORE", "soon")

	cfg := Load()
	if cfg.SubmitGrace != 90*time.Second {
		t.Fatalf("expected 90s grace, got %v", cfg.SubmitGrace)
	}
	if cfg.ViolationLimit != 5 || !cfg.DisablePushStream {
		t.Fatalf("unexpected client settings: %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("unexpected origins: %q", cfg.AllowedOrigins)
	}
	if cfg.TimeWarningBefore != 5*time.Minute {
		t.Fatalf("invalid durations fall back to the default, got %v", cfg.TimeWarningBefore)
	}
}

func TestPushURL(t *testing.T) {
	cases := []struct {
		api, ws, want string
	}{
		{"http://localhost:8080/", "", "ws://localhost:8080"},
		{"https://quiz.example", "", "wss://quiz.example"},
		{"https://quiz.example", "wss://push.example/", "wss://push.example"},
	}
	for _, tc := range cases {
		cfg := &Config{APIURL: tc.api, WSURL: tc.ws}
		if got := cfg.PushURL(); got != tc.want {
			t.Fatalf("PushURL(%q, %q): expected %q, got %q", tc.api, tc.ws, tc.want, got)
		}
	}
}
