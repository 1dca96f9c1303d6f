package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Realtime.PushInterval != 5*time.Second {
		t.Errorf("Expected 5s push interval, got %v", cfg.Realtime.PushInterval)
	}
	if cfg.Realtime.SweepInterval != 30*time.Second {
		t.Errorf("Expected 30s sweep interval, got %v", cfg.Realtime.SweepInterval)
	}
	if cfg.Realtime.PingTimeout != 60*time.Second {
		t.Errorf("Expected 60s ping timeout, got %v", cfg.Realtime.PingTimeout)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("PROGRESS_PUSH_INTERVAL", "2s")
	t.Setenv("HEARTBEAT_PING_TIMEOUT", "90")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Expected port 9000, got %q", cfg.Port)
	}
	if cfg.Realtime.PushInterval != 2*time.Second {
		t.Errorf("Expected 2s push interval, got %v", cfg.Realtime.PushInterval)
	}
	if cfg.Realtime.PingTimeout != 90*time.Second {
		t.Errorf("Expected bare integer read as seconds, got %v", cfg.Realtime.PingTimeout)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Port: "", DBPath: "x", Realtime: RealtimeConfig{
		SweepInterval: time.Second, PingTimeout: time.Second, PushInterval: time.Second,
	}}
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for empty port")
	}

	cfg.Port = "8080"
	cfg.DBPath = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for empty db path")
	}

	cfg.DBPath = "x"
	cfg.Realtime.PushInterval = 0
	if err := cfg.Validate(); err == nil {
		t.Error("Expected error for zero push interval")
	}
}

func TestIsDevelopment(t *testing.T) {
	cfg := &Config{FrontendURL: ""}
	if !cfg.IsDevelopment() {
		t.Error("Empty frontend URL should be development")
	}
	cfg.FrontendURL = "http://localhost:3000"
	if !cfg.IsDevelopment() {
		t.Error("localhost should be development")
	}
	cfg.FrontendURL = "https://assess.example.com"
	if cfg.IsDevelopment() {
		t.Error("Production URL should not be development")
	}
}
