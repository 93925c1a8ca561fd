// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret"
  access_ttl: "4h"
  refresh_ttl: "168h"

cors:
  allowed_origins:
    - "http://localhost:5173"
    - "https://admin.example.com"

rate_limit:
  login_per_minute: 5
  refresh_per_minute: 10

filter:
  enabled: true
  words:
    - "blockedword"
  response_message: "I cannot answer that."

upstream:
  timeout: "90s"

seed:
  path: "./seed.toml"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}

	if cfg.Auth.JWTSecret != "test-secret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "test-secret")
	}
	if cfg.Auth.AccessTTL != 4*time.Hour {
		t.Errorf("Auth.AccessTTL = %v, want %v", cfg.Auth.AccessTTL, 4*time.Hour)
	}
	if cfg.Auth.RefreshTTL != 168*time.Hour {
		t.Errorf("Auth.RefreshTTL = %v, want %v", cfg.Auth.RefreshTTL, 168*time.Hour)
	}

	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Errorf("CORS.AllowedOrigins len = %d, want 2", len(cfg.CORS.AllowedOrigins))
	}

	if cfg.RateLimit.LoginPerMinute != 5 {
		t.Errorf("RateLimit.LoginPerMinute = %d, want 5", cfg.RateLimit.LoginPerMinute)
	}
	if cfg.RateLimit.RefreshPerMinute != 10 {
		t.Errorf("RateLimit.RefreshPerMinute = %d, want 10", cfg.RateLimit.RefreshPerMinute)
	}

	if !cfg.Filter.Enabled {
		t.Error("Filter.Enabled = false, want true")
	}
	if len(cfg.Filter.Words) != 1 || cfg.Filter.Words[0] != "blockedword" {
		t.Errorf("Filter.Words = %v, want [blockedword]", cfg.Filter.Words)
	}
	if cfg.Filter.ResponseMessage != "I cannot answer that." {
		t.Errorf("Filter.ResponseMessage = %q", cfg.Filter.ResponseMessage)
	}

	if cfg.Upstream.Timeout != 90*time.Second {
		t.Errorf("Upstream.Timeout = %v, want %v", cfg.Upstream.Timeout, 90*time.Second)
	}

	if cfg.Seed.Path != "./seed.toml" {
		t.Errorf("Seed.Path = %q, want %q", cfg.Seed.Path, "./seed.toml")
	}

	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "expanded-secret")

	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "expanded-secret" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "expanded-secret")
	}
}

func TestLoad_UnsetEnvVarBecomesEmpty(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "${DEFINITELY_NOT_SET_VAR_12345}"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for empty jwt_secret")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error = %v, want mention of jwt_secret", err)
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "secret"
  access_ttl: "not-a-duration"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected error for invalid duration")
	}
	if !strings.Contains(err.Error(), "access_ttl") {
		t.Errorf("error = %v, want mention of access_ttl", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "missing http addr",
			cfg:     Config{Database: DatabaseConfig{Path: "./db"}, Auth: AuthConfig{JWTSecret: "s"}},
			wantErr: "http_addr",
		},
		{
			name: "tailscale without hostname",
			cfg: Config{
				Tailscale: TailscaleConfig{Enabled: true},
				Database:  DatabaseConfig{Path: "./db"},
				Auth:      AuthConfig{JWTSecret: "s"},
			},
			wantErr: "hostname",
		},
		{
			name: "tailscale replaces http addr",
			cfg: Config{
				Tailscale: TailscaleConfig{Enabled: true, Hostname: "agentadmin"},
				Database:  DatabaseConfig{Path: "./db"},
				Auth:      AuthConfig{JWTSecret: "s"},
			},
		},
		{
			name: "missing database path",
			cfg: Config{
				Server: ServerConfig{HTTPAddr: ":8080"},
				Auth:   AuthConfig{JWTSecret: "s"},
			},
			wantErr: "database.path",
		},
		{
			name: "missing jwt secret",
			cfg: Config{
				Server:   ServerConfig{HTTPAddr: ":8080"},
				Database: DatabaseConfig{Path: "./db"},
			},
			wantErr: "jwt_secret",
		},
		{
			name: "negative rate limit",
			cfg: Config{
				Server:    ServerConfig{HTTPAddr: ":8080"},
				Database:  DatabaseConfig{Path: "./db"},
				Auth:      AuthConfig{JWTSecret: "s"},
				RateLimit: RateLimitConfig{LoginPerMinute: -1},
			},
			wantErr: "rate_limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() error = nil, want mention of %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
