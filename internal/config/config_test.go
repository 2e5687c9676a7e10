package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadReadsYAMLAndAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
port: "8000"
databaseURI: mongodb://localhost:27017
databaseName: docchat
jwtSecret: test-secret
openaiAPIKey: sk-test
openaiModel: gpt-4o
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Fatalf("expected port 8000, got %q", cfg.Port)
	}
	if cfg.StaticDir != "static" {
		t.Fatalf("expected static dir default, got %q", cfg.StaticDir)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
port: "8000"
databaseURI: mongodb://file:27017
databaseName: docchat
jwtSecret: file-secret
openaiAPIKey: sk-file
openaiModel: gpt-4o
`)
	t.Setenv("DATABASE_URI", "mongodb://env:27017")
	t.Setenv("JWT_SECRET_KEY", "env-secret")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DatabaseURI != "mongodb://env:27017" {
		t.Fatalf("expected env database uri, got %q", cfg.DatabaseURI)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Fatalf("expected env jwt secret, got %q", cfg.JWTSecret)
	}
}

func TestLoadRejectsMissingRequiredValues(t *testing.T) {
	path := writeConfig(t, `
port: "8000"
databaseURI: mongodb://localhost:27017
databaseName: docchat
jwtSecret: test-secret
openaiModel: gpt-4o
`)
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing api key")
	}
}
