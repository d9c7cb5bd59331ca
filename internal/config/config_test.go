package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ibscare.yaml")
	content := `
server:
  address: ":9090"
auth:
  mode: firebase
  firebase_project_id: ibs-care
llm:
  history_limit: 15
  gemini:
    model: gemini-2.0-flash
    temperature: 0
  groq:
    api_key_env: TEST_GROQ_KEY
storage:
  driver: sqlite
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "gem-key")
	t.Setenv("TEST_GROQ_KEY", "groq-key")
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("MAIL_PORT", "2525")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}
	if cfg.LLM.Gemini.APIKey != "gem-key" || cfg.LLM.Gemini.Model != "gemini-2.0-flash" {
		t.Fatalf("unexpected gemini config: %+v", cfg.LLM.Gemini)
	}
	if cfg.LLM.Groq.APIKey != "groq-key" {
		t.Fatalf("api_key_env not resolved: %+v", cfg.LLM.Groq)
	}
	if cfg.LLM.Gemini.Temperature == nil || *cfg.LLM.Gemini.Temperature != 0 {
		t.Fatalf("explicit zero temperature must be kept: %v", cfg.LLM.Gemini.Temperature)
	}
	if cfg.LLM.Groq.Temperature == nil || *cfg.LLM.Groq.Temperature != 0.7 {
		t.Fatalf("unset temperature should default to 0.7: %v", cfg.LLM.Groq.Temperature)
	}
	if cfg.LLM.HistoryLimit != 15 {
		t.Fatalf("unexpected history limit: %d", cfg.LLM.HistoryLimit)
	}
	if cfg.Mail.Port != 2525 {
		t.Fatalf("unexpected mail port: %d", cfg.Mail.Port)
	}
	if cfg.Storage.DSN != filepath.Join(dir, "data", "ibscare.db") {
		t.Fatalf("unexpected sqlite dsn: %s", cfg.Storage.DSN)
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.applyEnv(func(string) (string, bool) { return "", false })
	cfg.applyDefaults("/srv")

	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected default address: %s", cfg.Server.Address)
	}
	if strings.Join(cfg.Server.AllowedOrigins, ",") != defaultAllowedOrigins {
		t.Fatalf("unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
	if cfg.LLM.Timeout().Seconds() != 30 || cfg.LLM.HistoryLimit != 10 {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.LLM.Groq.Model != "llama3-8b-8192" || cfg.LLM.Groq.MaxOutputTokens != 800 {
		t.Fatalf("unexpected groq defaults: %+v", cfg.LLM.Groq)
	}
	if cfg.LLM.Gemini.Model != "gemini-1.5-flash" || cfg.LLM.Gemini.MaxOutputTokens != 1000 {
		t.Fatalf("unexpected gemini defaults: %+v", cfg.LLM.Gemini)
	}
	if cfg.LLM.Gemini.Enabled() || cfg.LLM.Groq.Enabled() {
		t.Fatalf("providers without keys must be disabled")
	}
	if cfg.Mail.Server != "smtp.gmail.com" || cfg.Mail.Port != 587 || !cfg.Mail.UseTLS {
		t.Fatalf("unexpected mail defaults: %+v", cfg.Mail)
	}
	if cfg.Auth.Mode != "firebase" {
		t.Fatalf("unexpected auth mode: %s", cfg.Auth.Mode)
	}
	if cfg.Runtime.DataDir != filepath.Join("/srv", "data") {
		t.Fatalf("unexpected data dir: %s", cfg.Runtime.DataDir)
	}
}

func TestDebugSwitchesAuthToDisabled(t *testing.T) {
	env := map[string]string{"DEBUG": "true", "PORT": "5000"}
	var cfg Config
	cfg.applyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
	cfg.applyDefaults(".")

	if cfg.Auth.Mode != "disabled" || cfg.Logging.Level != "debug" {
		t.Fatalf("debug should disable auth and raise log level: %+v %+v", cfg.Auth, cfg.Logging)
	}
	if cfg.Server.Address != ":5000" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"storage driver", func(c *Config) { c.Storage.Driver = "mongo" }},
		{"mysql without dsn", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"queue driver", func(c *Config) { c.Queue.Driver = "kafka" }},
		{"redis without address", func(c *Config) { c.Queue.Driver = "redis" }},
		{"firebase without project", func(c *Config) { c.Auth.FirebaseProjectID = "" }},
		{"auth mode", func(c *Config) { c.Auth.Mode = "saml" }},
		{"negative temperature", func(c *Config) { c.LLM.Groq.Temperature = float64Ptr(-0.1) }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{Auth: AuthConfig{Mode: "firebase", FirebaseProjectID: "p"}}
			cfg.applyDefaults(".")
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadRejectsUnknownExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unsupported format")
	}
}
