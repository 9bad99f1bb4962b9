package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func validConfig() *Config {
	return &Config{
		Mode:          "debug",
		Port:          8080,
		GrantTTL:      time.Hour,
		AgentIdentity: "agent",
		Captions:      Captions{WindowSize: 2, FallbackLanguage: "en", DefaultLanguage: "en"},
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"window", func(c *Config) { c.Captions.WindowSize = 0 }},
		{"fallback", func(c *Config) { c.Captions.FallbackLanguage = "" }},
		{"default language", func(c *Config) { c.Captions.DefaultLanguage = "" }},
		{"ttl", func(c *Config) { c.GrantTTL = 0 }},
		{"agent", func(c *Config) { c.AgentIdentity = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestSigningConfigured(t *testing.T) {
	cfg := validConfig()
	if cfg.SigningConfigured() {
		t.Fatal("expected unconfigured signing")
	}
	cfg.APIKey = "key"
	if cfg.SigningConfigured() {
		t.Fatal("key alone must not count as configured")
	}
	cfg.APISecret = "secret"
	if !cfg.SigningConfigured() {
		t.Fatal("expected configured signing")
	}
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing-for-test")
	t.Setenv("PARTY_API_KEY", "key")
	t.Setenv("PARTY_API_SECRET", "secret")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 || cfg.Captions.WindowSize != 2 || cfg.Captions.FallbackLanguage != "en" || cfg.Captions.DefaultLanguage != "en" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.SigningConfigured() {
		t.Fatal("expected signing keys from environment")
	}
}

func TestLoad_FlagsOverrideDefaults(t *testing.T) {
	t.Setenv("CONFIG_ENV", "missing-for-test")
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("agent_identity", "agent", "")
	if err := flags.Parse([]string{"--agent_identity=captioner"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg, err := Load(flags)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.AgentIdentity != "captioner" {
		t.Fatalf("AgentIdentity = %q, want captioner", cfg.AgentIdentity)
	}
}
