package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	// RPC requests one participant may send per RPCInterval.
	RPCLimit    int           `mapstructure:"rpc_limit"`
	RPCInterval time.Duration `mapstructure:"rpc_interval"`

	// Signing key pair for grants. Both must be set or the token
	// endpoint refuses to issue anything.
	APIKey    string        `mapstructure:"api_key"`
	APISecret string        `mapstructure:"api_secret"`
	ServerURL string        `mapstructure:"server_url"`
	GrantTTL  time.Duration `mapstructure:"grant_ttl"`

	AgentIdentity string   `mapstructure:"agent_identity"`
	Captions      Captions `mapstructure:"captions"`
}

type Captions struct {
	WindowSize int `mapstructure:"window_size"`
	// FallbackLanguage is the language of segments sent without one.
	FallbackLanguage string `mapstructure:"fallback_language"`
	// DefaultLanguage is the captions language a participant starts with.
	DefaultLanguage string `mapstructure:"default_language"`
}

func (c *Config) SigningConfigured() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// Load reads config/config.<CONFIG_ENV>.yaml, applies PARTY_* environment
// overrides and, when flags is non-nil, any flags the caller defined.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("PARTY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().
		Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Bool("signing", cfg.SigningConfigured()).
		Msg("config ready")
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("rpc_limit", 20)
	v.SetDefault("rpc_interval", "1s")
	v.SetDefault("api_key", "")
	v.SetDefault("api_secret", "")
	v.SetDefault("server_url", "ws://localhost:8080")
	v.SetDefault("grant_ttl", "6h")
	v.SetDefault("agent_identity", "agent")
	v.SetDefault("captions.window_size", 2)
	v.SetDefault("captions.fallback_language", "en")
	v.SetDefault("captions.default_language", "en")
}

// Validate rejects values no component can work with. Missing signing keys
// are not an error here: the token endpoint reports them per request.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.Captions.WindowSize <= 0 {
		return fmt.Errorf("captions.window_size must be positive, got %d", c.Captions.WindowSize)
	}
	if c.Captions.FallbackLanguage == "" {
		return fmt.Errorf("captions.fallback_language is required")
	}
	if c.Captions.DefaultLanguage == "" {
		return fmt.Errorf("captions.default_language is required")
	}
	if c.GrantTTL <= 0 {
		return fmt.Errorf("grant_ttl must be positive, got %s", c.GrantTTL)
	}
	if c.AgentIdentity == "" {
		return fmt.Errorf("agent_identity is required")
	}
	return nil
}
