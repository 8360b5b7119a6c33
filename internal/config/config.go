package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env         string `mapstructure:"ENV"`
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	AdminKey    string `mapstructure:"ADMIN_KEY"`
	CORSAllowed string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`

	AssistantBaseURL string        `mapstructure:"ASSISTANT_BASE_URL"`
	AssistantModel   string        `mapstructure:"ASSISTANT_MODEL"`
	AssistantAPIKey  string        `mapstructure:"ASSISTANT_API_KEY"`
	ModelTimeout     time.Duration `mapstructure:"MODEL_TIMEOUT"`

	EscalationMarker    string        `mapstructure:"ESCALATION_MARKER"`
	PromptWindowPairs   int           `mapstructure:"PROMPT_WINDOW_PAIRS"`
	SnapshotWindowPairs int           `mapstructure:"SNAPSHOT_WINDOW_PAIRS"`
	SweepInterval       time.Duration `mapstructure:"SWEEP_INTERVAL"`
	PendingTimeout      time.Duration `mapstructure:"PENDING_TIMEOUT"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("ASSISTANT_MODEL", "gpt-4")
	v.SetDefault("MODEL_TIMEOUT", "15s")
	v.SetDefault("ESCALATION_MARKER", "[ESCALATE]")
	v.SetDefault("PROMPT_WINDOW_PAIRS", 5)
	v.SetDefault("SNAPSHOT_WINDOW_PAIRS", 3)
	v.SetDefault("SWEEP_INTERVAL", "6h")
	v.SetDefault("PENDING_TIMEOUT", "48h")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
