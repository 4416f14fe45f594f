package config

import (
	"github.com/kelseyhightower/envconfig"
)

// Config carries all environment-provided settings. It is built once in main
// and passed by reference; nothing else reads the environment.
type Config struct {
	Addr        string `envconfig:"CALLAUDIT_ADDR" default:":8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// SQLite job store location.
	DatabasePath string `envconfig:"CALLAUDIT_DB_PATH" default:"callaudit.db"`

	// Reference workbook with requirement and prompt rows.
	ReferencePath string `envconfig:"CALLAUDIT_REFERENCE_PATH" default:"reference.xlsx"`

	// Base URL the orchestrator uses to reach the stage endpoints. Defaults to
	// the local service itself.
	StageBaseURL string `envconfig:"CALLAUDIT_STAGE_BASE_URL" default:"http://localhost:8080"`

	// Judgment (LLM) service.
	JudgmentURL    string `envconfig:"JUDGMENT_URL" default:"https://api.openai.com/v1/chat/completions"`
	JudgmentModel  string `envconfig:"JUDGMENT_MODEL" default:"gpt-4o-mini"`
	JudgmentAPIKey string `envconfig:"JUDGMENT_API_KEY"`

	// Two alternative audio-processing backends; the second is the fallback.
	AudioBackendURL         string `envconfig:"AUDIO_BACKEND_URL"`
	AudioFallbackBackendURL string `envconfig:"AUDIO_FALLBACK_BACKEND_URL"`
}

// New populates Config from the environment.
func New() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
