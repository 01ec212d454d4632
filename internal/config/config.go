package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default location of the YAML config file.
const ConfigPath = "config.yaml"

// Gemini model defaults. The study guide and quiz generators share the
// same pro model; chat offers three tiers selectable per message.
const (
	DefaultStudyGuideModel = "gemini-2.5-pro-exp-03-25"
	DefaultQuizModel       = "gemini-2.5-pro-exp-03-25"
	ChatBasicModel         = "gemini-2.0-flash"
	ChatProModel           = "gemini-2.0-pro-exp-02-05"
	ChatReasoningModel     = "gemini-2.0-flash-thinking-exp-01-21"
	DefaultChatModel       = ChatBasicModel
)

// ChatModels maps selectable chat models to their UI display names.
var ChatModels = map[string]string{
	ChatBasicModel:     "Basic - Fast & Intelligent",
	ChatProModel:       "Pro - More Intelligent",
	ChatReasoningModel: "Reasoning - Slow, Best for Complex Questions",
}

// Config represents configuration loaded from YAML with env overrides.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	GeminiAPIKey string `yaml:"geminiApiKey"`

	UploadDir string `yaml:"uploadDir"`
	DataDir   string `yaml:"dataDir"`

	StudyGuideModel string `yaml:"studyGuideModel"`
	QuizModel       string `yaml:"quizModel"`

	MaxUploadBytes    int64    `yaml:"maxUploadBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`
	TrustedProxies    []string `yaml:"trustedProxies"`

	// Rate limiting is optional: limiters are only created when a Redis
	// address is configured.
	RedisAddr                string `yaml:"redisAddr"`
	RedisPassword            string `yaml:"redisPassword"`
	UploadRateLimitPerMinute int    `yaml:"uploadRateLimitPerMinute"`
	QuizRateLimitPerMinute   int    `yaml:"quizRateLimitPerMinute"`

	QuizConcurrency       int `yaml:"quizConcurrency"`
	SSEIdleTimeoutSeconds int `yaml:"sseIdleTimeoutSeconds"`

	ProgressSweepIntervalSeconds int `yaml:"progressSweepIntervalSeconds"`
	ProgressMaxAgeSeconds        int `yaml:"progressMaxAgeSeconds"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		Port:                         "8080",
		LogLevel:                     "info",
		UploadDir:                    "uploads",
		DataDir:                      "data",
		StudyGuideModel:              DefaultStudyGuideModel,
		QuizModel:                    DefaultQuizModel,
		MaxUploadBytes:               50 * 1024 * 1024,
		AllowedExtensions:            []string{".pdf", ".txt", ".md"},
		UploadRateLimitPerMinute:     5,
		QuizRateLimitPerMinute:       10,
		QuizConcurrency:              2,
		SSEIdleTimeoutSeconds:        60,
		ProgressSweepIntervalSeconds: 600,
		ProgressMaxAgeSeconds:        3600,
	}
}

// Load reads config from path (defaults to config.yaml). A missing file
// is not an error: defaults plus env overrides apply.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
		// fall through to defaults
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("UPLOAD_DIR"); v != "" {
		cfg.UploadDir = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("STUDY_GUIDE_MODEL"); v != "" {
		cfg.StudyGuideModel = v
	}
	if v := os.Getenv("QUIZ_MODEL"); v != "" {
		cfg.QuizModel = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("QUIZ_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.QuizConcurrency = n
		}
	}
	if v := os.Getenv("SSE_IDLE_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SSEIdleTimeoutSeconds = n
		}
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SSEIdleTimeout returns the idle timeout as a duration.
func (c Config) SSEIdleTimeout() time.Duration {
	return time.Duration(c.SSEIdleTimeoutSeconds) * time.Second
}

// ProgressSweepInterval returns the reaper wake-up interval.
func (c Config) ProgressSweepInterval() time.Duration {
	return time.Duration(c.ProgressSweepIntervalSeconds) * time.Second
}

// ProgressMaxAge returns how long finished operations stay queryable.
func (c Config) ProgressMaxAge() time.Duration {
	return time.Duration(c.ProgressMaxAgeSeconds) * time.Second
}

func validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return errors.New("config: geminiApiKey is required (set in config.yaml or GEMINI_API_KEY)")
	}
	if cfg.UploadDir == "" {
		return errors.New("config: uploadDir is required (set in config.yaml or UPLOAD_DIR)")
	}
	if cfg.DataDir == "" {
		return errors.New("config: dataDir is required (set in config.yaml or DATA_DIR)")
	}
	if cfg.QuizConcurrency <= 0 {
		return errors.New("config: quizConcurrency must be > 0")
	}
	if cfg.SSEIdleTimeoutSeconds <= 0 {
		return errors.New("config: sseIdleTimeoutSeconds must be > 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return errors.New("config: maxUploadBytes must be > 0")
	}
	if cfg.RedisAddr != "" {
		if cfg.UploadRateLimitPerMinute <= 0 {
			return errors.New("config: uploadRateLimitPerMinute must be > 0 when redisAddr is set")
		}
		if cfg.QuizRateLimitPerMinute <= 0 {
			return errors.New("config: quizRateLimitPerMinute must be > 0 when redisAddr is set")
		}
	}
	return nil
}
