// Package config loads the backend configuration from defaults, an optional
// YAML file, and environment variables, in that precedence order.
package config

import (
	"time"
)

// Config is the complete backend configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`
	Upload    UploadConfig    `yaml:"upload" env:"UPLOAD"`
	Session   SessionConfig   `yaml:"session" env:"SESSION"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port int `yaml:"port" env:"PORT"`
	// MetricsPort serves /metrics on its own listener; 0 disables it.
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// BaseURL is prepended to /uploads/ links in document metadata. Empty
	// means links are derived from the request host.
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
}

// ProviderConfig configures one LLM vendor. A missing API key leaves the
// provider registered but reporting "missing_key" on status probes.
type ProviderConfig struct {
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Model   string        `yaml:"model" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ProvidersConfig holds every vendor plus the fallback selection.
type ProvidersConfig struct {
	Default  string         `yaml:"default" env:"DEFAULT"`
	Gemini   ProviderConfig `yaml:"gemini" env:"GEMINI"`
	OpenAI   ProviderConfig `yaml:"openai" env:"OPENAI"`
	Grok     ProviderConfig `yaml:"grok" env:"GROK"`
	DeepSeek ProviderConfig `yaml:"deepseek" env:"DEEPSEEK"`
	Llama    ProviderConfig `yaml:"llama" env:"LLAMA"`
	Zhipu    ProviderConfig `yaml:"zhipu" env:"ZHIPU"`
	Ollama   ProviderConfig `yaml:"ollama" env:"OLLAMA"`
	Manus    ProviderConfig `yaml:"manus" env:"MANUS"`
	// Mock registers the in-process fake provider; used in development.
	Mock bool `yaml:"mock" env:"MOCK"`
}

// UploadConfig configures document storage.
type UploadConfig struct {
	Dir string `yaml:"dir" env:"DIR"`
	// MaxFileBytes caps one uploaded file.
	MaxFileBytes int64 `yaml:"max_file_bytes" env:"MAX_FILE_BYTES"`
}

// SessionConfig configures the in-memory session store.
type SessionConfig struct {
	IdleTTL       time.Duration `yaml:"idle_ttl" env:"IDLE_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SWEEP_INTERVAL"`
}

// LogConfig configures zap.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// Default returns the configuration used when nothing else is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8000,
			MetricsPort:     9090,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute, // streaming responses are slow
			ShutdownTimeout: 10 * time.Second,
		},
		Providers: ProvidersConfig{
			Default: "gemini",
			Ollama: ProviderConfig{
				BaseURL: "http://localhost:11434",
				Timeout: 120 * time.Second,
			},
		},
		Upload: UploadConfig{
			Dir:          "uploads",
			MaxFileBytes: 50 << 20,
		},
		Session: SessionConfig{
			IdleTTL:       24 * time.Hour,
			SweepInterval: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
