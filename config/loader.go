package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader builds a Config from defaults, an optional YAML file, and
// environment variables.
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    Load()
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
}

// NewLoader creates a loader with the DEEPWORK env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "DEEPWORK",
		lookupEnv: os.LookupEnv,
	}
}

// WithConfigPath sets the YAML file path. A missing file is not an error.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix overrides the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLookupEnv overrides environment access; tests inject a map.
func (l *Loader) WithLookupEnv(fn func(string) (string, bool)) *Loader {
	l.lookupEnv = fn
	return l
}

// Load resolves the configuration. Precedence: defaults, then YAML, then
// prefixed env vars, then the well-known vendor variables (GOOGLE_API_KEY
// and friends) that the deployment environment already sets.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix); err != nil {
		return nil, fmt.Errorf("load config from env: %w", err)
	}

	l.applyVendorEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// setFieldsFromEnv walks the struct, reading <prefix>_<env tag> per field.
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		envTag := t.Field(i).Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}
		name := prefix + "_" + envTag

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := l.setFieldsFromEnv(field, name); err != nil {
				return err
			}
			continue
		}

		raw, ok := l.lookupEnv(name)
		if !ok {
			continue
		}
		if err := setField(field, raw); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func setField(field reflect.Value, raw string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}
	return nil
}

// applyVendorEnv maps the conventional vendor variables onto the config.
// These win over everything else so the usual deployment env keeps working
// without a YAML file.
func (l *Loader) applyVendorEnv(cfg *Config) {
	set := func(dst *string, key string) {
		if v, ok := l.lookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	set(&cfg.Providers.Gemini.APIKey, "GOOGLE_API_KEY")
	set(&cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	set(&cfg.Providers.Grok.APIKey, "GROK_API_KEY")
	set(&cfg.Providers.DeepSeek.APIKey, "DEEPSEEK_API_KEY")
	set(&cfg.Providers.Llama.APIKey, "LLAMA_API_KEY")
	set(&cfg.Providers.Zhipu.APIKey, "ZHIPU_API_KEY")
	set(&cfg.Providers.Manus.APIKey, "MANUS_API_KEY")
	set(&cfg.Providers.Ollama.BaseURL, "OLLAMA_BASE_URL")
	set(&cfg.Upload.Dir, "UPLOAD_DIR")

	if v, ok := l.lookupEnv("PORT"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort < 0 || cfg.Server.MetricsPort > 65535 ||
		cfg.Server.MetricsPort == cfg.Server.Port {
		return fmt.Errorf("invalid metrics port %d", cfg.Server.MetricsPort)
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", cfg.Log.Level)
	}
	if cfg.Session.IdleTTL <= 0 {
		return fmt.Errorf("session idle TTL must be positive")
	}
	return nil
}
