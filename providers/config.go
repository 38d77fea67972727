package providers

import "time"

// Config is the shared per-provider configuration. Every adapter takes one;
// unset fields fall back to adapter defaults.
type Config struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// ChooseModel selects the model to use: request model first, then the
// configured model, then the adapter's default.
func ChooseModel(requestModel, configModel, defaultModel string) string {
	if requestModel != "" {
		return requestModel
	}
	if configModel != "" {
		return configModel
	}
	return defaultModel
}
