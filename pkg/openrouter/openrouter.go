package openrouter

import (
	"net/http"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Config describes an OpenAI-compatible chat completions endpoint. The
// defaults point at OpenRouter; any compatible base URL works.
type Config struct {
	BaseURL  string        `envconfig:"BASE_URL" default:"https://openrouter.ai/api/v1"`
	APIKey   string        `envconfig:"API_KEY" required:"true"`
	Timeout  time.Duration `envconfig:"TIMEOUT" default:"30s"`
	SiteURL  string        `envconfig:"SITE_URL"`
	SiteName string        `envconfig:"SITE_NAME"`
}

// NewClient creates an OpenAI SDK client for cfg, or nil without an API key.
func NewClient(cfg Config) *openaisdk.Client {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}

	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
	}

	// OpenRouter attribution headers
	if cfg.SiteURL != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.SiteURL))
	}
	if cfg.SiteName != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.SiteName))
	}

	client := openaisdk.NewClient(opts...)
	return &client
}
