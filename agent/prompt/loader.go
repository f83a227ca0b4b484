package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	contractx "github.com/tanpawarit/chative-customer-assistant/agent/contract"
)

const DefaultTone = "Professional, helpful, and efficient"

//go:embed template/system.txt
var systemRaw string

var systemTemplate = template.Must(template.New("system").Option("missingkey=error").Parse(systemRaw))

// Config is read with the AGENT prefix. Tone wins over Style when both are set.
type Config struct {
	Tone  string `split_words:"true"`
	Style string `split_words:"true"`
}

func (c Config) ResolvedTone() string {
	if tone := strings.TrimSpace(c.Tone); tone != "" {
		return tone
	}
	if style := strings.TrimSpace(c.Style); style != "" {
		return style
	}
	return DefaultTone
}

// SystemPrompt renders the assistant's system message for the configured tone.
func SystemPrompt(cfg Config) (string, error) {
	tone := cfg.ResolvedTone()

	var buf bytes.Buffer
	err := systemTemplate.Execute(&buf, map[string]string{
		"Tone":      tone,
		"ToneLower": strings.ToLower(tone),
	})
	if err != nil {
		return "", fmt.Errorf("%w: render system prompt: %v", contractx.ErrPromptMissing, err)
	}

	out := strings.TrimSpace(buf.String())
	if out == "" {
		return "", fmt.Errorf("%w: system prompt is empty", contractx.ErrPromptMissing)
	}
	return out, nil
}
