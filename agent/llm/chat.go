package llm

import (
	"context"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-customer-assistant/agent/contract"
	openrouterx "github.com/tanpawarit/chative-customer-assistant/pkg/openrouter"
)

var _ contractx.ChatModel = (*ChatModel)(nil)

// ChatModel sends whole conversations to a chat completions endpoint.
type ChatModel struct {
	client      *openaisdk.Client
	model       string
	temperature float64
	maxTokens   int
	logger      zerolog.Logger
}

func NewChatModel(cfg Config) (*ChatModel, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	client := openrouterx.NewClient(cfg.OpenRouter())
	if client == nil {
		return nil, fmt.Errorf("%w: llm client not configured", contractx.ErrValidation)
	}
	return &ChatModel{
		client:      client,
		model:       strings.TrimSpace(cfg.Model),
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxCompletionToken,
		logger:      log.Logger.With().Str("component", "llm.chat").Logger(),
	}, nil
}

// Complete returns the content of the first choice, or "" when the model
// sent none. Callers decide whether an empty answer is acceptable.
func (m *ChatModel) Complete(ctx context.Context, messages []contractx.Message) (string, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:       openaisdk.ChatModel(m.model),
		Messages:    toParams(messages),
		Temperature: openaisdk.Float(m.temperature),
	}
	if m.maxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(m.maxTokens))
	}

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	if len(resp.Choices) == 0 {
		m.logger.Warn().Str("model", m.model).Msg("completion returned no choices")
		return "", nil
	}

	m.logger.Debug().
		Str("model", m.model).
		Int("messages", len(messages)).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("completion done")
	return resp.Choices[0].Message.Content, nil
}

func toParams(messages []contractx.Message) []openaisdk.ChatCompletionMessageParamUnion {
	out := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case contractx.RoleSystem:
			out = append(out, openaisdk.SystemMessage(msg.Content))
		case contractx.RoleAssistant:
			out = append(out, openaisdk.AssistantMessage(msg.Content))
		default:
			out = append(out, openaisdk.UserMessage(msg.Content))
		}
	}
	return out
}
