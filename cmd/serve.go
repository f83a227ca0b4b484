package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tanpawarit/chative-customer-assistant/agent/audit"
	"github.com/tanpawarit/chative-customer-assistant/agent/conversation"
	"github.com/tanpawarit/chative-customer-assistant/agent/llm"
	"github.com/tanpawarit/chative-customer-assistant/agent/prompt"
	statex "github.com/tanpawarit/chative-customer-assistant/agent/state"
	"github.com/tanpawarit/chative-customer-assistant/api"
	configx "github.com/tanpawarit/chative-customer-assistant/pkg/config"
	logx "github.com/tanpawarit/chative-customer-assistant/pkg/logger"
	"github.com/tanpawarit/chative-customer-assistant/pkg/telemetry"
)

func newServeCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, *envFile)
		},
	}
}

func runServe(ctx context.Context, envFile string) error {
	closeLog, err := initLogger(false)
	if err != nil {
		return err
	}
	defer closeLog()
	logger := logx.Component("serve")

	traceCfg, err := configx.New[telemetry.Config]("TRACE")
	if err != nil {
		return err
	}
	traceCfg.Version = Version
	shutdownTelemetry, err := telemetry.Init(ctx, *traceCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.WithoutCancel(ctx)); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	llmCfg, err := configx.New[llm.Config]("LLM")
	if err != nil {
		return err
	}
	model, err := llm.NewChatModel(*llmCfg)
	if err != nil {
		return err
	}

	agentCfg, err := configx.New[prompt.Config]("AGENT")
	if err != nil {
		return err
	}
	systemPrompt, err := prompt.SystemPrompt(*agentCfg)
	if err != nil {
		return err
	}

	sessionCfg, err := configx.New[statex.Config]("SESSION")
	if err != nil {
		return err
	}
	store := statex.NewMemoryStore(systemPrompt)
	cleanup := statex.NewCleanupJob(store, *sessionCfg)
	cleanup.Start(ctx)
	defer cleanup.Stop()

	auditCfg, err := configx.New[audit.Config]("AUDIT")
	if err != nil {
		return err
	}
	recorder, err := audit.Open(ctx, *auditCfg)
	if err != nil {
		return err
	}
	defer func() { _ = recorder.Close() }()

	actions, err := newActionClient(envFile)
	if err != nil {
		return err
	}
	defer func() { _ = actions.Close() }()
	go func() {
		if err := actions.Connect(ctx); err != nil {
			logger.Error().Err(err).Msg("tool worker warm-up failed; retrying on first action")
		}
	}()

	engine, err := conversation.New(store, model, actions, conversation.WithAuditRecorder(recorder))
	if err != nil {
		return fmt.Errorf("build conversation engine: %w", err)
	}

	httpCfg, err := configx.New[api.Config]("CHATBOT")
	if err != nil {
		return err
	}
	rateCfg, err := configx.New[api.RateConfig]("RATE")
	if err != nil {
		return err
	}

	logger.Info().
		Str("model", llmCfg.Model).
		Int("port", httpCfg.Port).
		Str("tone", agentCfg.ResolvedTone()).
		Msg("starting chat server")

	limiter := api.NewRateLimiter(*rateCfg)
	limiter.Start(ctx)
	srv := api.NewServer(engine, *httpCfg, api.WithRateLimiter(limiter))
	return srv.Start(ctx)
}
