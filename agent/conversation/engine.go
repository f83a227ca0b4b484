// Package conversation runs chat turns: it records the user message, asks the
// model for a reply, executes any action the reply requests and asks the model
// to report the outcome.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-customer-assistant/agent/contract"
	statex "github.com/tanpawarit/chative-customer-assistant/agent/state"
)

var ErrInvalidMessage = errors.New("message is required")

type Option func(*Engine)

// WithAuditRecorder records every executed action. Recording failures are
// logged and never fail the turn.
func WithAuditRecorder(r contractx.AuditRecorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.audit = r
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

type Engine struct {
	store   statex.Store
	model   contractx.ChatModel
	actions contractx.ActionRunner
	audit   contractx.AuditRecorder
	logger  zerolog.Logger
	now     func() time.Time

	graphRunner compose.Runnable[turnInput, contractx.ChatResponse]
}

func New(
	store statex.Store,
	model contractx.ChatModel,
	actions contractx.ActionRunner,
	opts ...Option,
) (*Engine, error) {
	if store == nil {
		return nil, errors.New("session store is required")
	}
	if model == nil {
		return nil, errors.New("chat model is required")
	}
	if actions == nil {
		return nil, errors.New("action runner is required")
	}

	e := &Engine{
		store:   store,
		model:   model,
		actions: actions,
		logger:  log.Logger.With().Str("component", "conversation").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	graphRunner, err := e.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	e.graphRunner = graphRunner
	return e, nil
}

// Chat runs one turn. A request without a session id joins the shared
// default session; an unknown id fails with statex.ErrSessionNotFound.
// Turns on the same session run one at a time. The turn is not cancelled
// when ctx is; it runs to completion so the history stays consistent.
func (e *Engine) Chat(ctx context.Context, req contractx.ChatRequest) (contractx.ChatResponse, error) {
	if req.Message == "" {
		return contractx.ChatResponse{}, ErrInvalidMessage
	}
	ctx = context.WithoutCancel(ctx)

	sess, unlock, err := e.acquire(ctx, req.SessionID)
	if err != nil {
		return contractx.ChatResponse{}, err
	}
	defer unlock()
	sess.Touch(e.now())
	defer func() { sess.Touch(e.now()) }()

	return e.graphRunner.Invoke(ctx, turnInput{
		Session: sess,
		Message: req.Message,
		Context: req.Context,
	})
}

// Reset truncates the session history to its system message. Resetting an
// already empty session is a no-op.
func (e *Engine) Reset(ctx context.Context, sessionID string) error {
	sess, unlock, err := e.acquire(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	sess.Reset()
	sess.Touch(e.now())
	e.logger.Info().Str("session_id", sess.ID).Msg("conversation reset")
	return nil
}

func (e *Engine) CreateSession(ctx context.Context) (string, error) {
	sess, err := e.store.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	e.logger.Info().Str("session_id", sess.ID).Msg("session created")
	return sess.ID, nil
}

func (e *Engine) DeleteSession(ctx context.Context, sessionID string) error {
	if err := e.store.Delete(ctx, sessionID); err != nil {
		return err
	}
	e.logger.Info().Str("session_id", sessionID).Msg("session deleted")
	return nil
}

// History returns a copy of the session's messages.
func (e *Engine) History(ctx context.Context, sessionID string) ([]contractx.Message, error) {
	sess, err := e.resolve(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Messages(), nil
}

func (e *Engine) resolve(ctx context.Context, sessionID string) (*statex.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return e.store.Ensure(ctx, statex.DefaultSessionID)
	}
	return e.store.Get(ctx, sessionID)
}

// acquire resolves the session and takes its turn lock. The lookup is
// repeated under the lock so a session evicted or deleted while the caller
// waited is never used.
func (e *Engine) acquire(ctx context.Context, sessionID string) (*statex.Session, func(), error) {
	for {
		sess, err := e.resolve(ctx, sessionID)
		if err != nil {
			return nil, nil, err
		}
		unlock := sess.LockTurn()
		current, err := e.resolve(ctx, sessionID)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		if current == sess {
			return sess, unlock, nil
		}
		unlock()
	}
}
