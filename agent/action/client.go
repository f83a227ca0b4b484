// Package action runs customer actions on the tool worker over JSON-RPC.
package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	contractx "github.com/tanpawarit/chative-customer-assistant/agent/contract"
	jsonrpcx "github.com/tanpawarit/chative-customer-assistant/pkg/jsonrpc"
	mcpx "github.com/tanpawarit/chative-customer-assistant/pkg/mcp"
)

const instrumentationName = "github.com/tanpawarit/chative-customer-assistant/agent/action"

// Dialer opens a fresh channel to a worker.
type Dialer func(ctx context.Context) (jsonrpcx.Caller, error)

// ProcessDialer spawns the worker as a subprocess on every dial.
func ProcessDialer(cfg jsonrpcx.ProcessConfig) Dialer {
	return func(ctx context.Context) (jsonrpcx.Caller, error) {
		p, err := jsonrpcx.Spawn(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

var _ contractx.ActionRunner = (*Client)(nil)

type Client struct {
	dial       Dialer
	clientInfo mcpx.Implementation
	logger     zerolog.Logger
	tracer     trace.Tracer
	calls      metric.Int64Counter

	initGroup singleflight.Group
	mu        sync.Mutex
	caller    jsonrpcx.Caller
	tools     []string
}

type Option func(*Client)

func WithClientInfo(name, version string) Option {
	return func(c *Client) {
		c.clientInfo = mcpx.Implementation{Name: name, Version: version}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New returns a client that dials lazily on the first action.
func New(dial Dialer, opts ...Option) *Client {
	c := &Client{
		dial:       dial,
		clientInfo: mcpx.Implementation{Name: "chative-customer-assistant", Version: "dev"},
		logger:     log.Logger.With().Str("component", "action.client").Logger(),
		tracer:     otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"chative.actions",
		metric.WithDescription("Actions executed on the tool worker, by tool and outcome."),
	)
	if err != nil {
		c.logger.Warn().Err(err).Msg("actions counter unavailable")
	}
	c.calls = counter
	return c
}

func (c *Client) CreateCustomer(ctx context.Context, data json.RawMessage) contractx.ActionResult {
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage(`{}`)
	}
	return c.call(ctx, contractx.ActionCreateCustomer, data)
}

func (c *Client) LookupAddress(ctx context.Context, zipcode string) contractx.ActionResult {
	args, err := json.Marshal(map[string]string{"zipcode": zipcode})
	if err != nil {
		return contractx.ActionResult{Tool: contractx.ActionGetAddressByZipcode, Error: err.Error()}
	}
	return c.call(ctx, contractx.ActionGetAddressByZipcode, args)
}

// Connect initializes the worker channel ahead of the first action.
func (c *Client) Connect(ctx context.Context) error {
	_, err := c.ensure(ctx)
	return err
}

// Tools returns the tool names the worker advertised, or nil before the
// first successful initialization.
func (c *Client) Tools() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.tools...)
}

// Close shuts the current worker channel, if any. A later action dials again.
func (c *Client) Close() error {
	c.mu.Lock()
	caller := c.caller
	c.caller = nil
	c.tools = nil
	c.mu.Unlock()

	if caller == nil {
		return nil
	}
	return caller.Close()
}

func (c *Client) call(ctx context.Context, tool string, args json.RawMessage) contractx.ActionResult {
	ctx, span := c.tracer.Start(ctx, "action."+tool, trace.WithAttributes(attribute.String("action.tool", tool)))
	defer span.End()

	result := contractx.ActionResult{Tool: tool, Input: args}

	caller, err := c.ensure(ctx)
	if err != nil {
		c.logger.Error().Err(err).Str("tool", tool).Msg("worker unavailable")
		result.Error = err.Error()
		c.finish(ctx, span, result)
		return result
	}

	raw, err := caller.Send(ctx, mcpx.MethodCallTool, mcpx.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		if errors.Is(err, jsonrpcx.ErrClosed) || errors.Is(err, jsonrpcx.ErrProcessExited) {
			c.drop(caller)
		}
		c.logger.Error().Err(err).Str("tool", tool).Msg("tool call failed")
		result.Error = err.Error()
		c.finish(ctx, span, result)
		return result
	}

	result.Result = normalize(raw)
	c.finish(ctx, span, result)
	return result
}

func (c *Client) finish(ctx context.Context, span trace.Span, result contractx.ActionResult) {
	outcome := "ok"
	if result.Failed() {
		outcome = "error"
		span.SetStatus(codes.Error, result.Error)
	}
	span.SetAttributes(attribute.String("action.outcome", outcome))
	if c.calls != nil {
		c.calls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", result.Tool),
			attribute.String("outcome", outcome),
		))
	}
}

// ensure returns the live caller, initializing one if needed. Concurrent
// first calls share a single dial; a failed dial is retried by the next call.
func (c *Client) ensure(ctx context.Context) (jsonrpcx.Caller, error) {
	if caller := c.current(); caller != nil {
		return caller, nil
	}

	v, err, _ := c.initGroup.Do("init", func() (any, error) {
		if caller := c.current(); caller != nil {
			return caller, nil
		}
		// Shared by every waiting caller; detached from the first one's
		// cancellation.
		return c.connect(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, err
	}
	return v.(jsonrpcx.Caller), nil
}

func (c *Client) connect(ctx context.Context) (jsonrpcx.Caller, error) {
	caller, err := c.dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	_, err = caller.Send(ctx, mcpx.MethodInitialize, mcpx.InitializeParams{
		ProtocolVersion: mcpx.ProtocolVersion,
		ClientInfo:      c.clientInfo,
	})
	if err != nil {
		_ = caller.Close()
		return nil, fmt.Errorf("initialize worker: %w", err)
	}

	raw, err := caller.Send(ctx, mcpx.MethodListTools, nil)
	if err != nil {
		_ = caller.Close()
		return nil, fmt.Errorf("list worker tools: %w", err)
	}
	var list mcpx.ListToolsResult
	if err := json.Unmarshal(raw, &list); err != nil {
		_ = caller.Close()
		return nil, fmt.Errorf("decode worker tools: %w", err)
	}

	names := make([]string, 0, len(list.Tools))
	for _, t := range list.Tools {
		names = append(names, t.Name)
	}
	c.logger.Info().Strs("tools", names).Msg("worker initialized")

	c.mu.Lock()
	c.caller = caller
	c.tools = names
	c.mu.Unlock()
	return caller, nil
}

func (c *Client) current() jsonrpcx.Caller {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.caller
}

func (c *Client) drop(caller jsonrpcx.Caller) {
	c.mu.Lock()
	if c.caller != caller {
		c.mu.Unlock()
		return
	}
	c.caller = nil
	c.tools = nil
	c.mu.Unlock()

	c.logger.Warn().Msg("worker channel lost, next action will respawn")
	_ = caller.Close()
}

// normalize unwraps a tools/call result to the JSON document in its first
// text content. Anything else is passed through as received.
func normalize(raw json.RawMessage) json.RawMessage {
	var res mcpx.CallToolResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return raw
	}
	text, ok := res.FirstText()
	if !ok {
		return raw
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, []byte(text)); err != nil {
		return raw
	}
	return compact.Bytes()
}
