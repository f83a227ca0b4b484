package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	jsonrpcx "github.com/tanpawarit/chative-customer-assistant/pkg/jsonrpc"
	mcpx "github.com/tanpawarit/chative-customer-assistant/pkg/mcp"
	viacepx "github.com/tanpawarit/chative-customer-assistant/pkg/viacep"
)

const (
	ServerName = "customer-registration"

	// ReadySignal is printed on stderr once the worker serves stdio.
	ReadySignal = "Customer Registration worker running on stdio"
)

var ErrUnknownTool = errors.New("unknown tool")

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Outcome is the JSON document a tool returns inside its text content.
type Outcome struct {
	Status         string                   `json:"status"`
	CustomerID     string                   `json:"customerId,omitempty"`
	Data           json.RawMessage          `json:"data,omitempty"`
	Address        *viacepx.Address         `json:"address,omitempty"`
	CustomerFields *viacepx.CustomerAddress `json:"customer_fields,omitempty"`
	Error          string                   `json:"error,omitempty"`
	Errors         []string                 `json:"errors,omitempty"`
	StatusCode     int                      `json:"statusCode,omitempty"`
}

type Registry struct {
	customers CustomerCreator
	addresses AddressResolver
	version   string
	logger    zerolog.Logger
}

type Option func(*Registry)

func WithVersion(v string) Option {
	return func(r *Registry) {
		if v != "" {
			r.version = v
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = l
	}
}

// NewRegistry builds the worker's tool set. A nil collaborator makes its tool
// answer with a "not configured" error outcome.
func NewRegistry(customers CustomerCreator, addresses AddressResolver, opts ...Option) *Registry {
	r := &Registry{
		customers: customers,
		addresses: addresses,
		version:   "dev",
		logger:    log.Logger.With().Str("component", "tool.registry").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Registry) ListTools() []mcpx.ToolInfo {
	return Descriptors()
}

// CallTool runs a tool. Domain failures are encoded in the returned content;
// only an unknown tool name is an error.
func (r *Registry) CallTool(ctx context.Context, name string, args json.RawMessage) (mcpx.CallToolResult, error) {
	var out Outcome
	switch name {
	case ToolCreateCustomer:
		out = r.createCustomer(ctx, args)
	case ToolGetAddressByZipcode:
		out = r.getAddressByZipcode(ctx, args)
	default:
		return mcpx.CallToolResult{}, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	payload, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return mcpx.CallToolResult{}, fmt.Errorf("encode %s outcome: %w", name, err)
	}
	return mcpx.TextResult(payload), nil
}

// Handle serves the worker's JSON-RPC methods.
func (r *Registry) Handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case mcpx.MethodInitialize:
		var p mcpx.InitializeParams
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, jsonrpcx.NewError(jsonrpcx.CodeInvalidParams, "invalid initialize params: %v", err)
			}
		}
		r.logger.Info().Str("client", p.ClientInfo.Name).Str("client_version", p.ClientInfo.Version).Msg("client initialized")
		return mcpx.InitializeResult{
			ProtocolVersion: mcpx.ProtocolVersion,
			Capabilities:    mcpx.ServerCapabilities{Tools: &mcpx.ToolsCapability{}},
			ServerInfo:      mcpx.Implementation{Name: ServerName, Version: r.version},
		}, nil

	case mcpx.MethodListTools:
		return mcpx.ListToolsResult{Tools: r.ListTools()}, nil

	case mcpx.MethodCallTool:
		var p mcpx.CallToolParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, jsonrpcx.NewError(jsonrpcx.CodeInvalidParams, "invalid tools/call params: %v", err)
		}
		r.logger.Debug().Str("tool", p.Name).Msg("tool call")

		result, err := r.CallTool(ctx, p.Name, p.Arguments)
		if errors.Is(err, ErrUnknownTool) {
			return nil, jsonrpcx.NewError(jsonrpcx.CodeInvalidParams, "Unknown tool: %s", p.Name)
		}
		if err != nil {
			return nil, err
		}
		return result, nil

	default:
		return nil, jsonrpcx.NewError(jsonrpcx.CodeMethodNotFound, "Method not found: %s", method)
	}
}
