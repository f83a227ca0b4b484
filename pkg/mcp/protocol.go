// Package mcp holds the tool-protocol payloads exchanged over the worker
// JSON-RPC channel.
package mcp

import "encoding/json"

const ProtocolVersion = "2024-11-05"

const (
	MethodInitialize = "initialize"
	MethodListTools  = "tools/list"
	MethodCallTool   = "tools/call"
)

const ContentTypeText = "text"

type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

type ClientCapabilities struct{}

// Implementation names a client or server and its version.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
}

type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools,omitempty"`
}

type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

type ListToolsResult struct {
	Tools []ToolInfo `json:"tools"`
}

// ToolInfo describes one callable tool. InputSchema is a JSON Schema object.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type CallToolResult struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// TextResult wraps a JSON-encoded payload as a single text content item.
func TextResult(payload []byte) CallToolResult {
	return CallToolResult{Content: []Content{{Type: ContentTypeText, Text: string(payload)}}}
}

// FirstText returns the text of the first content item, if it is text.
func (r CallToolResult) FirstText() (string, bool) {
	if len(r.Content) == 0 || r.Content[0].Type != ContentTypeText {
		return "", false
	}
	return r.Content[0].Text, true
}
