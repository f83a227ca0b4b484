package jsonrpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

// Handler answers one request. Returning an *RPCError controls the error
// code; any other error is reported as an internal error.
type Handler interface {
	Handle(ctx context.Context, method string, params json.RawMessage) (any, error)
}

type HandlerFunc func(ctx context.Context, method string, params json.RawMessage) (any, error)

func (f HandlerFunc) Handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	return f(ctx, method, params)
}

// Serve reads requests from r until EOF or ctx is done and writes one
// response line per request to w. Requests are handled concurrently, so
// responses may come back out of order; callers correlate them by id.
// Requests without an id are notifications and get no response. Serve waits
// for in-flight handlers before it returns.
func Serve(ctx context.Context, r io.Reader, w io.Writer, h Handler) error {
	logger := log.Logger.With().Str("component", "jsonrpc.server").Logger()

	var (
		wg        sync.WaitGroup
		writeMu   sync.Mutex
		writeErr  error
		writeFail = make(chan struct{})
	)
	enc := json.NewEncoder(w)
	respond := func(resp Response) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if writeErr != nil {
			return
		}
		if err := enc.Encode(resp); err != nil {
			writeErr = fmt.Errorf("write response: %w", err)
			close(writeFail)
			return
		}
		if resp.Error != nil {
			logger.Debug().Int("code", resp.Error.Code).Str("message", resp.Error.Message).Msg("request failed")
		}
	}

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		reader := bufio.NewReader(r)
		for {
			line, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	var loopErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-writeFail:
			break loop
		case err := <-readErr:
			if !errors.Is(err, io.EOF) {
				loopErr = fmt.Errorf("read request: %w", err)
			}
			break loop
		case line := <-lines:
			wg.Add(1)
			go func() {
				defer wg.Done()
				if resp, ok := handleLine(ctx, h, line); ok {
					respond(resp)
				}
			}()
		}
	}

	wg.Wait()
	if loopErr != nil {
		return loopErr
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	return writeErr
}

func handleLine(ctx context.Context, h Handler, line []byte) (Response, bool) {
	var req inboundRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return Response{
			JSONRPC: Version,
			Error:   &RPCError{Code: CodeParseError, Message: "Parse error"},
		}, true
	}
	if req.Method == "" {
		if req.ID == nil {
			return Response{}, false
		}
		return Response{
			JSONRPC: Version,
			ID:      req.ID,
			Error:   &RPCError{Code: CodeInvalidRequest, Message: "Invalid request: missing method"},
		}, true
	}

	result, err := h.Handle(ctx, req.Method, req.Params)
	if req.ID == nil {
		return Response{}, false
	}

	resp := Response{JSONRPC: Version, ID: req.ID}
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			resp.Error = rpcErr
		} else {
			resp.Error = &RPCError{Code: CodeInternalError, Message: err.Error()}
		}
		return resp, true
	}

	raw, err := json.Marshal(result)
	if err != nil {
		resp.Error = &RPCError{Code: CodeInternalError, Message: fmt.Sprintf("encode result: %v", err)}
		return resp, true
	}
	resp.Result = raw
	return resp, true
}
