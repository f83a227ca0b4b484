package jsonrpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrCallTimeout   = errors.New("jsonrpc call timed out")
	ErrClosed        = errors.New("jsonrpc channel closed")
	ErrProcessExited = errors.New("jsonrpc worker process exited")
)

const DefaultCallTimeout = 10 * time.Second

// Caller is the request side of a channel. Process and Channel both satisfy it.
type Caller interface {
	Send(ctx context.Context, method string, params any) (json.RawMessage, error)
	Close() error
}

type outcome struct {
	result json.RawMessage
	err    error
}

type pendingCall struct {
	method string
	done   chan outcome
}

// Channel multiplexes concurrent calls over one line-delimited stream and
// matches responses to callers by id.
type Channel struct {
	w       io.Writer
	writeMu sync.Mutex

	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]*pendingCall
	closed  bool
	failErr error

	eofErr      error
	done        chan struct{}
	readerDone  chan struct{}
	callTimeout time.Duration
	logger      zerolog.Logger
}

type ChannelOption func(*Channel)

func WithCallTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// failOnEOF sets the error pending calls receive when the read side ends.
func failOnEOF(err error) ChannelOption {
	return func(c *Channel) {
		c.eofErr = err
	}
}

func WithLogger(l zerolog.Logger) ChannelOption {
	return func(c *Channel) {
		c.logger = l
	}
}

// NewChannel starts reading responses from r immediately. Requests are
// written to w.
func NewChannel(r io.Reader, w io.Writer, opts ...ChannelOption) *Channel {
	c := &Channel{
		w:           w,
		pending:     make(map[int64]*pendingCall),
		eofErr:      ErrClosed,
		done:        make(chan struct{}),
		readerDone:  make(chan struct{}),
		callTimeout: DefaultCallTimeout,
		logger:      log.Logger.With().Str("component", "jsonrpc.channel").Logger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	go c.readLoop(r)
	return c
}

// Send writes one request and blocks until its response, the call timeout,
// ctx cancellation, or channel failure, whichever comes first.
func (c *Channel) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	call := &pendingCall{method: method, done: make(chan outcome, 1)}

	c.mu.Lock()
	if c.closed {
		err := c.failErr
		c.mu.Unlock()
		return nil, err
	}
	c.pending[id] = call
	c.mu.Unlock()

	frame, err := json.Marshal(Request{JSONRPC: Version, ID: &id, Method: method, Params: params})
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("marshal %s request: %w", method, err)
	}
	frame = append(frame, '\n')

	c.writeMu.Lock()
	_, err = c.w.Write(frame)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(id)
		return nil, fmt.Errorf("write %s request: %w", method, err)
	}

	c.logger.Debug().Int64("id", id).Str("method", method).Msg("request sent")

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case out := <-call.done:
		return out.result, out.err
	case <-timer.C:
		c.forget(id)
		c.logger.Warn().Int64("id", id).Str("method", method).Dur("timeout", c.callTimeout).Msg("request timed out")
		return nil, fmt.Errorf("%w: method=%s id=%d after %s", ErrCallTimeout, method, id, c.callTimeout)
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

// Pending reports how many calls are awaiting a response.
func (c *Channel) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Done is closed once the channel stops accepting calls.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Close fails all in-flight calls with ErrClosed. It does not close the
// underlying streams; their owner does that.
func (c *Channel) Close() error {
	c.fail(ErrClosed)
	return nil
}

// fail rejects every pending call with err and refuses new ones.
func (c *Channel) fail(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.failErr = err
	pending := c.pending
	c.pending = make(map[int64]*pendingCall)
	close(c.done)
	c.mu.Unlock()

	for id, call := range pending {
		call.done <- outcome{err: fmt.Errorf("%w: method=%s id=%d", err, call.method, id)}
	}
}

func (c *Channel) forget(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Channel) take(id int64) (*pendingCall, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return call, ok
}

func (c *Channel) readLoop(r io.Reader) {
	defer close(c.readerDone)

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			c.dispatch(line)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, os.ErrClosed) {
				c.logger.Warn().Err(err).Msg("read loop stopped")
			}
			c.fail(c.eofErr)
			return
		}
	}
}

func (c *Channel) dispatch(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var resp Response
	if err := json.Unmarshal(line, &resp); err != nil {
		c.logger.Warn().Err(err).Str("line", truncate(line, 200)).Msg("skipping malformed frame")
		return
	}
	if resp.ID == nil {
		c.logger.Debug().Str("line", truncate(line, 200)).Msg("ignoring frame without id")
		return
	}

	call, ok := c.take(*resp.ID)
	if !ok {
		c.logger.Debug().Int64("id", *resp.ID).Msg("ignoring response for unknown or expired id")
		return
	}

	if resp.Error != nil {
		call.done <- outcome{err: resp.Error}
		return
	}
	call.done <- outcome{result: resp.Result}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
