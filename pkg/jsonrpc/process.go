package jsonrpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultReadyTimeout = 2 * time.Second

type ProcessConfig struct {
	Command string
	Args    []string
	Env     []string

	// ReadySignal is a substring the worker prints on stderr once it is
	// serving. When empty only ReadyTimeout applies.
	ReadySignal  string
	ReadyTimeout time.Duration
	CallTimeout  time.Duration
}

// Process is a worker subprocess speaking JSON-RPC on its stdio.
type Process struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	channel *Channel
	logger  zerolog.Logger

	stderrDone chan struct{}
	exited     chan struct{}
	waitErr    error
	closeOnce  sync.Once
}

// Spawn starts the worker and waits until it signals readiness or the ready
// timeout elapses. Readiness is best effort; a worker that never prints the
// signal is still used after the timeout.
func Spawn(ctx context.Context, cfg ProcessConfig) (*Process, error) {
	if cfg.Command == "" {
		return nil, errors.New("spawn worker: empty command")
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultReadyTimeout
	}

	logger := log.Logger.With().Str("component", "jsonrpc.process").Str("command", cfg.Command).Logger()

	// exec.Command rather than CommandContext: the worker outlives the
	// request that triggered its spawn.
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Env = append(os.Environ(), cfg.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker %s: %w", cfg.Command, err)
	}
	logger.Info().Int("pid", cmd.Process.Pid).Msg("worker started")

	channel := NewChannel(stdout, stdin,
		WithCallTimeout(cfg.CallTimeout),
		WithLogger(logger),
		failOnEOF(ErrProcessExited),
	)
	p := &Process{
		cmd:        cmd,
		stdin:      stdin,
		channel:    channel,
		logger:     logger,
		stderrDone: make(chan struct{}),
		exited:     make(chan struct{}),
	}

	ready := make(chan struct{})
	go p.relayStderr(stderr, cfg.ReadySignal, ready)
	go p.wait()

	timer := time.NewTimer(cfg.ReadyTimeout)
	defer timer.Stop()

	select {
	case <-ready:
		logger.Debug().Msg("worker signalled ready")
	case <-timer.C:
		logger.Debug().Dur("timeout", cfg.ReadyTimeout).Msg("no ready signal, proceeding")
	case <-p.exited:
		return nil, fmt.Errorf("%w during startup: %v", ErrProcessExited, p.waitErr)
	case <-ctx.Done():
		_ = p.Close()
		return nil, ctx.Err()
	}

	return p, nil
}

func (p *Process) Send(ctx context.Context, method string, params any) (json.RawMessage, error) {
	select {
	case <-p.exited:
		return nil, ErrProcessExited
	default:
	}
	return p.channel.Send(ctx, method, params)
}

// Exited is closed once the worker has terminated.
func (p *Process) Exited() <-chan struct{} {
	return p.exited
}

// Close ends the worker and fails any in-flight calls.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.channel.fail(ErrClosed)
		_ = p.stdin.Close()

		select {
		case <-p.exited:
			return
		case <-time.After(500 * time.Millisecond):
		}
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Kill()
		}
		<-p.exited
	})
	return nil
}

// wait reaps the worker once both of its output pipes are drained, as
// exec.Cmd.Wait requires.
func (p *Process) wait() {
	<-p.channel.readerDone
	<-p.stderrDone
	p.waitErr = p.cmd.Wait()
	if p.waitErr != nil {
		p.logger.Warn().Err(p.waitErr).Msg("worker exited")
	} else {
		p.logger.Info().Msg("worker exited")
	}
	p.channel.fail(ErrProcessExited)
	close(p.exited)
}

func (p *Process) relayStderr(r io.Reader, signal string, ready chan<- struct{}) {
	defer close(p.stderrDone)
	signalled := false
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !signalled && signal != "" && strings.Contains(line, signal) {
			signalled = true
			close(ready)
		}
		p.logger.Debug().Str("stream", "stderr").Msg(line)
	}
	// Keep draining after an oversized line so the worker never blocks on stderr.
	_, _ = io.Copy(io.Discard, r)
}
