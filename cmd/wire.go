package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/tanpawarit/chative-customer-assistant/agent/action"
	"github.com/tanpawarit/chative-customer-assistant/agent/tool"
	configx "github.com/tanpawarit/chative-customer-assistant/pkg/config"
	jsonrpcx "github.com/tanpawarit/chative-customer-assistant/pkg/jsonrpc"
	logx "github.com/tanpawarit/chative-customer-assistant/pkg/logger"
)

const clientName = "chative-customer-assistant"

// WorkerConfig is read with the WORKER prefix. An empty Command runs this
// binary's own worker subcommand.
type WorkerConfig struct {
	Command      string        `split_words:"true"`
	Args         []string      `split_words:"true"`
	ReadySignal  string        `split_words:"true"`
	ReadyTimeout time.Duration `split_words:"true" default:"2s"`
	CallTimeout  time.Duration `split_words:"true" default:"10s"`
}

func (c WorkerConfig) Process(envFile string) (jsonrpcx.ProcessConfig, error) {
	command, args := c.Command, c.Args
	if command == "" {
		self, err := os.Executable()
		if err != nil {
			return jsonrpcx.ProcessConfig{}, fmt.Errorf("resolve executable: %w", err)
		}
		command = self
		args = []string{"worker"}
		if envFile != "" {
			args = append(args, "--env", envFile)
		}
	}

	signal := c.ReadySignal
	if signal == "" {
		signal = tool.ReadySignal
	}
	return jsonrpcx.ProcessConfig{
		Command:      command,
		Args:         args,
		ReadySignal:  signal,
		ReadyTimeout: c.ReadyTimeout,
		CallTimeout:  c.CallTimeout,
	}, nil
}

func newActionClient(envFile string) (*action.Client, error) {
	workerCfg, err := configx.New[WorkerConfig]("WORKER")
	if err != nil {
		return nil, err
	}
	procCfg, err := workerCfg.Process(envFile)
	if err != nil {
		return nil, err
	}
	return action.New(
		action.ProcessDialer(procCfg),
		action.WithClientInfo(clientName, Version),
	), nil
}

func initLogger(stderr bool) (func(), error) {
	logCfg, err := configx.New[logx.Config]("LOG")
	if err != nil {
		return nil, err
	}
	logCfg.Stderr = stderr
	closer := logx.Init(*logCfg)
	return func() { _ = closer.Close() }, nil
}
