package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tanpawarit/chative-customer-assistant/agent/tool"
	configx "github.com/tanpawarit/chative-customer-assistant/pkg/config"
	crmx "github.com/tanpawarit/chative-customer-assistant/pkg/crm"
	jsonrpcx "github.com/tanpawarit/chative-customer-assistant/pkg/jsonrpc"
	logx "github.com/tanpawarit/chative-customer-assistant/pkg/logger"
	viacepx "github.com/tanpawarit/chative-customer-assistant/pkg/viacep"
)

// newWorkerCmd serves the tool registry over stdio. Stdout carries JSON-RPC
// frames only; every log line goes to stderr.
func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:    "worker",
		Short:  "Serve customer tools over JSON-RPC on stdio",
		Hidden: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			closeLog, err := initLogger(true)
			if err != nil {
				return err
			}
			defer closeLog()
			logger := logx.Component("worker")

			crmCfg, err := configx.New[crmx.Config]("CUSTOMER_API")
			if err != nil {
				return err
			}
			customers, err := crmx.NewClient(*crmCfg)
			if err != nil {
				return err
			}

			viacepCfg, err := configx.New[viacepx.Config]("VIACEP")
			if err != nil {
				return err
			}
			addresses := viacepx.NewClient(*viacepCfg)

			registry := tool.NewRegistry(customers, addresses, tool.WithVersion(Version))

			if _, err := fmt.Fprintln(cmd.ErrOrStderr(), tool.ReadySignal); err != nil {
				return err
			}
			logger.Info().Str("crm_host", crmCfg.Host).Msg("worker serving")
			return jsonrpcx.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), registry)
		},
	}
}
