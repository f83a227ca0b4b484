package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	contractx "github.com/tanpawarit/chative-customer-assistant/agent/contract"
	"github.com/tanpawarit/chative-customer-assistant/agent/tool"
)

// newToolsCmd drives the worker directly, without the model, for operators
// checking the CRM and ViaCEP wiring.
func newToolsCmd(envFile *string) *cobra.Command {
	toolsCmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect and call the customer tools",
	}

	toolsCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print the tool catalog as JSON",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return writeJSON(cmd, tool.Descriptors())
			},
		},
		newToolsCreateCmd(envFile),
		&cobra.Command{
			Use:   "lookup <zipcode>",
			Short: "Look up a Brazilian address by CEP through the worker",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				client, err := newActionClient(*envFile)
				if err != nil {
					return err
				}
				defer func() { _ = client.Close() }()
				return writeResult(cmd, client.LookupAddress(cmd.Context(), args[0]))
			},
		},
	)
	return toolsCmd
}

func newToolsCreateCmd(envFile *string) *cobra.Command {
	var data string
	createCmd := &cobra.Command{
		Use:     "create",
		Short:   "Create a customer through the worker",
		Example: `  chative tools create --data '{"name":"Ana Silva","email":"ana@example.com","phone":"+55 11 99999-0000"}'`,
		RunE:    func(cmd *cobra.Command, _ []string) error {
			if !json.Valid([]byte(data)) {
				return errors.New("--data must be a JSON object")
			}
			client, err := newActionClient(*envFile)
			if err != nil {
				return err
			}
			defer func() { _ = client.Close() }()
			return writeResult(cmd, client.CreateCustomer(cmd.Context(), json.RawMessage(data)))
		},
	}
	createCmd.Flags().StringVar(&data, "data", "{}", "customer record as JSON")
	return createCmd
}

func writeResult(cmd *cobra.Command, result contractx.ActionResult) error {
	if err := writeJSON(cmd, result); err != nil {
		return err
	}
	if result.Failed() {
		return fmt.Errorf("%s failed: %s", result.Tool, result.Error)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
