// Command paychan is a thin CLI over the payment-channel client: it
// prints authorization headers and channel balances. All domain logic
// lives in the library.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vitwit/paychan"
	"github.com/vitwit/paychan/logger"
	"github.com/vitwit/paychan/state"
	"github.com/vitwit/paychan/types"
)

// rootOptions holds the global flags shared by every subcommand.
type rootOptions struct {
	Provider string
	BaseDir  string
	Channel  string
	LogLevel string
}

func (o *rootOptions) client() *paychan.Client {
	cfg := types.DefaultConfig()
	if o.Provider != "" {
		cfg.ProviderURL = o.Provider
	}
	if o.BaseDir != "" {
		cfg.BaseDir = o.BaseDir
	}
	cfg.ChannelID = o.Channel
	cfg.LogLevel = o.LogLevel

	return paychan.New(cfg, paychan.WithLogger(logger.NewZapLogger(cfg.LogLevel)))
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "paychan",
		Short:         "Spend from an off-chain payment channel",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Provider, "provider", "", "provider base URL (default "+types.DefaultProviderURL+")")
	cmd.PersistentFlags().StringVar(&opts.BaseDir, "base-dir", "", "channel storage directory (default: user config dir)")
	cmd.PersistentFlags().StringVar(&opts.Channel, "channel", "", "channel id (default: the only stored channel)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "error", "log level (debug|info|warn|error)")

	cmd.AddCommand(newSendCommand(opts))
	cmd.AddCommand(newBalanceCommand(opts))
	cmd.AddCommand(newSpentCommand(opts))
	cmd.AddCommand(newInfoCommand(opts))

	return cmd
}

func newSendCommand(opts *rootOptions) *cobra.Command {
	var update bool

	cmd := &cobra.Command{
		Use:   "send <amount>",
		Short: "Sign a spend authorization and print the header value",
		Long: `Sign an authorization for spending <amount> display units on top of the
channel's cumulative spend and print the value for the ` + state.HeaderName + ` header.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			value, err := client.MakeAuthorization(args[0], update)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", state.HeaderName, value)
			return nil
		},
	}

	cmd.Flags().BoolVar(&update, "update", true, "persist the new cumulative spend as the local baseline")
	return cmd
}

func newBalanceCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print the provider-side spendable balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			balance, err := client.Balance(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), balance.Display())
			return nil
		},
	}
}

func newSpentCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "spent",
		Short: "Print the cumulative spend the provider has accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			spent, err := client.SpentRemote(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), spent.Display())
			return nil
		},
	}
}

func newInfoCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the locally cached channel record (secret key redacted)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client := opts.client()
			rec, err := client.Info()
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
