// Package cli is the command line front end of the paper trading ledger.
package cli

import (
	"github.com/spf13/cobra"

	"paperTrader/internal/app"
)

// Factory builds the runtime a command works against. The caller closes it.
type Factory func() (*app.Runtime, error)

type rootOptions struct {
	currency string
	logLevel string
}

// NewRootCommand assembles the command tree.
func NewRootCommand(newRuntime Factory) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "papertrader",
		Short: "Paper trading ledger with position accounting and risk analytics",
		Long: `papertrader keeps simulated portfolios funded with virtual cash.

It provides tools for:
  - Opening portfolios and placing validated market trades
  - Marking positions to market with realized and unrealized P&L
  - Risk reports: volatility, Sharpe, drawdowns, VaR and benchmark beta
  - Replaying YAML scenarios through an in-memory ledger`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.currency, "currency", "USD", "currency used to display amounts")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "WARN", "log level for commands that do not load the configuration")

	root.AddCommand(
		newOpenCmd(opts, newRuntime),
		newTradeCmd(opts, newRuntime),
		newPositionsCmd(opts, newRuntime),
		newRiskCmd(opts, newRuntime),
		newEquityCmd(newRuntime),
		newReplayCmd(opts),
	)
	return root
}
