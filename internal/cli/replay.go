package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"paperTrader/internal/adapters/logger"
	"paperTrader/internal/ports"
	"paperTrader/internal/scenario"
	"paperTrader/internal/utils"
)

func newReplayCmd(opts *rootOptions) *cobra.Command {
	var equityOut string
	cmd := &cobra.Command{
		Use:   "replay SCENARIO.yaml",
		Short: "Replay a scripted scenario through an in-memory ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mf, err := newMoneyFormatter(opts.currency)
			if err != nil {
				return err
			}
			sc, err := scenario.Load(args[0])
			if err != nil {
				return err
			}

			log := logger.New(logger.Config{
				Level:  logger.ParseLevel(opts.logLevel),
				Pretty: stderrIsTerminal(),
				Output: cmd.ErrOrStderr(),
			})
			res, err := scenario.Run(cmd.Context(), sc, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scenario: %s\n\n", res.Name)
			for _, o := range res.Outcomes {
				if o.Err != nil {
					reason := o.Err.Error()
					var r *ports.TradeRejection
					if errors.As(o.Err, &r) {
						reason = r.Message()
					}
					fmt.Fprintf(out, "step %d: %s %s %s REJECTED: %s\n", o.Step, o.Request.Side, o.Request.Quantity, o.Request.InstrumentID, reason)
					continue
				}
				t := o.Trade
				fmt.Fprintf(out, "step %d: %s %s %s @ %s", o.Step, t.Side, t.Quantity, t.Symbol, mf.Format(t.Price))
				if t.Reducing {
					fmt.Fprintf(out, " realized %s", mf.Signed(t.RealizedPnL))
				}
				fmt.Fprintln(out)
			}
			fmt.Fprintf(out, "\n%d trades, %d rejected\n\n", len(res.Outcomes), res.Rejected())

			printValuation(out, mf, res.Valuation)
			fmt.Fprintln(out)
			printReport(out, mf, res.Report)
			printAlerts(out, "Alerts raised", res.Alerts)

			if equityOut != "" {
				if err := utils.WriteEquityToCSV(res.Equity, equityOut); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d equity points to %s\n", len(res.Equity), equityOut)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&equityOut, "equity-out", "", "write the equity curve to this CSV file")
	return cmd
}

// stderrIsTerminal reports whether log output should be human readable.
func stderrIsTerminal() bool {
	fi, err := os.Stderr.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}
