package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"paperTrader/internal/accounting"
	"paperTrader/internal/analytics"
	"paperTrader/internal/domain"
	"paperTrader/internal/ports"
	"paperTrader/internal/utils"
)

func newOpenCmd(opts *rootOptions, newRuntime Factory) *cobra.Command {
	var balance string
	cmd := &cobra.Command{
		Use:   "open NAME",
		Short: "Open a new portfolio funded with virtual cash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mf, err := newMoneyFormatter(opts.currency)
			if err != nil {
				return err
			}
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			initial := rt.InitialBalance
			if balance != "" {
				if initial, err = decimal.NewFromString(balance); err != nil {
					return fmt.Errorf("invalid --balance %q", balance)
				}
			}
			pf, err := rt.Service.OpenPortfolio(cmd.Context(), args[0], initial)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Opened portfolio %s (%s) with %s\n", pf.ID, pf.Name, mf.Format(pf.CashBalance))
			return nil
		},
	}
	cmd.Flags().StringVar(&balance, "balance", "", "initial cash balance (defaults to INITIAL_BALANCE)")
	return cmd
}

func newTradeCmd(opts *rootOptions, newRuntime Factory) *cobra.Command {
	var (
		price  string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "trade PORTFOLIO_ID buy|sell INSTRUMENT QUANTITY",
		Short: "Place a market trade at the current quote",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			mf, err := newMoneyFormatter(opts.currency)
			if err != nil {
				return err
			}
			side := domain.OrderSide(strings.ToUpper(args[1]))
			if !side.Valid() {
				return fmt.Errorf("side must be buy or sell, got %q", args[1])
			}
			qty, err := decimal.NewFromString(args[3])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[3])
			}
			req := domain.TradeRequest{PortfolioID: args[0], InstrumentID: strings.ToUpper(args[2]), Side: side, Quantity: qty}
			if price != "" {
				if req.Price, err = decimal.NewFromString(price); err != nil {
					return fmt.Errorf("invalid --price %q", price)
				}
			}

			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			place := rt.Service.PlaceTrade
			if dryRun {
				place = rt.Service.Validate
			}
			trade, err := place(cmd.Context(), req)
			if r, ok := ports.AsRejection(err); ok {
				fmt.Fprintln(cmd.ErrOrStderr(), r.Message())
				return err
			} else if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprint(out, "Would place: ")
			}
			fmt.Fprintf(out, "%s %s %s @ %s (total %s, commission %s)\n",
				trade.Side, trade.Quantity, trade.Symbol, mf.Format(trade.Price), mf.Format(trade.TotalAmount), mf.Format(trade.Commission))
			if dryRun {
				return nil
			}
			if trade.Reducing {
				fmt.Fprintf(out, "Realized P&L: %s\n", mf.Signed(trade.RealizedPnL))
			}
			fmt.Fprintf(out, "Trade ID: %s\n", trade.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&price, "price", "", "execution price (defaults to the current quote)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the trade without placing it")
	return cmd
}

func newPositionsCmd(opts *rootOptions, newRuntime Factory) *cobra.Command {
	return &cobra.Command{
		Use:   "positions PORTFOLIO_ID",
		Short: "Show open positions marked to market",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mf, err := newMoneyFormatter(opts.currency)
			if err != nil {
				return err
			}
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			v, err := rt.Service.Valuation(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printValuation(cmd.OutOrStdout(), mf, v)
			return nil
		},
	}
}

func printValuation(out io.Writer, mf moneyFormatter, v *accounting.PortfolioValuation) {
	if len(v.Positions) == 0 {
		fmt.Fprintln(out, "No open positions.")
	} else {
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "Symbol\tSide\tQty\tAvg Cost\tPrice\tValue\tUnrealized\tP&L %\tWeight\t")
		for _, p := range v.Positions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
				p.Symbol,
				p.Side,
				p.Quantity.Abs(),
				mf.Format(p.AverageEntryPrice),
				mf.Format(p.CurrentPrice),
				mf.Format(p.MarketValue),
				mf.Signed(p.UnrealizedPnL),
				percent(p.UnrealizedPnLPercent),
				percent(p.Weight),
			)
		}
		w.Flush()
	}

	fmt.Fprintf(out, "\nCash:         %s\n", mf.Format(v.CashBalance))
	fmt.Fprintf(out, "Positions:    %s\n", mf.Format(v.TotalPositionsValue))
	fmt.Fprintf(out, "Total equity: %s\n", mf.Format(v.TotalEquity))
	fmt.Fprintf(out, "Total return: %s (%s)\n", mf.Signed(v.TotalReturn), percent(v.TotalReturnPercent))
	fmt.Fprintf(out, "Realized:     %s  Unrealized: %s  Day: %s\n",
		mf.Signed(v.RealizedPnL), mf.Signed(v.UnrealizedPnL), mf.Signed(v.DayChange))
}

func newRiskCmd(opts *rootOptions, newRuntime Factory) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "risk PORTFOLIO_ID",
		Short: "Show the risk report and any limits at warning level or above",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mf, err := newMoneyFormatter(opts.currency)
			if err != nil {
				return err
			}
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx := cmd.Context()
			if refresh {
				if err := rt.Service.Refresh(ctx, args[0]); err != nil {
					return err
				}
			}
			report, err := rt.Service.RiskReport(ctx, args[0])
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), mf, report)

			breaches, err := rt.Service.Breaches(ctx, args[0])
			if err != nil {
				return err
			}
			printAlerts(cmd.OutOrStdout(), "Limits", breaches)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "record current equity and evaluate alerts first")
	return cmd
}

func printReport(out io.Writer, mf moneyFormatter, r *analytics.RiskReport) {
	if r.Observations == 0 {
		fmt.Fprintln(out, "No equity history recorded yet.")
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "As of\t%s\n", r.AsOf.UTC().Format(time.RFC3339))
	fmt.Fprintf(w, "Observations\t%d days, %d returns\n", r.Observations, r.ReturnCount)
	fmt.Fprintf(w, "Equity\t%s -> %s (%s)\n", mf.Format(r.StartEquity), mf.Format(r.CurrentEquity), percentFloat(r.TotalReturnPercent))
	fmt.Fprintf(w, "Annualized return\t%s\n", percentFloat(r.AnnualizedReturn*100))
	fmt.Fprintf(w, "Annualized volatility\t%s\n", percentFloat(r.AnnualizedVolatility*100))
	fmt.Fprintf(w, "Sharpe ratio\t%.3f\n", r.SharpeRatio)
	fmt.Fprintf(w, "Max drawdown\t%s (%s)\n", percentFloat(r.MaxDrawdownPercent), mf.Format(r.MaxDrawdownAmount))
	fmt.Fprintf(w, "Current drawdown\t%s\n", percentFloat(r.CurrentDrawdownPercent))
	fmt.Fprintf(w, "VaR 95%% / 99%%\t%s / %s\n", mf.Format(r.VaR95), mf.Format(r.VaR99))
	fmt.Fprintf(w, "CVaR 95%%\t%s\n", mf.Format(r.CVaR95))
	fmt.Fprintf(w, "Beta / Correlation\t%s / %s (%d aligned returns)\n", ratio(r.Beta), ratio(r.Correlation), r.BenchmarkPoints)
	fmt.Fprintf(w, "Tracking error / IR\t%s / %s\n", ratio(r.TrackingError), ratio(r.InformationRatio))
	fmt.Fprintf(w, "Closed trades\t%d of %d, win rate %s\n", r.Trades.ClosedTrades, r.Trades.TotalTrades, percentFloat(r.WinRate))
	fmt.Fprintf(w, "Realized P&L\t%s (commission %s)\n", mf.Signed(r.Trades.TotalRealizedPnL), mf.Format(r.Trades.TotalCommission))
	w.Flush()
}

func printAlerts(out io.Writer, title string, alerts []domain.Alert) {
	if len(alerts) == 0 {
		fmt.Fprintf(out, "\n%s: none breached\n", title)
		return
	}
	fmt.Fprintf(out, "\n%s:\n", title)
	for _, a := range alerts {
		fmt.Fprintf(out, "  [%s] %s\n", strings.ToUpper(a.Severity.String()), a.Message)
	}
}

func newEquityCmd(newRuntime Factory) *cobra.Command {
	var (
		outPath  string
		sinceStr string
		replay   bool
	)
	cmd := &cobra.Command{
		Use:   "equity PORTFOLIO_ID",
		Short: "Export the recorded equity curve as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var since time.Time
			if sinceStr != "" {
				var err error
				if since, err = time.Parse(time.DateOnly, sinceStr); err != nil {
					return fmt.Errorf("bad --since: %w", err)
				}
			}
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			defer rt.Close()

			var snaps []domain.EquitySnapshot
			if replay {
				pf, err := rt.Service.Portfolio(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				for _, s := range accounting.ReplayEquity(pf) {
					if !s.Timestamp.Before(since) {
						snaps = append(snaps, s)
					}
				}
			} else if snaps, err = rt.Service.EquityHistory(cmd.Context(), args[0], since); err != nil {
				return err
			}
			if outPath == "" || outPath == "-" {
				return utils.WriteEquity(cmd.OutOrStdout(), snaps)
			}
			if err := utils.WriteEquityToCSV(snaps, outPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d points to %s\n", len(snaps), outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&sinceStr, "since", "", "only points from this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&replay, "replay", false, "rebuild the curve from trade history at traded prices instead of recorded points")
	return cmd
}
