package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hurst-trader/config"
	"hurst-trader/ledger"
	"hurst-trader/models"
)

func newReportCmd(load func() (*config.Config, error)) *cobra.Command {
	var hours int
	var today bool
	var outCSV string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize settled trades from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			now := time.Now()
			from := now.Add(-time.Duration(hours) * time.Hour)
			label := fmt.Sprintf("last %dh", hours)
			if today {
				from = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
				label = "today"
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()
			records, err := store.Since(ctx, from)
			if err != nil {
				return fmt.Errorf("read ledger: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No settled trades in the selected window.")
				return nil
			}
			fmt.Fprintf(out, "Settled trades %s for %s\n", label, cfg.Symbol)
			writeReport(out, records)

			if outCSV == "" {
				return nil
			}
			if err := os.WriteFile(outCSV, []byte(reportCSV(records)), 0o644); err != nil {
				return fmt.Errorf("failed to write CSV: %w", err)
			}
			fmt.Fprintf(out, "CSV saved to %s\n", outCSV)
			return nil
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "lookback window in hours")
	cmd.Flags().BoolVar(&today, "today", false, "limit to the current calendar day (local time); overrides --hours")
	cmd.Flags().StringVar(&outCSV, "out", "", "path to write a CSV report")
	return cmd
}

func writeReport(w io.Writer, records []models.TradeRecord) {
	fmt.Fprintf(w, "%-16s %-8s %-5s %-22s %-9s %-9s %-10s\n", "Time", "Symbol", "Dir", "Strategy", "Stake", "Profit", "Balance")
	for _, r := range records {
		fmt.Fprintf(w, "%-16s %-8s %-5s %-22s %-9.2f %-9.2f %-10.2f\n",
			r.Timestamp.In(time.Local).Format("2006-01-02 15:04"), r.Symbol, r.Direction, r.Strategy, r.Stake, r.Profit, r.BalanceAfter)
	}
	s := ledger.Summarize(records)
	fmt.Fprintf(w, "\nTrades: %d (wins %d, losses %d, win rate %.1f%%)\n", s.Trades, s.Wins, s.Losses, s.WinRate*100)
	fmt.Fprintf(w, "Net: %.2f (won %.2f, lost %.2f), max drawdown %.2f\n", s.Net, s.GrossWin, s.GrossLoss, s.MaxDrawdown)
}

func reportCSV(records []models.TradeRecord) string {
	var b strings.Builder
	b.WriteString("time,session,contract,symbol,direction,strategy,win,stake,profit,balance\n")
	for _, r := range records {
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s,%s,%t,%.2f,%.2f,%.2f\n",
			r.Timestamp.UTC().Format(time.RFC3339), r.SessionID, r.ContractID, r.Symbol, r.Direction,
			r.Strategy, r.IsWin, r.Stake, r.Profit, r.BalanceAfter)
	}
	return b.String()
}
