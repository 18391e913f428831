package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hurst-trader/config"
	"hurst-trader/models"
)

func newStatusCmd(load func() (*config.Config, error)) *cobra.Command {
	var addr string
	var jsonOut bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running engine's status server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				cfg, err := load()
				if err != nil {
					return err
				}
				addr = cfg.StatusAddr
			}
			body, err := fetchStatus(addr, timeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOut {
				_, err := out.Write(body)
				return err
			}
			var snap models.EngineSnapshot
			if err := json.Unmarshal(body, &snap); err != nil {
				return fmt.Errorf("failed to parse JSON: %w", err)
			}
			printStatus(out, snap)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "status server address or URL (defaults to status_addr)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print raw JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "HTTP timeout")
	return cmd
}

func statusURL(addr string) (string, error) {
	url := strings.TrimSpace(addr)
	if url == "" {
		return "", fmt.Errorf("status address is empty")
	}
	if !strings.Contains(url, "://") {
		url = "http://" + url
	}
	return strings.TrimRight(url, "/") + "/status", nil
}

func fetchStatus(addr string, timeout time.Duration) ([]byte, error) {
	url, err := statusURL(addr)
	if err != nil {
		return nil, err
	}
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request error: %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func printStatus(w io.Writer, s models.EngineSnapshot) {
	fmt.Fprintf(w, "Time: %s\n", formatTime(s.Time))
	fmt.Fprintf(w, "Symbol: %s strategy=%s running=%t session=%s\n", s.Symbol, s.Strategy, s.Running, s.SessionID)
	fmt.Fprintf(w, "Ticks: %d last=%.4f reconciler=%s trades=%d\n", s.TickCount, s.LastPrice, s.Reconciler, s.TradesTotal)

	if s.LastSignal == nil {
		fmt.Fprintln(w, "Signal: none")
	} else {
		fmt.Fprintf(w, "Signal: %s %s conf=%.2f time=%s (%s)\n",
			s.LastSignal.Strategy, s.LastSignal.Signal, s.LastSignal.Confidence, formatTime(s.LastSignal.Time), s.LastSignal.Rationale)
	}

	if s.Pending == nil {
		fmt.Fprintln(w, "Pending: none")
	} else {
		fmt.Fprintf(w, "Pending: %s %s stake=%.2f placed=%s authRetries=%d\n",
			s.Pending.ContractID, s.Pending.Direction, s.Pending.StakeAmount, formatTime(s.Pending.PlacedAt), s.Pending.AuthRetries)
	}

	st := s.Stake
	fmt.Fprintf(w, "Stake: policy=%s balance=%.2f next=%.2f wins=%d losses=%d soros=%d martingale=%d profit=%.2f loss=%.2f winRate=%.2f\n",
		st.Policy, st.CurrentBalance, st.CurrentStake, st.ConsecutiveWins, st.ConsecutiveLosses,
		st.SorosLevel, st.MartingaleLevel, st.TotalProfit, st.TotalLoss, st.WinRate)

	if s.LastTrade == nil {
		fmt.Fprintln(w, "Last trade: none")
	} else {
		result := "LOSS"
		if s.LastTrade.IsWin {
			result = "WIN"
		}
		fmt.Fprintf(w, "Last trade: %s %s %s stake=%.2f profit=%.2f at %s\n",
			s.LastTrade.ContractID, s.LastTrade.Direction, result, s.LastTrade.Stake, s.LastTrade.Profit, formatTime(s.LastTrade.Timestamp))
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "n/a"
	}
	return t.UTC().Format(time.RFC3339)
}
