package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"hurst-trader/models"
)

func sampleTrades() []models.TradeRecord {
	at := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	return []models.TradeRecord{
		{SessionID: "s", ContractID: "1", Symbol: "R_100", Direction: models.Call, Strategy: "hurst_regime", IsWin: false, Stake: 10, Profit: -10, BalanceAfter: 990, Timestamp: at},
		{SessionID: "s", ContractID: "2", Symbol: "R_100", Direction: models.Put, Strategy: "hurst_regime", IsWin: true, Stake: 21.11, Profit: 19, BalanceAfter: 1009, Timestamp: at.Add(time.Minute)},
	}
}

func TestWriteReportSummary(t *testing.T) {
	var buf bytes.Buffer
	writeReport(&buf, sampleTrades())
	out := buf.String()
	for _, want := range []string{"Trades: 2 (wins 1, losses 1, win rate 50.0%)", "Net: 9.00", "max drawdown 10.00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestReportCSV(t *testing.T) {
	lines := strings.Split(strings.TrimSpace(reportCSV(sampleTrades())), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(lines))
	}
	if lines[2] != "2026-03-04T12:01:00Z,s,2,R_100,PUT,hurst_regime,true,21.11,19.00,1009.00" {
		t.Fatalf("unexpected row %q", lines[2])
	}
}

func TestMaskDSN(t *testing.T) {
	cases := map[string]string{
		"postgres://trader:secret@db:5432/trades": "postgres://trader:****@db:5432/trades",
		"postgres://trader@db/trades":             "postgres://trader@db/trades",
		"host=db user=trader":                     "host=db user=trader",
	}
	for in, want := range cases {
		if got := maskDSN(in); got != want {
			t.Fatalf("maskDSN(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStrategiesCommand(t *testing.T) {
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"strategies"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(buf.String(), "momentum_persistent") {
		t.Fatalf("strategies output %q", buf.String())
	}
}

func TestConfigCommandMasksSecrets(t *testing.T) {
	t.Setenv("BROKER_API_TOKEN", "tok-123")
	t.Setenv("LEDGER_DSN", "postgres://u:pw@localhost/trades")
	t.Setenv("LEDGER_FILE", filepath.Join(t.TempDir(), "t.jsonl"))
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"config"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "tok-123") || strings.Contains(out, ":pw@") {
		t.Fatalf("secrets leaked:\n%s", out)
	}
	if !strings.Contains(out, "api_token: '****'") && !strings.Contains(out, `api_token: "****"`) {
		t.Fatalf("token not masked:\n%s", out)
	}
}

func TestStatusCommandPrintsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/status" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(models.EngineSnapshot{
			Symbol:     "R_100",
			Running:    true,
			Strategy:   "momentum_persistent",
			Reconciler: "PLACED",
			Pending:    &models.PendingContract{ContractID: "77", Direction: models.Put, StakeAmount: 10},
			Stake:      models.StakeSnapshot{Policy: "soros", CurrentBalance: 1009},
		})
	}))
	defer srv.Close()

	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"status", "--addr", srv.URL})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Symbol: R_100", "Pending: 77 PUT stake=10.00", "policy=soros balance=1009.00", "Signal: none"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusURL(t *testing.T) {
	got, err := statusURL("127.0.0.1:6061/")
	if err != nil || got != "http://127.0.0.1:6061/status" {
		t.Fatalf("statusURL = %q, %v", got, err)
	}
	if _, err := statusURL("  "); err == nil {
		t.Fatalf("empty address should fail")
	}
}
