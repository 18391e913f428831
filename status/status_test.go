package status

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"hurst-trader/config"
	"hurst-trader/logging"
	"hurst-trader/metrics"
	"hurst-trader/models"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})          {}
func (nopLogger) Info(string, ...interface{})           {}
func (nopLogger) Warning(string, ...interface{})        {}
func (nopLogger) Error(string, ...interface{})          {}
func (nopLogger) Fatal(string, ...interface{})          {}
func (nopLogger) Sync() error                           { return nil }
func (nopLogger) ChangeLogLevel(level logging.LogLevel) {}

func TestStatusEndpoint(t *testing.T) {
	snap := models.EngineSnapshot{
		Symbol:     "R_100",
		SessionID:  "s-1",
		Running:    true,
		Strategy:   "momentum_persistent",
		Reconciler: "PLACED",
		Pending:    &models.PendingContract{ContractID: "42", Direction: models.Put, StakeAmount: 10},
		Stake:      models.StakeSnapshot{Policy: "martingale"},
	}
	srv := httptest.NewServer(NewMux(func() models.EngineSnapshot { return snap }, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}
	var got models.EngineSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.SessionID != "s-1" || got.Pending == nil || got.Pending.ContractID != "42" || got.Time.IsZero() {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}

func TestHealthzFollowsRunning(t *testing.T) {
	var running atomic.Bool
	srv := httptest.NewServer(NewMux(func() models.EngineSnapshot { return models.EngineSnapshot{Running: running.Load()} }, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("stopped engine should be unhealthy, got %d", resp.StatusCode)
	}

	running.Store(true)
	resp, err = http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("running engine should be healthy, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.SetMoney(1009, 9, 10)
	srv := httptest.NewServer(NewMux(func() models.EngineSnapshot { return models.EngineSnapshot{} }, nil))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "hurst_balance 1009") {
		t.Fatalf("metrics output missing balance gauge:\n%s", body)
	}
}

func TestStartServerDisabled(t *testing.T) {
	cfg := config.LoadConfig()
	cfg.StatusAddr = "off"
	if srv := StartServer(cfg, func() models.EngineSnapshot { return models.EngineSnapshot{} }, nil, nopLogger{}); srv != nil {
		t.Fatalf("expected nil server when disabled")
	}
}
