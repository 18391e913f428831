package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"hurst-trader/config"
	"hurst-trader/logging"
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

// fakeBroker answers the subset of the protocol the client uses.
type fakeBroker struct {
	t            *testing.T
	pollAuthFail atomic.Bool
}

func (f *fakeBroker) serve(conn *websocket.Conn) {
	var contractSub interface{}
	for {
		var req map[string]interface{}
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		id := req["req_id"]
		var out []map[string]interface{}
		switch {
		case req["authorize"] != nil:
			if req["authorize"] == "good-token" {
				out = append(out, map[string]interface{}{"msg_type": "authorize", "req_id": id,
					"authorize": map[string]interface{}{"loginid": "VRTC1", "balance": 1000, "currency": "USD"}})
			} else {
				out = append(out, map[string]interface{}{"msg_type": "authorize", "req_id": id,
					"error": map[string]interface{}{"code": "InvalidToken", "message": "The token is invalid."}})
			}
		case req["ticks_history"] != nil:
			out = append(out,
				map[string]interface{}{"msg_type": "history", "req_id": id,
					"history": map[string]interface{}{"prices": []float64{100, 100.5, 101}}},
				map[string]interface{}{"msg_type": "tick", "req_id": id,
					"tick": map[string]interface{}{"quote": 101.25, "symbol": req["ticks_history"], "epoch": 1700000000}},
			)
		case req["buy"] != nil:
			params := req["parameters"].(map[string]interface{})
			if params["contract_type"] != "CALL" || params["duration_unit"] != "t" {
				f.t.Errorf("unexpected buy parameters %v", params)
			}
			out = append(out, map[string]interface{}{"msg_type": "buy", "req_id": id,
				"buy": map[string]interface{}{"contract_id": 12345, "buy_price": 1, "payout": 1.9, "purchase_time": 1700000000}})
			if contractSub != nil {
				out = append(out, map[string]interface{}{"msg_type": "proposal_open_contract", "req_id": contractSub,
					"proposal_open_contract": map[string]interface{}{"contract_id": 12345, "status": "won", "is_sold": 1, "profit": 0.9, "buy_price": 1}})
			}
		case req["proposal_open_contract"] != nil && req["subscribe"] != nil:
			contractSub = id
		case req["proposal_open_contract"] != nil:
			if f.pollAuthFail.Load() {
				out = append(out, map[string]interface{}{"msg_type": "proposal_open_contract", "req_id": id,
					"error": map[string]interface{}{"code": "AuthorizationRequired", "message": "Please log in."}})
			} else {
				out = append(out, map[string]interface{}{"msg_type": "proposal_open_contract", "req_id": id,
					"proposal_open_contract": map[string]interface{}{"contract_id": req["contract_id"], "status": "open", "is_sold": 0, "profit": 0.2, "buy_price": 1}})
			}
		}
		for _, msg := range out {
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

func newFakeServer(t *testing.T, fb *fakeBroker) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		fb.serve(conn)
	}))
}

func newTestClient(t *testing.T, srv *httptest.Server, token string) *Client {
	t.Helper()
	cfg := config.LoadConfig()
	cfg.BrokerURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.APIToken = token
	cfg.RequestTimeout = 2
	c := NewClient(cfg, nopLogger{})
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClientTicksHistoryThenStream(t *testing.T) {
	srv := newFakeServer(t, &fakeBroker{t: t})
	defer srv.Close()
	c := newTestClient(t, srv, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := c.SubscribeTicks(ctx, "R_100", 3)
	if err != nil {
		t.Fatalf("SubscribeTicks: %v", err)
	}

	first := recvTick(t, ch)
	if first.Kind != models.TickHistory || len(first.Prices) != 3 || first.Prices[2] != 101 {
		t.Fatalf("expected history first, got %+v", first)
	}
	second := recvTick(t, ch)
	if second.Kind != models.TickPrice || second.Price != 101.25 || second.Symbol != "R_100" {
		t.Fatalf("unexpected tick %+v", second)
	}

	cancel()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("tick channel not closed after cancel")
		}
	}
}

func recvTick(t *testing.T, ch <-chan models.TickEvent) models.TickEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("tick channel closed early")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for tick")
	}
	return models.TickEvent{}
}

func TestClientAuthorizeRejectsBadToken(t *testing.T) {
	srv := newFakeServer(t, &fakeBroker{t: t})
	defer srv.Close()

	cfg := config.LoadConfig()
	cfg.BrokerURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	cfg.APIToken = "bad-token"
	cfg.RequestTimeout = 2
	c := NewClient(cfg, nopLogger{})
	defer c.Close()

	err := c.Connect(context.Background())
	var be *models.BrokerError
	if !errors.As(err, &be) || be.Code != "InvalidToken" {
		t.Fatalf("expected InvalidToken broker error, got %v", err)
	}
	if !models.IsAuthError(err) {
		t.Fatalf("InvalidToken should classify as an auth error")
	}
}

func TestClientBuyAndSettlementPush(t *testing.T) {
	srv := newFakeServer(t, &fakeBroker{t: t})
	defer srv.Close()
	c := newTestClient(t, srv, "good-token")

	receipt, err := c.PlaceOrder(context.Background(), models.OrderParams{
		Symbol: "R_100", Direction: models.Call, StakeAmount: 1, DurationTicks: 5, Currency: "USD",
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if receipt.ContractID != "12345" || receipt.Payout != 1.9 || receipt.PlacedAt.IsZero() {
		t.Fatalf("unexpected receipt %+v", receipt)
	}

	select {
	case st := <-c.Settlements():
		if st.ContractID != "12345" || st.Status != models.ContractWon || st.Profit != 0.9 || st.Stake != 1 {
			t.Fatalf("unexpected settlement %+v", st)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no settlement push received")
	}
}

func TestClientPollContract(t *testing.T) {
	fb := &fakeBroker{t: t}
	srv := newFakeServer(t, fb)
	defer srv.Close()
	c := newTestClient(t, srv, "good-token")

	st, err := c.PollContract(context.Background(), "777")
	if err != nil {
		t.Fatalf("PollContract: %v", err)
	}
	if st.ContractID != "777" || st.Status != models.ContractOpen || st.Settled() {
		t.Fatalf("unexpected status %+v", st)
	}

	fb.pollAuthFail.Store(true)
	_, err = c.PollContract(context.Background(), "777")
	if !models.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestClientNotConnected(t *testing.T) {
	c := NewClient(config.LoadConfig(), nopLogger{})
	if _, err := c.PollContract(context.Background(), "1"); !errors.Is(err, models.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestParseOpenContractSold(t *testing.T) {
	st, err := parseOpenContract([]byte(`{"proposal_open_contract":{"contract_id":9,"status":"sold","is_sold":1,"profit":-1,"buy_price":1,"sell_time":1700000100}}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if st.Status != models.ContractLost || st.ContractID != "9" || st.SettledAt.IsZero() {
		t.Fatalf("unexpected status %+v", st)
	}
}
