package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"hurst-trader/config"
	"hurst-trader/interfaces"
	"hurst-trader/logging"
	"hurst-trader/models"
)

var _ interfaces.Broker = (*Client)(nil)

// error codes that mean the session lost (or never had) authorization
var authErrorCodes = map[string]bool{
	"AuthorizationRequired": true,
	"InvalidToken":          true,
}

// envelope is the common frame of every broker message.
type envelope struct {
	MsgType string          `json:"msg_type"`
	ReqID   int64           `json:"req_id"`
	Error   *apiError       `json:"error,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type tickSub struct {
	symbol string
	ch     chan models.TickEvent
}

// Client speaks the broker's JSON-over-websocket protocol. Requests carry a req_id and are
// answered on the same connection; tick and contract streams are routed by that id.
type Client struct {
	Config *config.Config
	Logger logging.LoggerInterface
	Dialer *websocket.Dialer

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu          sync.Mutex
	waiters     map[int64]chan envelope
	ticks       map[int64]*tickSub
	contractSub int64
	connected   bool
	closed      bool

	nextID      atomic.Int64
	settlements chan models.ContractStatus
	done        chan struct{}
}

// NewClient creates an unconnected broker client.
func NewClient(cfg *config.Config, logger logging.LoggerInterface) *Client {
	return &Client{
		Config:      cfg,
		Logger:      logger,
		Dialer:      &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		waiters:     make(map[int64]chan envelope),
		ticks:       make(map[int64]*tickSub),
		settlements: make(chan models.ContractStatus, 16),
		done:        make(chan struct{}),
	}
}

// Connect dials the broker, authorizes when a token is configured and subscribes to contract updates.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := c.Dialer.DialContext(ctx, c.Config.BrokerURL, nil)
	if err != nil {
		return &models.BrokerError{Op: "connect", Err: err}
	}
	pongWait := time.Duration(c.Config.PongWait) * time.Second
	if pongWait > 0 {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(pongWait))
			return nil
		})
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readLoop()
	go c.pingLoop()
	c.Logger.Info("Connected to broker at %s", c.Config.BrokerURL)

	if c.Config.APIToken == "" {
		return nil
	}
	if err := c.Authorize(ctx); err != nil {
		return err
	}
	return c.subscribeContracts(ctx)
}

// Close shuts the connection and ends every stream.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	close(c.done)
	if conn == nil {
		return nil
	}
	c.writeMu.Lock()
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return conn.Close()
}

// Settlements carries contracts the broker reports as sold.
func (c *Client) Settlements() <-chan models.ContractStatus {
	return c.settlements
}

// Authorize logs the session in with the configured token.
func (c *Client) Authorize(ctx context.Context) error {
	env, err := c.request(ctx, "authorize", map[string]interface{}{"authorize": c.Config.APIToken})
	if err != nil {
		return err
	}
	var r struct {
		Authorize struct {
			LoginID  string  `json:"loginid"`
			Balance  float64 `json:"balance"`
			Currency string  `json:"currency"`
		} `json:"authorize"`
	}
	if err := json.Unmarshal(env.Raw, &r); err != nil {
		return &models.BrokerError{Op: "authorize", Err: err}
	}
	c.Logger.Info("Authorized as %s (balance %.2f %s)", r.Authorize.LoginID, r.Authorize.Balance, r.Authorize.Currency)
	return nil
}

func (c *Client) subscribeContracts(ctx context.Context) error {
	id := c.nextID.Add(1)
	c.mu.Lock()
	c.contractSub = id
	c.mu.Unlock()
	return c.send(ctx, map[string]interface{}{"proposal_open_contract": 1, "subscribe": 1, "req_id": id})
}

// SubscribeTicks requests count historical prices and a live stream for symbol.
func (c *Client) SubscribeTicks(ctx context.Context, symbol string, count int) (<-chan models.TickEvent, error) {
	id := c.nextID.Add(1)
	sub := &tickSub{symbol: symbol, ch: make(chan models.TickEvent, 64)}
	waiter := make(chan envelope, 1)

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, models.ErrNotConnected
	}
	c.ticks[id] = sub
	c.waiters[id] = waiter
	c.mu.Unlock()

	payload := map[string]interface{}{
		"ticks_history": symbol,
		"count":         count,
		"end":           "latest",
		"style":         "ticks",
		"subscribe":     1,
		"req_id":        id,
	}
	if _, err := c.await(ctx, "ticks", id, waiter, payload); err != nil {
		c.dropTicks(id)
		return nil, err
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-c.done:
		}
		c.dropTicks(id)
	}()
	return sub.ch, nil
}

func (c *Client) dropTicks(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.ticks[id]; ok {
		delete(c.ticks, id)
		close(sub.ch)
	}
}

// PlaceOrder buys a rise/fall contract for the given stake.
func (c *Client) PlaceOrder(ctx context.Context, p models.OrderParams) (models.OrderReceipt, error) {
	stake, _ := strconv.ParseFloat(strconv.FormatFloat(p.StakeAmount, 'f', 2, 64), 64)
	env, err := c.request(ctx, "buy", map[string]interface{}{
		"buy":   1,
		"price": stake,
		"parameters": map[string]interface{}{
			"amount":        stake,
			"basis":         "stake",
			"contract_type": string(p.Direction),
			"currency":      p.Currency,
			"duration":      p.DurationTicks,
			"duration_unit": "t",
			"symbol":        p.Symbol,
		},
	})
	if err != nil {
		return models.OrderReceipt{}, err
	}
	var r struct {
		Buy struct {
			ContractID   json.Number `json:"contract_id"`
			BuyPrice     float64     `json:"buy_price"`
			Payout       float64     `json:"payout"`
			PurchaseTime int64       `json:"purchase_time"`
		} `json:"buy"`
	}
	if err := json.Unmarshal(env.Raw, &r); err != nil {
		return models.OrderReceipt{}, &models.BrokerError{Op: "buy", Err: err}
	}
	receipt := models.OrderReceipt{
		ContractID: r.Buy.ContractID.String(),
		BuyPrice:   r.Buy.BuyPrice,
		Payout:     r.Buy.Payout,
	}
	if r.Buy.PurchaseTime > 0 {
		receipt.PlacedAt = time.Unix(r.Buy.PurchaseTime, 0)
	}
	return receipt, nil
}

// PollContract fetches the current state of one contract.
func (c *Client) PollContract(ctx context.Context, contractID string) (models.ContractStatus, error) {
	var id interface{} = contractID
	if n, err := strconv.ParseInt(contractID, 10, 64); err == nil {
		id = n
	}
	env, err := c.request(ctx, "poll", map[string]interface{}{
		"proposal_open_contract": 1,
		"contract_id":            id,
	})
	if err != nil {
		return models.ContractStatus{}, err
	}
	status, err := parseOpenContract(env.Raw)
	if err != nil {
		return models.ContractStatus{}, &models.BrokerError{Op: "poll", Err: err}
	}
	if status.ContractID == "" {
		status.ContractID = contractID
	}
	return status, nil
}

type openContract struct {
	ContractID json.Number `json:"contract_id"`
	Status     string      `json:"status"`
	IsSold     int         `json:"is_sold"`
	Profit     float64     `json:"profit"`
	BuyPrice   float64     `json:"buy_price"`
	SellTime   int64       `json:"sell_time"`
}

func parseOpenContract(raw json.RawMessage) (models.ContractStatus, error) {
	var r struct {
		POC *openContract `json:"proposal_open_contract"`
	}
	if err := json.Unmarshal(raw, &r); err != nil {
		return models.ContractStatus{}, err
	}
	if r.POC == nil {
		return models.ContractStatus{}, errors.New("empty proposal_open_contract")
	}
	st := models.ContractStatus{
		ContractID: r.POC.ContractID.String(),
		Profit:     r.POC.Profit,
		Stake:      r.POC.BuyPrice,
		Status:     models.ContractOpen,
	}
	switch r.POC.Status {
	case "won":
		st.Status = models.ContractWon
	case "lost":
		st.Status = models.ContractLost
	case "sold":
		st.Status = models.ContractLost
		if r.POC.Profit > 0 {
			st.Status = models.ContractWon
		}
	default:
		if r.POC.IsSold == 1 {
			st.Status = models.ContractLost
			if r.POC.Profit > 0 {
				st.Status = models.ContractWon
			}
		}
	}
	if r.POC.SellTime > 0 {
		st.SettledAt = time.Unix(r.POC.SellTime, 0)
	}
	return st, nil
}

func (c *Client) request(ctx context.Context, op string, payload map[string]interface{}) (envelope, error) {
	id := c.nextID.Add(1)
	waiter := make(chan envelope, 1)
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return envelope{}, models.ErrNotConnected
	}
	c.waiters[id] = waiter
	c.mu.Unlock()

	payload["req_id"] = id
	return c.await(ctx, op, id, waiter, payload)
}

func (c *Client) await(ctx context.Context, op string, id int64, waiter chan envelope, payload map[string]interface{}) (envelope, error) {
	defer func() {
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
	}()
	if err := c.send(ctx, payload); err != nil {
		return envelope{}, &models.BrokerError{Op: op, Err: err}
	}

	timer := time.NewTimer(c.Config.RequestTimeoutDuration())
	defer timer.Stop()
	select {
	case env := <-waiter:
		if env.Error != nil {
			return env, brokerError(op, env.Error)
		}
		return env, nil
	case <-timer.C:
		return envelope{}, &models.BrokerError{Op: op, Message: "request timed out"}
	case <-ctx.Done():
		return envelope{}, ctx.Err()
	case <-c.done:
		return envelope{}, models.ErrNotConnected
	}
}

func brokerError(op string, e *apiError) error {
	be := &models.BrokerError{Op: op, Code: e.Code, Message: e.Message}
	if authErrorCodes[e.Code] {
		be.Err = models.ErrAuthRequired
	}
	return be
}

func (c *Client) send(ctx context.Context, payload interface{}) error {
	c.mu.Lock()
	conn, ok := c.conn, c.connected
	c.mu.Unlock()
	if !ok || conn == nil {
		return models.ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn.SetWriteDeadline(deadline)
	return conn.WriteJSON(payload)
}

func (c *Client) readLoop() {
	defer c.disconnect()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.Logger.Error("Broker read error: %v", err)
			}
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.Logger.Warning("Undecodable broker message: %v", err)
			continue
		}
		env.Raw = data
		c.dispatch(env)
	}
}

func (c *Client) dispatch(env envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if waiter, ok := c.waiters[env.ReqID]; ok {
		delete(c.waiters, env.ReqID)
		waiter <- env
		if env.Error != nil {
			return
		}
	}

	switch env.MsgType {
	case "history":
		sub, ok := c.ticks[env.ReqID]
		if !ok {
			return
		}
		var r struct {
			History struct {
				Prices []float64 `json:"prices"`
			} `json:"history"`
		}
		if err := json.Unmarshal(env.Raw, &r); err != nil {
			c.Logger.Warning("Bad history payload: %v", err)
			return
		}
		c.deliverTick(sub, models.TickEvent{Kind: models.TickHistory, Symbol: sub.symbol, Prices: r.History.Prices, Time: time.Now()})
	case "tick":
		sub, ok := c.ticks[env.ReqID]
		if !ok {
			return
		}
		var r struct {
			Tick struct {
				Quote  float64 `json:"quote"`
				Symbol string  `json:"symbol"`
				Epoch  int64   `json:"epoch"`
			} `json:"tick"`
		}
		if err := json.Unmarshal(env.Raw, &r); err != nil {
			c.Logger.Warning("Bad tick payload: %v", err)
			return
		}
		ts := time.Now()
		if r.Tick.Epoch > 0 {
			ts = time.Unix(r.Tick.Epoch, 0)
		}
		c.deliverTick(sub, models.TickEvent{Kind: models.TickPrice, Symbol: sub.symbol, Price: r.Tick.Quote, Time: ts})
	case "proposal_open_contract":
		if env.ReqID != c.contractSub || env.Error != nil {
			return
		}
		st, err := parseOpenContract(env.Raw)
		if err != nil || !st.Settled() {
			return
		}
		select {
		case c.settlements <- st:
		default:
			c.Logger.Warning("Settlement buffer full, dropping push for %s", st.ContractID)
		}
	}
}

// deliverTick must be called with mu held.
func (c *Client) deliverTick(sub *tickSub, ev models.TickEvent) {
	select {
	case sub.ch <- ev:
	default:
		c.Logger.Warning("Tick buffer full for %s, dropping tick", sub.symbol)
	}
}

func (c *Client) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	for id, sub := range c.ticks {
		delete(c.ticks, id)
		close(sub.ch)
	}
}

func (c *Client) pingLoop() {
	period := time.Duration(c.Config.PingPeriod) * time.Second
	if period <= 0 {
		return
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				c.Logger.Debug("Ping failed: %v", err)
				return
			}
		}
	}
}

// String describes the client for logs.
func (c *Client) String() string {
	return fmt.Sprintf("broker(%s)", c.Config.BrokerURL)
}
