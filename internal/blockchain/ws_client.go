package blockchain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/pkg/logger"
)

const (
	// LogChannelBuffer absorbs notification bursts while the consumer is busy fetching transactions
	LogChannelBuffer = 1024
)

type WSConfig struct {
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	SubscribeTimeout time.Duration
}

func DefaultWSConfig() WSConfig {
	return WSConfig{
		PingInterval:     30 * time.Second,
		ReadTimeout:      90 * time.Second,
		WriteTimeout:     10 * time.Second,
		SubscribeTimeout: 30 * time.Second,
	}
}

// WSClient multiplexes logsSubscribe streams over one websocket connection.
// The connection is dialed on the first subscription. A read failure ends every
// stream on it; the next SubscribeLogs dials again.
type WSClient struct {
	endpoint string
	config   WSConfig
	logger   *logger.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	closed    atomic.Bool
	requestID atomic.Uint64

	mu      sync.Mutex
	subs    map[int64]*logSubscription
	pending map[uint64]*pendingSubscribe

	done chan struct{}
	wg   sync.WaitGroup
}

type logSubscription struct {
	mention string
	id      int64

	mu       sync.RWMutex
	ch       chan models.LogNotification
	quit     chan struct{}
	closed   bool
	quitOnce sync.Once
}

type pendingSubscribe struct {
	sub *logSubscription
	ack chan error
}

func NewWSClient(endpoint string, config *WSConfig, logger *logger.Logger) *WSClient {
	cfg := DefaultWSConfig()
	if config != nil {
		cfg = *config
	}
	return &WSClient{
		endpoint: endpoint,
		config:   cfg,
		logger:   logger,
		subs:     make(map[int64]*logSubscription),
		pending:  make(map[uint64]*pendingSubscribe),
		done:     make(chan struct{}),
	}
}

// ensureConnected dials the endpoint when no connection is up and starts the read and ping loops.
func (c *WSClient) ensureConnected(ctx context.Context) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		return nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.conn = conn

	c.wg.Add(2)
	go c.readLoop(conn)
	go c.pingLoop(conn)
	return nil
}

func (c *WSClient) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial websocket: %w", err)
	}
	return conn, nil
}

// SubscribeLogs opens a logsSubscribe stream at confirmed commitment for transactions
// mentioning the account. When ctx is cancelled the subscription is removed on the node
// and the returned channel is closed.
func (c *WSClient) SubscribeLogs(ctx context.Context, mention string) (<-chan models.LogNotification, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("websocket client closed")
	}

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	sub := &logSubscription{
		mention: mention,
		ch:      make(chan models.LogNotification, LogChannelBuffer),
		quit:    make(chan struct{}),
	}
	if err := c.subscribe(ctx, sub); err != nil {
		c.forget(sub)
		sub.close()
		return nil, err
	}
	id := c.subscriptionID(sub)

	c.logger.Info("logs subscription confirmed", "mention", mention, "subscription", id)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		select {
		case <-ctx.Done():
		case <-c.done:
			return
		}
		c.unsubscribe(sub)
	}()

	return sub.ch, nil
}

// subscribe sends logsSubscribe and waits for the node to confirm it. The subscription is
// registered under its new id by the read loop before the confirmation is handed back, so
// notifications that follow the confirmation immediately are not lost.
func (c *WSClient) subscribe(ctx context.Context, sub *logSubscription) error {
	reqID := c.requestID.Add(1)
	p := &pendingSubscribe{sub: sub, ack: make(chan error, 1)}

	c.mu.Lock()
	c.pending[reqID] = p
	c.mu.Unlock()

	clearPending := func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "logsSubscribe",
		Params: []interface{}{
			map[string]interface{}{"mentions": []string{sub.mention}},
			map[string]string{"commitment": "confirmed"},
		},
	}
	if err := c.writeJSON(req); err != nil {
		clearPending()
		return fmt.Errorf("failed to send logsSubscribe: %w", err)
	}

	timer := time.NewTimer(c.config.SubscribeTimeout)
	defer timer.Stop()

	select {
	case err := <-p.ack:
		if err != nil {
			return fmt.Errorf("logsSubscribe rejected: %w", err)
		}
		return nil
	case <-timer.C:
		clearPending()
		return fmt.Errorf("logsSubscribe not confirmed within %s", c.config.SubscribeTimeout)
	case <-c.done:
		return fmt.Errorf("websocket client closed")
	case <-ctx.Done():
		clearPending()
		return ctx.Err()
	}
}

// subscriptionID reads the node-side id assigned on confirmation.
func (c *WSClient) subscriptionID(sub *logSubscription) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sub.id
}

// forget drops the subscription from the dispatch table.
func (c *WSClient) forget(sub *logSubscription) {
	c.mu.Lock()
	if existing, ok := c.subs[sub.id]; ok && existing == sub {
		delete(c.subs, sub.id)
	}
	c.mu.Unlock()
}

func (c *WSClient) unsubscribe(sub *logSubscription) {
	id := c.subscriptionID(sub)
	c.forget(sub)

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  "logsUnsubscribe",
		Params:  []interface{}{id},
	}
	if err := c.writeJSON(req); err != nil {
		c.logger.Warn("failed to send logsUnsubscribe", "subscription", id, "error", err)
	}

	sub.close()
	c.logger.Info("logs subscription removed", "mention", sub.mention, "subscription", id)
}

func (c *WSClient) writeJSON(v interface{}) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("not connected")
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Close tears down the connection and closes every open subscription channel.
func (c *WSClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	close(c.done)

	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.mu.Lock()
	subs := make([]*logSubscription, 0, len(c.subs))
	for id, sub := range c.subs {
		subs = append(subs, sub)
		delete(c.subs, id)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}

	c.wg.Wait()
	return nil
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.dropConnection(conn, err)
			return
		}
		c.handleMessage(message)
	}
}

// dropConnection discards a broken connection, fails pending subscribes and
// closes every subscription channel so consumers see the stream end.
func (c *WSClient) dropConnection(broken *websocket.Conn, cause error) {
	c.connMu.Lock()
	if c.conn == broken {
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	c.mu.Lock()
	subs := make([]*logSubscription, 0, len(c.subs))
	for id, sub := range c.subs {
		subs = append(subs, sub)
		delete(c.subs, id)
	}
	pending := c.pending
	c.pending = make(map[uint64]*pendingSubscribe)
	c.mu.Unlock()

	for _, p := range pending {
		p.ack <- fmt.Errorf("connection lost: %w", cause)
	}
	for _, sub := range subs {
		sub.close()
	}
	c.logger.Warn("websocket connection lost", "error", cause, "subscriptions", len(subs))
}

func (c *WSClient) pingLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.connMu.Lock()
			current := c.conn
			if current == conn {
				_ = conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					c.logger.Debug("websocket ping failed", "error", err)
				}
			}
			c.connMu.Unlock()
			if current != conn {
				return
			}
		}
	}
}

type wsEnvelope struct {
	ID     *uint64         `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Params *wsParams       `json:"params"`
}

type wsParams struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context struct {
			Slot int64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Signature string      `json:"signature"`
			Logs      []string    `json:"logs"`
			Err       interface{} `json:"err"`
		} `json:"value"`
	} `json:"result"`
}

func (c *WSClient) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.logger.Debug("ignoring undecodable websocket message", "error", err)
		return
	}

	if env.Method == "logsNotification" && env.Params != nil {
		c.dispatch(env.Params)
		return
	}

	if env.ID == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[*env.ID]
	if !ok {
		// logsUnsubscribe acknowledgements land here
		return
	}
	delete(c.pending, *env.ID)

	if env.Error != nil {
		p.ack <- env.Error
		return
	}

	var id int64
	if err := json.Unmarshal(env.Result, &id); err != nil {
		p.ack <- fmt.Errorf("unexpected subscription result %s", string(env.Result))
		return
	}

	if existing, ok := c.subs[p.sub.id]; ok && existing == p.sub {
		delete(c.subs, p.sub.id)
	}
	p.sub.id = id
	c.subs[id] = p.sub
	p.ack <- nil
}

func (c *WSClient) dispatch(params *wsParams) {
	c.mu.Lock()
	sub, ok := c.subs[params.Subscription]
	c.mu.Unlock()
	if !ok {
		return
	}

	sub.send(models.LogNotification{
		Signature: params.Result.Value.Signature,
		Slot:      params.Result.Context.Slot,
		Logs:      params.Result.Value.Logs,
		Err:       params.Result.Value.Err,
	}, c.done)
}

// send blocks until the consumer takes the notification or the subscription goes away.
func (s *logSubscription) send(n models.LogNotification, done <-chan struct{}) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- n:
	case <-s.quit:
	case <-done:
	}
}

func (s *logSubscription) close() {
	s.quitOnce.Do(func() {
		close(s.quit)
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}
