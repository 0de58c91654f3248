package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// envelope frames every message on the wire. Command replies carry the
// req_id of the command; pushed events have none.
type envelope struct {
	Type  string          `json:"type"`
	ReqID string          `json:"req_id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WSChannel is the websocket transport. It owns a reconnect loop with
// linear capped backoff; in-flight commands fail on disconnect and pending
// events resume after EventReconnected.
type WSChannel struct {
	url  string
	log  *zap.Logger
	step time.Duration
	max  time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan json.RawMessage
	reqSeq  int

	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewWSChannel builds a channel for the given ws:// URL.
func NewWSChannel(url string, step, max time.Duration, log *zap.Logger) *WSChannel {
	return &WSChannel{
		url:     url,
		log:     log,
		step:    step,
		max:     max,
		pending: make(map[string]chan json.RawMessage),
		events:  make(chan Event, 100),
		done:    make(chan struct{}),
	}
}

// Connect dials the authority and starts the read/reconnect loop. It returns
// once the first connection is up; later drops are handled silently.
func (c *WSChannel) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}
	c.setConn(conn)
	c.log.Info("connected to authority", zap.String("url", c.url))

	go c.run(ctx)
	return nil
}

// Close shuts the channel down for good.
func (c *WSChannel) Close() error {
	c.once.Do(func() { close(c.done) })
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Events streams pushed authority messages plus local reconnect markers.
func (c *WSChannel) Events() <-chan Event {
	return c.events
}

// PlaceBet sends a place_bet command and waits for its reply.
func (c *WSChannel) PlaceBet(ctx context.Context, req PlaceBetRequest) (PlaceBetResult, error) {
	var res PlaceBetResult
	err := c.call(ctx, "place_bet", req, &res)
	return res, err
}

// RequestSpin asks for the round outcome.
func (c *WSChannel) RequestSpin(ctx context.Context) (SpinResult, error) {
	var res SpinResult
	err := c.call(ctx, "request_spin", nil, &res)
	return res, err
}

// Cashout cashes a crash stake out at the current multiplier.
func (c *WSChannel) Cashout(ctx context.Context, betID string) (CashoutResult, error) {
	var res CashoutResult
	err := c.call(ctx, "cashout", map[string]string{"bet_id": betID}, &res)
	return res, err
}

// QueryBalance fetches the authoritative balance.
func (c *WSChannel) QueryBalance(ctx context.Context) (BalanceResult, error) {
	var res BalanceResult
	err := c.call(ctx, "query_balance", nil, &res)
	return res, err
}

func (c *WSChannel) call(ctx context.Context, cmd string, payload any, out any) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return errors.New("not connected")
	}
	c.reqSeq++
	reqID := fmt.Sprintf("q%d", c.reqSeq)
	reply := make(chan json.RawMessage, 1)
	c.pending[reqID] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, reqID)
		c.mu.Unlock()
	}()

	env := envelope{Type: cmd, ReqID: reqID}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		env.Data = data
	}
	if err := c.write(conn, env); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}

	select {
	case raw, ok := <-reply:
		if !ok {
			return errors.New("connection lost")
		}
		return json.Unmarshal(raw, out)
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return errors.New("channel closed")
	}
}

func (c *WSChannel) write(conn *websocket.Conn, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// run reads messages until the connection drops, then redials with backoff
// and resumes. Every successful redial emits EventReconnected so the core
// re-requests authoritative state.
func (c *WSChannel) run(ctx context.Context) {
	for {
		err := c.readLoop()
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		default:
		}
		c.log.Warn("connection lost", zap.Error(err))
		c.failPending()

		attempt := 0
		for {
			attempt++
			delay := Backoff(attempt, c.step, c.max)
			select {
			case <-time.After(delay):
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
			if err != nil {
				c.log.Warn("reconnect failed",
					zap.Int("attempt", attempt),
					zap.Duration("next_in", Backoff(attempt+1, c.step, c.max)),
					zap.Error(err))
				continue
			}
			c.setConn(conn)
			c.log.Info("reconnected", zap.Int("attempt", attempt))
			c.emit(Event{Type: EventReconnected})
			break
		}
	}
}

func (c *WSChannel) readLoop() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errors.New("no connection")
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			c.log.Warn("invalid message", zap.Error(err))
			continue
		}

		if env.ReqID != "" {
			c.mu.Lock()
			reply, ok := c.pending[env.ReqID]
			c.mu.Unlock()
			if ok {
				reply <- env.Data
			}
			continue
		}

		var ev Event
		if err := json.Unmarshal(message, &ev); err != nil {
			c.log.Warn("invalid event", zap.Error(err))
			continue
		}
		c.emit(ev)
	}
}

func (c *WSChannel) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// failPending unblocks callers whose replies died with the connection.
func (c *WSChannel) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, reply := range c.pending {
		close(reply)
		delete(c.pending, id)
	}
}

func (c *WSChannel) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.log.Warn("event buffer full, dropping", zap.String("type", string(ev.Type)))
	}
}
