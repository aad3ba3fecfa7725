// Package signal is the websocket client for the relay's signaling
// surface: login, channel join, point-to-point and channel-broadcast
// delivery, plus inbound event callbacks.
package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/edukit/classsync/internal/domain"
	"github.com/edukit/classsync/internal/transport"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

const (
	sendBuffer   = 32
	writeTimeout = 5 * time.Second
	ackTimeout   = 10 * time.Second
)

// Client implements the engine's SignalTransport over one websocket
// connection to the relay. Requests (login/join/leave/logout) are
// serialized; sends are fire-and-forget through a bounded queue.
type Client struct {
	url string

	mu     sync.RWMutex
	conn   *websocket.Conn
	send   chan []byte
	closed bool
	cancel context.CancelFunc

	reqMu sync.Mutex
	ack   chan transport.Frame

	// Event callbacks, set before Login. Invoked from the read pump.
	OnPeerMessage            func(payload []byte, from domain.UID)
	OnChannelMessage         func(payload []byte, member string)
	OnConnectionStateChanged func(state, reason string)
	OnMemberCountChanged     func(count int)
}

func NewClient(url string) *Client {
	return &Client{url: url}
}

// Login dials the relay and authenticates the uid. Must complete before
// Join.
func (c *Client) Login(ctx context.Context, uid domain.UID, token string) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	_, err := c.request(ctx, transport.Frame{Type: transport.TypeLogin, UID: uid, Token: token})
	return err
}

// Join enters the named channel.
func (c *Client) Join(ctx context.Context, channel string) error {
	_, err := c.request(ctx, transport.Frame{Type: transport.TypeJoin, Channel: channel})
	return err
}

// Logout deauthenticates but keeps the socket for a later login.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.request(ctx, transport.Frame{Type: transport.TypeLogout})
	return err
}

// Exit leaves the channel and tears the connection down.
func (c *Client) Exit(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil
	}
	if _, err := c.request(ctx, transport.Frame{Type: transport.TypeLeave}); err != nil {
		c.close()
		return err
	}
	c.close()
	return nil
}

// SendPeerMessage delivers payload to exactly one participant.
func (c *Client) SendPeerMessage(ctx context.Context, uid domain.UID, payload []byte) error {
	return c.push(transport.Frame{Type: transport.TypePeer, To: uid, Payload: payload})
}

// NotifyMessage broadcasts payload to every member of the joined channel.
func (c *Client) NotifyMessage(ctx context.Context, payload []byte) error {
	return c.push(transport.Frame{Type: transport.TypeChannel, Payload: payload})
}

func (c *Client) dial(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && !c.closed {
		return nil
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	c.conn = conn
	c.closed = false
	c.send = make(chan []byte, sendBuffer)
	c.ack = make(chan transport.Frame, 1)

	pumpCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.writePump(pumpCtx, conn, c.send)
	go c.readPump(pumpCtx, conn)
	return nil
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// request sends one frame and waits for its ack or error. One request is
// in flight at a time.
func (c *Client) request(ctx context.Context, f transport.Frame) (transport.Frame, error) {
	c.reqMu.Lock()
	defer c.reqMu.Unlock()

	if err := c.push(f); err != nil {
		return transport.Frame{}, err
	}
	timer := time.NewTimer(ackTimeout)
	defer timer.Stop()
	for {
		select {
		case resp := <-c.ack:
			// A timed-out request may leave its late ack in the buffer.
			if resp.Of != f.Type {
				log.Warn().Str("module", "signal").Str("of", resp.Of).Str("want", f.Type).Msg("stale ack discarded")
				continue
			}
			if resp.Type == transport.TypeError {
				return resp, fmt.Errorf("relay rejected %s: %s", f.Type, resp.Error)
			}
			return resp, nil
		case <-timer.C:
			return transport.Frame{}, fmt.Errorf("relay %s: ack timeout", f.Type)
		case <-ctx.Done():
			return transport.Frame{}, ctx.Err()
		}
	}
}

func (c *Client) push(f transport.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.conn == nil || c.closed {
		return ErrClosed
	}
	data, err := transport.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-send:
			if !ok {
				return
			}
			if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		c.close()
		if c.OnConnectionStateChanged != nil {
			c.OnConnectionStateChanged("DISCONNECTED", "READ_CLOSED")
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Warn().Err(err).Str("module", "signal").Msg("readPump read error")
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	f, err := transport.Parse(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad frame")
		return
	}
	switch f.Type {
	case transport.TypeAck, transport.TypeError:
		select {
		case c.ack <- f:
		default:
			log.Warn().Str("module", "signal").Str("of", f.Of).Msg("unexpected ack dropped")
		}
	case transport.TypePeer:
		if c.OnPeerMessage != nil {
			c.OnPeerMessage(f.Payload, f.From)
		}
	case transport.TypeChannel:
		if c.OnChannelMessage != nil {
			c.OnChannelMessage(f.Payload, f.Member)
		}
	case transport.TypeMemberCount:
		if c.OnMemberCountChanged != nil {
			c.OnMemberCountChanged(f.Count)
		}
	case transport.TypeState:
		if c.OnConnectionStateChanged != nil {
			c.OnConnectionStateChanged(f.State, f.Reason)
		}
	default:
		log.Warn().Str("module", "signal").Str("type", f.Type).Msg("unknown frame")
	}
}
