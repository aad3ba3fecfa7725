package relay

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/edukit/classsync/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

// Conn is one client's websocket with a bounded outbound queue. Writes
// go through TrySend; the write pump drains the queue.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, send: make(chan []byte, 32)}
}

func (c *Conn) TrySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *Conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	if c.ws != nil {
		_ = c.ws.Close()
	}
	c.mu.Unlock()
}

type sessionEntry struct {
	Channel string
	Conn    *Conn
	Cancel  context.CancelFunc
}

// Registry tracks logged-in participants and their channel membership.
// One session per uid; a newer login for the same uid evicts the older.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.UID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.UID]*sessionEntry)}
}

func (r *Registry) Bind(uid domain.UID, conn *Conn, cancel context.CancelFunc) (evicted *sessionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old := r.sessions[uid]
	r.sessions[uid] = &sessionEntry{Conn: conn, Cancel: cancel}
	log.Info().Str("module", "relay.registry").Str("uid", uid.Key()).Msg("bound session")
	return old
}

func (r *Registry) Unbind(uid domain.UID, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.sessions[uid]; ok && e.Conn == conn {
		delete(r.sessions, uid)
		log.Info().Str("module", "relay.registry").Str("uid", uid.Key()).Msg("unbound session")
	}
}

func (r *Registry) Get(uid domain.UID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[uid]; ok {
		return e.Conn, true
	}
	return nil, false
}

func (r *Registry) SetChannel(uid domain.UID, channel string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[uid]
	if !ok {
		return false
	}
	e.Channel = channel
	log.Info().Str("module", "relay.registry").Str("uid", uid.Key()).Str("channel", channel).Msg("joined channel")
	return true
}

func (r *Registry) ChannelOf(uid domain.UID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[uid]
	if !ok || e.Channel == "" {
		return "", false
	}
	return e.Channel, true
}

type memberSnap struct {
	UID  domain.UID
	Conn *Conn
}

func (r *Registry) Members(channel string) []memberSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]memberSnap, 0, len(r.sessions))
	for uid, e := range r.sessions {
		if e.Channel == channel {
			out = append(out, memberSnap{UID: uid, Conn: e.Conn})
		}
	}
	return out
}

func (r *Registry) MemberCount(channel string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.sessions {
		if e.Channel == channel {
			n++
		}
	}
	return n
}
