package relay

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/edukit/classsync/internal/domain"
	"github.com/edukit/classsync/internal/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WSController terminates client websockets and routes frames: peer
// frames to one uid, channel frames to every other member of the
// sender's channel.
type WSController struct {
	Registry *Registry
}

func NewWSController(reg *Registry) *WSController {
	return &WSController{Registry: reg}
}

// connState is per-connection and only touched from its read pump.
type connState struct {
	uid     domain.UID
	channel string
}

func (ctl *WSController) HandleWS(ctx context.Context, c *gin.Context) {
	sid := c.GetString("client_token")
	log.Info().Str("module", "relay").Str("sid", sid).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	conn := NewConn(ws)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn, cancel)
}

func (ctl *WSController) writePump(ctx context.Context, c *Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "relay").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *WSController) readPump(ctx context.Context, c *Conn, cancel context.CancelFunc) {
	st := &connState{}
	defer func() {
		ctl.drop(st, c)
		cancel()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				log.Warn().Err(err).Str("module", "relay").Str("uid", st.uid.Key()).Msg("readPump read error")
				return
			}
			ctl.handleFrame(st, c, cancel, data)
		}
	}
}

func (ctl *WSController) handleFrame(st *connState, c *Conn, cancel context.CancelFunc, data []byte) {
	f, err := transport.Parse(data)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("bad json")
		return
	}

	switch f.Type {
	case transport.TypeLogin:
		ctl.handleLogin(st, c, cancel, f)
	case transport.TypeJoin:
		ctl.handleJoin(st, c, f)
	case transport.TypeLeave:
		ctl.handleLeave(st, c)
	case transport.TypeLogout:
		ctl.handleLogout(st, c)
	case transport.TypePeer:
		ctl.handlePeer(st, c, f)
	case transport.TypeChannel:
		ctl.handleChannel(st, c, f)
	default:
		log.Warn().Str("module", "relay").Str("type", f.Type).Msg("unknown frame")
	}
}

func (ctl *WSController) handleLogin(st *connState, c *Conn, cancel context.CancelFunc, f transport.Frame) {
	if f.UID == 0 || f.Token == "" {
		ctl.sendErr(c, transport.TypeLogin, "uid and token required")
		return
	}
	if st.uid != 0 {
		ctl.sendErr(c, transport.TypeLogin, "already logged in")
		return
	}
	old := ctl.Registry.Bind(f.UID, c, cancel)
	if old != nil && old.Conn != c {
		// Same uid logged in elsewhere: notify and evict the old session.
		ctl.send(old.Conn, transport.Frame{Type: transport.TypeState, State: "ABORTED", Reason: "REMOTE_LOGIN"})
		if old.Cancel != nil {
			old.Cancel()
		}
		old.Conn.Close()
		log.Info().Str("module", "relay").Str("uid", f.UID.Key()).Msg("evicted older session")
	}
	st.uid = f.UID
	ctl.sendAck(c, transport.TypeLogin)
}

func (ctl *WSController) handleJoin(st *connState, c *Conn, f transport.Frame) {
	if st.uid == 0 {
		ctl.sendErr(c, transport.TypeJoin, "not logged in")
		return
	}
	if f.Channel == "" {
		ctl.sendErr(c, transport.TypeJoin, "channel required")
		return
	}
	ctl.Registry.SetChannel(st.uid, f.Channel)
	st.channel = f.Channel
	ctl.sendAck(c, transport.TypeJoin)
	ctl.announceMemberCount(f.Channel)
}

func (ctl *WSController) handleLeave(st *connState, c *Conn) {
	if st.uid == 0 {
		ctl.sendErr(c, transport.TypeLeave, "not logged in")
		return
	}
	channel := st.channel
	ctl.Registry.SetChannel(st.uid, "")
	st.channel = ""
	ctl.sendAck(c, transport.TypeLeave)
	if channel != "" {
		ctl.announceMemberCount(channel)
	}
}

func (ctl *WSController) handleLogout(st *connState, c *Conn) {
	if st.uid == 0 {
		ctl.sendErr(c, transport.TypeLogout, "not logged in")
		return
	}
	channel := st.channel
	ctl.Registry.Unbind(st.uid, c)
	st.uid = 0
	st.channel = ""
	ctl.sendAck(c, transport.TypeLogout)
	if channel != "" {
		ctl.announceMemberCount(channel)
	}
}

func (ctl *WSController) handlePeer(st *connState, c *Conn, f transport.Frame) {
	if st.uid == 0 || f.To == 0 {
		return
	}
	target, ok := ctl.Registry.Get(f.To)
	if !ok {
		log.Warn().Str("module", "relay").Str("to", f.To.Key()).Msg("peer target offline")
		return
	}
	ctl.send(target, transport.Frame{Type: transport.TypePeer, From: st.uid, Payload: f.Payload})
}

func (ctl *WSController) handleChannel(st *connState, c *Conn, f transport.Frame) {
	if st.uid == 0 || st.channel == "" {
		return
	}
	out := transport.Frame{Type: transport.TypeChannel, From: st.uid, Member: st.uid.Key(), Payload: f.Payload}
	for _, m := range ctl.Registry.Members(st.channel) {
		if m.UID == st.uid {
			continue
		}
		ctl.send(m.Conn, out)
	}
}

// drop runs on read-pump exit: detach the session and tell the channel.
func (ctl *WSController) drop(st *connState, c *Conn) {
	if st.uid == 0 {
		return
	}
	channel := st.channel
	ctl.Registry.Unbind(st.uid, c)
	log.Info().Str("module", "relay").Str("uid", st.uid.Key()).Msg("connection dropped")
	if channel != "" {
		ctl.announceMemberCount(channel)
	}
}

func (ctl *WSController) announceMemberCount(channel string) {
	count := ctl.Registry.MemberCount(channel)
	f := transport.Frame{Type: transport.TypeMemberCount, Channel: channel, Count: count}
	for _, m := range ctl.Registry.Members(channel) {
		ctl.send(m.Conn, f)
	}
}

func (ctl *WSController) sendAck(c *Conn, of string) {
	ctl.send(c, transport.Frame{Type: transport.TypeAck, Of: of})
}

func (ctl *WSController) sendErr(c *Conn, of, reason string) {
	ctl.send(c, transport.Frame{Type: transport.TypeError, Of: of, Error: reason})
}

func (ctl *WSController) send(c *Conn, f transport.Frame) {
	data, err := transport.Marshal(f)
	if err != nil {
		log.Error().Err(err).Str("module", "relay").Msg("marshal frame")
		return
	}
	_ = c.TrySend(data)
}
