package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/listenparty/internal/app"
	"github.com/dkeye/listenparty/internal/core"
	"github.com/dkeye/listenparty/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const (
	defaultReadLimit  = 32 << 10
	defaultPingPeriod = 54 * time.Second
	writeWait         = 5 * time.Second
	sendBuffer        = 64
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	// RPCLimit is how many rpc requests one participant may issue per
	// RPCInterval.
	RPCLimit    int
	RPCInterval time.Duration
}

// SignalWSController relays room traffic between websocket members.
type SignalWSController struct {
	Orch    *app.Orchestrator
	Limiter *RoomRateLimiter

	readLimit  int64
	pingPeriod time.Duration

	rpcMu sync.Mutex
	rpcs  map[rpcKey]pendingRPC
}

func NewSignalWSController(orch *app.Orchestrator, opts Options) *SignalWSController {
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = defaultPingPeriod
	}
	if opts.RPCLimit <= 0 {
		opts.RPCLimit = 20
	}
	if opts.RPCInterval <= 0 {
		opts.RPCInterval = time.Second
	}
	return &SignalWSController{
		Orch:       orch,
		Limiter:    NewRoomRateLimiter(opts.RPCLimit, opts.RPCInterval),
		readLimit:  opts.ReadLimit,
		pingPeriod: opts.PingPeriod,
		rpcs:       make(map[rpcKey]pendingRPC),
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades an already authorized request and joins the grant's
// holder to its room.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context, g *domain.Grant) {
	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("identity", string(g.Identity)).Str("room", string(g.Room)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.readLimit)

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, sendBuffer),
	}
	meta := domain.Participant{Identity: g.Identity, Capabilities: g.Capabilities}
	sess := core.NewMemberSession(sid, meta, conn)

	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Join(g.Room, sess, cancel, ctl.greeter(sess, g.Room))

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sess, conn)
}
