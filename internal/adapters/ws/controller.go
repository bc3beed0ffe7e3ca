// Package ws is the websocket adapter: it owns connection lifecycle and
// the read/write pumps, parses client commands at the boundary, and
// forwards them to the coordinator.
package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkmln/parley/internal/app"
	"github.com/dkmln/parley/internal/config"
	"github.com/dkmln/parley/internal/core"
	"github.com/dkmln/parley/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Coord    *app.Coordinator
	Dispatch *app.Dispatcher
	Limiter  *MessageRateLimiter
	cfg      *config.Config
}

func NewController(coord *app.Coordinator, dispatch *app.Dispatcher, cfg *config.Config) *Controller {
	return &Controller{
		Coord:    coord,
		Dispatch: dispatch,
		Limiter:  NewMessageRateLimiter(cfg.SendLimit, cfg.SendInterval),
		cfg:      cfg,
	}
}

// wsConn adapts a gorilla connection to core.EventConn. Sends go
// through a buffered channel; a full buffer drops the frame with
// ErrBackpressure instead of blocking the fan-out.
type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.EventConn = (*wsConn)(nil)

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
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

// HandleWS upgrades an authenticated request and runs the connection.
// The handshake middleware has already verified the user id.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	uid := domain.UserID(c.GetString("user_id"))
	if uid == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade")
		return
	}

	connID := core.ConnID(uuid.NewString())
	conn := &wsConn{
		conn: ws,
		send: make(chan core.Frame, ctl.cfg.SendBuffer),
	}
	log.Info().Str("module", "ws").Str("user", string(uid)).Str("conn", string(connID)).Msg("new connection")

	ctx, cancel := context.WithCancel(ctx)

	notifications, err := ctl.Coord.Connect(ctx, uid, connID, conn)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Str("user", string(uid)).Msg("connect")
		ctl.Coord.Disconnect(uid, connID)
		conn.Close()
		cancel()
		return
	}
	ctl.Dispatch.Apply(notifications)

	go ctl.writePump(ctx, conn)
	go func() {
		defer cancel()
		ctl.readPump(ctx, uid, connID, conn)
		// Cleanup must never fail back into the transport.
		ctl.Dispatch.Apply(ctl.Coord.Disconnect(uid, connID))
		conn.Close()
	}()
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, uid domain.UserID, connID core.ConnID, c *wsConn) {
	defer log.Info().Str("module", "ws").Str("conn", string(connID)).Msg("readPump closing")

	c.conn.SetReadLimit(ctl.cfg.ReadLimit)
	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "ws").Str("conn", string(connID)).Msg("readPump read error")
				}
				return
			}
			ctl.handleCommand(ctx, uid, connID, c, data)
		}
	}
}
