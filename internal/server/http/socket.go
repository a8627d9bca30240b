package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/emmett/hark/internal/server"
	"github.com/emmett/hark/internal/supervisor"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// CategoryCommand marks errors answering a rejected inbound command
const CategoryCommand = "command"

// socket is one page connection. Writes are serialized by mu.
type socket struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
	log    zerolog.Logger
}

func (c *socket) send(ev supervisor.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return c.write(websocket.TextMessage, data)
}

func (c *socket) write(kind int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(kind, data)
}

func (c *socket) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	_ = c.conn.Close()
}

// handleSocket streams supervisor events to the page and accepts the inbound
// command protocol: "start", "stop" and {"type":"setTriggerWords","words":[...]}
func (s *Server) handleSocket(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	id, events, cancel := s.events.Subscribe(s.config.EventBuffer)
	c := &socket{conn: conn, log: s.log.With().Str("client", id).Logger()}
	c.log.Info().Str("remote", r.RemoteAddr).Msg("client connected")

	ctx, stop := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pump(ctx, c, events)
	}()

	s.readCommands(ctx, c)

	stop()
	cancel()
	wg.Wait()
	c.close()
	c.log.Info().Msg("client disconnected")
}

// pump writes events and keepalive pings until ctx ends or a write fails
func (s *Server) pump(ctx context.Context, c *socket, events <-chan supervisor.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := c.send(ev); err != nil {
				c.log.Debug().Err(err).Msg("write event")
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (s *Server) readCommands(ctx context.Context, c *socket) {
	c.conn.SetReadLimit(64 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("read")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))

		cmd, err := server.ParseCommand(data)
		if err == nil {
			err = cmd.Apply(ctx, s.ctrl)
		}
		if err != nil {
			c.log.Warn().Err(err).Msg("command rejected")
			_ = c.send(supervisor.Event{
				Type:     supervisor.EventError,
				Error:    err.Error(),
				Category: CategoryCommand,
				Time:     time.Now(),
			})
		}
	}
}
