package websocket

import (
	"context"
	"io"
	"sync"
	"time"

	gws "github.com/gorilla/websocket"

	"github.com/cory-johannsen/proxsync/internal/config"
)

// transport adapts one gorilla connection to gameserver.Transport.
//
// Reads happen on the session reader goroutine only. Data writes are
// serialized by writeMu; pings and the close frame go through WriteControl,
// which gorilla allows concurrently with everything else.
type transport struct {
	conn         *gws.Conn
	writeTimeout time.Duration
	idleTimeout  time.Duration
	pingInterval time.Duration

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func newTransport(conn *gws.Conn, cfg config.WebSocketConfig) *transport {
	t := &transport{
		conn:         conn,
		writeTimeout: cfg.WriteTimeout,
		idleTimeout:  cfg.IdleTimeout,
		pingInterval: cfg.PingInterval,
		done:         make(chan struct{}),
	}
	if cfg.ReadLimit > 0 {
		conn.SetReadLimit(cfg.ReadLimit)
	}
	t.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		t.extendReadDeadline()
		return nil
	})
	return t
}

func (t *transport) extendReadDeadline() {
	if t.idleTimeout > 0 {
		_ = t.conn.SetReadDeadline(time.Now().Add(t.idleTimeout))
	}
}

// ReadFrame returns the next text message. Binary messages are skipped. A
// close frame from the peer reads as io.EOF.
func (t *transport) ReadFrame(_ context.Context) ([]byte, error) {
	for {
		kind, data, err := t.conn.ReadMessage()
		if err != nil {
			if gws.IsCloseError(err, gws.CloseNormalClosure, gws.CloseGoingAway, gws.CloseNoStatusReceived) {
				return nil, io.EOF
			}
			return nil, err
		}
		t.extendReadDeadline()
		if kind != gws.TextMessage {
			continue
		}
		return data, nil
	}
}

// WriteFrame sends frame as one text message under the write deadline.
func (t *transport) WriteFrame(frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	return t.conn.WriteMessage(gws.TextMessage, frame)
}

// Close sends a normal close frame, best effort, and closes the socket.
func (t *transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		msg := gws.FormatCloseMessage(gws.CloseNormalClosure, "")
		_ = t.conn.WriteControl(gws.CloseMessage, msg, time.Now().Add(time.Second))
		err = t.conn.Close()
	})
	return err
}

// pingLoop keeps the peer's pongs, and so the read deadline, flowing until
// the transport closes or a ping cannot be written.
func (t *transport) pingLoop() {
	if t.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(t.pingInterval)
			if t.writeTimeout > 0 {
				deadline = time.Now().Add(t.writeTimeout)
			}
			if err := t.conn.WriteControl(gws.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
