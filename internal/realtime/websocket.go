package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// WSDialer dials the backend event channel over WebSocket.
type WSDialer struct {
	URL              string // ws:// or wss://
	Header           http.Header
	HandshakeTimeout time.Duration
	Logger           zerolog.Logger
}

// Dial opens a WebSocket connection and starts its read and write pumps.
func (d *WSDialer) Dial(ctx context.Context) (Channel, error) {
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: timeout,
	}
	conn, resp, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial %s: %w (status %d)", d.URL, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("realtime: dial %s: %w", d.URL, err)
	}
	return newWSChannel(conn, d.Logger), nil
}

type wsChannel struct {
	conn   *websocket.Conn
	log    zerolog.Logger
	send   chan []byte
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup

	once sync.Once
	mu   sync.Mutex
	err  error
}

func newWSChannel(conn *websocket.Conn, log zerolog.Logger) *wsChannel {
	c := &wsChannel{
		conn:   conn,
		log:    log,
		send:   make(chan []byte, sendBuffer),
		events: make(chan Event, sendBuffer),
		done:   make(chan struct{}),
	}
	c.wg.Add(2)
	go c.readPump()
	go c.writePump()
	return c
}

func (c *wsChannel) Events() <-chan Event { return c.events }

func (c *wsChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *wsChannel) Send(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("realtime: encode envelope: %w", err)
	}
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrChannelClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops both pumps and waits for them to exit.
func (c *wsChannel) Close() error {
	c.shutdown(nil)
	c.wg.Wait()
	return nil
}

// shutdown records the first failure and signals the pumps.
func (c *wsChannel) shutdown(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		close(c.done)
	})
}

func (c *wsChannel) readPump() {
	defer func() {
		close(c.events)
		c.wg.Done()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket read failed")
			}
			c.shutdown(fmt.Errorf("realtime: read: %w", err))
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil || ev.Name == "" {
			c.log.Warn().Int("bytes", len(data)).Msg("dropping malformed envelope")
			continue
		}
		select {
		case c.events <- ev:
		case <-c.done:
			return
		}
	}
}

func (c *wsChannel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.wg.Done()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.shutdown(fmt.Errorf("realtime: write: %w", err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown(fmt.Errorf("realtime: ping: %w", err))
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
