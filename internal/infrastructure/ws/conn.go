package ws

import (
	"encoding/json"
	"errors"
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
	maxMessageSize = 4096
	sendBuffer     = 16
)

// ErrConnClosed is returned when sending on a closed connection.
var ErrConnClosed = errors.New("websocket connection closed")

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Conn wraps a gorilla connection with a single writer goroutine.
type Conn struct {
	conn *websocket.Conn
	send chan Message
	done chan struct{}
	once sync.Once
	log  zerolog.Logger

	// latest serialises SendLatest so evictions and enqueues pair up.
	latest sync.Mutex
}

// Upgrade switches the request to the WebSocket protocol.
func Upgrade(w http.ResponseWriter, r *http.Request, log zerolog.Logger) (*Conn, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewConn(conn, log), nil
}

func NewConn(conn *websocket.Conn, log zerolog.Logger) *Conn {
	return &Conn{
		conn: conn,
		send: make(chan Message, sendBuffer),
		done: make(chan struct{}),
		log:  log,
	}
}

// Send queues msg without blocking. A full buffer drops the message.
func (c *Conn) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.log.Warn().Str("event", msg.Event).Msg("websocket send buffer full, dropping message")
		return nil
	}
}

// SendLatest queues msg, evicting the oldest queued message when the buffer
// is full. Streams where only the newest state matters use it.
func (c *Conn) SendLatest(msg Message) error {
	c.latest.Lock()
	defer c.latest.Unlock()

	for {
		select {
		case <-c.done:
			return ErrConnClosed
		default:
		}
		select {
		case c.send <- msg:
			return nil
		default:
		}
		select {
		case old := <-c.send:
			c.log.Debug().Str("event", old.Event).Msg("websocket send buffer full, replacing oldest message")
		default:
		}
	}
}

// SendLatestEvent encodes data and queues it with SendLatest.
func (c *Conn) SendLatestEvent(event string, data any) error {
	msg, err := NewMessage(event, data)
	if err != nil {
		return err
	}
	return c.SendLatest(msg)
}

// SendEvent encodes data and queues it.
func (c *Conn) SendEvent(event string, data any) error {
	msg, err := NewMessage(event, data)
	if err != nil {
		return err
	}
	return c.Send(msg)
}

// Done is closed once the connection is closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// WritePump is the only goroutine writing to the socket. It returns when the
// connection closes or a write fails.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump reads envelopes until the peer goes away and hands each one to
// handle. Malformed frames are logged and skipped.
func (c *Conn) ReadPump(handle func(Message)) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug().Err(err).Msg("websocket closed unexpectedly")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil || msg.Event == "" {
			c.log.Warn().Err(err).Msg("dropping malformed websocket frame")
			continue
		}
		handle(msg)
	}
}

// Reject writes one message directly and closes the connection. It must only
// be used before WritePump has started.
func (c *Conn) Reject(event string, data any) {
	if msg, err := NewMessage(event, data); err == nil {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteJSON(msg)
	}
	c.Close()
}
