package server

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/bodul/waifu100/internal/editor"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer; a pasted grid can be large
	maxMessageSize = 1 << 20
)

// connection is one websocket client driving a session.
type connection struct {
	ws      *websocket.Conn
	server  *Server
	session *Session
	key     string // rate-limit key

	// Replies meant for this client only
	send chan []byte

	// State fan-out shared with every other subscriber of the session
	sub *subscriber
}

// handle runs the connection until either side closes it.
func (c *connection) handle() {
	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	done := make(chan struct{})
	go func() {
		c.writePump()
		close(done)
	}()
	c.readPump()
	c.server.sse.Unregister(c.sub)
	close(c.send)
	<-done
}

// readPump applies events from the peer to the session in arrival order.
func (c *connection) readPump() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Info("websocket read error", zap.String("session", c.session.ID), zap.Error(err))
			}
			return
		}

		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			c.reply(Message{Type: "error", Code: "BadRequest", Error: "invalid message"})
			continue
		}
		if !c.server.eventRL.Allow(c.key) {
			c.reply(Message{Type: "error", Event: ev.Type, Code: "RateLimited", Error: "too many events"})
			continue
		}

		var res result
		_, err = c.session.Do(func(ed *editor.Editor) error {
			var err error
			res, err = apply(ed, ev)
			return err
		})
		if err != nil {
			c.reply(errorMessage(ev.Type, err))
			continue
		}
		if res.Outcome != "" || res.Notice != "" {
			c.reply(Message{Type: "result", Event: ev.Type, Outcome: res.Outcome, Notice: res.Notice})
		}
	}
}

// writePump sends replies, broadcast state and pings until the send channel
// is closed or the session is closed.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if !c.write(message) {
				return
			}

		case message, ok := <-c.sub.ch:
			if !ok {
				// Session expired.
				c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			if !c.write(message) {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *connection) write(message []byte) bool {
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
		c.server.logger.Debug("websocket write error", zap.String("session", c.session.ID), zap.Error(err))
		return false
	}
	return true
}

func (c *connection) reply(m Message) {
	data, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
		c.server.logger.Debug("dropping reply for slow client", zap.String("session", c.session.ID))
	}
}
