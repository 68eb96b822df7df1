package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ReadHello reads the first frame of a view, which must be a hello.
func ReadHello(conn *websocket.Conn, timeout time.Duration) (Message, error) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(timeout))

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		return Message{}, fmt.Errorf("failed to read hello: %w", err)
	}
	if msg.Type != MessageHello {
		return Message{}, fmt.Errorf("expected %q frame, got %q", MessageHello, msg.Type)
	}
	return msg, nil
}

// ReadPump reads device messages from the view and passes them to handle.
// It returns when the connection closes.
func (c *Client) ReadPump(logger *zap.Logger, handle func(Message)) {
	defer func() {
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocket read error", zap.String("mount_id", c.MountID), zap.Error(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("discarding malformed message", zap.String("mount_id", c.MountID), zap.Error(err))
			continue
		}
		handle(msg)
	}
}

// WritePump writes queued frames to the view until Send is closed. Frames
// queued while a write is in progress go out in the same message, one per
// line.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case first, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			open, err := c.writeBatch(first)
			if err != nil {
				return
			}
			if !open {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// writeBatch writes first plus whatever is already queued as one text
// message. It reports false once Send has been closed.
func (c *Client) writeBatch(first []byte) (bool, error) {
	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return true, err
	}
	_, _ = w.Write(first)

	open := true
	for pending := len(c.Send); pending > 0; pending-- {
		frame, ok := <-c.Send
		if !ok {
			open = false
			break
		}
		_, _ = w.Write([]byte("\n"))
		_, _ = w.Write(frame)
	}
	return open, w.Close()
}
