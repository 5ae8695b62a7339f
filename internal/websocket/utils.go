package websocket

import (
	"time"

	"github.com/filiup/quizsession/internal/model"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// WritePush sends a push message over the WebSocket.
func WritePush(conn *websocket.Conn, msg model.PushMessage) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// WriteClose sends a normal close frame.
func WriteClose(conn *websocket.Conn, reason string) error {
	return conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(writeWait))
}

// Drain discards client frames until the peer goes away, then closes gone.
// Reading is required for gorilla to process control frames.
func Drain(conn *websocket.Conn, gone chan<- struct{}) {
	defer close(gone)
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
