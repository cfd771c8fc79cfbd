package transport

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
)

// Socket abstracts one established socket connection. The production
// implementation wraps a websocket; tests substitute an in-memory pipe.
type Socket interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer establishes a new Socket. It is called once per connection attempt.
type Dialer func(ctx context.Context) (Socket, error)

type wsSocket struct {
	conn *websocket.Conn
}

func (s *wsSocket) ReadMessage() ([]byte, error) {
	_, data, err := s.conn.ReadMessage()
	return data, err
}

func (s *wsSocket) WriteMessage(data []byte) error {
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *wsSocket) Close() error {
	return s.conn.Close()
}

// WebsocketDialer returns a Dialer that connects to the given ws:// or
// wss:// URL.
func WebsocketDialer(url string) Dialer {
	return func(ctx context.Context) (Socket, error) {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", url, err)
		}
		return &wsSocket{conn: conn}, nil
	}
}
