// internal/feed/client.go
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client receives feed messages from a Server.
type Client struct {
	conn     *websocket.Conn
	logger   *zap.Logger
	messages chan Message
	done     chan struct{}
	once     sync.Once
	err      error
}

// Dial connects to a feed endpoint such as ws://127.0.0.1:8645/feed.
func Dial(ctx context.Context, url string, logger *zap.Logger) (*Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &Client{
		conn:     conn,
		logger:   logger.Named("feed_client"),
		messages: make(chan Message, sendBuffer),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Messages returns the stream of decoded messages. It is closed when the
// connection ends; Err reports why.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Err returns the error that ended the stream, if any. Valid after
// Messages is closed.
func (c *Client) Err() error {
	return c.err
}

func (c *Client) readLoop() {
	defer close(c.messages)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					c.err = err
				}
			}
			return
		}

		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			c.logger.Warn("Dropping malformed feed message", zap.Error(err))
			continue
		}

		select {
		case c.messages <- m:
		case <-c.done:
			return
		}
	}
}

// Close ends the connection.
func (c *Client) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = c.conn.Close()
	})
	return err
}
