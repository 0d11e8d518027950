package broker

import (
	"net"
	"sync"
	"time"
)

// Client is one device connection on the broker.
type Client struct {
	ID   string
	conn net.Conn

	writeTimeout time.Duration
	mu           sync.Mutex // serialises writes
	closeOnce    sync.Once
}

func newClient(conn net.Conn, writeTimeout time.Duration) *Client {
	return &Client{
		ID:           conn.RemoteAddr().String(),
		conn:         conn,
		writeTimeout: writeTimeout,
	}
}

// Send writes one line to the device.
func (c *Client) Send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	_, err := c.conn.Write([]byte(line))
	return err
}

// Close closes the connection once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Close()
	})
	return err
}
