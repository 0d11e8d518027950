package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"time"
)

// RecvBufferSize is the largest chunk returned by a single Recv.
const RecvBufferSize = 128

// Dialer opens broker sockets.
type Dialer struct {
	Timeout      time.Duration
	WriteTimeout time.Duration
}

// Connect opens a TCP stream to addr:port.
func (d *Dialer) Connect(ctx context.Context, addr netip.Addr, port int) (*Conn, error) {
	target := net.JoinHostPort(addr.String(), strconv.Itoa(port))
	nd := net.Dialer{Timeout: d.Timeout}
	c, err := nd.DialContext(ctx, "tcp", target)
	if err != nil {
		return nil, &ConnectError{Addr: target, Err: err}
	}
	return NewConn(c, d.WriteTimeout), nil
}

// Conn is one broker socket. It is owned by a single session; Close may be
// called any number of times.
type Conn struct {
	mu           sync.Mutex
	conn         net.Conn
	writeTimeout time.Duration
	buf          []byte
}

// NewConn wraps an established connection.
func NewConn(c net.Conn, writeTimeout time.Duration) *Conn {
	return &Conn{
		conn:         c,
		writeTimeout: writeTimeout,
		buf:          make([]byte, RecvBufferSize),
	}
}

func (c *Conn) current() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

// SendLine writes all of b, retrying short writes.
func (c *Conn) SendLine(b []byte) error {
	conn := c.current()
	if conn == nil {
		return &IOError{Op: "send", Err: net.ErrClosed}
	}
	if c.writeTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	for len(b) > 0 {
		n, err := conn.Write(b)
		if err != nil {
			return &IOError{Op: "send", Err: err}
		}
		b = b[n:]
	}
	return nil
}

// Recv waits up to timeout for data. It returns ErrTimeout when nothing
// arrives, and an IOError wrapping ErrPeerClosed when the broker hung up.
// A non-positive timeout blocks until data or an error.
func (c *Conn) Recv(timeout time.Duration) ([]byte, error) {
	conn := c.current()
	if conn == nil {
		return nil, &IOError{Op: "recv", Err: net.ErrClosed}
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, &IOError{Op: "recv", Err: err}
	}

	n, err := conn.Read(c.buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, c.buf[:n])
		return out, nil
	}

	var netErr net.Error
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return nil, &IOError{Op: "recv", Err: ErrPeerClosed}
	case errors.As(err, &netErr) && netErr.Timeout():
		return nil, ErrTimeout
	default:
		return nil, &IOError{Op: "recv", Err: err}
	}
}

// Close releases the socket. Closing a nil or already closed Conn is a no-op.
func (c *Conn) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}

// RemoteAddr returns the broker address, or "" once closed.
func (c *Conn) RemoteAddr() string {
	if conn := c.current(); conn != nil {
		return conn.RemoteAddr().String()
	}
	return ""
}
