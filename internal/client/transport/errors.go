package transport

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned by Recv when no data arrived before the deadline.
// It is a normal outcome, not a socket fault.
var ErrTimeout = errors.New("receive timed out")

// ErrPeerClosed indicates the broker closed the connection (zero-length read).
var ErrPeerClosed = errors.New("peer closed connection")

// DNSError indicates the broker hostname could not be resolved.
type DNSError struct {
	Host string
	Err  error
}

func (e *DNSError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Host, e.Err)
}

func (e *DNSError) Unwrap() error { return e.Err }

// HTTPError indicates a failed registration request.
type HTTPError struct {
	URL        string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *HTTPError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("post %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("post %s: %v", e.URL, e.Err)
}

func (e *HTTPError) Unwrap() error { return e.Err }

// ConnectError indicates the broker socket could not be opened.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// IOError indicates a send or receive failure on an open socket, including a
// peer-initiated close.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a receive timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsPeerClosed reports whether err is a peer-initiated close.
func IsPeerClosed(err error) bool {
	return errors.Is(err, ErrPeerClosed)
}

// IsIOError checks if an error is an IOError.
func IsIOError(err error) bool {
	var ioErr *IOError
	return errors.As(err, &ioErr)
}
