package session

import (
	"context"
	"net/netip"
	"time"

	"bemfarelay/internal/client/transport"
)

// Socket is an open broker connection.
type Socket interface {
	SendLine(b []byte) error
	Recv(timeout time.Duration) ([]byte, error)
	Close() error
}

// Transport is the network surface a session drives. Each call is a single
// blocking attempt.
type Transport interface {
	Resolve(ctx context.Context, host string) (netip.Addr, error)
	PostJSON(ctx context.Context, url string, body []byte) ([]byte, error)
	Connect(ctx context.Context, addr netip.Addr, port int) (Socket, error)
}

// NetTransport implements Transport over real DNS, HTTP and TCP.
type NetTransport struct {
	Resolver *transport.Resolver
	Poster   *transport.HTTPPoster
	Dialer   *transport.Dialer
}

// NewNetTransport builds a transport with the given timeouts. dnsServer may
// be empty to use the system resolver.
func NewNetTransport(dnsServer string, timeout time.Duration) *NetTransport {
	return &NetTransport{
		Resolver: &transport.Resolver{Server: dnsServer, Timeout: timeout},
		Poster:   transport.NewHTTPPoster(timeout),
		Dialer:   &transport.Dialer{Timeout: timeout, WriteTimeout: timeout},
	}
}

func (t *NetTransport) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	return t.Resolver.Resolve(ctx, host)
}

func (t *NetTransport) PostJSON(ctx context.Context, url string, body []byte) ([]byte, error) {
	return t.Poster.PostJSON(ctx, url, body)
}

func (t *NetTransport) Connect(ctx context.Context, addr netip.Addr, port int) (Socket, error) {
	conn, err := t.Dialer.Connect(ctx, addr, port)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
