package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// Resolver looks up the broker address. With Server empty it uses the
// system resolver; otherwise it sends a single A query to Server.
type Resolver struct {
	Server  string // host:port of a DNS server, e.g. "114.114.114.114:53"
	Timeout time.Duration
}

// Resolve performs one lookup attempt for host and returns its first IPv4
// address. Retrying is left to the caller.
func (r *Resolver) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.Unmap(), nil
	}

	var (
		addr netip.Addr
		err  error
	)
	if r == nil || r.Server == "" {
		addr, err = lookupSystem(ctx, host)
	} else {
		addr, err = r.lookupServer(ctx, host)
	}
	if err != nil {
		return netip.Addr{}, &DNSError{Host: host, Err: err}
	}
	return addr, nil
}

func lookupSystem(ctx context.Context, host string) (netip.Addr, error) {
	addrs, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return netip.Addr{}, err
	}
	if len(addrs) == 0 {
		return netip.Addr{}, errors.New("no addresses")
	}
	return addrs[0].Unmap(), nil
}

func (r *Resolver) lookupServer(ctx context.Context, host string) (netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	c := &dns.Client{Net: "udp", Timeout: r.Timeout}
	in, _, err := c.ExchangeContext(ctx, m, r.Server)
	if err != nil {
		return netip.Addr{}, err
	}
	if in.Rcode != dns.RcodeSuccess {
		return netip.Addr{}, fmt.Errorf("server returned %s", dns.RcodeToString[in.Rcode])
	}
	for _, rr := range in.Answer {
		a, ok := rr.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(a.A.To4()); ok {
			return addr, nil
		}
	}
	return netip.Addr{}, errors.New("no A records in answer")
}
