package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func startDNSServer(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen udp: %v", err)
	}

	started := make(chan struct{})
	server := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			if len(r.Question) == 1 && r.Question[0].Name == "bemfa.com." {
				rr, _ := dns.NewRR("bemfa.com. 60 IN A 119.91.109.180")
				m.Answer = append(m.Answer, rr)
			} else {
				m.Rcode = dns.RcodeNameError
			}
			w.WriteMsg(m)
		}),
	}
	go server.ActivateAndServe()
	<-started
	t.Cleanup(func() { server.Shutdown() })
	return pc.LocalAddr().String()
}

func TestResolver_IPLiteral(t *testing.T) {
	r := &Resolver{}
	addr, err := r.Resolve(context.Background(), "127.0.0.1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if addr != netip.MustParseAddr("127.0.0.1") {
		t.Errorf("addr = %v", addr)
	}
}

func TestResolver_ConfiguredServer(t *testing.T) {
	r := &Resolver{Server: startDNSServer(t), Timeout: time.Second}

	addr, err := r.Resolve(context.Background(), "bemfa.com")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if addr != netip.MustParseAddr("119.91.109.180") {
		t.Errorf("addr = %v, want 119.91.109.180", addr)
	}
}

func TestResolver_NameError(t *testing.T) {
	r := &Resolver{Server: startDNSServer(t), Timeout: time.Second}

	_, err := r.Resolve(context.Background(), "unknown.example")
	var dnsErr *DNSError
	if !errors.As(err, &dnsErr) {
		t.Fatalf("expected DNSError, got %v", err)
	}
	if dnsErr.Host != "unknown.example" {
		t.Errorf("Host = %q", dnsErr.Host)
	}
}

func TestHTTPPoster_PostJSON(t *testing.T) {
	var gotContentType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"data":{"code":0}}`))
	}))
	defer srv.Close()

	p := NewHTTPPoster(time.Second)
	resp, err := p.PostJSON(context.Background(), srv.URL, []byte(`{"uid":"t"}`))
	if err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	if string(resp) != `{"data":{"code":0}}` {
		t.Errorf("resp = %s", resp)
	}
	if gotContentType != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotBody != `{"uid":"t"}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestHTTPPoster_TruncatesLargeResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 4*MaxResponseSize)))
	}))
	defer srv.Close()

	resp, err := NewHTTPPoster(time.Second).PostJSON(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("PostJSON() error = %v", err)
	}
	if len(resp) != MaxResponseSize {
		t.Errorf("len(resp) = %d, want %d", len(resp), MaxResponseSize)
	}
}

func TestHTTPPoster_DoesNotFollowRedirects(t *testing.T) {
	followed := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/moved" {
			followed = true
			return
		}
		http.Redirect(w, r, "/moved", http.StatusFound)
	}))
	defer srv.Close()

	_, err := NewHTTPPoster(time.Second).PostJSON(context.Background(), srv.URL+"/deviceAddTopic", nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != http.StatusFound {
		t.Errorf("StatusCode = %d, want 302", httpErr.StatusCode)
	}
	if followed {
		t.Error("redirect should not be followed")
	}
}

func TestHTTPPoster_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPPoster(time.Second).PostJSON(context.Background(), url, nil)
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %v", err)
	}
	if httpErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", httpErr.StatusCode)
	}
}

func TestDialer_Connect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Write([]byte("cmd=3&msg=on\r\n"))
			c.Close()
		}
	}()

	tcpAddr := ln.Addr().(*net.TCPAddr)
	d := &Dialer{Timeout: time.Second}
	conn, err := d.Connect(context.Background(), netip.MustParseAddr("127.0.0.1"), tcpAddr.Port)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer conn.Close()

	data, err := conn.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv() error = %v", err)
	}
	if string(data) != "cmd=3&msg=on\r\n" {
		t.Errorf("data = %q", data)
	}
}

func TestDialer_ConnectRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	d := &Dialer{Timeout: time.Second}
	_, err = d.Connect(context.Background(), netip.MustParseAddr("127.0.0.1"), port)
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectError, got %v", err)
	}
}

func TestConn_RecvTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conn := NewConn(client, 0)
	defer conn.Close()

	_, err := conn.Recv(20 * time.Millisecond)
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if IsIOError(err) {
		t.Error("timeout must not be reported as an IOError")
	}
}

func TestConn_RecvPeerClosed(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	accepted := make(chan struct{})
	go func() {
		defer close(accepted)
		if c, err := ln.Accept(); err == nil {
			c.Close()
		}
	}()

	client, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn := NewConn(client, 0)
	defer conn.Close()
	<-accepted

	_, err = conn.Recv(time.Second)
	if !IsPeerClosed(err) {
		t.Fatalf("expected peer closed, got %v", err)
	}
	if !IsIOError(err) {
		t.Error("peer close should be an IOError")
	}
}

func TestConn_SendLine(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conn := NewConn(client, time.Second)
	defer conn.Close()

	line := "cmd=3&uid=tok&topic=t\r\n"
	got := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		var sb strings.Builder
		for sb.Len() < len(line) {
			n, err := server.Read(buf)
			if err != nil {
				break
			}
			sb.Write(buf[:n])
		}
		got <- sb.String()
	}()

	if err := conn.SendLine([]byte(line)); err != nil {
		t.Fatalf("SendLine() error = %v", err)
	}
	if s := <-got; s != line {
		t.Errorf("server read %q, want %q", s, line)
	}
}

func TestConn_CloseIdempotent(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	conn := NewConn(client, 0)

	if err := conn.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if conn.RemoteAddr() != "" {
		t.Error("closed conn should report empty address")
	}

	var nilConn *Conn
	if err := nilConn.Close(); err != nil {
		t.Errorf("nil Close() error = %v", err)
	}

	if err := conn.SendLine([]byte("x")); !IsIOError(err) {
		t.Errorf("send on closed conn: expected IOError, got %v", err)
	}
	if _, err := conn.Recv(time.Millisecond); !IsIOError(err) {
		t.Errorf("recv on closed conn: expected IOError, got %v", err)
	}
}
