package session

import (
	"context"
	"errors"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"bemfarelay/internal/client/transport"
	"bemfarelay/internal/storage"
)

type recvResult struct {
	data string
	err  error
}

// fakeSocket replays queued receive results; an empty queue times out.
type fakeSocket struct {
	mu      sync.Mutex
	sent    []string
	replies []recvResult
	sendErr error
	closes  int
}

func newFakeSocket(replies ...recvResult) *fakeSocket {
	return &fakeSocket{replies: replies}
}

func (f *fakeSocket) SendLine(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, string(b))
	return nil
}

func (f *fakeSocket) Recv(time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.replies) == 0 {
		return nil, transport.ErrTimeout
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.data), nil
}

func (f *fakeSocket) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeSocket) push(replies ...recvResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, replies...)
}

func (f *fakeSocket) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeSocket) sentLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func reply(s string) recvResult { return recvResult{data: s} }

var (
	peerClosed = recvResult{err: &transport.IOError{Op: "recv", Err: transport.ErrPeerClosed}}
	timedOut   = recvResult{err: transport.ErrTimeout}
)

// fakeTransport hands out scripted results and counts calls.
type fakeTransport struct {
	mu sync.Mutex

	resolveErrs []error
	postReplies []string
	postErrs    []error
	connectErrs []error
	sockets     []*fakeSocket

	resolves int
	posts    int
	connects int
	bodies   []string
}

func (f *fakeTransport) Resolve(ctx context.Context, host string) (netip.Addr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	if len(f.resolveErrs) > 0 {
		err := f.resolveErrs[0]
		f.resolveErrs = f.resolveErrs[1:]
		return netip.Addr{}, err
	}
	return netip.MustParseAddr("119.91.109.180"), nil
}

func (f *fakeTransport) PostJSON(ctx context.Context, url string, body []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts++
	f.bodies = append(f.bodies, string(body))
	if len(f.postErrs) > 0 {
		err := f.postErrs[0]
		f.postErrs = f.postErrs[1:]
		return nil, err
	}
	if len(f.postReplies) > 0 {
		r := f.postReplies[0]
		f.postReplies = f.postReplies[1:]
		return []byte(r), nil
	}
	return []byte(`{"data":{"code":0}}`), nil
}

func (f *fakeTransport) Connect(ctx context.Context, addr netip.Addr, port int) (Socket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		return nil, err
	}
	if len(f.sockets) == 0 {
		return nil, &transport.ConnectError{Addr: addr.String(), Err: errors.New("no scripted socket")}
	}
	s := f.sockets[0]
	f.sockets = f.sockets[1:]
	return s, nil
}

func (f *fakeTransport) counts() (resolves, posts, connects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolves, f.posts, f.connects
}

type fakeNetwork struct {
	up atomic.Bool
}

func newFakeNetwork(up bool) *fakeNetwork {
	n := &fakeNetwork{}
	n.up.Store(up)
	return n
}

func (n *fakeNetwork) Available() bool { return n.up.Load() }

var testCreds = Credentials{Topic: "esp32switchea28006", Token: "6cf90baf69f846f0"}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReplyTimeout = 10 * time.Millisecond
	cfg.ListenTimeout = 10 * time.Millisecond
	return cfg
}

func credentialStore(c Credentials) *storage.MemoryStore {
	store := storage.NewMemoryStore()
	store.WriteString(storage.Namespace, storage.KeyTopic, c.Topic)
	store.WriteString(storage.Namespace, storage.KeyToken, c.Token)
	return store
}
