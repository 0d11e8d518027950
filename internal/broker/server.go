// Package broker is a development stand-in for the bemfa TCP broker and its
// topic registration API, for running the relay without the public service.
package broker

import (
	"bufio"
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"

	"bemfarelay/pkg/protocol"
)

// maxLineSize bounds a single device line.
const maxLineSize = 1024

// Server speaks the bemfa line protocol to connected devices.
type Server struct {
	Registry *TopicRegistry
	Addr     string

	// IdleTimeout closes a device that sends nothing for this long (0 = never).
	IdleTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxConnections limits concurrent connections (0 = unlimited)
	MaxConnections int
	connSem        chan struct{}

	listener net.Listener
	ready    chan struct{}
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewServer creates a broker listening on addr.
func NewServer(addr string, registry *TopicRegistry) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	if registry == nil {
		registry = NewTopicRegistry()
	}
	return &Server{
		Registry:       registry,
		Addr:           addr,
		IdleTimeout:    2 * time.Minute,
		WriteTimeout:   5 * time.Second,
		MaxConnections: 1000,
		ready:          make(chan struct{}),
		ctx:            ctx,
		cancel:         cancel,
		clients:        make(map[*Client]struct{}),
	}
}

// Ready is closed once the listener is bound.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// ListenAddr returns the bound address, or nil before Start.
func (s *Server) ListenAddr() net.Addr {
	select {
	case <-s.ready:
		return s.listener.Addr()
	default:
		return nil
	}
}

// Start accepts device connections until Shutdown.
func (s *Server) Start() error {
	var err error
	s.listener, err = net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	close(s.ready)

	if s.MaxConnections > 0 {
		s.connSem = make(chan struct{}, s.MaxConnections)
	}

	log.Printf("Broker listening on %s (MaxConn=%d)", s.listener.Addr(), s.MaxConnections)

	for {
		select {
		case <-s.ctx.Done():
			log.Println("Broker: shutdown signal received, stopping accept loop")
			return nil
		default:
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				log.Println("Broker: listener closed during shutdown")
				return nil
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Printf("Temporary accept error: %v, retrying...", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}

			log.Printf("Failed to accept connection: %v", err)
			return err
		}

		if s.connSem != nil {
			select {
			case s.connSem <- struct{}{}:
			case <-s.ctx.Done():
				conn.Close()
				return nil
			}
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer func() {
				if s.connSem != nil {
					<-s.connSem
				}
			}()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Panic recovered in handleConnection: %v", r)
				}
			}()
			s.handleConnection(c)
		}(conn)
	}
}

// Shutdown closes the listener and every device connection, then waits
// for the handlers within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Broker: initiating shutdown...")
	s.cancel()

	var errs error
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierr.Append(errs, err)
		}
	}

	s.mu.Lock()
	for c := range s.clients {
		if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = multierr.Append(errs, err)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Broker: all connections closed")
		return errs
	case <-ctx.Done():
		log.Println("Broker: shutdown timeout, forcing close")
		return multierr.Append(errs, ctx.Err())
	}
}

// ClientCount returns the number of connected devices.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Push sets topic to msg and delivers it to every subscriber, as the bemfa
// console does. It returns the number of devices reached.
func (s *Server) Push(topic, msg string) int {
	return s.deliver(topic, msg, "", nil)
}

func (s *Server) deliver(topic, msg, uid string, from *Client) int {
	line := protocol.WireMessage{
		{Key: protocol.KeyCmd, Value: protocol.CmdPublish},
		{Key: protocol.KeyUID, Value: uid},
		{Key: protocol.KeyTopic, Value: topic},
		{Key: protocol.KeyMsg, Value: msg},
	}.Encode()

	sent := 0
	for _, c := range s.Registry.Publish(topic, msg, from) {
		if err := c.Send(line); err != nil {
			log.Printf("[%s] push to %s failed: %v", c.ID, topic, err)
			c.Close()
			continue
		}
		sent++
	}
	return sent
}

func (s *Server) track(c *Client) {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *Client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	s.Registry.Unsubscribe(c)
}

func (s *Server) handleConnection(conn net.Conn) {
	c := newClient(conn, s.WriteTimeout)
	s.track(c)
	defer func() {
		s.untrack(c)
		c.Close()
		log.Printf("[%s] Connection closed", c.ID)
	}()
	log.Printf("[%s] New connection", c.ID)

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, maxLineSize), maxLineSize)

	for {
		if s.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.IdleTimeout))
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil && s.ctx.Err() == nil {
				log.Printf("[%s] read: %v", c.ID, err)
			}
			return
		}
		if err := s.handleLine(c, scanner.Bytes()); err != nil {
			log.Printf("[%s] reply failed: %v", c.ID, err)
			return
		}
	}
}

func (s *Server) handleLine(c *Client, raw []byte) error {
	msg := protocol.ParseMessage(raw)
	if len(msg) == 0 {
		if string(raw) == protocol.Ping {
			return c.Send(protocol.WireMessage{
				{Key: protocol.KeyCmd, Value: protocol.CmdHeartbeat},
				{Key: protocol.KeyRes, Value: "1"},
			}.Encode())
		}
		return nil
	}

	cmd, _ := msg.Get(protocol.KeyCmd)
	uid, _ := msg.Get(protocol.KeyUID)
	topic, _ := msg.Get(protocol.KeyTopic)

	switch cmd {
	case protocol.CmdSubscribe:
		if topic == "" {
			return c.Send(resLine(protocol.CmdSubscribe, "0"))
		}
		reply := protocol.WireMessage{
			{Key: protocol.KeyCmd, Value: protocol.CmdSubscribe},
			{Key: protocol.KeyUID, Value: uid},
			{Key: protocol.KeyTopic, Value: topic},
		}
		if value, ok := s.Registry.Subscribe(topic, c); ok {
			reply = append(reply, protocol.Field{Key: protocol.KeyMsg, Value: value})
		}
		log.Printf("[%s] subscribed to %s", c.ID, topic)
		return c.Send(reply.Encode())

	case protocol.CmdPublish:
		value, ok := msg.Get(protocol.KeyMsg)
		if topic == "" || !ok {
			return c.Send(resLine(protocol.CmdPublish, "0"))
		}
		n := s.deliver(topic, value, uid, c)
		log.Printf("[%s] published %s=%s to %d subscribers", c.ID, topic, value, n)
		return c.Send(resLine(protocol.CmdPublish, "1"))

	case protocol.CmdHeartbeat:
		return c.Send(resLine(protocol.CmdHeartbeat, "1"))

	default:
		log.Printf("[%s] unsupported cmd %q", c.ID, cmd)
		return nil
	}
}

func resLine(cmd, res string) string {
	return protocol.WireMessage{
		{Key: protocol.KeyCmd, Value: cmd},
		{Key: protocol.KeyRes, Value: res},
	}.Encode()
}
