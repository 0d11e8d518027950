package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"time"

	"bemfarelay/internal/client/events"
	"bemfarelay/internal/client/logger"
	"bemfarelay/internal/client/transport"
	"bemfarelay/pkg/protocol"
)

// ErrUnexpectedReply is returned when a broker reply lacks the expected cmd.
// It is handled exactly like a socket failure.
var ErrUnexpectedReply = errors.New("unexpected broker reply")

// ErrNotStarted is returned by Tick before Start.
var ErrNotStarted = errors.New("session not started")

// Config holds the broker endpoints and receive timeouts.
type Config struct {
	BrokerHost  string
	BrokerPort  int
	RegisterURL string

	// ReplyTimeout bounds the wait for subscribe and publish replies.
	ReplyTimeout time.Duration
	// ListenTimeout bounds each receive while listening. Expiry is not a failure.
	ListenTimeout time.Duration
}

// DefaultConfig returns the public bemfa endpoints.
func DefaultConfig() Config {
	return Config{
		BrokerHost:    "bemfa.com",
		BrokerPort:    8344,
		RegisterURL:   "http://pro.bemfa.com/vs/web/v1/deviceAddTopic",
		ReplyTimeout:  5 * time.Second,
		ListenTimeout: 3 * time.Second,
	}
}

// SwitchState is the last known position of the relay switch.
type SwitchState struct {
	On bool
}

// SwitchHandler is called whenever the broker sets the switch.
type SwitchHandler func(on bool)

// ErrorReporter forwards session failures to an external sink.
type ErrorReporter func(err error, message string)

// Snapshot is a point-in-time view of a session for observers.
type Snapshot struct {
	State       State
	Switch      SwitchState
	Topic       string
	BrokerAddr  string
	LastError   string
	LastErrorAt time.Time
	Ticks       uint64
	Failures    uint64
	Connects    uint64
	Pushes      uint64
}

// Session is the relay state machine. One goroutine drives it through Tick;
// Snapshot may be called concurrently.
type Session struct {
	cfg       Config
	transport Transport
	creds     Credentials

	eventBus *events.Bus
	onSwitch SwitchHandler
	report   ErrorReporter

	// owned by the ticking goroutine
	addr    netip.Addr
	sock    Socket
	partial []byte // unterminated tail of the last listen read

	mu   sync.RWMutex
	snap Snapshot
}

// New creates an idle session for creds.
func New(cfg Config, t Transport, creds Credentials) *Session {
	return &Session{
		cfg:       cfg,
		transport: t,
		creds:     creds,
		snap:      Snapshot{State: Idle, Topic: creds.Topic},
	}
}

// SetEventBus sets the bus receiving state, switch and error events.
func (s *Session) SetEventBus(bus *events.Bus) {
	s.eventBus = bus
}

// SetSwitchHandler registers a callback for broker-driven switch changes.
func (s *Session) SetSwitchHandler(h SwitchHandler) {
	s.onSwitch = h
}

// SetErrorReporter registers a sink for tick failures.
func (s *Session) SetErrorReporter(r ErrorReporter) {
	s.report = r
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.State
}

// Switch returns the current switch state.
func (s *Session) Switch() SwitchState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Switch
}

// Snapshot returns a copy of the observable session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Start moves an idle session to ResolvingHost with the switch off.
func (s *Session) Start() {
	s.mu.Lock()
	s.snap.Switch = SwitchState{}
	s.mu.Unlock()
	if s.State() == Idle {
		s.setState(ResolvingHost)
	}
}

// Close releases the socket and returns the session to Idle.
func (s *Session) Close() error {
	err := s.closeSocket()
	s.setState(Idle)
	return err
}

// Tick performs the work of the current state once and moves to the next
// state. A failure is absorbed into a transition and also returned so the
// caller can pace retries; a listen timeout is not a failure.
func (s *Session) Tick(ctx context.Context) error {
	s.mu.Lock()
	s.snap.Ticks++
	state := s.snap.State
	s.mu.Unlock()

	var (
		next State
		err  error
	)
	switch state {
	case Idle:
		return ErrNotStarted
	case ResolvingHost:
		next, err = s.resolveHost(ctx)
	case RegisteringTopic:
		next, err = s.registerTopic(ctx)
	case Connecting:
		next, err = s.connect(ctx)
	case Subscribing:
		next, err = s.subscribe()
	case Publishing:
		next, err = s.publish()
	case Listening:
		next, err = s.listen()
	default:
		return fmt.Errorf("unknown session state %d", state)
	}

	if err != nil {
		s.fail(state, err)
		return err
	}
	s.setState(next)
	return nil
}

func (s *Session) resolveHost(ctx context.Context) (State, error) {
	addr, err := s.transport.Resolve(ctx, s.cfg.BrokerHost)
	if err != nil {
		return ResolvingHost, err
	}
	s.addr = addr
	logger.Info("Broker %s resolved to %s", s.cfg.BrokerHost, addr)
	return RegisteringTopic, nil
}

func (s *Session) registerTopic(ctx context.Context) (State, error) {
	body, err := protocol.EncodeRegistrationRequest(s.creds.Token, s.creds.Topic)
	if err != nil {
		return RegisteringTopic, err
	}
	resp, err := s.transport.PostJSON(ctx, s.cfg.RegisterURL, body)
	if err != nil {
		return RegisteringTopic, err
	}
	result := protocol.DecodeRegistrationResponse(resp)
	if !result.Accepted {
		return RegisteringTopic, &transport.HTTPError{
			URL: s.cfg.RegisterURL,
			Err: fmt.Errorf("registration rejected (code %d): %q", result.ReasonCode, resp),
		}
	}
	logger.Info("Topic %s registered (code %d)", s.creds.Topic, result.ReasonCode)
	return Connecting, nil
}

func (s *Session) connect(ctx context.Context) (State, error) {
	sock, err := s.transport.Connect(ctx, s.addr, s.cfg.BrokerPort)
	if err != nil {
		return Connecting, err
	}
	s.sock = sock

	brokerAddr := fmt.Sprintf("%s:%d", s.addr, s.cfg.BrokerPort)
	s.mu.Lock()
	s.snap.Connects++
	s.snap.BrokerAddr = brokerAddr
	s.mu.Unlock()

	logger.Info("Connected to broker %s", brokerAddr)
	s.eventBus.PublishConnected(brokerAddr, s.creds.Topic)
	return Subscribing, nil
}

func (s *Session) subscribe() (State, error) {
	reply, err := s.exchange(protocol.EncodeSubscribe(s.creds.Token, s.creds.Topic))
	if err != nil {
		return Connecting, err
	}
	lines := replyLines(reply)
	if err := expectCmd(lines[0], protocol.CmdSubscribe); err != nil {
		return Connecting, err
	}
	msg, _ := protocol.DecodeField(lines[0], protocol.KeyMsg)
	s.setSwitch(protocol.ParseSwitch(msg), "subscribe")
	for _, line := range lines[1:] {
		s.applyPush(line)
	}
	return Publishing, nil
}

func (s *Session) publish() (State, error) {
	msg := protocol.SwitchMessage(s.Switch().On)
	reply, err := s.exchange(protocol.EncodePublish(s.creds.Token, s.creds.Topic, msg))
	if err != nil {
		return Connecting, err
	}
	lines := replyLines(reply)
	if err := expectCmd(lines[0], protocol.CmdPublish); err != nil {
		return Connecting, err
	}
	logger.Info("Published switch state %s", msg)
	// A push can overtake the ack; its msg still sets the switch.
	for _, line := range lines {
		s.applyPush(line)
	}
	return Listening, nil
}

func (s *Session) listen() (State, error) {
	if s.sock == nil {
		return Connecting, &transport.IOError{Op: "recv", Err: errors.New("no socket")}
	}
	data, err := s.sock.Recv(s.cfg.ListenTimeout)
	if transport.IsTimeout(err) {
		return Listening, nil
	}
	if err != nil {
		return Connecting, err
	}
	logger.Debug("rx %q", data)

	lines, rest := splitLines(append(s.partial, data...))
	s.partial = append([]byte(nil), rest...)
	if len(s.partial) > maxPartialLine {
		logger.Warn("Dropping %d bytes without a line end", len(s.partial))
		s.partial = nil
	}
	for _, line := range lines {
		s.applyPush(line)
	}
	return Listening, nil
}

// applyPush sets the switch from line's msg field. Lines without msg,
// such as acks and heartbeats, are ignored.
func (s *Session) applyPush(line []byte) {
	msg, ok := protocol.DecodeField(line, protocol.KeyMsg)
	if !ok {
		return
	}
	s.mu.Lock()
	s.snap.Pushes++
	s.mu.Unlock()
	s.setSwitch(protocol.ParseSwitch(msg), "push")
}

// maxPartialLine bounds how much unterminated input is carried between reads.
const maxPartialLine = 512

// splitLines cuts data into CRLF terminated lines, dropping empty ones.
// rest is the tail after the last line end.
func splitLines(data []byte) (lines [][]byte, rest []byte) {
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			return lines, data
		}
		if line := bytes.TrimRight(data[:i], "\r"); len(line) > 0 {
			lines = append(lines, line)
		}
		data = data[i+1:]
	}
}

// replyLines splits a subscribe or publish reply. An unterminated tail
// counts as a line since the reply is complete once read. The result is
// never empty.
func replyLines(reply []byte) [][]byte {
	lines, rest := splitLines(reply)
	if len(bytes.TrimSpace(rest)) > 0 || len(lines) == 0 {
		lines = append(lines, rest)
	}
	return lines
}

// exchange sends line and waits for one reply. Timeouts count as failures
// here because the broker always answers subscribe and publish.
func (s *Session) exchange(line string) ([]byte, error) {
	if s.sock == nil {
		return nil, &transport.IOError{Op: "send", Err: errors.New("no socket")}
	}
	logger.Debug("tx %q", line)
	if err := s.sock.SendLine([]byte(line)); err != nil {
		return nil, err
	}
	reply, err := s.sock.Recv(s.cfg.ReplyTimeout)
	if err != nil {
		return nil, err
	}
	logger.Debug("rx %q", reply)
	return reply, nil
}

func expectCmd(reply []byte, want string) error {
	cmd, ok := protocol.DecodeField(reply, protocol.KeyCmd)
	if !ok || cmd != want {
		return fmt.Errorf("%w: want cmd=%s, got %q", ErrUnexpectedReply, want, reply)
	}
	return nil
}

func (s *Session) fail(state State, err error) {
	next := state.onFailure()
	if state.HasSocket() {
		s.closeSocket()
		s.eventBus.PublishDisconnected()
	}

	s.mu.Lock()
	s.snap.Failures++
	s.snap.LastError = err.Error()
	s.snap.LastErrorAt = time.Now()
	s.mu.Unlock()

	logger.Warn("%s failed: %v", state, err)
	s.eventBus.PublishError(err, state.String())
	if s.report != nil {
		s.report(err, "bemfa session "+state.String())
	}
	s.setState(next)
}

func (s *Session) closeSocket() error {
	if s.sock == nil {
		return nil
	}
	err := s.sock.Close()
	s.sock = nil
	s.partial = nil
	s.mu.Lock()
	s.snap.BrokerAddr = ""
	s.mu.Unlock()
	return err
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.snap.State
	s.snap.State = next
	s.mu.Unlock()

	if prev == next {
		return
	}
	logger.Debug("session %s -> %s", prev, next)
	s.eventBus.PublishState(prev.String(), next.String())
}

func (s *Session) setSwitch(on bool, source string) {
	s.mu.Lock()
	changed := s.snap.Switch.On != on
	s.snap.Switch.On = on
	s.mu.Unlock()

	logger.Info("Switch %s (%s)", protocol.SwitchMessage(on), source)
	s.eventBus.PublishSwitch(on, source)
	if s.onSwitch != nil && (changed || source == "subscribe") {
		s.onSwitch(on)
	}
}
