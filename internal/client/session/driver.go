package session

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"

	"bemfarelay/internal/client/events"
	"bemfarelay/internal/client/logger"
	"bemfarelay/internal/storage"
)

// NetworkMonitor reports whether the uplink is usable.
type NetworkMonitor interface {
	Available() bool
}

// Driver runs a Session tick by tick while the network is available.
type Driver struct {
	cfg       Config
	transport Transport
	store     storage.DeviceStateStore
	network   NetworkMonitor
	clock     clock.Clock
	reconnect *ReconnectConfig

	eventBus *events.Bus
	onSwitch SwitchHandler
	report   ErrorReporter

	mu      sync.RWMutex
	current *Session
	creds   Credentials
}

// NewDriver creates a driver reading credentials from store.
func NewDriver(cfg Config, t Transport, store storage.DeviceStateStore, network NetworkMonitor) *Driver {
	return &Driver{
		cfg:       cfg,
		transport: t,
		store:     store,
		network:   network,
		clock:     clock.New(),
		reconnect: DefaultReconnectConfig(),
	}
}

// SetClock replaces the clock used for pacing.
func (d *Driver) SetClock(c clock.Clock) {
	d.clock = c
}

// SetReconnectConfig sets the inter-tick pacing.
func (d *Driver) SetReconnectConfig(cfg *ReconnectConfig) {
	if cfg != nil {
		d.reconnect = cfg
	}
}

// SetEventBus sets the event bus for all sessions.
func (d *Driver) SetEventBus(bus *events.Bus) {
	d.eventBus = bus
}

// SetSwitchHandler sets the switch callback for all sessions.
func (d *Driver) SetSwitchHandler(h SwitchHandler) {
	d.onSwitch = h
}

// SetErrorReporter sets the failure sink for all sessions.
func (d *Driver) SetErrorReporter(r ErrorReporter) {
	d.report = r
}

// Snapshot returns the state of the most recent session.
func (d *Driver) Snapshot() (Snapshot, bool) {
	d.mu.RLock()
	sess := d.current
	d.mu.RUnlock()
	if sess == nil {
		return Snapshot{State: Idle}, false
	}
	return sess.Snapshot(), true
}

func (d *Driver) loadCredentials() (Credentials, error) {
	creds, err := LoadCredentials(d.store)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		if d.creds.Validate() == nil {
			logger.Warn("Using cached credentials: %v", err)
			return d.creds, nil
		}
		return Credentials{}, err
	}
	d.creds = creds
	return creds, nil
}

// Run drives one session until the network goes away or ctx ends. The
// socket is always closed and the session left Idle on return. Session
// failures are never returned; only credential and context errors are.
func (d *Driver) Run(ctx context.Context) error {
	creds, err := d.loadCredentials()
	if err != nil {
		return err
	}

	sess := New(d.cfg, d.transport, creds)
	sess.SetEventBus(d.eventBus)
	sess.SetSwitchHandler(d.onSwitch)
	sess.SetErrorReporter(d.report)

	d.mu.Lock()
	d.current = sess
	d.mu.Unlock()

	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("Error closing broker socket: %v", err)
		}
	}()

	logger.Info("Starting bemfa session for topic %s", creds.Topic)
	sess.Start()
	bo := newBackoff(d.reconnect)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Session shutdown requested")
			return ctx.Err()
		default:
		}

		if !d.network.Available() {
			logger.Warn("Network unavailable, closing session")
			return nil
		}

		tickErr := sess.Tick(ctx)
		delay := bo.next(tickErr)
		if tickErr != nil && bo.backingOff() {
			logger.Warn("%d consecutive failures, next attempt in %v", bo.failures, delay)
			d.eventBus.PublishBackoff(bo.failures, delay)
		}

		timer := d.clock.Timer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.Info("Session shutdown requested during wait")
			return ctx.Err()
		}
	}
}

// Supervise repeats Run across network down/up cycles until ctx ends.
func (d *Driver) Supervise(ctx context.Context) error {
	known, last := false, false

	for {
		up := d.network.Available()
		if !known || up != last {
			known, last = true, up
			if up {
				logger.Info("Network available")
			} else {
				logger.Warn("Network down, waiting")
			}
			d.eventBus.PublishNetwork(up)
		}

		if up {
			if err := d.Run(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Error("Cannot start session: %v", err)
				d.eventBus.PublishError(err, "credentials")
			}
		}

		timer := d.clock.Timer(d.reconnect.InitialDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
