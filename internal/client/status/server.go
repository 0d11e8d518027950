// Package status serves the relay's local status API and Prometheus metrics.
package status

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bemfarelay/internal/client/events"
	"bemfarelay/internal/client/logger"
	"bemfarelay/internal/client/session"
)

// SnapshotSource provides the current session view.
type SnapshotSource interface {
	Snapshot() (session.Snapshot, bool)
}

// Response is the body of GET /api/status.
type Response struct {
	Active      bool       `json:"active"`
	State       string     `json:"state"`
	Switch      string     `json:"switch"`
	Topic       string     `json:"topic"`
	BrokerAddr  string     `json:"broker_addr,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
	Ticks       uint64     `json:"ticks"`
	Failures    uint64     `json:"failures"`
	Connects    uint64     `json:"connects"`
	Pushes      uint64     `json:"pushes"`
}

// Server is the status HTTP server with its own state.
type Server struct {
	source   SnapshotSource
	history  *History
	registry *prometheus.Registry
	events   *prometheus.CounterVec
	addr     string
	httpSrv  *http.Server
}

// NewServer creates a status server for source listening on addr.
func NewServer(addr string, source SnapshotSource) *Server {
	s := &Server{
		source:   source,
		history:  NewHistory(100),
		registry: prometheus.NewRegistry(),
		addr:     addr,
	}
	s.registerMetrics()
	return s
}

// History returns the recorded event history.
func (s *Server) History() *History {
	return s.history
}

func (s *Server) snapshot() session.Snapshot {
	snap, _ := s.source.Snapshot()
	return snap
}

func (s *Server) registerMetrics() {
	gauge := func(name, help string, f func(session.Snapshot) float64) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "bemfa_relay",
			Name:      name,
			Help:      help,
		}, func() float64 { return f(s.snapshot()) })
	}
	counter := func(name, help string, f func(session.Snapshot) uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "bemfa_relay",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(f(s.snapshot())) })
	}

	s.events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bemfa_relay",
		Name:      "events_total",
		Help:      "Session events by type.",
	}, []string{"type"})

	s.registry.MustRegister(
		gauge("session_state", "Current session state (0 idle .. 6 listening).", func(snap session.Snapshot) float64 {
			return float64(snap.State)
		}),
		gauge("switch_on", "1 when the relay switch is on.", func(snap session.Snapshot) float64 {
			if snap.Switch.On {
				return 1
			}
			return 0
		}),
		counter("ticks_total", "State machine ticks in the current session.", func(snap session.Snapshot) uint64 { return snap.Ticks }),
		counter("failures_total", "Failed ticks in the current session.", func(snap session.Snapshot) uint64 { return snap.Failures }),
		counter("connects_total", "Broker connections in the current session.", func(snap session.Snapshot) uint64 { return snap.Connects }),
		counter("pushes_total", "Switch pushes received in the current session.", func(snap session.Snapshot) uint64 { return snap.Pushes }),
		s.events,
	)
}

// Follow records events from bus until ctx ends or the bus closes.
func (s *Server) Follow(ctx context.Context, bus *events.Bus) {
	ch := bus.Subscribe(events.SessionEvents...)
	go func() {
		defer bus.Unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				s.Record(ev)
			}
		}
	}()
}

// Record adds ev to the history and the event counter.
func (s *Server) Record(ev events.Event) {
	if ev.Type == events.EventLog {
		return
	}
	s.events.WithLabelValues(ev.Type.String()).Inc()
	s.history.Add(ev)
}

// Handler returns the gin router serving the API.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/api/status", s.handleStatus)
	r.GET("/api/events", s.handleEvents)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	return r
}

func (s *Server) handleStatus(c *gin.Context) {
	snap, active := s.source.Snapshot()
	resp := Response{
		Active:     active,
		State:      snap.State.String(),
		Switch:     "off",
		Topic:      snap.Topic,
		BrokerAddr: snap.BrokerAddr,
		LastError:  snap.LastError,
		Ticks:      snap.Ticks,
		Failures:   snap.Failures,
		Connects:   snap.Connects,
		Pushes:     snap.Pushes,
	}
	if snap.Switch.On {
		resp.Switch = "on"
	}
	if !snap.LastErrorAt.IsZero() {
		at := snap.LastErrorAt
		resp.LastErrorAt = &at
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleEvents(c *gin.Context) {
	c.JSON(http.StatusOK, s.history.List())
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}()

	logger.Info("Status API listening on http://%s", s.addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			logger.Error("Status API stopped: %v", err)
		}
	}()
}
