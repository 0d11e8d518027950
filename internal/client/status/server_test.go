package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bemfarelay/internal/client/events"
	"bemfarelay/internal/client/session"
)

type fixedSource struct {
	snap   session.Snapshot
	active bool
}

func (f *fixedSource) Snapshot() (session.Snapshot, bool) { return f.snap, f.active }

func TestStatusEndpoint(t *testing.T) {
	at := time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC)
	src := &fixedSource{active: true, snap: session.Snapshot{
		State:       session.Listening,
		Switch:      session.SwitchState{On: true},
		Topic:       "esp32switchea28006",
		BrokerAddr:  "119.91.109.180:8344",
		LastError:   "recv: peer closed connection",
		LastErrorAt: at,
		Ticks:       42,
		Failures:    1,
		Connects:    2,
		Pushes:      3,
	}}
	srv := httptest.NewServer(NewServer("", src).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var got Response
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.Active || got.State != "listening" || got.Switch != "on" {
		t.Errorf("got %+v", got)
	}
	if got.Topic != "esp32switchea28006" || got.BrokerAddr != "119.91.109.180:8344" {
		t.Errorf("got %+v", got)
	}
	if got.LastErrorAt == nil || !got.LastErrorAt.Equal(at) {
		t.Errorf("LastErrorAt = %v", got.LastErrorAt)
	}
	if got.Ticks != 42 || got.Failures != 1 || got.Connects != 2 || got.Pushes != 3 {
		t.Errorf("counters = %+v", got)
	}
}

func TestStatusEndpoint_NoSession(t *testing.T) {
	srv := httptest.NewServer(NewServer("", &fixedSource{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/status")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got Response
	json.NewDecoder(resp.Body).Decode(&got)
	if got.Active || got.State != "idle" || got.Switch != "off" || got.LastErrorAt != nil {
		t.Errorf("got %+v", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	src := &fixedSource{active: true, snap: session.Snapshot{
		State:    session.Listening,
		Switch:   session.SwitchState{On: true},
		Failures: 7,
	}}
	s := NewServer("", src)
	s.Record(events.Event{Type: events.EventDisconnected})
	s.Record(events.Event{Type: events.EventDisconnected})
	s.Record(events.Event{Type: events.EventLog, Data: events.LogData{Message: "ignored"}})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		"bemfa_relay_session_state 6",
		"bemfa_relay_switch_on 1",
		"bemfa_relay_failures_total 7",
		`bemfa_relay_events_total{type="disconnected"} 2`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
	if strings.Contains(text, `type="log"`) {
		t.Error("log events should not be counted")
	}
}

func TestEventsEndpoint(t *testing.T) {
	s := NewServer("", &fixedSource{})
	s.Record(events.Event{Type: events.EventStateChanged, Data: events.StateData{From: "idle", To: "resolving_host"}})
	s.Record(events.Event{Type: events.EventError, Data: events.ErrorData{Error: errors.New("refused"), Context: "connecting"}})

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/events")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].Type != "error" || entries[0].Detail != "connecting: refused" {
		t.Errorf("newest entry = %+v", entries[0])
	}
	if entries[1].Detail != "idle -> resolving_host" {
		t.Errorf("oldest entry = %+v", entries[1])
	}
}

func TestFollow(t *testing.T) {
	s := NewServer("", &fixedSource{})
	bus := events.NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Follow(ctx, bus)
	deadline := time.Now().Add(time.Second)
	for bus.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	bus.Publish(events.Event{Type: events.EventSwitchChanged, Data: events.SwitchData{On: true, Source: "push"}})
	for s.History().Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	entries := s.History().List()
	if len(entries) != 1 || entries[0].Detail != "on (push)" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestHistory_Bounded(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 5; i++ {
		h.Add(events.Event{Type: events.EventBackoff, Data: events.BackoffData{Failures: i, Delay: time.Second}})
	}
	list := h.List()
	if len(list) != 3 {
		t.Fatalf("len = %d", len(list))
	}
	if list[0].ID != 5 || list[2].ID != 3 {
		t.Errorf("ids = %d..%d", list[0].ID, list[2].ID)
	}
	if list[0].Detail != "4 failures, waiting 1s" {
		t.Errorf("detail = %q", list[0].Detail)
	}
}

func TestStartShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", &fixedSource{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
