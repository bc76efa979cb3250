package power

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/muurk/battctl/internal/probe"
)

func TestPercentageFromSignal(t *testing.T) {
	changed := func(props map[string]dbus.Variant) *dbus.Signal {
		return &dbus.Signal{
			Path: DisplayDevicePath,
			Name: propertiesChanged,
			Body: []interface{}{deviceInterface, props, []string{}},
		}
	}

	tests := []struct {
		name   string
		sig    *dbus.Signal
		want   float64
		wantOK bool
	}{
		{
			name:   "percentage change",
			sig:    changed(map[string]dbus.Variant{"Percentage": dbus.MakeVariant(42.0)}),
			want:   42,
			wantOK: true,
		},
		{
			name: "other property",
			sig:  changed(map[string]dbus.Variant{"State": dbus.MakeVariant(uint32(2))}),
		},
		{
			name: "other object",
			sig: &dbus.Signal{
				Path: "/org/freedesktop/UPower/devices/line_power_AC",
				Name: propertiesChanged,
				Body: []interface{}{deviceInterface, map[string]dbus.Variant{"Percentage": dbus.MakeVariant(1.0)}},
			},
		},
		{
			name: "other interface",
			sig: &dbus.Signal{
				Path: DisplayDevicePath,
				Name: propertiesChanged,
				Body: []interface{}{"org.example.Other", map[string]dbus.Variant{"Percentage": dbus.MakeVariant(1.0)}},
			},
		},
		{
			name: "short body",
			sig:  &dbus.Signal{Path: DisplayDevicePath, Name: propertiesChanged},
		},
		{
			name: "nil signal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := percentageFromSignal(tt.sig, DisplayDevicePath)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("Expected (%v, %v), got (%v, %v)", tt.want, tt.wantOK, got, ok)
			}
		})
	}
}

func TestUPower_ConnectFailure(t *testing.T) {
	u := NewUPower(nil)
	u.Connect = func() (*dbus.Conn, error) { return nil, errors.New("no bus") }

	if _, err := u.Subscribe(context.Background(), func(float64) {}); err == nil {
		t.Error("Expected an error without a bus")
	}
}

type levels struct {
	mu  sync.Mutex
	got []float64
}

func (l *levels) add(v float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.got = append(l.got, v)
}

func (l *levels) snapshot() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]float64(nil), l.got...)
}

func writeCapacity(t *testing.T, root, value string) {
	t.Helper()
	p := filepath.Join(root, "sys/class/power_supply/BAT0/capacity")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(value+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCapacityPoller_ReportsChanges(t *testing.T) {
	root := t.TempDir()
	writeCapacity(t, root, "91")

	p := NewCapacityPoller(probe.New(root), "BAT0")
	p.Interval = 5 * time.Millisecond

	var l levels
	stop, err := p.Subscribe(context.Background(), l.add)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer stop()

	writeCapacity(t, root, "88")
	deadline := time.Now().Add(5 * time.Second)
	for len(l.snapshot()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out, got %v", l.snapshot())
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := l.snapshot()
	if got[0] != 91 || got[1] != 88 {
		t.Errorf("Expected [91 88], got %v", got)
	}
}

func TestCapacityPoller_MissingBattery(t *testing.T) {
	p := NewCapacityPoller(probe.New(t.TempDir()), "BAT1")
	if _, err := p.Subscribe(context.Background(), func(float64) {}); err == nil {
		t.Error("Expected an error for a missing battery")
	}
}

type stubSource struct {
	err    error
	called bool
}

func (s *stubSource) Subscribe(_ context.Context, fn func(float64)) (func(), error) {
	s.called = true
	if s.err != nil {
		return nil, s.err
	}
	fn(50)
	return func() {}, nil
}

func TestChain_FallsBack(t *testing.T) {
	failing := &stubSource{err: errors.New("unavailable")}
	working := &stubSource{}
	unused := &stubSource{}

	var l levels
	stop, err := Chain(nil, failing, working, unused).Subscribe(context.Background(), l.add)
	if err != nil {
		t.Fatalf("Expected the second source to be used, got %v", err)
	}
	stop()

	if !failing.called || !working.called || unused.called {
		t.Errorf("Unexpected calls: failing=%v working=%v unused=%v", failing.called, working.called, unused.called)
	}
	if got := l.snapshot(); len(got) != 1 || got[0] != 50 {
		t.Errorf("Expected [50], got %v", got)
	}
}

func TestChain_NoSource(t *testing.T) {
	_, err := Chain(nil, &stubSource{err: errors.New("a")}).Subscribe(context.Background(), func(float64) {})
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("Expected ErrNoSource, got %v", err)
	}
}
