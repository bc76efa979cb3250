package power

import (
	"context"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"
)

const (
	// UPowerService is the well-known bus name of the UPower daemon
	UPowerService = "org.freedesktop.UPower"

	// DisplayDevicePath is the composite battery UPower exposes for the
	// desktop indicator
	DisplayDevicePath = dbus.ObjectPath("/org/freedesktop/UPower/devices/DisplayDevice")

	deviceInterface     = "org.freedesktop.UPower.Device"
	propertiesInterface = "org.freedesktop.DBus.Properties"
	propertiesChanged   = propertiesInterface + ".PropertiesChanged"
)

// UPower follows the Percentage property of the UPower display device.
type UPower struct {
	// Path is the UPower device object to follow
	Path dbus.ObjectPath

	// Connect opens a private system bus connection. Tests replace it.
	Connect func() (*dbus.Conn, error)

	logger *zap.Logger
}

// NewUPower creates a UPower source for the display device.
func NewUPower(logger *zap.Logger) *UPower {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UPower{
		Path: DisplayDevicePath,
		Connect: func() (*dbus.Conn, error) {
			return dbus.ConnectSystemBus()
		},
		logger: logger,
	}
}

// Subscribe reads the current percentage and then listens for changes on
// a dedicated bus connection, which stop closes.
func (u *UPower) Subscribe(ctx context.Context, fn func(float64)) (func(), error) {
	conn, err := u.Connect()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	// Register the match before the initial read so no update is lost
	matches := []dbus.MatchOption{
		dbus.WithMatchObjectPath(u.Path),
		dbus.WithMatchInterface(propertiesInterface),
		dbus.WithMatchMember("PropertiesChanged"),
	}
	if err := conn.AddMatchSignal(matches...); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", u.Path, err)
	}
	signals := make(chan *dbus.Signal, 16)
	conn.Signal(signals)

	v, err := conn.Object(UPowerService, u.Path).GetProperty(deviceInterface + ".Percentage")
	if err != nil {
		conn.RemoveSignal(signals)
		conn.Close()
		return nil, fmt.Errorf("failed to read battery percentage: %w", err)
	}
	if percent, ok := v.Value().(float64); ok {
		fn(percent)
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if percent, ok := percentageFromSignal(sig, u.Path); ok {
					fn(percent)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
			if err := conn.RemoveMatchSignal(matches...); err != nil {
				u.logger.Debug("Failed to remove UPower match", zap.Error(err))
			}
			conn.RemoveSignal(signals)
			conn.Close()
		})
	}, nil
}

// percentageFromSignal extracts the Percentage from a PropertiesChanged
// signal of the device at path.
func percentageFromSignal(sig *dbus.Signal, path dbus.ObjectPath) (float64, bool) {
	if sig == nil || sig.Path != path || sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return 0, false
	}
	if iface, ok := sig.Body[0].(string); !ok || iface != deviceInterface {
		return 0, false
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		return 0, false
	}
	v, ok := changed["Percentage"]
	if !ok {
		return 0, false
	}
	percent, ok := v.Value().(float64)
	return percent, ok
}
