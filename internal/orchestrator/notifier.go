package orchestrator

import (
	"go.uber.org/zap"

	"github.com/muurk/battctl/internal/device"
	"github.com/muurk/battctl/internal/registry"
	"github.com/muurk/battctl/internal/urls"
)

// Notifier receives everything a user should be told about. Calls may
// come from background goroutines.
type Notifier interface {
	// Unsupported reports that no driver matched.
	Unsupported(err *registry.UnsupportedError)
	// Installation reports an installation status other than installed.
	Installation(status InstallStatus)
	// Event reports a driver outcome or battery presence change.
	Event(d device.Descriptor, e device.Event, s device.State)
}

// LogNotifier writes notifications to a logger.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) logger() *zap.Logger {
	if n.Logger == nil {
		return zap.NewNop()
	}
	return n.Logger
}

func (n LogNotifier) Unsupported(err *registry.UnsupportedError) {
	n.logger().Warn("Unsupported device",
		zap.String("vendor", err.Vendor),
		zap.String("details", urls.DeviceCompatibility(err.DocSuffix)))
}

func (n LogNotifier) Installation(status InstallStatus) {
	n.logger().Warn("Helper installation problem",
		zap.Stringer("status", status),
		zap.String("details", status.Hint()))
}

func (n LogNotifier) Event(d device.Descriptor, e device.Event, s device.State) {
	logger := n.logger().With(zap.String("device", d.Name), zap.Int("battery", e.Battery))
	if e.Kind == device.EventBatteryStatusChanged {
		removed := s.Battery1Removed
		if e.Battery == 2 {
			removed = s.Battery2Removed
		}
		logger.Info("Battery presence changed", zap.Bool("removed", removed))
		return
	}

	switch e.Outcome {
	case device.OutcomeSuccess, device.OutcomeSuccessBattery2:
		end, start, mode := s.EndLimit, s.StartLimit, s.Mode
		if e.Outcome == device.OutcomeSuccessBattery2 {
			end, start, mode = s.EndLimit2, s.StartLimit2, s.Mode2
		}
		logger.Info("Charge threshold applied",
			zap.String("mode", mode.Label()), zap.Int("end", end), zap.Int("start", start))
	case device.OutcomeDischargeBattery:
		logger.Warn("Battery above the requested limit, discharge it below 80% and apply again")
	case device.OutcomePasswordRequired:
		logger.Warn("BIOS password required to change charge thresholds")
	default:
		logger.Warn("Charge threshold not applied", zap.Stringer("outcome", e.Outcome))
	}
}
