package registry

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/device"
	"github.com/muurk/battctl/internal/probe"
	"github.com/muurk/battctl/internal/urls"
)

// UnsupportedError is returned when no driver matches the laptop.
type UnsupportedError struct {
	// Vendor is the DMI system vendor, possibly empty
	Vendor string
	// DocSuffix is "" or "/<vendor>" for the compatibility documentation
	DocSuffix string
}

func (e *UnsupportedError) Error() string {
	if e.DocSuffix == "" {
		return "unsupported device: no charge threshold interface found"
	}
	return fmt.Sprintf("unsupported device: missing dependencies for %s, see %s",
		e.Vendor, urls.DeviceCompatibility(e.DocSuffix))
}

// vendorDocs maps DMI vendor substrings to documentation sections, in
// match order.
var vendorDocs = []struct {
	vendor string
	suffix string
}{
	{"Apple Inc", "apple"},
	{"Apple", "apple"},
	{"Dell Inc.", "dell"},
	{"Acer", "acer"},
	{"MSI", "msi"},
	{"Google", "chromebook"},
	{"Framework", "framework"},
	{"GIGABYTE", "gigabyte"},
	{"SLIMBOOK", "slimbook"},
	{"TUXEDO", "tuxedo"},
	{"Razer", "razer"},
}

// DocSuffix picks the documentation section for the laptop from its DMI
// vendor, or from its board name for Intel QC71 based models.
func DocSuffix(fs *probe.FS) string {
	if vendor := fs.DMIVendor(); vendor != "" {
		for _, v := range vendorDocs {
			if strings.Contains(vendor, v.vendor) {
				return "/" + v.suffix
			}
		}
	}
	if strings.Contains(fs.DMIBoardName(), "LAPQC71") {
		return "/intel-qc71"
	}
	return ""
}

// Registry holds the ordered driver constructors.
type Registry struct {
	env          device.Env
	constructors []device.Constructor
	index        map[int]device.Constructor
	logger       *zap.Logger
}

// New creates a registry over constructors, or device.Catalog() when none
// are given. env is handed to every driver built.
func New(env device.Env, constructors ...device.Constructor) *Registry {
	if len(constructors) == 0 {
		constructors = device.Catalog()
	}
	if env.FS == nil {
		env.FS = probe.Host()
	}
	if env.Settings == nil {
		env.Settings = config.NewMemoryStore()
	}
	if env.Observers == nil {
		env.Observers = device.NewObservers()
	}
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Registry{
		env:          env,
		constructors: constructors,
		index:        make(map[int]device.Constructor, len(constructors)),
		logger:       logger.Named("registry"),
	}

	// Build index
	for _, c := range constructors {
		d := c(env)
		r.index[d.Type()] = c
		d.Destroy()
	}
	return r
}

// Get returns the constructor for a device type.
func (r *Registry) Get(typ int) (device.Constructor, bool) {
	c, ok := r.index[typ]
	return c, ok
}

// Count returns the number of known drivers.
func (r *Registry) Count() int {
	return len(r.constructors)
}

// Detect returns the driver for this laptop. Drivers that were probed
// but not selected are destroyed before Detect returns.
func (r *Registry) Detect(ctx context.Context) (*device.Driver, error) {
	settings := r.env.Settings

	if typ := settings.Int(config.KeyDeviceType); typ != 0 {
		if c, ok := r.Get(typ); ok {
			d := c(r.env)
			if d.IsAvailable(ctx) {
				r.logger.Debug("Persisted device still available", zap.String("device", d.Name()))
				return d, nil
			}
			d.Destroy()
			r.logger.Info("Persisted device no longer available, rescanning", zap.Int("type", typ))
		} else {
			r.logger.Warn("Unknown persisted device type, rescanning", zap.Int("type", typ))
		}
		r.set(func() error { return settings.SetInt(config.KeyDeviceType, 0) })
		r.set(func() error { return settings.SetString(config.KeyChargingMode, string(device.ModeFull)) })
	}

	for _, c := range r.constructors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d := c(r.env)
		if !d.IsAvailable(ctx) {
			d.Destroy()
			continue
		}
		r.set(func() error { return settings.SetInt(config.KeyDeviceType, d.Type()) })
		r.logger.Info("Supported device found", zap.String("device", d.Name()), zap.Int("type", d.Type()))
		return d, nil
	}

	err := &UnsupportedError{Vendor: r.env.FS.DMIVendor(), DocSuffix: DocSuffix(r.env.FS)}
	r.logger.Warn("No supported device found", zap.String("vendor", err.Vendor), zap.String("docs", err.DocSuffix))
	return nil, err
}

func (r *Registry) set(fn func() error) {
	if err := fn(); err != nil {
		r.logger.Warn("Failed to save setting", zap.Error(err))
	}
}
