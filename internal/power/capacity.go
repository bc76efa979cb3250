package power

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/muurk/battctl/internal/probe"
)

// DefaultPollInterval is how often the capacity attribute is read.
const DefaultPollInterval = 30 * time.Second

// CapacityPoller reads /sys/class/power_supply/<bat>/capacity periodically.
type CapacityPoller struct {
	FS       *probe.FS
	Battery  string
	Interval time.Duration
}

// NewCapacityPoller creates a poller for bat with the default interval.
func NewCapacityPoller(fs *probe.FS, bat string) *CapacityPoller {
	return &CapacityPoller{FS: fs, Battery: bat, Interval: DefaultPollInterval}
}

func (p *CapacityPoller) path() string {
	return "/sys/class/power_supply/" + p.Battery + "/capacity"
}

// Subscribe reports the capacity now and then on every change.
func (p *CapacityPoller) Subscribe(ctx context.Context, fn func(float64)) (func(), error) {
	level, ok := p.FS.ReadFileInt(p.path())
	if !ok {
		return nil, fmt.Errorf("battery capacity not readable at %s", p.path())
	}
	fn(float64(level))

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		last := level
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now, ok := p.FS.ReadFileInt(p.path())
				if !ok || now == last {
					continue
				}
				last = now
				fn(float64(now))
			}
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}, nil
}
