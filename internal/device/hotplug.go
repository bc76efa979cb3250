package device

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// watchPresence follows the existence of the given files until Destroy and
// calls onChange on every transition. initial holds the presence the
// caller already knows about. Both the file's directory and its parent
// are watched because a removed battery takes its whole power_supply
// directory with it; a poll covers sysfs nodes that raise no events.
func (d *Driver) watchPresence(initial map[string]bool, onChange func(path string, present bool)) {
	present := make(map[string]bool, len(initial))
	for p, v := range initial {
		present[p] = v
	}

	d.async(func(ctx context.Context) {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			d.logger.Warn("Battery presence watcher unavailable, polling only", zap.Error(err))
			watcher = nil
		}
		if watcher != nil {
			defer watcher.Close()
			d.addPresenceWatches(watcher, present)
		}

		recheck := func() {
			for p, was := range present {
				now := d.env.FS.FileExists(p)
				if now == was {
					continue
				}
				present[p] = now
				d.logger.Info("Battery presence changed", zap.String("path", p), zap.Bool("present", now))
				onChange(p, now)
			}
		}

		ticker := time.NewTicker(d.env.HotplugPoll)
		defer ticker.Stop()

		var events <-chan fsnotify.Event
		var errs <-chan error
		if watcher != nil {
			events = watcher.Events
			errs = watcher.Errors
		}

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				// A recreated battery directory needs a fresh watch.
				d.addPresenceWatches(watcher, present)
				recheck()
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				d.logger.Debug("Battery presence watcher error", zap.Error(err))
			case <-ticker.C:
				recheck()
			}
		}
	})
}

func (d *Driver) addPresenceWatches(watcher *fsnotify.Watcher, present map[string]bool) {
	watched := make(map[string]bool)
	for _, p := range watcher.WatchList() {
		watched[p] = true
	}
	for p := range present {
		dir := filepath.Dir(d.env.FS.Path(p))
		for _, w := range []string{dir, filepath.Dir(dir)} {
			if watched[w] {
				continue
			}
			if err := watcher.Add(w); err == nil {
				watched[w] = true
			}
		}
	}
}
