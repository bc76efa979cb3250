package device

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/privileged"
	"github.com/muurk/battctl/internal/probe"
)

const testCtlPath = "/usr/local/bin/batteryhealthchargingctl-test"

// fakeCommander records every invocation and answers through handlers
// keyed by helper command keyword (or argv[0] for direct executions).
type fakeCommander struct {
	mu       sync.Mutex
	calls    [][]string
	handlers map[string]func(argv []string) (privileged.Status, string)
}

func newFakeCommander() *fakeCommander {
	return &fakeCommander{handlers: make(map[string]func([]string) (privileged.Status, string))}
}

func (f *fakeCommander) on(keyword string, fn func(argv []string) (privileged.Status, string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[keyword] = fn
}

func (f *fakeCommander) Execute(_ context.Context, argv []string) (privileged.Status, *string) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), argv...))
	keyword := argv[0]
	if keyword == "pkexec" && len(argv) > 2 {
		keyword = argv[2]
	}
	fn := f.handlers[keyword]
	f.mu.Unlock()

	if fn == nil {
		out := ""
		return privileged.StatusSuccess, &out
	}
	status, out := fn(argv)
	return status, &out
}

func (f *fakeCommander) RunCtl(ctx context.Context, ctlPath, command string, args ...string) (privileged.Status, *string) {
	argv := []string{"pkexec", ctlPath, command}
	for _, a := range args {
		if a != "" {
			argv = append(argv, a)
		}
	}
	return f.Execute(ctx, argv)
}

func (f *fakeCommander) Calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.calls...)
}

// recorder collects emitted events.
type recorder struct {
	mu     sync.Mutex
	events []Event
	ch     chan Event
}

func newRecorder(obs *Observers) *recorder {
	r := &recorder{ch: make(chan Event, 256)}
	obs.Subscribe(func(e Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
		select {
		case r.ch <- e:
		default:
		}
	})
	return r
}

func (r *recorder) Outcomes() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Outcome
	for _, e := range r.events {
		if e.Kind == EventThresholdApplied {
			out = append(out, e.Outcome)
		}
	}
	return out
}

// wait returns the next event matching match or fails after a timeout.
func (r *recorder) wait(t *testing.T, match func(Event) bool) Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case e := <-r.ch:
			if match(e) {
				return e
			}
		case <-deadline:
			t.Fatal("Timed out waiting for event")
			return Event{}
		}
	}
}

type testRig struct {
	root     string
	fs       *probe.FS
	cmd      *fakeCommander
	settings *config.FileStore
	rec      *recorder
	env      Env
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	root := t.TempDir()
	fs := probe.New(root)
	fs.Getenv = func(string) string { return "" }

	obs := NewObservers()
	rig := &testRig{
		root:     root,
		fs:       fs,
		cmd:      newFakeCommander(),
		settings: config.NewMemoryStore(),
		rec:      newRecorder(obs),
	}
	rig.env = Env{
		FS:          fs,
		Commander:   rig.cmd,
		Settings:    rig.settings,
		Observers:   obs,
		SettleDelay: time.Millisecond,
		HotplugPoll: 20 * time.Millisecond,
	}
	return rig
}

func (r *testRig) setPath(dirs string) {
	r.fs.Getenv = func(key string) string {
		if key == "PATH" {
			return dirs
		}
		return ""
	}
}

func (r *testRig) write(t *testing.T, p, content string) {
	t.Helper()
	r.writeMode(t, p, content, 0o644)
}

func (r *testRig) writeMode(t *testing.T, p, content string, mode os.FileMode) {
	t.Helper()
	full := r.fs.Path(p)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), mode); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
}

func (r *testRig) remove(t *testing.T, p string) {
	t.Helper()
	if err := os.Remove(r.fs.Path(p)); err != nil {
		t.Fatalf("remove %s: %v", p, err)
	}
}

func (r *testRig) readInt(t *testing.T, p string) int {
	t.Helper()
	v, ok := r.fs.ReadFileInt(p)
	if !ok {
		t.Fatalf("read %s: not an integer", p)
	}
	return v
}

// writesFile makes a helper command store its argument at index arg in p,
// the way the real helper would.
func (r *testRig) writesFile(p string, arg int) func([]string) (privileged.Status, string) {
	return func(argv []string) (privileged.Status, string) {
		if arg < len(argv) {
			_ = os.WriteFile(r.fs.Path(p), []byte(argv[arg]+"\n"), 0o644)
		}
		return privileged.StatusSuccess, ""
	}
}

func (r *testRig) driver(t *testing.T, c Constructor) *Driver {
	t.Helper()
	d := c(r.env)
	d.SetCtlPath(testCtlPath)
	t.Cleanup(d.Destroy)
	return d
}

func mustAvailable(t *testing.T, d *Driver) {
	t.Helper()
	if !d.IsAvailable(context.Background()) {
		t.Fatalf("Expected %s to be available", d.Name())
	}
}

func equalArgv(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// fakePower hands the subscriber callback to the test.
type fakePower struct {
	mu      sync.Mutex
	fn      func(float64)
	stopped bool
}

func (p *fakePower) Subscribe(_ context.Context, fn func(float64)) (func(), error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn = fn
	p.stopped = false
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.stopped = true
	}, nil
}

func (p *fakePower) send(level float64) {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		fn(level)
	}
}

func (p *fakePower) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// fakeSecrets is an in-memory secret store.
type fakeSecrets struct {
	password string
}

func (s *fakeSecrets) BIOSPassword() (string, error) {
	if s.password == "" {
		return "", config.ErrNoPassword
	}
	return s.password, nil
}

func (s *fakeSecrets) SetBIOSPassword(p string) error {
	s.password = p
	return nil
}

func (s *fakeSecrets) ClearBIOSPassword() error {
	s.password = ""
	return nil
}

// writesThresholds stores "<cmd> end start" arguments in the given files.
func (r *testRig) writesThresholds(endPath, startPath string) func([]string) (privileged.Status, string) {
	end := r.writesFile(endPath, 3)
	start := r.writesFile(startPath, 4)
	return func(argv []string) (privileged.Status, string) {
		end(argv)
		return start(argv)
	}
}

// writesBracket stores the argument at index arg as the selected token of
// a sysfs choice attribute.
func (r *testRig) writesBracket(p string, arg int, choices ...string) func([]string) (privileged.Status, string) {
	return func(argv []string) (privileged.Status, string) {
		parts := make([]string, len(choices))
		for i, c := range choices {
			parts[i] = c
			if arg < len(argv) && c == argv[arg] {
				parts[i] = "[" + c + "]"
			}
		}
		_ = os.WriteFile(r.fs.Path(p), []byte(strings.Join(parts, " ")+"\n"), 0o644)
		return privileged.StatusSuccess, ""
	}
}
