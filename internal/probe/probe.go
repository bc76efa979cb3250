package probe

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DMI identity files.
const (
	DMIVendorPath    = "/sys/devices/virtual/dmi/id/sys_vendor"
	DMIBoardNamePath = "/sys/devices/virtual/dmi/id/board_name"
)

// FS resolves host paths below an optional root directory.
type FS struct {
	// Root is prepended to every path. Empty means the real filesystem.
	Root string

	// Getenv looks up environment variables (PATH, USER). Defaults to os.Getenv.
	Getenv func(string) string
}

// New returns an FS rooted at root.
func New(root string) *FS {
	return &FS{Root: root, Getenv: os.Getenv}
}

// Host returns an FS for the real filesystem.
func Host() *FS {
	return New("")
}

// Path maps a host path to its location below Root.
func (f *FS) Path(p string) string {
	if f == nil || f.Root == "" {
		return p
	}
	return filepath.Join(f.Root, p)
}

// FileExists reports whether the path exists. Errors other than "not exist"
// (for example permission denied on a sysfs node) still count as existing.
func (f *FS) FileExists(p string) bool {
	_, err := os.Lstat(f.Path(p))
	if err == nil {
		return true
	}
	return !os.IsNotExist(err)
}

// ReadFile returns the file content with surrounding whitespace removed.
func (f *FS) ReadFile(p string) (string, bool) {
	data, err := os.ReadFile(f.Path(p))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// ReadFileInt reads a file holding a single decimal integer.
func (f *FS) ReadFileInt(p string) (int, bool) {
	s, ok := f.ReadFile(p)
	if !ok || s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(leadingInt(s))
	if err != nil {
		return 0, false
	}
	return v, true
}

// ReadFileIntOr reads an integer file, returning def when it is missing or
// unparsable.
func (f *FS) ReadFileIntOr(p string, def int) int {
	if v, ok := f.ReadFileInt(p); ok {
		return v
	}
	return def
}

// DMIVendor returns the system vendor string, or "" when unavailable.
func (f *FS) DMIVendor() string {
	s, _ := f.ReadFile(DMIVendorPath)
	return s
}

// DMIBoardName returns the board name string, or "" when unavailable.
func (f *FS) DMIBoardName() string {
	s, _ := f.ReadFile(DMIBoardNamePath)
	return s
}

// VendorContains reports whether the DMI vendor contains substr.
func (f *FS) VendorContains(substr string) bool {
	return strings.Contains(f.DMIVendor(), substr)
}

// BracketToken extracts the selected value from a sysfs selector such as
// "Custom [Adaptive] Fast". It returns "" when no bracket pair is present.
func BracketToken(s string) string {
	open := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if open < 0 || end <= open {
		return ""
	}
	return s[open+1 : end]
}

// leadingInt trims anything after the first run of digits so values like
// "80\n" or "80 (max)" parse the way the kernel means them.
func leadingInt(s string) string {
	i := 0
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		i++
	}
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	return s[:i]
}
