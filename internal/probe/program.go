package probe

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// TrustedPrefixes are the installation directories a vendor tool may be
// executed from. Tools found anywhere else on PATH are ignored because the
// privileged helper runs them as root.
var TrustedPrefixes = []string{
	"/usr/local/sbin/",
	"/usr/local/bin/",
	"/usr/sbin/",
	"/usr/bin/",
	"/opt/",
	"/run/wrapper/bin/",
	"/run/current-system/sw/bin/",
	"/etc/profiles/per-user/",
}

// FindProgramInPath returns the first PATH entry holding an executable
// named program, without any prefix restriction.
func (f *FS) FindProgramInPath(program string) string {
	for _, dir := range filepath.SplitList(f.getenv("PATH")) {
		if dir == "" {
			continue
		}
		candidate := filepath.Join(dir, program)
		if f.isExecutable(candidate) {
			return candidate
		}
	}
	return ""
}

// FindValidProgramInPath looks program up on PATH and returns its location
// only when it lives below one of TrustedPrefixes. A per-user Nix profile
// entry is accepted when it is a symlink into /nix/store ending in the
// program name; the resolved store path is returned in that case.
func (f *FS) FindValidProgramInPath(program string) string {
	found := f.FindProgramInPath(program)
	if found == "" {
		return ""
	}

	for _, prefix := range TrustedPrefixes {
		if strings.HasPrefix(found, prefix) {
			return found
		}
	}

	nixProfile := "/home/" + f.getenv("USER") + "/.nix-profile/bin/"
	if strings.HasPrefix(found, nixProfile) {
		target, err := os.Readlink(f.Path(found))
		if err != nil {
			return ""
		}
		if strings.HasPrefix(target, "/nix/store/") && strings.HasSuffix(target, "/"+program) {
			return target
		}
	}

	return ""
}

// ProgramOr returns the trusted PATH location of program, falling back to
// fallback when that file exists. It returns "" when neither is usable.
func (f *FS) ProgramOr(program, fallback string) string {
	if p := f.FindValidProgramInPath(program); p != "" {
		return p
	}
	if fallback != "" && f.FileExists(fallback) {
		return fallback
	}
	return ""
}

func (f *FS) isExecutable(p string) bool {
	info, err := os.Stat(f.Path(p))
	if err != nil || info.IsDir() {
		return false
	}
	return unix.Access(f.Path(p), unix.X_OK) == nil
}

func (f *FS) getenv(key string) string {
	if f.Getenv != nil {
		return f.Getenv(key)
	}
	return os.Getenv(key)
}
