package orchestrator

import (
	"context"
	"path/filepath"

	"github.com/muurk/battctl/internal/config"
	"github.com/muurk/battctl/internal/privileged"
	"github.com/muurk/battctl/internal/urls"
)

// HelperDir is where the per-user privileged helper is installed.
const HelperDir = "/usr/local/bin"

// InstallStatus is the result of the helper installation check.
type InstallStatus string

const (
	InstallInstalled    InstallStatus = config.InstallInstalled
	InstallNotInstalled InstallStatus = config.InstallNotInstalled
	InstallNeedUpdate   InstallStatus = config.InstallNeedUpdate
	InstallTimeout      InstallStatus = "timeout"
	InstallError        InstallStatus = "error"
)

// KnownInstallStatuses lists every status for metrics labelling.
var KnownInstallStatuses = []string{
	string(InstallInstalled), string(InstallNotInstalled), string(InstallNeedUpdate),
	string(InstallTimeout), string(InstallError),
}

func (s InstallStatus) String() string { return string(s) }

// Persisted reports whether the status is stored in polkit-status.
// Timeouts and errors are transient and leave the setting alone.
func (s InstallStatus) Persisted() bool {
	return s == InstallInstalled || s == InstallNotInstalled || s == InstallNeedUpdate
}

// Hint tells the user what to do about the status.
func (s InstallStatus) Hint() string {
	switch s {
	case InstallNotInstalled:
		return "install the privileged helper (battctl check-install explains how), see " + urls.PolkitReadme
	case InstallNeedUpdate:
		return "the privileged helper is outdated, reinstall it"
	case InstallTimeout:
		return "the installation check timed out, see " + urls.PolkitReadme
	case InstallError:
		return "the installation check failed"
	default:
		return ""
	}
}

// HelperPath returns the helper location for user.
func HelperPath(user string) string {
	return helperPathIn(HelperDir, user)
}

func helperPathIn(dir, user string) string {
	return filepath.Join(dir, "batteryhealthchargingctl-"+user)
}

func statusFromExit(status privileged.Status) InstallStatus {
	switch status {
	case privileged.StatusSuccess:
		return InstallInstalled
	case privileged.StatusNeedsUpdate, privileged.StatusError:
		return InstallNeedUpdate
	case privileged.StatusTimeout:
		return InstallTimeout
	default:
		return InstallError
	}
}

// CheckInstallation looks for the helper and asks it to compare itself
// with the resource directory. On success the helper path becomes the
// driver's ctl path.
func (o *Orchestrator) CheckInstallation(ctx context.Context) InstallStatus {
	ctlPath := helperPathIn(o.cfg.HelperDir, o.cfg.User)
	if !o.env.FS.FileExists(ctlPath) {
		return InstallNotInstalled
	}

	o.mu.Lock()
	o.ctlPath = ctlPath
	o.mu.Unlock()

	if o.env.Commander == nil {
		return InstallError
	}
	status, _ := o.env.Commander.RunCtl(ctx, ctlPath, "CHECKINSTALLATION", o.cfg.ResourceDir, o.cfg.User)
	return statusFromExit(status)
}
