package privileged

import "fmt"

// Status is the exit status of a helper invocation. The named values are
// the helper's fixed taxonomy; other values are passed through as-is so a
// backend can interpret vendor-specific codes.
type Status int

const (
	StatusSuccess           Status = 0
	StatusError             Status = 1
	StatusNeedsUpdate       Status = 2
	StatusTimeout           Status = 3
	StatusPrivilegeRequired Status = 126
)

// Dell's cctk exits with one of these when the BIOS setup password is
// required or was rejected.
const (
	StatusPasswordRequired Status = 65
	StatusPasswordInvalid  Status = 58
)

// String returns a short status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	case StatusNeedsUpdate:
		return "needs-update"
	case StatusTimeout:
		return "timeout"
	case StatusPrivilegeRequired:
		return "privilege-required"
	case StatusPasswordRequired, StatusPasswordInvalid:
		return "password-required"
	default:
		return fmt.Sprintf("exit-%d", int(s))
	}
}

// IsPasswordRequired reports whether the status is one of the codes the
// Dell cctk tool uses for a missing or wrong BIOS password.
func (s Status) IsPasswordRequired() bool {
	return s == StatusPasswordRequired || s == StatusPasswordInvalid
}
