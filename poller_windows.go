//go:build windows

package atmt

import (
	"errors"
	"time"
)

// pollFds has no Windows implementation: the platform packet-socket and
// pipe descriptor model this module polls is POSIX-specific, matching
// spec.md's framing of socket construction as an external, platform-owned
// collaborator.
func pollFds(targets []pollTarget, timeout time.Duration) ([]pollTarget, error) {
	return nil, errors.New("atmt: dispatch loop polling is not supported on windows")
}
