//go:build !windows

package atmt

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// pollFds multiplexes the given descriptors with golang.org/x/sys/unix,
// the same fd-polling dependency used for poller_linux.go in the
// joeycumines-go-utilpkg eventloop package this module draws on. timeout
// of -1 waits indefinitely.
func pollFds(targets []pollTarget, timeout time.Duration) ([]pollTarget, error) {
	if len(targets) == 0 {
		// No descriptors to wait on: still honor the timeout so callers
		// that only have timers keep working.
		if timeout > 0 {
			time.Sleep(timeout)
		}
		return nil, nil
	}

	fds := make([]unix.PollFd, len(targets))
	for i, t := range targets {
		fds[i] = unix.PollFd{Fd: int32(t.fd), Events: unix.POLLIN}
	}

	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	n, err := unix.Poll(fds, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil, nil
		}
		return nil, fmt.Errorf("unix.Poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	ready := make([]pollTarget, 0, n)
	for i, pfd := range fds {
		if pfd.Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			ready = append(ready, targets[i])
		}
	}
	return ready, nil
}
