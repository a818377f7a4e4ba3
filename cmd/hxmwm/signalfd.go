package main

import "golang.org/x/sys/unix"

// newSignalFD blocks SIGTERM/SIGINT from their default disposition and
// returns a signalfd the tick scheduler's epoll set can watch, so a
// pending signal becomes just another readable fd the central poll
// wakes up for (spec.md §5's "epoll (transport fd, signalfd,
// timerfd)"). Actual delivery/handling still goes through os/signal in
// the select loop in main; this fd only nudges the poll to return
// promptly instead of sitting in an indefinite wait.
func newSignalFD() (int, error) {
	var set unix.Sigset_t
	set.Val[0] |= 1 << (uint(unix.SIGTERM) - 1)
	set.Val[0] |= 1 << (uint(unix.SIGINT) - 1)
	if err := unix.SigprocMask(unix.SIG_BLOCK, &set, nil); err != nil {
		return 0, err
	}
	return unix.Signalfd(-1, &set, 0)
}
