package wm

import (
	"golang.org/x/sys/unix"
)

// Poller abstracts the central suspension point (spec.md §5): wait for
// the transport to have something ready, or return immediately when
// pollImmediate is set because the last ingest hit its per-tick cap.
type Poller interface {
	Wait(pollImmediate bool) error
}

// EpollPoller multiplexes the X transport fd alongside whatever other
// fds the caller registers (a signalfd, a timerfd) — the core only
// owns the epoll set itself; creating and arming those other fds is
// the caller's concern (spec.md §1 "signal/timer plumbing" is named
// only as an external collaborator interface).
type EpollPoller struct {
	epfd int
}

// NewEpollPoller creates an epoll instance and registers fd (normally
// the transport's) for readability.
func NewEpollPoller(fd int) (*EpollPoller, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}
	p := &EpollPoller{epfd: epfd}
	if err := p.Add(fd); err != nil {
		unix.Close(epfd)
		return nil, err
	}
	return p, nil
}

// Add registers an additional fd (a signalfd or timerfd) with the poll set.
func (p *EpollPoller) Add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// Wait blocks until any registered fd is readable, or returns
// immediately if pollImmediate is set (timeout 0, spec.md §5
// "x_poll_immediate maps to an epoll timeout of 0").
func (p *EpollPoller) Wait(pollImmediate bool) error {
	timeout := -1
	if pollImmediate {
		timeout = 0
	}
	var events [8]unix.EpollEvent
	for {
		_, err := unix.EpollWait(p.epfd, events[:], timeout)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// Close releases the epoll fd.
func (p *EpollPoller) Close() error {
	return unix.Close(p.epfd)
}
