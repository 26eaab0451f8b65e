package engine

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// selfPipe turns SIGINT/SIGTERM into an epoll-visible file descriptor.
// Go's runtime owns signal delivery and offers no equivalent of
// signalfd(2) (the mechanism original_source/ServerManager.cpp's
// setupSignalHandlers uses), so a pipe stands in: a goroutine parked on
// signal.Notify writes one byte per signal, and the read end is
// registered with epoll like any other fd. See SPEC_FULL.md §4.5's
// documented substitution for original_source's signalfd usage.
type selfPipe struct {
	r, w *os.File
	ch   chan os.Signal
}

func newSelfPipe() (*selfPipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, errors.Wrap(err, "self-pipe")
	}
	if err := unix.SetNonblock(int(r.Fd()), true); err != nil {
		r.Close()
		w.Close()
		return nil, errors.Wrap(err, "set_nonblocking self-pipe read end")
	}

	sp := &selfPipe{r: r, w: w, ch: make(chan os.Signal, 8)}
	signal.Notify(sp.ch, syscall.SIGINT, syscall.SIGTERM)
	go sp.relay()
	return sp, nil
}

func (sp *selfPipe) relay() {
	for range sp.ch {
		sp.w.Write([]byte{1})
	}
}

// drain reads and discards pending bytes, reporting whether any arrived
// (i.e. whether a stop was requested). Mirrors
// ServerManager::processSignalsFromFd's drain-then-report shape.
func (sp *selfPipe) drain() bool {
	var buf [64]byte
	got := false
	for {
		n, err := sp.r.Read(buf[:])
		if n > 0 {
			got = true
		}
		if err != nil {
			return got
		}
		if n < len(buf) {
			return got
		}
	}
}

func (sp *selfPipe) fd() int { return int(sp.r.Fd()) }

func (sp *selfPipe) close() {
	signal.Stop(sp.ch)
	close(sp.ch)
	sp.r.Close()
	sp.w.Close()
}
