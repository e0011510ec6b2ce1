// Package reactor implements the single background goroutine that polls
// every registered file descriptor for readability, writability and
// errors, dispatching to per-fd callbacks one at a time. It is the direct
// analogue of a select-based event loop: one thread of execution ever
// calls a registered handler, so handlers never need to guard against
// concurrent invocation from the loop itself.
package reactor

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"qtrpc/qtconfig"
	"qtrpc/qtlog"
)

// Option configures a Reactor at construction time.
type Option = qtconfig.Option[Reactor]

// WithLogger overrides the default component logger (qtlog.Named("reactor")).
func WithLogger(l *zap.SugaredLogger) Option {
	return func(r *Reactor) { r.log = l }
}

// self-pipe alphabet: single-byte commands written to the wakeup pipe to
// interrupt a blocked Select call. Any other byte is an internal bug.
const (
	cmdWakeup byte = 'W'
	cmdRegister byte = 'R'
	cmdRemove byte = 'X'
)

type registration struct {
	fd      int
	onRead  func()
	onWrite func()
	onError func(error)
	writing bool // true until the first writable event fires, then cleared
}

// Reactor is a single-threaded, self-pipe-driven event loop over raw file
// descriptors. The zero value is not usable; construct with New.
type Reactor struct {
	mu      sync.Mutex
	fds     map[int]*registration
	removed map[int]bool

	pipeR int
	pipeW int

	log *zap.SugaredLogger

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// New creates a Reactor. Call Start to begin polling in a background
// goroutine.
func New(opts ...Option) (*Reactor, error) {
	fds, err := unixPipe()
	if err != nil {
		return nil, fmt.Errorf("reactor: create wakeup pipe: %w", err)
	}
	r := &Reactor{
		fds:     map[int]*registration{},
		removed: map[int]bool{},
		pipeR:   fds[0],
		pipeW:   fds[1],
		log:     qtlog.Named("reactor"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	qtconfig.Apply(r, opts)
	return r, nil
}

func unixPipe() ([2]int, error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return fds, err
	}
	return fds, nil
}

// Register adds fd to the poll set. onWrite (connect-ready) fires at most
// once; onRead may fire repeatedly; onError fires at most once and implies
// the fd has already been removed by the time it's called.
func (r *Reactor) Register(fd int, onRead, onWrite func(), onError func(error)) error {
	r.mu.Lock()
	if _, exists := r.fds[fd]; exists {
		r.mu.Unlock()
		return fmt.Errorf("reactor: fd %d is already registered", fd)
	}
	r.fds[fd] = &registration{fd: fd, onRead: onRead, onWrite: onWrite, onError: onError, writing: true}
	r.mu.Unlock()
	return r.wake(cmdRegister)
}

// RemoveFd deregisters fd; the next loop iteration drops it from the poll
// set before blocking again.
func (r *Reactor) RemoveFd(fd int) error {
	r.mu.Lock()
	r.removed[fd] = true
	r.mu.Unlock()
	return r.wake(cmdRemove)
}

func (r *Reactor) wake(cmd byte) error {
	_, err := unix.Write(r.pipeW, []byte{cmd})
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("reactor: wake pipe write: %w", err)
	}
	return nil
}

// Start launches the polling goroutine. Safe to call multiple times; only
// the first call has an effect.
func (r *Reactor) Start() {
	r.startOnce.Do(func() {
		go r.loop()
	})
}

// Stop signals the polling goroutine to exit and waits for it, closing every
// still-registered fd.
func (r *Reactor) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		r.wake(cmdWakeup)
		<-r.doneCh
	})
}

func (r *Reactor) loop() {
	defer close(r.doneCh)
	for {
		select {
		case <-r.stopCh:
			r.drainAll()
			return
		default:
		}

		r.applyRemovals()

		var readSet, writeSet unix.FdSet
		fdSet(&readSet, r.pipeR)
		maxFd := r.pipeR

		r.mu.Lock()
		regs := make([]*registration, 0, len(r.fds))
		for fd, reg := range r.fds {
			regs = append(regs, reg)
			fdSet(&readSet, fd)
			if fd > maxFd {
				maxFd = fd
			}
			if reg.writing {
				fdSet(&writeSet, fd)
			}
		}
		r.mu.Unlock()

		n, err := unix.Select(maxFd+1, &readSet, &writeSet, nil, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			r.log.Errorw("select failed, reactor loop exiting", "err", err)
			r.drainAll()
			return
		}
		if n == 0 {
			continue
		}

		if fdIsSet(&readSet, r.pipeR) {
			r.drainWakeupPipe()
		}

		for _, reg := range regs {
			if fdIsSet(&writeSet, reg.fd) {
				r.mu.Lock()
				reg.writing = false
				r.mu.Unlock()
				r.dispatch(reg, reg.onWrite)
			}
			if fdIsSet(&readSet, reg.fd) {
				r.dispatch(reg, reg.onRead)
			}
		}
	}
}

// dispatch invokes handler, recovering a panic the way _handle_error wraps
// a handler call in try/except: log it, remove the fd, and notify onError.
func (r *Reactor) dispatch(reg *registration, handler func()) {
	if handler == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Errorw("reactor handler panicked", "fd", reg.fd, "panic", rec)
			r.removeAndNotify(reg, fmt.Errorf("reactor: handler panic: %v", rec))
		}
	}()
	handler()
}

func (r *Reactor) removeAndNotify(reg *registration, cause error) {
	r.mu.Lock()
	delete(r.fds, reg.fd)
	r.mu.Unlock()
	if reg.onError != nil {
		reg.onError(cause)
	}
}

func (r *Reactor) applyRemovals() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for fd := range r.removed {
		delete(r.fds, fd)
	}
	r.removed = map[int]bool{}
}

func (r *Reactor) drainAll() {
	r.mu.Lock()
	fds := make([]int, 0, len(r.fds))
	for fd := range r.fds {
		fds = append(fds, fd)
	}
	r.fds = map[int]*registration{}
	r.mu.Unlock()
	for _, fd := range fds {
		unix.Close(fd)
	}
	unix.Close(r.pipeR)
	unix.Close(r.pipeW)
}

func (r *Reactor) drainWakeupPipe() {
	var buf [64]byte
	for {
		n, err := unix.Read(r.pipeR, buf[:])
		if n <= 0 || err != nil {
			return
		}
		for _, b := range buf[:n] {
			switch b {
			case cmdWakeup, cmdRegister, cmdRemove:
				// recognized token, nothing further to do: its effect
				// already landed in r.fds/r.removed under the mutex.
			default:
				r.log.Errorw("self-pipe received unexpected byte", "byte", b)
			}
		}
	}
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
