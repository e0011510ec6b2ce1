// Package sockconn is the Socket Connection: a non-blocking TCP/UDP wrapper
// registered on a reactor.Reactor, exposing a callback surface
// (OnConnected/OnRecv/OnClosed/OnError) instead of blocking calls. Socket
// Channel builds the request/response protocol on top of it.
package sockconn

import (
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"qtrpc/qtlog"
	"qtrpc/reactor"
	"qtrpc/rpcerr"
)

// ConnType selects the transport: TCP is connection-oriented and
// stream-framed, UDP is connectionless and datagram-framed.
type ConnType int

const (
	TCP ConnType = iota
	UDP
)

func (t ConnType) String() string {
	if t == UDP {
		return "udp"
	}
	return "tcp"
}

// DatagramRead is one inbound UDP packet, paired with its sender so
// channel can key pending responses by (sequence id, peer).
type DatagramRead struct {
	Data []byte
	Peer *net.UDPAddr
}

// Callbacks is the event surface a Conn drives; every field is optional.
type Callbacks struct {
	OnConnected func()
	OnRecv      func(data []byte)           // TCP: newly available stream bytes
	OnRecvFrom  func(pkt DatagramRead)       // UDP: one datagram
	OnClosed    func()
	OnError     func(err error)
}

const defaultReadBuf = 8192

// Conn is a non-blocking socket registered on a Reactor. Callbacks driven by
// socket events run on the reactor's single polling goroutine; OnClosed
// fired by an explicit Close runs on the goroutine that called Close.
type Conn struct {
	typ ConnType
	rx  *reactor.Reactor
	cb  Callbacks
	log *zap.SugaredLogger

	sendMu sync.Mutex // serializes Send calls so writes never interleave

	mu        sync.Mutex
	fd        int
	connected bool
	closed    bool
	peer      unix.Sockaddr
}

// Open creates a non-blocking socket of the given type, begins connecting
// (TCP) or binds it ready for sendto/recvfrom (UDP), and registers it with
// rx. For UDP, host/port is the default peer used by Send when no explicit
// destination is supplied.
func Open(typ ConnType, host string, port int, rx *reactor.Reactor, cb Callbacks) (*Conn, error) {
	domain := unix.AF_INET
	sockType := unix.SOCK_STREAM
	if typ == UDP {
		sockType = unix.SOCK_DGRAM
	}
	fd, err := unix.Socket(domain, sockType|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, rpcerr.NewFramingError("sockconn: socket() failed: %s", err.Error())
	}

	ip := net.ParseIP(host)
	if ip == nil {
		addrs, err := net.LookupIP(host)
		if err != nil || len(addrs) == 0 {
			unix.Close(fd)
			return nil, fmt.Errorf("sockconn: resolve %q: %w", host, err)
		}
		ip = addrs[0]
	}
	var sa unix.Sockaddr
	if ip4 := ip.To4(); ip4 != nil {
		var a unix.SockaddrInet4
		copy(a.Addr[:], ip4)
		a.Port = port
		sa = &a
	} else {
		var a unix.SockaddrInet6
		copy(a.Addr[:], ip.To16())
		a.Port = port
		sa = &a
	}

	c := &Conn{
		typ:  typ,
		rx:   rx,
		cb:   cb,
		log:  qtlog.Named("sockconn"),
		fd:   fd,
		peer: sa,
	}

	if typ == UDP {
		c.connected = true // connectionless: "connected" means "usable"
		if err := rx.Register(fd, c.handleReadable, nil, c.handleFatal); err != nil {
			unix.Close(fd)
			return nil, err
		}
		return c, nil
	}

	err = unix.Connect(fd, sa)
	if err != nil && err != unix.EINPROGRESS {
		unix.Close(fd)
		return nil, fmt.Errorf("sockconn: connect: %w", err)
	}
	if regErr := rx.Register(fd, c.handleReadable, c.handleConnectable, c.handleFatal); regErr != nil {
		unix.Close(fd)
		return nil, regErr
	}
	if err == nil {
		// Connected synchronously (e.g. loopback): still let the reactor
		// fire the writable callback so OnConnected always runs on the
		// reactor goroutine, never on the caller's.
	}
	return c, nil
}

// Send writes data to the socket. For TCP it loops until the kernel has
// accepted every byte (matching the source's "keep sending until flushed"
// policy for a non-blocking socket); for UDP it issues one sendto to peer,
// or the default peer if peer is nil.
func (c *Conn) Send(data []byte, peer *net.UDPAddr) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.mu.Lock()
	fd := c.fd
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return rpcerr.NewProtocolError("sockconn: Send on closed connection")
	}

	if c.typ == UDP {
		dest := c.peer
		if peer != nil {
			var a unix.SockaddrInet4
			copy(a.Addr[:], peer.IP.To4())
			a.Port = peer.Port
			dest = &a
		}
		return unix.Sendto(fd, data, 0, dest)
	}

	for len(data) > 0 {
		n, err := unix.Write(fd, data)
		if err == unix.EAGAIN {
			continue // non-blocking write-buffer-full: busy loop, matches the reference's naive resend
		}
		if err != nil {
			return fmt.Errorf("sockconn: write: %w", err)
		}
		data = data[n:]
	}
	return nil
}

// Close tears down the socket, deregisters it from the reactor, and fires
// OnClosed exactly once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	fd := c.fd
	c.mu.Unlock()

	if err := c.rx.RemoveFd(fd); err != nil {
		c.log.Warnw("remove fd from reactor failed", "err", err)
	}
	unix.Close(fd)
	if c.cb.OnClosed != nil {
		c.cb.OnClosed()
	}
	return nil
}

// RawFD exposes the underlying file descriptor, needed by callers that
// want to register additional interest directly (tests, diagnostics).
func (c *Conn) RawFD() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fd
}

func (c *Conn) handleConnectable() {
	errno, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		c.handleFatal(fmt.Errorf("sockconn: getsockopt SO_ERROR: %w", err))
		return
	}
	if errno != 0 {
		c.handleFatal(fmt.Errorf("sockconn: connect failed: %w", unix.Errno(errno)))
		return
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	if c.cb.OnConnected != nil {
		c.cb.OnConnected()
	}
}

func (c *Conn) handleReadable() {
	if c.typ == UDP {
		c.handleReadableUDP()
		return
	}
	buf := make([]byte, defaultReadBuf)
	n, err := unix.Read(c.fd, buf)
	if n == 0 && err == nil {
		c.handleFatal(&rpcerr.ConnectionLostError{})
		return
	}
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.handleFatal(fmt.Errorf("sockconn: read: %w", err))
		return
	}
	if c.cb.OnRecv != nil {
		c.cb.OnRecv(buf[:n])
	}
}

func (c *Conn) handleReadableUDP() {
	buf := make([]byte, defaultReadBuf)
	n, from, err := unix.Recvfrom(c.fd, buf, 0)
	if err != nil {
		if err == unix.EAGAIN {
			return
		}
		c.handleFatal(fmt.Errorf("sockconn: recvfrom: %w", err))
		return
	}
	peer := sockaddrToUDPAddr(from)
	if c.cb.OnRecvFrom != nil {
		c.cb.OnRecvFrom(DatagramRead{Data: buf[:n], Peer: peer})
	}
}

func (c *Conn) handleFatal(err error) {
	c.mu.Lock()
	already := c.closed
	c.closed = true
	fd := c.fd
	c.mu.Unlock()
	if already {
		return
	}
	if err := c.rx.RemoveFd(fd); err != nil {
		c.log.Warnw("remove fd from reactor failed", "err", err)
	}
	unix.Close(fd)
	if c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

func sockaddrToUDPAddr(sa unix.Sockaddr) *net.UDPAddr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.UDPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.UDPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}
