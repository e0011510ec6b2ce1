// Package channel implements the Socket Channel: it binds a request/response
// schema pair to a sockconn.Conn and a shared reactor.Reactor, turning raw
// framed bytes into a blocking request/response protocol with sequence-id
// correlation, connect/response timeouts, and an unsolicited-push path.
package channel

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"qtrpc/framer"
	"qtrpc/qtconfig"
	"qtrpc/qtlog"
	"qtrpc/reactor"
	"qtrpc/rpcerr"
	"qtrpc/schema"
	"qtrpc/seqgen"
	"qtrpc/sockconn"
	"qtrpc/wire"
)

// Address is the {host, port, proto} tuple a Resolver hands back; it is the
// minimal shape channel needs from an external addressing collaborator,
// kept local so channel never has to import whatever package implements
// Resolver (etcd-backed or otherwise).
type Address struct {
	Host  string
	Port  int
	Proto sockconn.ConnType
}

// Resolver turns a registered service name into an Address. channel only
// depends on this interface, never on a concrete discovery implementation —
// service-method routing sugar stays out of scope while resolution itself
// stays pluggable.
type Resolver interface {
	Resolve(serviceName string) (Address, error)
}

// Limiter throttles outbound bytes before they reach the wire. Satisfied by
// rlimit.Limiter; nil means unthrottled.
type Limiter interface {
	Wait(ctx context.Context, n int) error
}

// PendingKey identifies one in-flight request. Peer is empty for TCP, and
// holds the datagram's source/destination string for UDP, since UDP
// responses must be matched by sequence id *and* sender.
type PendingKey struct {
	Seq  int64
	Peer string
}

type pendingEntry struct {
	resultCh chan Result
	timer    *time.Timer
}

// Result is what SendAsync's channel delivers: exactly one of Value or Err
// is set.
type Result struct {
	Value *schema.Value
	Err   error
}

// Channel is the Socket Channel. Construct with New.
type Channel struct {
	conn     *sockconn.Conn
	rx       *reactor.Reactor
	codec    wire.Codec
	reqDesc  *schema.Descriptor
	respDesc *schema.Descriptor
	connType sockconn.ConnType
	peerAddr string       // host:port as dialled; resolved into udpPeer for UDP
	udpPeer  *net.UDPAddr // resolved peer for UDP sends

	seq          *seqgen.Generator
	seqField     string
	order        binary.ByteOrder
	lenHook      schema.SizeRefHook
	limiter      Limiter
	onPush       func(resp *schema.Value)
	connectDL    time.Duration
	responseDL   time.Duration
	log          *zap.SugaredLogger

	connMu    sync.Mutex
	connected bool
	connErr   error
	connWait  chan struct{}

	pendingMu sync.Mutex
	pending   map[PendingKey]*pendingEntry
	closed    bool

	tcpMu  sync.Mutex
	tcpBuf []byte
}

// Option configures a Channel at construction, in the teacher's functional
// options idiom.
type Option = qtconfig.Option[Channel]

func WithSequenceField(dottedPath string) Option {
	return func(c *Channel) { c.seqField = dottedPath }
}

func WithSequenceGenerator(g *seqgen.Generator) Option {
	return func(c *Channel) { c.seq = g }
}

func WithByteOrder(order binary.ByteOrder) Option {
	return func(c *Channel) { c.order = order }
}

func WithSizeRefHook(hook schema.SizeRefHook) Option {
	return func(c *Channel) { c.lenHook = hook }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(c *Channel) { c.connectDL = d }
}

func WithResponseTimeout(d time.Duration) Option {
	return func(c *Channel) { c.responseDL = d }
}

func WithOnPush(fn func(resp *schema.Value)) Option {
	return func(c *Channel) { c.onPush = fn }
}

func WithSendLimiter(l Limiter) Option {
	return func(c *Channel) { c.limiter = l }
}

// Dial opens a Socket Connection to addr, registers it on rx, and returns a
// ready-to-use Channel exchanging reqDesc/respDesc packets through codec.
func Dial(addr Address, rx *reactor.Reactor, codec wire.Codec, reqDesc, respDesc *schema.Descriptor, opts ...Option) (*Channel, error) {
	c := &Channel{
		rx:         rx,
		codec:      codec,
		reqDesc:    reqDesc,
		respDesc:   respDesc,
		connType:   addr.Proto,
		peerAddr:   fmt.Sprintf("%s:%d", addr.Host, addr.Port),
		seq:        seqgen.Default(),
		order:      binary.BigEndian,
		lenHook:    schema.IdentityHook,
		connectDL:  10 * time.Second,
		responseDL: 10 * time.Second,
		log:        qtlog.Named("channel"),
		connWait:   make(chan struct{}),
		pending:    map[PendingKey]*pendingEntry{},
	}
	qtconfig.Apply(c, opts)

	conn, err := sockconn.Open(addr.Proto, addr.Host, addr.Port, rx, sockconn.Callbacks{
		OnConnected: c.onConnected,
		OnRecv:      c.onRecvTCP,
		OnRecvFrom:  c.onRecvUDP,
		OnClosed:    c.onClosed,
		OnError:     c.onFatal,
	})
	if err != nil {
		return nil, err
	}
	c.conn = conn
	if addr.Proto == sockconn.UDP {
		resolved, rerr := net.ResolveUDPAddr("udp", c.peerAddr)
		if rerr != nil {
			conn.Close()
			return nil, fmt.Errorf("channel: resolve udp peer %q: %w", c.peerAddr, rerr)
		}
		c.udpPeer = resolved
		// UDP has no handshake: usable immediately.
		c.connMu.Lock()
		c.connected = true
		close(c.connWait)
		c.connMu.Unlock()
	}
	return c, nil
}

// Close tears down the underlying connection and poisons every pending
// waiter.
func (c *Channel) Close() error {
	err := c.conn.Close()
	c.poisonPending(&rpcerr.ConnectionLostError{})
	return err
}

// Send is the blocking request/response call: it runs SendAsync and blocks
// until a matching response arrives, the response timeout fires, or ctx is
// done. It does not check req against the channel's request descriptor and
// runs no pre-send or post-receive hooks.
func (c *Channel) Send(ctx context.Context, req *schema.Value) (*schema.Value, error) {
	resultCh, err := c.SendAsync(ctx, req)
	if err != nil {
		return nil, err
	}
	select {
	case res := <-resultCh:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendAsync is the non-blocking primitive Send wraps: it stamps a sequence
// id into the configured sequence field (none when no field is configured,
// so the pending key's Seq is 0), registers the pending waiter, waits for
// the connection, encodes the packet, applies the send limiter and writes
// the bytes, then returns a channel the caller can wait on at their own pace.
func (c *Channel) SendAsync(ctx context.Context, req *schema.Value) (<-chan Result, error) {
	var seqVal int64
	if c.seqField != "" {
		seqVal = c.seq.Next()
		if err := setDottedField(req, c.seqField, seqVal); err != nil {
			return nil, err
		}
	}

	key := PendingKey{Seq: seqVal}
	if c.connType == sockconn.UDP {
		key.Peer = c.udpPeer.String()
	}

	c.pendingMu.Lock()
	if c.closed {
		c.pendingMu.Unlock()
		return nil, &rpcerr.ConnectionLostError{}
	}
	if _, exists := c.pending[key]; exists {
		c.pendingMu.Unlock()
		return nil, rpcerr.NewProtocolError("sequence id %v is already pending", key)
	}
	entry := &pendingEntry{resultCh: make(chan Result, 1)}
	c.pending[key] = entry
	c.pendingMu.Unlock()

	if err := c.waitForConnected(ctx); err != nil {
		c.removePending(key)
		return nil, err
	}

	buf, err := c.encodePacket(req, c.reqDesc)
	if err != nil {
		c.removePending(key)
		return nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, len(buf)); err != nil {
			c.removePending(key)
			return nil, err
		}
	}

	if err := c.conn.Send(buf, c.udpPeer); err != nil {
		c.removePending(key)
		return nil, fmt.Errorf("channel: send: %w", err)
	}

	c.pendingMu.Lock()
	if _, stillPending := c.pending[key]; stillPending {
		entry.timer = time.AfterFunc(c.responseDL, func() { c.timeoutPending(key) })
	}
	c.pendingMu.Unlock()

	return entry.resultCh, nil
}

func (c *Channel) timeoutPending(key PendingKey) {
	c.pendingMu.Lock()
	entry, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.pendingMu.Unlock()
	if ok {
		entry.resultCh <- Result{Err: &rpcerr.ResponseTimeoutError{SeqKey: fmt.Sprintf("%v", key), Timeout: c.responseDL.String()}}
	}
}

func (c *Channel) removePending(key PendingKey) {
	c.pendingMu.Lock()
	delete(c.pending, key)
	c.pendingMu.Unlock()
}

// encodePacket runs the fill_size_ref pass for every field-level size_ref in
// d, encodes req, and, if d declares an outer length field, stamps the
// packet's total length into it.
func (c *Channel) encodePacket(v *schema.Value, d *schema.Descriptor) ([]byte, error) {
	if err := framer.FillFieldSizeRefs(c.codec, d, v); err != nil {
		return nil, err
	}
	buf, err := c.codec.Encode(d, v)
	if err != nil {
		return nil, err
	}
	if d.LengthField != "" {
		if err := framer.FillSizeRefs(d, c.lenHook, c.order, buf, len(buf)); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// waitForConnected returns at once if the connection has already finished
// connecting (checked under connMu); otherwise it blocks until the
// connection finishes connecting, ctx is cancelled, or connectDL elapses.
func (c *Channel) waitForConnected(ctx context.Context) error {
	c.connMu.Lock()
	if c.connected {
		err := c.connErr
		c.connMu.Unlock()
		return err
	}
	waitCh := c.connWait
	c.connMu.Unlock()

	timer := time.NewTimer(c.connectDL)
	defer timer.Stop()
	select {
	case <-waitCh:
		c.connMu.Lock()
		err := c.connErr
		c.connMu.Unlock()
		return err
	case <-timer.C:
		return &rpcerr.ConnectTimeoutError{Timeout: c.connectDL.String()}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel) onConnected() {
	c.connMu.Lock()
	if !c.connected {
		c.connected = true
		close(c.connWait)
	}
	c.connMu.Unlock()
}

func (c *Channel) onClosed() {
	c.poisonPending(&rpcerr.ConnectionLostError{})
}

func (c *Channel) onFatal(err error) {
	c.connMu.Lock()
	if !c.connected {
		c.connErr = err
		close(c.connWait)
	}
	c.connMu.Unlock()
	c.poisonPending(&rpcerr.ConnectionLostError{Cause: err})
}

func (c *Channel) poisonPending(err error) {
	c.pendingMu.Lock()
	c.closed = true
	drained := c.pending
	c.pending = map[PendingKey]*pendingEntry{}
	c.pendingMu.Unlock()
	for _, entry := range drained {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.resultCh <- Result{Err: err}
	}
}

// onRecvTCP appends newly-read bytes to the stream buffer and peels off as
// many complete packets as it can find.
func (c *Channel) onRecvTCP(data []byte) {
	c.tcpMu.Lock()
	c.tcpBuf = append(c.tcpBuf, data...)
	for {
		n, ok, err := framer.NextPacketLength(c.respDesc, c.lenHook, c.order, c.tcpBuf)
		if err != nil {
			c.tcpMu.Unlock()
			c.log.Errorw("framing error, closing connection", "err", err)
			c.conn.Close()
			return
		}
		if !ok || len(c.tcpBuf) < n {
			break
		}
		packet := make([]byte, n)
		copy(packet, c.tcpBuf[:n])
		c.tcpBuf = c.tcpBuf[n:]
		c.tcpMu.Unlock()
		c.handlePacket(packet, "")
		c.tcpMu.Lock()
	}
	c.tcpMu.Unlock()
}

func (c *Channel) onRecvUDP(pkt sockconn.DatagramRead) {
	c.handlePacket(pkt.Data, pkt.Peer.String())
}

func (c *Channel) handlePacket(data []byte, peer string) {
	resp, _, err := c.codec.Decode(c.respDesc, data)
	if err != nil {
		c.log.Warnw("failed to decode inbound packet, dropping", "err", err)
		return
	}
	var seqVal int64
	if c.seqField != "" {
		sv, ferr := getDottedField(resp, c.seqField)
		if ferr != nil {
			c.log.Warnw("response has no sequence field, treating as push", "err", ferr)
			c.notifyPush(resp)
			return
		}
		seqVal = sv
	}
	key := PendingKey{Seq: seqVal, Peer: peer}
	c.pendingMu.Lock()
	entry, ok := c.pending[key]
	if ok {
		delete(c.pending, key)
	}
	c.pendingMu.Unlock()
	if ok {
		if entry.timer != nil {
			entry.timer.Stop()
		}
		entry.resultCh <- Result{Value: resp}
		return
	}
	c.notifyPush(resp)
}

func (c *Channel) notifyPush(resp *schema.Value) {
	if c.onPush != nil {
		c.onPush(resp)
		return
	}
	c.log.Infow("unsolicited response received with no OnPush handler", "packet", wire.PrettyPrint(resp))
}

func setDottedField(v *schema.Value, path string, n int64) error {
	target, err := walkDotted(v, path)
	if err != nil {
		return err
	}
	target.SetInt64(n)
	return nil
}

func getDottedField(v *schema.Value, path string) (int64, error) {
	target, err := walkDotted(v, path)
	if err != nil {
		return 0, err
	}
	return target.Int64(), nil
}

func walkDotted(v *schema.Value, path string) (*schema.Value, error) {
	cur := v
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			part := path[start:i]
			next, err := cur.Field(part)
			if err != nil {
				return nil, rpcerr.NewFramingError("field path %q: %s", path, err.Error())
			}
			cur = next
			start = i + 1
		}
	}
	return cur, nil
}
