package channel

import (
	"context"
	"net"
	"testing"
	"time"

	"qtrpc/reactor"
	"qtrpc/rpcerr"
	"qtrpc/schema"
	"qtrpc/sockconn"
	"qtrpc/wire"
)

var testReqDesc = schema.Dict("Req", "len",
	schema.Field("len", schema.Uint32),
	schema.Field("seq", schema.Int64),
	schema.Field("body", schema.StringT),
)

var testRespDesc = schema.Dict("Resp", "len",
	schema.Field("len", schema.Uint32),
	schema.Field("seq", schema.Int64),
	schema.Field("body", schema.StringT),
)

func tcpEcho(t *testing.T) *net.TCPListener {
	t.Helper()
	l, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenTCP: %v", err)
	}
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if err != nil {
						return
					}
					if _, err := c.Write(buf[:n]); err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	t.Cleanup(func() { l.Close() })
	return l
}

func newTestRequest(t *testing.T, body string) *schema.Value {
	t.Helper()
	v := schema.New(testReqDesc)
	if err := v.SetField("len", 0); err != nil {
		t.Fatalf("SetField(len): %v", err)
	}
	if err := v.SetField("body", body); err != nil {
		t.Fatalf("SetField(body): %v", err)
	}
	return v
}

func TestSendRoundTrip(t *testing.T) {
	listener := tcpEcho(t)
	addr := listener.Addr().(*net.TCPAddr)

	rx, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	rx.Start()
	defer rx.Stop()

	ch, err := Dial(
		Address{Host: "127.0.0.1", Port: addr.Port, Proto: sockconn.TCP},
		rx, wire.NewBinary(), testReqDesc, testRespDesc,
		WithSequenceField("seq"),
		WithConnectTimeout(2*time.Second),
		WithResponseTimeout(2*time.Second),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := ch.Send(ctx, newTestRequest(t, "hello"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	body, err := resp.Field("body")
	if err != nil {
		t.Fatalf("Field(body): %v", err)
	}
	if body.Str() != "hello" {
		t.Errorf("body = %q, want %q", body.Str(), "hello")
	}
}

// TestSendAsyncRejectsDuplicateSequence exercises the pending-table guard
// directly by minting the same sequence id for two in-flight requests.
func TestSendAsyncRejectsDuplicateSequence(t *testing.T) {
	listener := tcpEcho(t)
	addr := listener.Addr().(*net.TCPAddr)

	rx, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	rx.Start()
	defer rx.Stop()

	ch, err := Dial(
		Address{Host: "127.0.0.1", Port: addr.Port, Proto: sockconn.TCP},
		rx, wire.NewBinary(), testReqDesc, testRespDesc,
		WithConnectTimeout(2*time.Second),
		WithResponseTimeout(2*time.Second),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer ch.Close()

	// No WithSequenceField configured, so seqField is empty and every
	// SendAsync call shares PendingKey{Seq: 0}.
	// The channel stamps no seq, so each request sets the required field.
	ctx := context.Background()
	first, second := newTestRequest(t, "first"), newTestRequest(t, "second")
	for _, req := range []*schema.Value{first, second} {
		if err := req.SetField("seq", int64(0)); err != nil {
			t.Fatalf("SetField(seq): %v", err)
		}
	}
	if _, err := ch.SendAsync(ctx, first); err != nil {
		t.Fatalf("first SendAsync: %v", err)
	}
	if _, err := ch.SendAsync(ctx, second); err == nil {
		t.Fatal("expected second SendAsync with the same pending key to fail")
	}
}

// TestCloseDrainsPendingWithConnectionLost verifies Close poisons every
// outstanding waiter rather than leaving them blocked forever.
func TestCloseDrainsPendingWithConnectionLost(t *testing.T) {
	listener := tcpEcho(t)
	addr := listener.Addr().(*net.TCPAddr)

	rx, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	rx.Start()
	defer rx.Stop()

	ch, err := Dial(
		Address{Host: "127.0.0.1", Port: addr.Port, Proto: sockconn.TCP},
		rx, wire.NewBinary(), testReqDesc, testRespDesc,
		WithSequenceField("seq"),
		WithConnectTimeout(2*time.Second),
		WithResponseTimeout(5*time.Second),
	)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	resultCh, err := ch.SendAsync(context.Background(), newTestRequest(t, "never-answered"))
	if err != nil {
		t.Fatalf("SendAsync: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case res := <-resultCh:
		var lost *rpcerr.ConnectionLostError
		if res.Err == nil {
			t.Fatalf("expected an error result, got value %v", res.Value)
		}
		if !isConnectionLost(res.Err, &lost) {
			t.Errorf("err = %v (%T), want ConnectionLostError", res.Err, res.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Close to poison the pending request")
	}

	// A Channel closed this way must also reject any further sends.
	if _, err := ch.SendAsync(context.Background(), newTestRequest(t, "after-close")); err == nil {
		t.Fatal("expected SendAsync after Close to fail")
	}
}

func isConnectionLost(err error, target **rpcerr.ConnectionLostError) bool {
	lost, ok := err.(*rpcerr.ConnectionLostError)
	if ok {
		*target = lost
	}
	return ok
}
