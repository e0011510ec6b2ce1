package sockconn

import (
	"io"
	"net"
	"testing"
	"time"

	"qtrpc/reactor"
)

func tcpEchoListener(t *testing.T) *net.TCPListener {
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
			go io.Copy(conn, conn)
		}
	}()
	t.Cleanup(func() { l.Close() })
	return l
}

func TestTCPConnectSendRecv(t *testing.T) {
	listener := tcpEchoListener(t)
	addr := listener.Addr().(*net.TCPAddr)

	rx, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	rx.Start()
	defer rx.Stop()

	connected := make(chan struct{}, 1)
	received := make(chan []byte, 1)
	errs := make(chan error, 1)

	conn, err := Open(TCP, "127.0.0.1", addr.Port, rx, Callbacks{
		OnConnected: func() { connected <- struct{}{} },
		OnRecv:      func(data []byte) { received <- append([]byte(nil), data...) },
		OnError:     func(e error) { errs <- e },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	select {
	case <-connected:
	case e := <-errs:
		t.Fatalf("connect error: %v", e)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnConnected")
	}

	if err := conn.Send([]byte("ping"), nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-received:
		if string(got) != "ping" {
			t.Errorf("received %q, want %q", got, "ping")
		}
	case e := <-errs:
		t.Fatalf("connection error: %v", e)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for echoed bytes")
	}
}

func TestUDPSendRecv(t *testing.T) {
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer serverConn.Close()
	serverAddr := serverConn.LocalAddr().(*net.UDPAddr)

	go func() {
		buf := make([]byte, 1024)
		n, peer, err := serverConn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		serverConn.WriteToUDP(buf[:n], peer)
	}()

	rx, err := reactor.New()
	if err != nil {
		t.Fatalf("reactor.New: %v", err)
	}
	rx.Start()
	defer rx.Stop()

	received := make(chan DatagramRead, 1)
	conn, err := Open(UDP, "127.0.0.1", serverAddr.Port, rx, Callbacks{
		OnRecvFrom: func(pkt DatagramRead) { received <- pkt },
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if err := conn.Send([]byte("pong"), nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case pkt := <-received:
		if string(pkt.Data) != "pong" {
			t.Errorf("received %q, want %q", pkt.Data, "pong")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for UDP echo")
	}
}
