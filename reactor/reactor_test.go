package reactor

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestRegisterFiresOnRead(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Start()
	defer r.Stop()

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		t.Fatalf("Pipe2: %v", err)
	}
	read, write := fds[0], fds[1]

	fired := make(chan []byte, 1)
	err = r.Register(read, func() {
		buf := make([]byte, 16)
		n, _ := unix.Read(read, buf)
		fired <- buf[:n]
	}, nil, func(error) {})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := unix.Write(write, []byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case got := <-fired:
		if string(got) != "hi" {
			t.Errorf("read = %q, want %q", got, "hi")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for onRead callback")
	}

	unix.Close(write)
}

func TestDoubleRegisterRejected(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Start()
	defer r.Stop()

	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		t.Fatalf("Pipe2: %v", err)
	}
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	if err := r.Register(fds[0], func() {}, nil, func(error) {}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(fds[0], func() {}, nil, func(error) {}); err == nil {
		t.Fatal("expected second Register on the same fd to fail")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r.Start()
	r.Stop()
	r.Stop() // must not panic or block
}
