package discovery

import (
	"testing"

	"qtrpc/sockconn"
)

func TestStaticResolverAlwaysReturnsFixedAddress(t *testing.T) {
	want := Address{Host: "10.0.0.5", Port: 9000, Proto: sockconn.TCP}
	r := StaticResolver{Addr: want}
	for _, name := range []string{"svc-a", "svc-b", ""} {
		got, err := r.Resolve(name)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", name, err)
		}
		if got != want {
			t.Errorf("Resolve(%q) = %+v, want %+v", name, got, want)
		}
	}
}

func TestSplitHostPort(t *testing.T) {
	cases := []struct {
		addr     string
		wantHost string
		wantPort int
		wantErr  bool
	}{
		{"127.0.0.1:8080", "127.0.0.1", 8080, false},
		{"etcd-node-1:2379", "etcd-node-1", 2379, false},
		{"missing-port", "", 0, true},
	}
	for _, c := range cases {
		host, port, err := splitHostPort(c.addr)
		if c.wantErr {
			if err == nil {
				t.Errorf("splitHostPort(%q): expected error", c.addr)
			}
			continue
		}
		if err != nil {
			t.Fatalf("splitHostPort(%q): %v", c.addr, err)
		}
		if host != c.wantHost || port != c.wantPort {
			t.Errorf("splitHostPort(%q) = (%q, %d), want (%q, %d)", c.addr, host, port, c.wantHost, c.wantPort)
		}
	}
}

func TestWithWatchBufferSizeOption(t *testing.T) {
	r := &EtcdResolver{watchBuf: 1}
	WithWatchBufferSize(8)(r)
	if r.watchBuf != 8 {
		t.Errorf("watchBuf = %d, want 8", r.watchBuf)
	}
}
