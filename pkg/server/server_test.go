package server

import (
	"net"
	"testing"
	"time"

	"github.com/cuemby/kvs/pkg/codec"
	"github.com/cuemby/kvs/pkg/engine/kv"
	"github.com/cuemby/kvs/pkg/pool"
)

func startTestServer(t *testing.T) (*Server, func()) {
	t.Helper()

	eng, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("kv.Open: %v", err)
	}

	p, err := pool.NewSharedQueuePool(4)
	if err != nil {
		t.Fatalf("NewSharedQueuePool: %v", err)
	}

	s := New("127.0.0.1:0", eng, p)

	started := make(chan struct{})
	go func() {
		go func() {
			for s.Addr() == nil {
				time.Sleep(time.Millisecond)
			}
			close(started)
		}()
		_ = s.Start()
	}()
	<-started

	return s, func() {
		_ = s.Stop()
		p.Shutdown()
		_ = eng.Shutdown()
	}
}

func TestServerOrdersResponsesPerConnection(t *testing.T) {
	s, cleanup := startTestServer(t)
	defer cleanup()

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	roundTrip := func(req codec.Request) codec.Response {
		if err := codec.WriteRequest(conn, req); err != nil {
			t.Fatalf("WriteRequest: %v", err)
		}
		resp, err := codec.ReadResponse(conn)
		if err != nil {
			t.Fatalf("ReadResponse: %v", err)
		}
		return resp
	}

	r1 := roundTrip(codec.SetRequest("x", "1"))
	if !r1.IsOk() {
		t.Fatalf("Set x=1: %v", r1.ErrMessage())
	}
	r2 := roundTrip(codec.SetRequest("x", "2"))
	if !r2.IsOk() {
		t.Fatalf("Set x=2: %v", r2.ErrMessage())
	}
	r3 := roundTrip(codec.GetRequest("x"))
	if v, ok := r3.Value(); !r3.IsOk() || !ok || v != "2" {
		t.Fatalf("Get x = %q, ok=%v, err=%v", v, ok, r3.ErrMessage())
	}
	r4 := roundTrip(codec.RemoveRequest("x"))
	if !r4.IsOk() {
		t.Fatalf("Remove x: %v", r4.ErrMessage())
	}
	r5 := roundTrip(codec.GetRequest("x"))
	if _, ok := r5.Value(); !r5.IsOk() || ok {
		t.Fatalf("Get x after remove = ok=%v, want absent", ok)
	}
}

func TestServerRemoveMissingKeyReturnsErr(t *testing.T) {
	s, cleanup := startTestServer(t)
	defer cleanup()

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := codec.WriteRequest(conn, codec.RemoveRequest("nope")); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	resp, err := codec.ReadResponse(conn)
	if err != nil {
		t.Fatalf("ReadResponse: %v", err)
	}
	if resp.IsOk() {
		t.Fatalf("expected error response for missing key")
	}
}
