package health

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHeartbeatVerdictPassesWithinTimeout(t *testing.T) {
	hb := NewHeartbeat(2 * time.Second)
	hb.Touch("healthy", map[string]string{"battery": "90"})
	v := hb.Verdict()
	if !v.Passing || v.Status != "healthy" {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestHeartbeatVerdictFailsWithoutAny(t *testing.T) {
	hb := NewHeartbeat(2 * time.Second)
	if v := hb.Verdict(); v.Passing {
		t.Fatalf("expected failing verdict before any heartbeat, got %+v", v)
	}
}

func TestHeartbeatVerdictExpires(t *testing.T) {
	hb := NewHeartbeat(10 * time.Millisecond)
	hb.Touch("healthy", nil)
	time.Sleep(30 * time.Millisecond)
	if v := hb.Verdict(); v.Passing {
		t.Fatalf("expected expired heartbeat to fail, got %+v", v)
	}
}

func TestTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()
	port := ln.Addr().(*net.TCPAddr).Port
	probe := NewTCPProbe(port, time.Second)
	if v := probe.Probe(); !v.Passing {
		t.Fatalf("expected passing verdict, got %+v", v)
	}
}

func TestHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	port := srv.Listener.Addr().(*net.TCPAddr).Port
	probe := NewHTTPProbe(port, "/health", 200, time.Second)
	if v := probe.Probe(); !v.Passing {
		t.Fatalf("expected passing verdict, got %+v", v)
	}
}

func TestScriptProbe(t *testing.T) {
	probe := NewScriptProbe("true", time.Second)
	if v := probe.Probe(); !v.Passing {
		t.Fatalf("expected passing verdict, got %+v", v)
	}
	probe = NewScriptProbe("false", time.Second)
	if v := probe.Probe(); v.Passing {
		t.Fatalf("expected failing verdict for false")
	}
}
