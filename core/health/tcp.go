package health

import (
	"fmt"
	"net"
	"time"
)

type tcpProbe struct {
	port    int
	timeout time.Duration
}

func NewTCPProbe(port int, timeout time.Duration) Prober {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &tcpProbe{port: port, timeout: timeout}
}

func (p *tcpProbe) Probe() Verdict {
	now := time.Now()
	addr := fmt.Sprintf("127.0.0.1:%d", p.port)
	conn, err := net.DialTimeout("tcp", addr, p.timeout)
	if err != nil {
		return Verdict{Passing: false, Err: err, Timestamp: now}
	}
	conn.Close()
	return Verdict{Passing: true, Timestamp: now}
}
