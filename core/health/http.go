package health

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

type httpProbe struct {
	port           int
	path           string
	expectedStatus int
	client         *http.Client
}

func NewHTTPProbe(port int, path string, expectedStatus int, timeout time.Duration) Prober {
	if path == "" {
		path = "/health"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if expectedStatus == 0 {
		expectedStatus = http.StatusOK
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	return &httpProbe{port: port, path: path, expectedStatus: expectedStatus, client: &http.Client{Timeout: timeout}}
}

func (p *httpProbe) Probe() Verdict {
	now := time.Now()
	url := fmt.Sprintf("http://127.0.0.1:%d%s", p.port, p.path)
	resp, err := p.client.Get(url)
	if err != nil {
		return Verdict{Passing: false, Err: err, Timestamp: now}
	}
	defer resp.Body.Close()
	return Verdict{Passing: resp.StatusCode == p.expectedStatus, Timestamp: now}
}
