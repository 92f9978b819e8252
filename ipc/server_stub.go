//go:build windows

package ipc

import (
	"context"
	"fmt"

	"krill/core/orchestrator"
)

// Server is unsupported on Windows; Krill's control socket is Unix-only.
type Server struct{}

func New(path string, orch *orchestrator.Orchestrator) *Server {
	_ = path
	_ = orch
	return &Server{}
}

func (s *Server) Run(ctx context.Context) error {
	_ = ctx
	return fmt.Errorf("control server unsupported on windows")
}
