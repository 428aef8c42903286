package daemon

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/DarkarBlays/inventario/internal/api"
	"github.com/DarkarBlays/inventario/internal/instance"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server is the daemon's gRPC endpoint on the instance socket. It serves
// ProductService and SyncService.
type Server struct {
	grpc   *grpc.Server
	lis    net.Listener
	socket string
	logger *zap.Logger
}

// NewServer binds the instance socket (or p.SocketPath) and registers both
// services. The socket is bound here so a bind failure aborts startup before
// any hook runs.
func NewServer(p Params, logger *zap.Logger, products *api.ProductService, syncSvc *api.SyncService) (*Server, error) {
	socket := p.SocketPath
	if socket == "" {
		socket = instance.SocketPath(p.Instance)
	}

	// A leftover socket belongs to a dead daemon: the instance lock is ours.
	if err := os.Remove(socket); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}

	lis, err := net.Listen("unix", socket)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", socket, err)
	}
	if err := os.Chmod(socket, 0600); err != nil {
		_ = lis.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	g := grpc.NewServer()
	api.RegisterProductServer(g, products)
	api.RegisterSyncServer(g, syncSvc)

	return &Server{grpc: g, lis: lis, socket: socket, logger: logger}, nil
}

// Start serves until Stop. It blocks.
func (s *Server) Start() error {
	s.logger.Info("serving gRPC", zap.String("socket", s.socket))
	return s.grpc.Serve(s.lis)
}

// Stop drains in-flight calls, then unlinks the socket.
func (s *Server) Stop(_ context.Context) {
	s.logger.Info("stopping gRPC")
	s.grpc.GracefulStop()
	_ = os.Remove(s.socket)
}

// Close releases a server that never started serving.
func (s *Server) Close() {
	_ = s.lis.Close()
	_ = os.Remove(s.socket)
}
