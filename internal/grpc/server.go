package grpc

import (
	"context"
	"errors"
	"net"
	"path"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/umpyre/beancounterd/internal/escrow"
	"github.com/umpyre/beancounterd/internal/ledger"
	"github.com/umpyre/beancounterd/internal/payouts"
	"github.com/umpyre/beancounterd/internal/ral"
	"github.com/umpyre/beancounterd/internal/storage/relationaldb"
)

// Services bundles the domain dependencies the handlers operate on.
type Services struct {
	Store   relationaldb.Store
	Ledger  *ledger.Ledger
	Escrow  *escrow.Service
	RAL     *ral.Estimator
	Payer   *payouts.Payer
	Charger CardCharger
	Oauth   ConnectOauth
}

// Server represents the gRPC server for payment operations.
type Server struct {
	mu sync.RWMutex

	// grpcServer is the underlying gRPC server
	grpcServer *grpc.Server

	// health answers the standard health-check protocol
	health *health.Server

	// config holds the server configuration
	config *ServerConfig

	// listener is the network listener
	listener net.Listener

	// running indicates if the server is currently running
	running bool

	store   relationaldb.Store
	ledger  *ledger.Ledger
	escrow  *escrow.Service
	ral     *ral.Estimator
	payer   *payouts.Payer
	charger CardCharger
	oauth   ConnectOauth

	log     *zap.Logger
	metrics *Metrics
}

// NewServer creates a new gRPC server with the given configuration.
func NewServer(cfg *ServerConfig, svcs Services, log *zap.Logger, metrics *Metrics) (*Server, error) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	server := &Server{
		health:  health.NewServer(),
		config:  cfg,
		store:   svcs.Store,
		ledger:  svcs.Ledger,
		escrow:  svcs.Escrow,
		ral:     svcs.RAL,
		payer:   svcs.Payer,
		charger: svcs.Charger,
		oauth:   svcs.Oauth,
		log:     log,
		metrics: metrics,
	}

	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.MaxSendMsgSize),
		grpc.UnaryInterceptor(server.unaryInterceptor()),
	}
	server.grpcServer = grpc.NewServer(opts...)
	server.grpcServer.RegisterService(&serviceDesc, server)
	healthpb.RegisterHealthServer(server.grpcServer, server.health)

	return server, nil
}

// Start starts the gRPC server and begins accepting connections.
// This method blocks until the server is stopped or an error occurs.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server is already running")
	}

	listener, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.log.Info("rpc server listening", zap.String("address", listener.Addr().String()))
	return s.grpcServer.Serve(listener)
}

// Stop gracefully stops the gRPC server.
// It stops accepting new connections and waits for existing connections to complete.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	s.grpcServer.GracefulStop()
	s.running = false
}

// StopNow immediately stops the gRPC server without waiting for connections.
func (s *Server) StopNow() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.grpcServer.Stop()
	s.running = false
}

// IsRunning returns true if the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the address the server is listening on.
// Returns empty string if the server is not running.
func (s *Server) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// GetGRPCServer returns the underlying grpc.Server.
// This can be used to register additional services.
func (s *Server) GetGRPCServer() *grpc.Server {
	return s.grpcServer
}

// unaryInterceptor logs every RPC and feeds the per-method counters.
func (s *Server) unaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		method := path.Base(info.FullMethod)
		code := status.Code(err)
		s.metrics.observe(method, code.String(), time.Since(start).Seconds())

		if err != nil {
			s.log.Warn("rpc failed",
				zap.String("method", method),
				zap.String("code", code.String()),
				zap.Duration("elapsed", time.Since(start)),
				zap.Error(err))
		} else {
			s.log.Debug("rpc handled",
				zap.String("method", method),
				zap.Duration("elapsed", time.Since(start)))
		}
		return resp, err
	}
}
