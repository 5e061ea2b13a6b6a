// Package grpcapi mirrors the /routing HTTP surface as a gRPC service for
// node-to-node callers, adapted from engine/grpc/server.go: the mTLS
// server plumbing is kept nearly as-is, while the settlement-specific
// message types are replaced with the quote/execute/status request and
// response shapes this router actually serves.
package grpcapi

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"

	"github.com/plm/liquidity-mesh-router/routing/model"
	"github.com/plm/liquidity-mesh-router/routing/pipeline"
	"github.com/plm/liquidity-mesh-router/routing/router"
	"github.com/plm/liquidity-mesh-router/routing/scorer"
)

// ServerConfig holds gRPC server configuration.
type ServerConfig struct {
	Address    string
	CertFile   string
	KeyFile    string
	CACertFile string

	MaxConcurrentStreams uint32
	MaxRecvMsgSize       int
	MaxSendMsgSize       int

	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultServerConfig returns production-ready defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:              ":50061",
		MaxConcurrentStreams: 1000,
		MaxRecvMsgSize:       4 * 1024 * 1024,
		MaxSendMsgSize:       4 * 1024 * 1024,
		KeepaliveTime:        30 * time.Second,
		KeepaliveTimeout:     10 * time.Second,
	}
}

// Server wraps a gRPC server with optional mTLS, mirroring the router's
// quote/execute/status operations for node-to-node callers.
type Server struct {
	cfg        *ServerConfig
	grpcServer *grpc.Server
	mu         sync.Mutex
	running    bool

	router   *router.Router
	scorer   *scorer.Scorer
	pipeline *pipeline.Pipeline
}

// NewServer creates a new gRPC server with optional mTLS, wired to the
// routing core's router/scorer/pipeline.
func NewServer(cfg *ServerConfig, r *router.Router, s *scorer.Scorer, p *pipeline.Pipeline) (*Server, error) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}

	var opts []grpc.ServerOption
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := loadTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS config: %w", err)
		}
		opts = append(opts, grpc.Creds(credentials.NewTLS(tlsConfig)))
	}

	opts = append(opts,
		grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams),
		grpc.MaxRecvMsgSize(cfg.MaxRecvMsgSize),
		grpc.MaxSendMsgSize(cfg.MaxSendMsgSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             10 * time.Second,
			PermitWithoutStream: true,
		}),
	)

	return &Server{
		cfg:        cfg,
		grpcServer: grpc.NewServer(opts...),
		router:     r,
		scorer:     s,
		pipeline:   p,
	}, nil
}

func loadTLSConfig(cfg *ServerConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load server certificate: %w", err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}

	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA certificate: %w", err)
		}
		certPool := x509.NewCertPool()
		if !certPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA certificate")
		}
		tlsConfig.ClientCAs = certPool
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return tlsConfig, nil
}

// GRPCServer returns the underlying gRPC server for service registration.
func (s *Server) GRPCServer() *grpc.Server {
	return s.grpcServer
}

// Start listens and serves, blocking until Stop/StopNow is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	listener, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.running = true
	s.mu.Unlock()

	return s.grpcServer.Serve(listener)
}

// Stop gracefully stops the server.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.grpcServer.GracefulStop()
	s.running = false
}

// StopNow immediately stops the server.
func (s *Server) StopNow() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.grpcServer.Stop()
	s.running = false
}

// RoutingServiceServer is the gRPC-facing mirror of the /routing HTTP
// surface's three core operations.
type RoutingServiceServer interface {
	Quote(ctx context.Context, req *QuoteRequest) (*QuoteReply, error)
	Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteReply, error)
	Status(ctx context.Context, req *StatusRequest) (*StatusReply, error)
}

// QuoteRequest mirrors the JSON body of POST /routing/quote/v2.
type QuoteRequest struct {
	AmountIn      float64
	FromToken     string
	ToToken       string
	Intermediates []string
	MinExpiryMs   int64
}

// QuoteReply mirrors one item of /routing/quote/v2's quotes array.
type QuoteReply struct {
	QuoteID      string
	AmountOut    float64
	NetAmountOut float64
	ExpiryTs     int64
	TotalFeesBps int32
}

// ExecuteRequest mirrors the JSON body of POST /routing/execute/v2.
type ExecuteRequest struct {
	QuoteID  string
	ClientID string
}

// ExecuteReply mirrors /routing/execute/v2's response.
type ExecuteReply struct {
	ReservationID string
	Status        string
	ReservedUntil int64
}

// StatusRequest mirrors GET /routing/status's query parameter.
type StatusRequest struct {
	ExecutionID string
}

// StatusReply mirrors GET /routing/status's response.
type StatusReply struct {
	ExecutionID       string
	Status            string
	CurrentStep       int32
	TransactionHashes []string
	Error             string
}

// service implements RoutingServiceServer directly over the routing core,
// without an intermediate HTTP hop.
type service struct {
	router   *router.Router
	scorer   *scorer.Scorer
	pipeline *pipeline.Pipeline
}

// NewRoutingService builds the gRPC-facing routing service implementation.
func NewRoutingService(r *router.Router, s *scorer.Scorer, p *pipeline.Pipeline) RoutingServiceServer {
	return &service{router: r, scorer: s, pipeline: p}
}

func (s *service) Quote(ctx context.Context, req *QuoteRequest) (*QuoteReply, error) {
	result := s.router.GetBestRoute(ctx, req.AmountIn, req.FromToken, req.ToToken, req.Intermediates, req.MinExpiryMs)
	if result.Route == nil {
		return nil, fmt.Errorf("no route available for %s -> %s", req.FromToken, req.ToToken)
	}
	net, meta := s.scorer.Score(result.Route, result.ParticipatingOTC)
	qType := scorer.QuoteType(result.Route)

	pq, err := s.pipeline.StoreProvisional(ctx, result.Route, req.AmountIn, result.Route.TotalOut, net, result.Route.TotalFeesBps, meta, qType)
	if err != nil {
		return nil, err
	}
	return &QuoteReply{
		QuoteID:      pq.QuoteID,
		AmountOut:    pq.AmountOut,
		NetAmountOut: pq.NetAmountOut,
		ExpiryTs:     pq.ExpiryTs,
		TotalFeesBps: int32(pq.FeeBps),
	}, nil
}

func (s *service) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteReply, error) {
	provisional, err := s.pipeline.GetProvisional(ctx, req.QuoteID)
	if err != nil {
		return nil, err
	}
	reserved, err := s.pipeline.Reserve(ctx, req.QuoteID, req.ClientID, nil)
	if err != nil {
		return nil, err
	}
	if _, _, err := s.pipeline.IssueDeposit(ctx, req.QuoteID, req.ClientID, reserved); err != nil {
		return nil, err
	}
	if _, err := s.pipeline.CreateExecution(ctx, req.QuoteID, provisional.Route, nil); err != nil {
		return nil, err
	}
	return &ExecuteReply{
		ReservationID: reserved.ReservationID,
		Status:        string(model.StatusPendingApproval),
		ReservedUntil: reserved.ReservedUntilTs,
	}, nil
}

func (s *service) Status(ctx context.Context, req *StatusRequest) (*StatusReply, error) {
	exec, err := s.pipeline.GetExecution(ctx, req.ExecutionID)
	if err != nil {
		return nil, err
	}
	return &StatusReply{
		ExecutionID:       exec.ExecutionID,
		Status:            string(exec.Status),
		CurrentStep:       int32(exec.CurrentStep),
		TransactionHashes: exec.TransactionHashes,
		Error:             exec.Error,
	}, nil
}
