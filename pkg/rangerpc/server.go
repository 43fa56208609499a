package rangerpc

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/cuemby/rangevault/pkg/log"
	"github.com/cuemby/rangevault/pkg/security"
)

// Server hosts any combination of the recovery, replication-master, and
// slave service descriptors behind one mTLS listener, mirroring
// pkg/api.Server's single-grpc.Server-per-process shape.
type Server struct {
	grpc *grpc.Server
	log  zerolog.Logger
}

// NewServer builds an mTLS gRPC server using the certificate directory
// for role/location, loaded through pkg/security the way pkg/api.NewServer
// loads a manager's certificate.
func NewServer(role, location string) (*Server, error) {
	certDir, err := security.GetCertDir(role, location)
	if err != nil {
		return nil, fmt.Errorf("rangerpc: cert directory: %w", err)
	}
	if !security.CertExists(certDir) {
		return nil, fmt.Errorf("rangerpc: no certificate at %s - run cluster bootstrap first", certDir)
	}

	cert, err := security.LoadCertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("rangerpc: load certificate: %w", err)
	}
	caCert, err := security.LoadCACertFromFile(certDir)
	if err != nil {
		return nil, fmt.Errorf("rangerpc: load CA certificate: %w", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(caCert)

	tlsConfig := &tls.Config{
		ClientAuth:   tls.RequireAndVerifyClientCert,
		Certificates: []tls.Certificate{*cert},
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS13,
	}

	grpcServer := grpc.NewServer(
		grpc.Creds(credentials.NewTLS(tlsConfig)),
		grpc.UnaryInterceptor(LoggingInterceptor(log.WithComponent("rangerpc.server"))),
		grpc.ForceServerCodec(jsonCodec{}),
	)

	return &Server{grpc: grpcServer, log: log.WithComponent("rangerpc.server")}, nil
}

// RegisterRecovery registers a destination's phantom-load/replay/
// acknowledge handlers.
func (s *Server) RegisterRecovery(h RecoveryHandler) {
	s.grpc.RegisterService(&recoveryServiceDesc, h)
}

// RegisterMaster registers a replication master's assign/finished/
// receiver-list/schema-update handlers.
func (s *Server) RegisterMaster(h MasterHandler) {
	s.grpc.RegisterService(&masterServiceDesc, h)
}

// RegisterSlave registers a replication slave's update handler (the
// receiving side of a remote cluster's shipped rows).
func (s *Server) RegisterSlave(h SlaveHandler) {
	s.grpc.RegisterService(&slaveServiceDesc, h)
}

// Serve listens on addr and blocks serving RPCs until Stop is called.
func (s *Server) Serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rangerpc: listen on %s: %w", addr, err)
	}
	s.log.Info().Str("addr", addr).Msg("rangerpc server listening")
	return s.grpc.Serve(lis)
}

// Stop gracefully stops the server, letting in-flight RPCs finish.
func (s *Server) Stop() {
	s.grpc.GracefulStop()
}
