package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// Pinger checks a backing store (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// PolicyChecker checks that the purpose gate can evaluate.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server implements grpc.health.v1.Health for readiness and liveness.
// The empty service name and every name in services report overall status.
type Server struct {
	healthpb.UnimplementedHealthServer
	pinger        Pinger
	policyChecker PolicyChecker
	extra         []Pinger
	services      map[string]struct{}
}

// NewServer returns a Health server. pinger and policyChecker may be nil; extra pingers
// (e.g. Redis) are checked after them.
func NewServer(pinger Pinger, policyChecker PolicyChecker, extra ...Pinger) *Server {
	return &Server{pinger: pinger, policyChecker: policyChecker, extra: extra, services: map[string]struct{}{}}
}

// WithServices adds service names that Check answers for.
func (s *Server) WithServices(names ...string) *Server {
	for _, n := range names {
		s.services[n] = struct{}{}
	}
	return s
}

// Check returns SERVING when every configured dependency responds. Dependency failures are
// reported as NOT_SERVING, not as RPC errors.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	if name := req.GetService(); name != "" {
		if _, ok := s.services[name]; !ok {
			return nil, status.Errorf(codes.NotFound, "unknown service %q", name)
		}
	}
	return &healthpb.HealthCheckResponse{Status: s.status(ctx)}, nil
}

func (s *Server) status(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	if s.pinger != nil {
		if err := s.pinger.PingContext(ctx); err != nil {
			return healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	if s.policyChecker != nil {
		if err := s.policyChecker.HealthCheck(ctx); err != nil {
			return healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	for _, p := range s.extra {
		if p == nil {
			continue
		}
		if err := p.PingContext(ctx); err != nil {
			return healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	return healthpb.HealthCheckResponse_SERVING
}
