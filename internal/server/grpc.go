package server

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	authhandler "haritsetu/backend/internal/auth/handler"
	healthhandler "haritsetu/backend/internal/health/handler"
	"haritsetu/backend/internal/server/interceptors"
	"haritsetu/backend/internal/telemetry"
)

// Deps holds optional service dependencies for gRPC handlers.
type Deps struct {
	// Auth is the OTP auth service. If nil, OTPAuthService RPCs return Unimplemented.
	Auth authhandler.Service
	// Sessions validates Bearer tokens so calls can be attributed to an account. If nil, no session is attached.
	Sessions interceptors.SessionValidator
	// Events receives one grpc_request event per RPC. If nil, no request telemetry is emitted.
	Events telemetry.EventEmitter
	// HealthPinger is used by the health service for readiness (e.g. *sql.DB). If nil, the DB ping is skipped.
	HealthPinger healthhandler.Pinger
	// HealthPolicyChecker is used by the health service for readiness (the purpose gate). If nil, it is skipped.
	HealthPolicyChecker healthhandler.PolicyChecker
	// HealthExtra are further readiness checks (e.g. Redis).
	HealthExtra []healthhandler.Pinger
	Logger      zerolog.Logger
}

// Full method names of the exposed RPCs.
const (
	MethodRequestOTP     = "/" + authhandler.ServiceName + "/RequestOTP"
	MethodSubmitOTP      = "/" + authhandler.ServiceName + "/SubmitOTP"
	MethodCompleteSignup = "/" + authhandler.ServiceName + "/CompleteSignup"
	MethodHealthCheck    = "/grpc.health.v1.Health/Check"
	MethodHealthWatch    = "/grpc.health.v1.Health/Watch"
)

// PublicMethods need no session token. Every exposed RPC is public; tokens are only used for attribution.
var PublicMethods = map[string]bool{
	MethodRequestOTP:     true,
	MethodSubmitOTP:      true,
	MethodCompleteSignup: true,
	MethodHealthCheck:    true,
	MethodHealthWatch:    true,
}

// telemetrySkip are methods that emit no request telemetry.
var telemetrySkip = map[string]bool{
	MethodHealthCheck: true,
	MethodHealthWatch: true,
}

// NewGRPCServer returns a gRPC server with otel instrumentation and the interceptor chain
// (logging, session attribution, request telemetry), with all services registered.
func NewGRPCServer(deps Deps, opts ...grpc.ServerOption) *grpc.Server {
	base := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			interceptors.LoggingUnary(deps.Logger),
			interceptors.AuthUnary(deps.Sessions, PublicMethods),
			interceptors.TelemetryUnary(deps.Events, telemetrySkip),
		),
	}
	s := grpc.NewServer(append(base, opts...)...)
	RegisterServices(s, deps)
	return s
}

// RegisterServices registers all gRPC services with the given server.
//
// Service → handler mapping:
//   - haritsetu.otp.v1.OTPAuthService → internal/auth/handler
//   - grpc.health.v1.Health           → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	authhandler.Register(s, authhandler.NewServer(deps.Auth))
	health := healthhandler.NewServer(deps.HealthPinger, deps.HealthPolicyChecker, deps.HealthExtra...).
		WithServices(authhandler.ServiceName)
	healthpb.RegisterHealthServer(s, health)
}
