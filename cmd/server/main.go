package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	accountrepo "haritsetu/backend/internal/account/repository"
	"haritsetu/backend/internal/audit"
	auditrepo "haritsetu/backend/internal/audit/repository"
	"haritsetu/backend/internal/auth/service"
	"haritsetu/backend/internal/config"
	"haritsetu/backend/internal/db"
	healthhandler "haritsetu/backend/internal/health/handler"
	"haritsetu/backend/internal/otp"
	"haritsetu/backend/internal/otp/email"
	"haritsetu/backend/internal/otp/provider"
	"haritsetu/backend/internal/otp/sms"
	"haritsetu/backend/internal/policy"
	"haritsetu/backend/internal/security"
	"haritsetu/backend/internal/server"
	"haritsetu/backend/internal/server/interceptors"
	"haritsetu/backend/internal/telemetry"
	telemetryotel "haritsetu/backend/internal/telemetry/otel"
	"haritsetu/backend/internal/telemetry/producer"
)

const serviceName = "haritsetu-otp"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr)
		bootLogger.Fatal().Err(err).Msg("config")
	}
	logger := cfg.NewLogger("server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	primaryName := "none"
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioVerifyServiceSID != "" {
		primaryName = "twilio-verify"
	}
	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Settings{
		Endpoint:        cfg.OTelEndpoint,
		Insecure:        cfg.OTelInsecure,
		ServiceName:     serviceName,
		ServiceVersion:  cfg.ServiceVersion,
		Environment:     cfg.Env,
		DeliveryPrimary: primaryName,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	tokens, err := newTokenProvider(cfg)
	if err != nil {
		return err
	}

	deps := server.Deps{Sessions: tokens, Logger: logger}

	var (
		accounts    accountrepo.Repository = accountrepo.NewMemoryRepository()
		auditEvents auditrepo.Repository   = auditrepo.NewMemoryRepository()
	)
	if cfg.DatabaseURL != "" {
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer sqlDB.Close()
		accounts = accountrepo.NewPostgresRepository(sqlDB)
		auditEvents = auditrepo.NewPostgresRepository(sqlDB)
		deps.HealthPinger = sqlDB
	} else {
		logger.Warn().Msg("DATABASE_URL not set; accounts and audit logs are kept in memory")
	}

	var codes, markers otp.Store
	var engineOpts []otp.Option
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		codes = otp.NewRedisStore(rdb, "otp:")
		markers = otp.NewRedisStore(rdb, "signup:")
		engineOpts = append(engineOpts, otp.WithLedger(otp.NewLedger(otp.NewRedisStore(rdb, otp.DefaultLedgerPrefix))))
		deps.HealthExtra = append(deps.HealthExtra, healthhandler.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}))
	} else {
		codes = otp.NewMemoryStore(cfg.OTPStoreShards)
		markers = otp.NewMemoryStore(cfg.OTPStoreShards)
	}

	var primary otp.Provider
	if twilio := provider.NewTwilioVerify(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioVerifyServiceSID, cfg.TwilioBaseURL); twilio.Configured() {
		primary = twilio
	} else {
		logger.Warn().Msg("Twilio Verify not configured; every code goes through the fallback channel")
	}
	messenger := otp.KindRouter{
		Phone: sms.NewSMSLocalClient(cfg.SMSLocalAPIKey, cfg.SMSLocalBaseURL, cfg.SMSLocalSender),
		Email: email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPFrom),
	}

	engine := otp.NewEngine(codes, primary, messenger, otp.Config{
		TTL:             cfg.OTPTTL(),
		ProviderTimeout: cfg.ProviderTimeout(),
		Shards:          cfg.OTPStoreShards,
		BypassCode:      cfg.OTPBypassCode,
	}, logger, engineOpts...)
	if cfg.OTPBypassCode != "" {
		logger.Warn().Msg("OTP bypass code enabled; never use this outside development")
	}

	gate, err := policy.NewGate(ctx)
	if err != nil {
		return err
	}
	deps.HealthPolicyChecker = gate

	emitters := telemetry.Multi{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if kp := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic); kp != nil {
		defer kp.Close()
		emitters = append(emitters, kp)
	}
	deps.Events = emitters

	deps.Auth = service.NewOTPAuthService(
		accounts,
		engine,
		gate,
		tokens,
		markers,
		service.Config{Normalizer: cfg.Normalizer(), MarkerTTL: cfg.SignupMarkerTTL()},
		audit.NewLogger(auditEvents, interceptors.ClientIP, logger),
		emitters,
		logger,
	)

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go engine.RunSweeper(sweepCtx, cfg.SweepInterval())
	if ms, ok := markers.(*otp.MemoryStore); ok {
		go otp.RunSweeper(sweepCtx, ms, cfg.SweepInterval(), logger)
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	s := server.NewGRPCServer(deps)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
		serveErr <- s.Serve(lis)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down gRPC server")
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.Stop()
	}
	time.Sleep(telemetry.ShutdownDrainDuration)
	logger.Info().Msg("gRPC server stopped")
	return nil
}

// newTokenProvider prefers an RS256/ES256 key pair and falls back to an HS256 secret.
func newTokenProvider(cfg *config.Config) (*security.TokenProvider, error) {
	if cfg.JWTPrivateKey != "" && cfg.JWTPublicKey != "" {
		signer, pub, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTTL())
	}
	if cfg.JWTSecret != "" {
		return security.NewHMACTokenProvider([]byte(cfg.JWTSecret), cfg.JWTIssuer, cfg.JWTAudience, cfg.SessionTTL())
	}
	return nil, errors.New("JWT_PRIVATE_KEY/JWT_PUBLIC_KEY or JWT_SECRET must be set")
}
