// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"haritsetu/backend/internal/identifier"
	"haritsetu/backend/internal/otp"
)

// EnvProduction is the APP_ENV value that disables every development shortcut.
const EnvProduction = "production"

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty runs the server on in-memory repositories.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// RedisAddr enables the shared Redis OTP store when set (e.g. localhost:6379).
	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA); used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTSecret signs HS256 sessions when no key pair is configured. At least 32 bytes.
	JWTSecret   string `mapstructure:"JWT_SECRET"`
	JWTIssuer   string `mapstructure:"JWT_ISSUER"`
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// SessionTTLStr is the session token lifetime (e.g. "168h").
	SessionTTLStr string `mapstructure:"SESSION_TTL"`

	OTPTTLStr             string `mapstructure:"OTP_TTL"`
	OTPProviderTimeoutStr string `mapstructure:"OTP_PROVIDER_TIMEOUT"`
	OTPSweepIntervalStr   string `mapstructure:"OTP_SWEEP_INTERVAL"`
	SignupMarkerTTLStr    string `mapstructure:"SIGNUP_MARKER_TTL"`
	OTPStoreShards        int    `mapstructure:"OTP_STORE_SHARDS"`
	// DefaultCountryCode is prefixed to domestic phone numbers entered without '+'.
	DefaultCountryCode string `mapstructure:"DEFAULT_COUNTRY_CODE"`
	// OTPBypassCode is accepted for any identifier outside production. Empty disables it.
	OTPBypassCode string `mapstructure:"OTP_BYPASS_CODE"`

	// Twilio Verify is the primary delivery provider. All three are required to enable it.
	TwilioAccountSID       string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken        string `mapstructure:"TWILIO_AUTH_TOKEN"`
	TwilioVerifyServiceSID string `mapstructure:"TWILIO_VERIFY_SERVICE_SID"`
	TwilioBaseURL          string `mapstructure:"TWILIO_BASE_URL"`

	// SMS Local sends fallback SMS to phone identifiers.
	SMSLocalAPIKey  string `mapstructure:"SMS_LOCAL_API_KEY"`
	SMSLocalSender  string `mapstructure:"SMS_LOCAL_SENDER"`
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// SMTP sends fallback email to email identifiers.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	// Env is the application environment (e.g. "development", "production").
	Env      string `mapstructure:"APP_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// OTel (optional). Empty endpoint leaves the no-op global providers in place.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceVersion is reported as service.version on every signal.
	ServiceVersion string `mapstructure:"SERVICE_VERSION"`

	// Telemetry (optional). When Kafka brokers are set, OTP lifecycle events are emitted to Kafka.
	// TelemetryKafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	TelemetryKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	TelemetryKafkaTopic   string `mapstructure:"TELEMETRY_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the telemetry worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the telemetry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "haritsetu-auth")
	v.SetDefault("JWT_AUDIENCE", "haritsetu-api")
	v.SetDefault("SESSION_TTL", "168h")
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_PROVIDER_TIMEOUT", "5s")
	v.SetDefault("OTP_SWEEP_INTERVAL", "1m")
	v.SetDefault("SIGNUP_MARKER_TTL", "15m")
	v.SetDefault("OTP_STORE_SHARDS", 32)
	v.SetDefault("DEFAULT_COUNTRY_CODE", identifier.DefaultCountryCode)
	v.SetDefault("OTP_BYPASS_CODE", "")
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("TWILIO_VERIFY_SERVICE_SID", "")
	v.SetDefault("TWILIO_BASE_URL", "https://verify.twilio.com")
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://www.smslocal.com/dev/bulkV2")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("SERVICE_VERSION", "dev")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("TELEMETRY_KAFKA_TOPIC", "haritsetu-otp-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "haritsetu-otp-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field rules. Load calls it; tests may call it directly.
func (c *Config) Validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	if c.OTPBypassCode != "" {
		if c.Production() {
			return errors.New("config: OTP_BYPASS_CODE must be empty when APP_ENV=production")
		}
		if !otp.ValidCodeFormat(c.OTPBypassCode) {
			return errors.New("config: OTP_BYPASS_CODE must be 6 digits")
		}
	}
	if c.OTPStoreShards < 0 {
		return errors.New("config: OTP_STORE_SHARDS must not be negative")
	}
	if c.SMTPPort < 0 || c.SMTPPort > 65535 {
		return errors.New("config: SMTP_PORT must be a valid port")
	}
	return nil
}

// Production reports whether APP_ENV is production.
func (c *Config) Production() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), EnvProduction)
}

// SessionTTL parses SESSION_TTL. Returns 168h if unset or invalid.
func (c *Config) SessionTTL() time.Duration { return parseDuration(c.SessionTTLStr, 168*time.Hour) }

// OTPTTL parses OTP_TTL. Returns 10m if unset or invalid.
func (c *Config) OTPTTL() time.Duration { return parseDuration(c.OTPTTLStr, otp.DefaultTTL) }

// ProviderTimeout parses OTP_PROVIDER_TIMEOUT. Returns 5s if unset or invalid.
func (c *Config) ProviderTimeout() time.Duration {
	return parseDuration(c.OTPProviderTimeoutStr, otp.DefaultProviderTimeout)
}

// SweepInterval parses OTP_SWEEP_INTERVAL. Returns 1m if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.OTPSweepIntervalStr, time.Minute)
}

// SignupMarkerTTL parses SIGNUP_MARKER_TTL. Returns 15m if unset or invalid.
func (c *Config) SignupMarkerTTL() time.Duration {
	return parseDuration(c.SignupMarkerTTLStr, 15*time.Minute)
}

// Normalizer returns the identifier normalizer for DEFAULT_COUNTRY_CODE.
func (c *Config) Normalizer() identifier.Normalizer {
	cc := strings.TrimPrefix(strings.TrimSpace(c.DefaultCountryCode), "+")
	return identifier.Normalizer{CountryCode: cc, LocalDigits: identifier.DefaultLocalDigits}
}

// TelemetryKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if telemetry is enabled (non-empty list) and to create the producer.
func (c *Config) TelemetryKafkaBrokersList() []string {
	if c == nil || c.TelemetryKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.TelemetryKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return def
	}
	return d
}
