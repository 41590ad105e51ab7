package service

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "haritsetu/backend/internal/auth/service"

type metrics struct {
	requests      metric.Int64Counter
	verifications metric.Int64Counter
	signups       metric.Int64Counter
}

// newMetrics registers counters on the global MeterProvider. Instruments that fail to
// register fall back to no-ops from the same meter.
func newMetrics() *metrics {
	meter := otel.Meter(instrumentationName)
	requests, _ := meter.Int64Counter("otp.requests",
		metric.WithDescription("OTP send requests by purpose, channel and outcome"))
	verifications, _ := meter.Int64Counter("otp.verifications",
		metric.WithDescription("OTP submissions by purpose and verdict"))
	signups, _ := meter.Int64Counter("otp.signups",
		metric.WithDescription("Completed signups by role"))
	return &metrics{requests: requests, verifications: verifications, signups: signups}
}

func (m *metrics) request(ctx context.Context, purpose, channel, outcome string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("channel", channel),
		attribute.String("outcome", outcome),
	))
}

func (m *metrics) verification(ctx context.Context, purpose, verdict string) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("purpose", purpose),
		attribute.String("verdict", verdict),
	))
}

func (m *metrics) signup(ctx context.Context, role string) {
	if m == nil || m.signups == nil {
		return
	}
	m.signups.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}
