package otp

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"haritsetu/backend/internal/identifier"
)

// MessageText renders the body sent on the fallback channel.
func MessageText(code string, ttlMinutes int) string {
	return fmt.Sprintf("Your verification code is: %s. Valid for %d minutes.", code, ttlMinutes)
}

// Send delivers a fresh code to id. The primary provider is tried first; on any failure a
// code is generated, stored locally with the engine TTL and sent through the messenger.
// A successful send supersedes any earlier code for id. When both channels fail no code
// remains stored and a *DeliveryError is returned.
func (e *Engine) Send(ctx context.Context, id identifier.Identifier) (DeliveryResult, error) {
	if id == "" {
		return DeliveryResult{}, &ValidationError{Field: "identifier", Reason: "must not be empty"}
	}
	unlock := e.locks.lock(string(id))
	defer unlock()

	log := e.logger.With().Str("identifier", identifier.Mask(id)).Logger()

	primaryErr := ErrProviderUnavailable
	if e.primary != nil {
		ref, err := e.originate(ctx, id)
		if err == nil {
			if err := e.store.Consume(ctx, id); err != nil {
				log.Warn().Err(err).Msg("otp: clearing superseded local code failed")
			}
			res := DeliveryResult{Channel: ChannelPrimary, ProviderRef: ref}
			e.remember(ctx, log, id, res)
			log.Info().Str("channel", res.Channel.String()).Msg("otp: code sent")
			return res, nil
		}
		primaryErr = err
		log.Warn().Err(err).Msg("otp: primary provider failed, using fallback")
	}

	if err := ctx.Err(); err != nil {
		return DeliveryResult{}, err
	}

	code, err := e.generate()
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("generate code: %w", err)
	}
	if err := e.store.Put(ctx, id, code, e.ttl); err != nil {
		e.forget(ctx, log, id)
		return DeliveryResult{}, &DeliveryError{Primary: primaryErr, Fallback: fmt.Errorf("store code: %w", err)}
	}

	fallbackErr := ErrNoRoute
	if e.messenger != nil {
		msgID, err := e.deliver(ctx, id, code)
		if err == nil {
			res := DeliveryResult{Channel: ChannelFallback, ProviderRef: msgID}
			e.remember(ctx, log, id, res)
			log.Info().Str("channel", res.Channel.String()).Msg("otp: code sent")
			return res, nil
		}
		fallbackErr = err
	}

	// Both channels failed: leave nothing behind that could later verify.
	if err := e.store.Consume(context.WithoutCancel(ctx), id); err != nil {
		log.Error().Err(err).Msg("otp: removing undelivered code failed")
	}
	e.forget(ctx, log, id)
	log.Error().AnErr("primary", primaryErr).AnErr("fallback", fallbackErr).Msg("otp: delivery failed")
	return DeliveryResult{}, &DeliveryError{Primary: primaryErr, Fallback: fallbackErr}
}

// remember records res in the ledger. Failures are only logged; Verify asks the
// provider when it finds no record.
func (e *Engine) remember(ctx context.Context, log zerolog.Logger, id identifier.Identifier, res DeliveryResult) {
	if err := e.ledger.record(context.WithoutCancel(ctx), id, res, e.ttl); err != nil {
		log.Warn().Err(err).Msg("otp: recording delivery failed")
	}
}

func (e *Engine) forget(ctx context.Context, log zerolog.Logger, id identifier.Identifier) {
	if err := e.ledger.forget(context.WithoutCancel(ctx), id); err != nil {
		log.Warn().Err(err).Msg("otp: clearing delivery record failed")
	}
}

func (e *Engine) originate(ctx context.Context, id identifier.Identifier) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.primary.Originate(ctx, id)
}

func (e *Engine) deliver(ctx context.Context, id identifier.Identifier, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	msg := Message{Code: code, Text: MessageText(code, int(e.ttl.Minutes())), TTL: e.ttl}
	return e.messenger.Send(ctx, id, msg)
}
