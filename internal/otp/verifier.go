package otp

import (
	"context"
	"fmt"

	"haritsetu/backend/internal/identifier"
)

// Verify checks code against the current code for id.
//
// When the last delivery went through the primary provider the provider is asked first;
// a provider error falls through to the local store. A local match consumes the entry so
// the code cannot be used twice. A mismatch leaves the entry in place. When no delivery
// record exists (another instance without a shared ledger, or a restart) and the local
// store is empty, the provider is asked as a last resort. Anything else yields VerdictExpired.
func (e *Engine) Verify(ctx context.Context, id identifier.Identifier, code string) (Verdict, error) {
	if id == "" {
		return VerdictInvalid, &ValidationError{Field: "identifier", Reason: "must not be empty"}
	}
	if code == "" {
		return VerdictInvalid, &ValidationError{Field: "code", Reason: "must not be empty"}
	}

	unlock := e.locks.lock(string(id))
	defer unlock()

	log := e.logger.With().Str("identifier", identifier.Mask(id)).Logger()

	if e.bypassAccepts(code) {
		log.Warn().Msg("otp: accepted bypass code")
		return VerdictValid, nil
	}

	last, known, err := e.ledger.Last(ctx, id)
	if err != nil {
		log.Warn().Err(err).Msg("otp: reading delivery record failed")
	}
	if known && last.Channel == ChannelPrimary && e.primary != nil {
		v, err := e.check(ctx, id, code)
		if err == nil {
			if v == VerdictValid {
				e.forget(ctx, log, id)
			}
			return v, nil
		}
		log.Warn().Err(err).Msg("otp: provider check failed, trying local store")
	}

	entry, ok, err := e.store.Get(ctx, id)
	if err != nil {
		return VerdictInvalid, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !ok {
		if known || e.primary == nil {
			return VerdictExpired, nil
		}
		v, err := e.check(ctx, id, code)
		if err != nil {
			log.Warn().Err(err).Msg("otp: provider check without delivery record failed")
			return VerdictExpired, nil
		}
		return v, nil
	}
	if !CodesEqual(code, entry.Code) {
		return VerdictInvalid, nil
	}
	if err := ctx.Err(); err != nil {
		return VerdictInvalid, err
	}
	if err := e.store.Consume(ctx, id); err != nil {
		return VerdictInvalid, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// The fallback record stays until its TTL so a replay is not sent to the provider.
	return VerdictValid, nil
}

func (e *Engine) check(ctx context.Context, id identifier.Identifier, code string) (Verdict, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.primary.Check(ctx, id, code)
}

func (e *Engine) bypassAccepts(code string) bool {
	return bypassCompiledIn && e.bypassCode != "" && CodesEqual(code, e.bypassCode)
}
