package sealed

import (
	"context"

	"go.uber.org/zap"

	"pqchat/internal/domain"
	"pqchat/internal/telemetry"
)

// Protocol runs the sealing functions off the caller's goroutine.
type Protocol struct {
	log *zap.Logger
}

// New returns a Protocol. A nil logger disables logging.
func New(log *zap.Logger) *Protocol {
	if log == nil {
		log = zap.NewNop()
	}
	return &Protocol{log: log.Named("sealed")}
}

// Seal is the context-aware form of the package-level Seal.
func (p *Protocol) Seal(
	ctx context.Context,
	peerEncapsulationPublic []byte,
	plaintext string,
	signingPrivate []byte,
) (out domain.SealedPayload, err error) {
	ctx, end := telemetry.StartSpan(ctx, "sealed.Seal")
	defer func() { end(err) }()

	return offload(ctx, func() (domain.SealedPayload, error) {
		return Seal(peerEncapsulationPublic, plaintext, signingPrivate)
	})
}

// Open is the context-aware form of the package-level Open.
func (p *Protocol) Open(
	ctx context.Context,
	encapsulationPrivate []byte,
	payload domain.SealedPayload,
	peerSigningPublic []byte,
) (out domain.Opened, err error) {
	ctx, end := telemetry.StartSpan(ctx, "sealed.Open")
	defer func() { end(err) }()

	out, err = offload(ctx, func() (domain.Opened, error) {
		return Open(encapsulationPrivate, payload, peerSigningPublic)
	})
	if err == nil && out.SignatureVerified == domain.VerificationInvalid {
		p.log.Warn("signature did not verify; message kept as unverified")
	}
	return out, err
}

// EncryptOnly is the context-aware form of the package-level EncryptOnly.
func (p *Protocol) EncryptOnly(
	ctx context.Context,
	peerEncapsulationPublic []byte,
	plaintext string,
) (out domain.SealedPayload, err error) {
	ctx, end := telemetry.StartSpan(ctx, "sealed.EncryptOnly")
	defer func() { end(err) }()

	return offload(ctx, func() (domain.SealedPayload, error) {
		return EncryptOnly(peerEncapsulationPublic, plaintext)
	})
}

// DecryptOnly is the context-aware form of the package-level DecryptOnly.
func (p *Protocol) DecryptOnly(
	ctx context.Context,
	encapsulationPrivate []byte,
	payload domain.SealedPayload,
) (out string, err error) {
	ctx, end := telemetry.StartSpan(ctx, "sealed.DecryptOnly")
	defer func() { end(err) }()

	return offload(ctx, func() (string, error) {
		return DecryptOnly(encapsulationPrivate, payload)
	})
}

// offload runs fn on a new goroutine. If ctx ends first the result is dropped.
func offload[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v: v, err: err}
	}()
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-done:
		return r.v, r.err
	}
}

// Compile-time assertion that Protocol implements domain.CryptoProtocol.
var _ domain.CryptoProtocol = (*Protocol)(nil)
