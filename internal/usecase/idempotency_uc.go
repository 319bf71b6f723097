package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/repository"
	"paybridge/internal/infra/metrics"
)

// Compile-time check
var _ IdempotencyUseCase = (*idempotencyUC)(nil)

// Operation is the unit of work guarded by an idempotency key. It returns
// the serialized response that will be cached and replayed.
type Operation func(ctx context.Context) ([]byte, error)

// IdempotencyUseCase executes an operation at most once per (key, scope) and
// replays the stored outcome for every later call. Outcomes are cached for
// success and for defined failures; an ambiguous outcome (timeout, transport
// failure) releases the claim so a retry executes the operation again.
type IdempotencyUseCase interface {
	// Execute runs op under the key. The bool reports a replayed or shared
	// result, meaning op did not run for this caller. An empty key bypasses
	// the guard entirely.
	Execute(ctx context.Context, key, scope, fingerprint string, op Operation) ([]byte, bool, error)
	// PurgeExpired removes records past their retention window.
	PurgeExpired(ctx context.Context) (int64, error)
}

const (
	defaultIdemRetention = 24 * time.Hour
	// A processing claim older than this belongs to a crashed caller and may
	// be taken over.
	idemClaimTimeout = 2 * time.Minute
)

type idempotencyUC struct {
	records   repository.IdempotencyRepository
	retention time.Duration
	group     singleflight.Group
	log       *zerolog.Logger
}

func NewIdempotencyUseCase(records repository.IdempotencyRepository, retention time.Duration, logger *zerolog.Logger) *idempotencyUC {
	if retention <= 0 {
		retention = defaultIdemRetention
	}
	return &idempotencyUC{
		records:   records,
		retention: retention,
		log:       logger,
	}
}

// Fingerprint digests the request parameters bound to an idempotency key.
// Reusing a key with different parameters is rejected, per Stripe-style
// semantics.
func Fingerprint(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// idemOutcome carries the operation result through singleflight so every
// concurrent caller receives the same body and error.
type idemOutcome struct {
	body     []byte
	replayed bool
	err      error
}

func (u *idempotencyUC) Execute(ctx context.Context, key, scope, fingerprint string, op Operation) ([]byte, bool, error) {
	if strings.TrimSpace(key) == "" {
		body, err := op(ctx)
		return body, false, err
	}

	v, _, shared := u.group.Do(scope+":"+key, func() (interface{}, error) {
		return u.run(ctx, key, scope, fingerprint, op), nil
	})
	out := v.(*idemOutcome)
	replayed := out.replayed || shared
	if shared {
		metrics.IncIdempotency(scope, "shared")
	}
	return out.body, replayed, out.err
}

func (u *idempotencyUC) run(ctx context.Context, key, scope, fingerprint string, op Operation) *idemOutcome {
	now := time.Now()
	rec := &model.IdempotencyRecord{
		Key:         key,
		Scope:       scope,
		Fingerprint: fingerprint,
		Status:      model.IdempotencyProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(u.retention),
	}

	existing, err := u.records.Claim(ctx, repository.NoTX, rec)
	if errors.Is(err, domain.ErrAlreadyExists) {
		if out, done := u.replay(ctx, existing, fingerprint, now); done {
			return out
		}
		// The stale record was released; claim again. Losing this second
		// race means another worker took over in the gap.
		if _, err := u.records.Claim(ctx, repository.NoTX, rec); err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				return &idemOutcome{err: domain.NewPaymentError(
					domain.CodeIdempotencyInProgress, "",
					"a request with this idempotency key is still running", nil,
				)}
			}
			return &idemOutcome{err: err}
		}
	} else if err != nil {
		return &idemOutcome{err: err}
	}

	body, opErr := op(ctx)
	if opErr != nil {
		if !cacheableFailure(opErr) {
			// The gateway may or may not have acted; a retry must be able to
			// run the operation again.
			u.release(ctx, key, scope)
			metrics.IncIdempotency(scope, "released")
			return &idemOutcome{err: opErr}
		}
		u.complete(ctx, key, scope, encodeOutcome(nil, opErr), rec.ExpiresAt)
		metrics.IncIdempotency(scope, "stored")
		return &idemOutcome{err: opErr}
	}

	u.complete(ctx, key, scope, encodeOutcome(body, nil), rec.ExpiresAt)
	metrics.IncIdempotency(scope, "stored")
	return &idemOutcome{body: body}
}

// replay resolves an existing record. done is false when the record was
// stale and has been released for re-claiming.
func (u *idempotencyUC) replay(ctx context.Context, existing *model.IdempotencyRecord, fingerprint string, now time.Time) (*idemOutcome, bool) {
	if existing == nil {
		return nil, false
	}
	if existing.Fingerprint != fingerprint {
		return &idemOutcome{err: domain.NewPaymentError(
			domain.CodeIdempotencyKeyConflict, "",
			"idempotency key reused with different parameters", nil,
		)}, true
	}
	if existing.Expired(now) {
		u.release(ctx, existing.Key, existing.Scope)
		return nil, false
	}
	switch existing.Status {
	case model.IdempotencyCompleted:
		metrics.IncIdempotency(existing.Scope, "replayed")
		body, err := decodeOutcome(existing.Response)
		return &idemOutcome{body: body, replayed: true, err: err}, true
	case model.IdempotencyProcessing:
		if now.Sub(existing.UpdatedAt) > idemClaimTimeout {
			u.log.Warn().
				Str("scope", existing.Scope).
				Str("key", existing.Key).
				Msg("taking over abandoned idempotency claim")
			u.release(ctx, existing.Key, existing.Scope)
			return nil, false
		}
		return &idemOutcome{err: domain.NewPaymentError(
			domain.CodeIdempotencyInProgress, "",
			"a request with this idempotency key is still running", nil,
		)}, true
	}
	return nil, false
}

func (u *idempotencyUC) PurgeExpired(ctx context.Context) (int64, error) {
	return u.records.DeleteExpired(ctx, repository.NoTX, time.Now())
}

func (u *idempotencyUC) release(ctx context.Context, key, scope string) {
	if err := u.records.Release(ctx, repository.NoTX, key, scope); err != nil {
		u.log.Error().Str("scope", scope).Str("key", key).Err(err).
			Msg("failed to release idempotency claim")
	}
}

func (u *idempotencyUC) complete(ctx context.Context, key, scope string, response []byte, expiresAt time.Time) {
	if err := u.records.Complete(ctx, repository.NoTX, key, scope, response, expiresAt); err != nil {
		// The caller still gets the live result; the next retry re-executes.
		u.log.Error().Str("scope", scope).Str("key", key).Err(err).
			Msg("failed to store idempotency outcome")
	}
}

// cacheableFailure reports whether an operation error is a defined outcome
// safe to replay. Timeouts and transport-level failures are ambiguous and
// must never be cached.
func cacheableFailure(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *domain.PaymentError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Code {
	case domain.CodeGatewayTimeout, domain.CodeGatewayError,
		domain.CodeTokenEndpointFailed, domain.CodeAdapterUnavailable:
		return false
	}
	return true
}

// outcomeEnvelope is the stored shape of a finished operation. Failures keep
// their code and message so a replay surfaces the original error.
type outcomeEnvelope struct {
	OK       bool            `json:"ok"`
	Body     json.RawMessage `json:"body,omitempty"`
	Code     string          `json:"code,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Message  string          `json:"message,omitempty"`
}

func encodeOutcome(body []byte, opErr error) []byte {
	env := outcomeEnvelope{OK: opErr == nil, Body: body}
	if opErr != nil {
		var pe *domain.PaymentError
		if errors.As(opErr, &pe) {
			env.Code = pe.Code
			env.Provider = pe.Provider
			env.Message = pe.Message
		} else {
			env.Code = domain.CodeInvalidRequest
			env.Message = opErr.Error()
		}
	}
	b, _ := json.Marshal(env)
	return b
}

func decodeOutcome(stored []byte) ([]byte, error) {
	var env outcomeEnvelope
	if err := json.Unmarshal(stored, &env); err != nil {
		return nil, err
	}
	if env.OK {
		return env.Body, nil
	}
	return nil, domain.NewPaymentError(env.Code, env.Provider, env.Message, nil)
}
