package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/adapter"
	"paybridge/internal/domain/ports/repository"
	"paybridge/internal/infra/logging"
	"paybridge/internal/infra/metrics"
	"paybridge/internal/infra/redis"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

// Outcome statuses surfaced to the HTTP layer. Unknown tenant and unknown or
// disabled provider are reported as errors instead, so the handler can answer
// 404 without leaking which of the two was wrong.
const (
	WebhookProcessed        = "processed"
	WebhookAlreadyProcessed = "already_processed"
	WebhookSignatureInvalid = "signature_invalid"
	WebhookAuthInvalid      = "authorization_invalid"
	WebhookMalformed        = "malformed"
)

// WebhookInput is one raw delivery as received on the wire. DedupeHint is the
// transport-level dedupe key extracted from headers or body without any
// verification work; it lets replays be answered before the adapter is ever
// constructed.
type WebhookInput struct {
	TenantID   string
	Provider   model.Provider
	Env        model.Environment
	Body       []byte
	Headers    map[string]string
	DedupeHint string
}

// WebhookOutcome reports what one delivery did. Matched is false when the
// event verified fine but referenced nothing we track; Changed is true only
// when a lifecycle transition was actually written.
type WebhookOutcome struct {
	Status    string
	PaymentID string
	OrderID   string
	Matched   bool
	Changed   bool
}

type WebhookUseCase interface {
	// Process runs one delivery through tenant resolution, the replay answer,
	// signature verification and the guarded lifecycle transition.
	Process(ctx context.Context, in WebhookInput) (*WebhookOutcome, error)
}

type webhookUC struct {
	webhooks repository.WebhookRepository
	payments repository.PaymentRepository
	orders   repository.OrderRepository
	refunds  repository.RefundRepository
	configs  repository.GatewayConfigRepository
	tm       repository.TransactionManager
	adapters adapter.Factory
	deduper  redis.WebhookDeduper
	log      *zerolog.Logger
}

func NewWebhookUseCase(
	webhooks repository.WebhookRepository,
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	refunds repository.RefundRepository,
	configs repository.GatewayConfigRepository,
	tm repository.TransactionManager,
	adapters adapter.Factory,
	deduper redis.WebhookDeduper,
	logger *zerolog.Logger,
) *webhookUC {
	return &webhookUC{
		webhooks: webhooks,
		payments: payments,
		orders:   orders,
		refunds:  refunds,
		configs:  configs,
		tm:       tm,
		adapters: adapters,
		deduper:  deduper,
		log:      logger,
	}
}

func (u *webhookUC) Process(ctx context.Context, in WebhookInput) (*WebhookOutcome, error) {
	defer logging.TraceDuration(u.log, "WebhookUC.Process")()

	cs, ok := model.Capabilities(in.Provider)
	if !ok || !cs.Webhooks {
		return nil, domain.ErrProviderUnknown
	}
	known, err := u.configs.TenantExists(ctx, repository.NoTX, in.TenantID)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, domain.ErrTenantUnknown
	}
	cfg, err := u.configs.Find(ctx, repository.NoTX, in.TenantID, in.Provider, in.Env)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrProviderDisabled
	}
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, domain.ErrProviderDisabled
	}

	// Replay fast path: a delivery we already recorded is answered without
	// repeating verification, and without constructing the adapter at all.
	if in.DedupeHint != "" {
		hit, err := u.alreadyAccepted(ctx, in.Provider, in.DedupeHint)
		if err != nil {
			return nil, err
		}
		if hit {
			u.log.Info().
				Str("provider", string(in.Provider)).
				Str("dedupe_key", in.DedupeHint).
				Msg("webhook replay suppressed")
			return &WebhookOutcome{Status: WebhookAlreadyProcessed}, nil
		}
	}

	gw, err := u.adapters.Resolve(ctx, in.TenantID, in.Provider, in.Env)
	if err != nil {
		return nil, err
	}
	v := gw.VerifyWebhook(ctx, in.Body, in.Headers)
	if !v.Verified {
		return u.rejectedOutcome(in, v), nil
	}
	ev := v.Event

	rec := &model.WebhookRecord{
		ID:         ulid.Make().String(),
		TenantID:   in.TenantID,
		Provider:   in.Provider,
		Env:        in.Env,
		EventType:  ev.EventType,
		DedupeKey:  ev.DedupeKey,
		RawBody:    in.Body,
		Headers:    in.Headers,
		ReceivedAt: time.Now(),
	}

	out := &WebhookOutcome{Status: WebhookProcessed}
	var pay *model.Payment
	var ref *model.Refund
	if ev.ProviderRefundID != "" {
		if ref, err = u.locateRefund(ctx, in, ev); err != nil {
			return nil, err
		}
		if ref != nil {
			rec.PaymentID = ref.PaymentID
			out.PaymentID = ref.PaymentID
		}
	} else {
		if pay, err = u.locatePayment(ctx, in, ev); err != nil {
			return nil, err
		}
		if pay != nil {
			rec.PaymentID, rec.OrderID = pay.ID, pay.OrderID
			out.PaymentID, out.OrderID = pay.ID, pay.OrderID
		}
	}
	out.Matched = pay != nil || ref != nil

	// Durable before any state change: a crash past this point still leaves
	// the raw payload for audit, the replay answer stays stable, and
	// reconciliation recovers the lost transition.
	if err := u.webhooks.Insert(ctx, repository.NoTX, rec); err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			u.markSeen(ctx, in.Provider, ev.DedupeKey)
			u.log.Info().
				Str("provider", string(in.Provider)).
				Str("dedupe_key", ev.DedupeKey).
				Msg("webhook replay answered from record")
			return &WebhookOutcome{Status: WebhookAlreadyProcessed}, nil
		}
		return nil, err
	}

	switch {
	case ref != nil:
		changed, err := u.applyRefundEvent(ctx, ref, ev)
		if err != nil {
			return nil, err
		}
		out.Changed = changed
	case pay != nil:
		changed, _, err := applyPaymentStatus(ctx, u.tm, u.payments, u.orders, u.log, statusPatch{
			paymentID:         pay.ID,
			status:            ev.Status,
			providerPaymentID: ev.ProviderPaymentID,
			occurredAt:        ev.OccurredAt,
		})
		if err != nil {
			return nil, err
		}
		out.Changed = changed
		if changed && (ev.Status == model.PaymentStatusFailed || ev.Status == model.PaymentStatusCancelled) {
			logging.Audit(u.log).
				Str("payment_id", pay.ID).
				Str("provider", string(in.Provider)).
				Str("failure_code", ev.Raw["failure_code"]).
				Msg("payment failed by webhook")
		}
	default:
		logging.Audit(u.log).
			Str("provider", string(in.Provider)).
			Str("event_type", ev.EventType).
			Str("dedupe_key", ev.DedupeKey).
			Msg("webhook matched no stored payment")
	}

	if err := u.webhooks.MarkProcessed(ctx, repository.NoTX, rec.ID, time.Now()); err != nil {
		// The transition is committed; failing the response would only buy a
		// redundant retry.
		u.log.Warn().Err(err).Str("webhook_id", rec.ID).Msg("failed to mark webhook processed")
	}
	u.markSeen(ctx, in.Provider, ev.DedupeKey)

	u.log.Info().
		Str("tenant_id", in.TenantID).
		Str("provider", string(in.Provider)).
		Str("event_type", ev.EventType).
		Str("payment_id", out.PaymentID).
		Bool("changed", out.Changed).
		Msg("webhook processed")
	return out, nil
}

// alreadyAccepted answers the replay check: cache first, webhooks table as
// the authority. Cache failures degrade to the table read.
func (u *webhookUC) alreadyAccepted(ctx context.Context, provider model.Provider, key string) (bool, error) {
	seen, err := u.deduper.Seen(ctx, string(provider), key)
	if err != nil {
		u.log.Warn().Err(err).Str("provider", string(provider)).Msg("webhook dedupe cache read failed")
	}
	if seen {
		return true, nil
	}
	if _, err := u.webhooks.FindByDedupeKey(ctx, repository.NoTX, provider, key); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	u.markSeen(ctx, provider, key)
	return true, nil
}

func (u *webhookUC) rejectedOutcome(in WebhookInput, v adapter.WebhookVerification) *WebhookOutcome {
	switch v.Reason {
	case adapter.ReasonAuthorizationInvalid:
		// Keyed by dedupe hint so a retry storm collapses per delivery; header
		// and secret material never reach the log.
		logging.Security(u.log).
			Str("tenant_id", in.TenantID).
			Str("provider", string(in.Provider)).
			Str("dedupe_key", in.DedupeHint).
			Msg("webhook authorization rejected")
		return &WebhookOutcome{Status: WebhookAuthInvalid}
	case adapter.ReasonMalformedPayload:
		u.log.Warn().
			Str("tenant_id", in.TenantID).
			Str("provider", string(in.Provider)).
			Err(v.Err).
			Msg("webhook payload unreadable")
		return &WebhookOutcome{Status: WebhookMalformed}
	default:
		// signature_invalid and missing_signature both answer 401.
		logging.Audit(u.log).
			Str("tenant_id", in.TenantID).
			Str("provider", string(in.Provider)).
			Str("reason", v.Reason).
			Str("dedupe_key", in.DedupeHint).
			Msg("webhook signature rejected")
		return &WebhookOutcome{Status: WebhookSignatureInvalid}
	}
}

// locatePayment maps the event onto a stored payment. The provider handle is
// authoritative; the merchant order reference covers the first callback of
// flows where the provider mints its payment id after creation.
func (u *webhookUC) locatePayment(ctx context.Context, in WebhookInput, ev *model.WebhookEvent) (*model.Payment, error) {
	if ev.ProviderPaymentID != "" {
		p, err := u.payments.FindByProviderPaymentID(ctx, repository.NoTX, in.Provider, ev.ProviderPaymentID)
		if err == nil {
			return u.guardTenant(in, p), nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if ev.OrderID == "" {
		return nil, nil
	}
	list, err := u.payments.ListByOrder(ctx, repository.NoTX, ev.OrderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	for _, p := range list {
		if p.Provider == in.Provider && ev.ProviderOrderID != "" && p.ProviderOrderID == ev.ProviderOrderID {
			return u.guardTenant(in, p), nil
		}
	}
	for _, p := range list {
		if p.Provider == in.Provider && p.ProviderPaymentID == "" {
			return u.guardTenant(in, p), nil
		}
	}
	return nil, nil
}

func (u *webhookUC) guardTenant(in WebhookInput, p *model.Payment) *model.Payment {
	if p.TenantID != in.TenantID {
		logging.Security(u.log).
			Str("tenant_id", in.TenantID).
			Str("payment_id", p.ID).
			Msg("webhook tenant mismatch")
		return nil
	}
	return p
}

func (u *webhookUC) locateRefund(ctx context.Context, in WebhookInput, ev *model.WebhookEvent) (*model.Refund, error) {
	r, err := u.refunds.FindByProviderRefundID(ctx, repository.NoTX, in.Provider, ev.ProviderRefundID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if r.TenantID != in.TenantID {
		logging.Security(u.log).
			Str("tenant_id", in.TenantID).
			Str("refund_id", r.ID).
			Msg("webhook tenant mismatch")
		return nil, nil
	}
	return r, nil
}

// applyRefundEvent folds a provider refund notification into the stored
// refund. Terminal refunds and same-state replays make zero writes.
func (u *webhookUC) applyRefundEvent(ctx context.Context, ref *model.Refund, ev *model.WebhookEvent) (bool, error) {
	if ref.Status.IsTerminal() || ref.Status == ev.RefundStatus {
		return false, nil
	}
	var completedAt *time.Time
	if ev.RefundStatus == model.RefundStatusCompleted {
		at := ev.OccurredAt
		if at.IsZero() {
			at = time.Now()
		}
		completedAt = &at
	}
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.refunds.UpdateStatus(ctx, tx, ref.ID, ev.RefundStatus, nil, completedAt); err != nil {
			return err
		}
		if ev.RefundStatus != model.RefundStatusCompleted {
			return nil
		}
		pay, err := u.payments.FindByID(ctx, tx, ref.PaymentID)
		if err != nil {
			return err
		}
		// The sum runs after the update in the same transaction, so it
		// already includes this refund.
		done, err := u.refunds.SumCompletedByPayment(ctx, tx, ref.PaymentID)
		if err != nil {
			return err
		}
		return stampRefunded(ctx, u.payments, tx, pay, done)
	})
	if err != nil {
		return false, err
	}
	metrics.IncRefund(string(ref.Provider), string(ev.RefundStatus))
	return true, nil
}

// markSeen populates the replay fast path once the delivery is durably
// recorded. Cache failures only cost the next replay a table read.
func (u *webhookUC) markSeen(ctx context.Context, provider model.Provider, key string) {
	if err := u.deduper.Mark(ctx, string(provider), key); err != nil {
		u.log.Warn().Err(err).Str("provider", string(provider)).Msg("webhook dedupe cache mark failed")
	}
}
