package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"paybridge/internal/domain"
	"paybridge/internal/domain/model"
	"paybridge/internal/domain/ports/adapter"
	"paybridge/internal/domain/ports/recon"
	"paybridge/internal/domain/ports/repository"
	"paybridge/internal/infra/logging"
	"paybridge/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

const idemScopeCreate = "payment.create"

// CreateParams is the merchant-facing request to open a payment. OrderID may
// reference an existing order or name a new one; when empty a fresh order is
// created. Provider is the preferred gateway; fallback ordering applies when
// it cannot serve.
type CreateParams struct {
	TenantID       string
	OrderID        string
	Provider       model.Provider
	Env            model.Environment
	Amount         int64
	Currency       string
	Method         string
	CustomerID     string
	Email          string
	Phone          string
	VPA            string
	CallbackURL    string
	Description    string
	Notes          map[string]string
	IdempotencyKey string
}

// CreateResult is the serialized-and-cached outcome of Create. Replayed is
// true when this caller received a stored or shared result instead of
// triggering gateway work.
type CreateResult struct {
	Payment  *model.Payment    `json:"payment"`
	Checkout map[string]string `json:"checkout,omitempty"`
	Replayed bool              `json:"-"`
}

// RefundParams requests a refund against a captured payment. A zero Amount
// refunds everything still outstanding.
type RefundParams struct {
	TenantID  string
	PaymentID string
	Amount    int64
	Reason    string
	Notes     map[string]string
}

// PaymentUseCase orchestrates payment operations across the adapter layer
// and the transactional store.
type PaymentUseCase interface {
	// Create opens a payment, guarded by the idempotency key when one is
	// supplied. Collect-based orders that already captured a payment fail
	// fast with UPI_PAYMENT_ALREADY_CAPTURED before any gateway call.
	Create(ctx context.Context, p CreateParams) (*CreateResult, error)
	Get(ctx context.Context, tenantID, paymentID string) (*model.Payment, error)
	// Verify re-queries the gateway and applies the reported status under
	// the lifecycle guard; the bool reports whether anything changed.
	Verify(ctx context.Context, tenantID, paymentID string) (*model.Payment, bool, error)
	// Capture captures an authorized payment. Zero amount captures in full.
	Capture(ctx context.Context, tenantID, paymentID string, amount int64) (*model.Payment, error)
	CreateRefund(ctx context.Context, p RefundParams) (*model.Refund, error)
	// RefundStatus polls the gateway and folds the result into the stored
	// refund.
	RefundStatus(ctx context.Context, tenantID, refundID string) (*model.Refund, error)
}

type paymentUC struct {
	payments repository.PaymentRepository
	orders   repository.OrderRepository
	refunds  repository.RefundRepository
	tm       repository.TransactionManager
	adapters adapter.Factory
	idem     IdempotencyUseCase
	jobs     recon.JobRegistry
	log      *zerolog.Logger
}

func NewPaymentUseCase(
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	refunds repository.RefundRepository,
	tm repository.TransactionManager,
	adapters adapter.Factory,
	idem IdempotencyUseCase,
	jobs recon.JobRegistry,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		payments: payments,
		orders:   orders,
		refunds:  refunds,
		tm:       tm,
		adapters: adapters,
		idem:     idem,
		jobs:     jobs,
		log:      logger,
	}
}

func (u *paymentUC) Create(ctx context.Context, p CreateParams) (*CreateResult, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Create")()

	fp := Fingerprint(
		p.TenantID, p.OrderID, string(p.Provider), string(p.Env),
		strconv.FormatInt(p.Amount, 10), p.Currency, p.Method,
	)
	body, replayed, err := u.idem.Execute(ctx, p.IdempotencyKey, idemScopeCreate, fp, func(ctx context.Context) ([]byte, error) {
		res, err := u.create(ctx, p)
		if err != nil {
			return nil, err
		}
		return json.Marshal(res)
	})
	if err != nil {
		return nil, err
	}
	var out CreateResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	out.Replayed = replayed
	return &out, nil
}

func (u *paymentUC) create(ctx context.Context, p CreateParams) (*CreateResult, error) {
	if p.TenantID == "" || p.Amount <= 0 || p.Currency == "" {
		return nil, domain.NewPaymentError(domain.CodeInvalidRequest, string(p.Provider),
			"tenant, positive amount and currency are required", nil)
	}

	order, fresh, err := u.resolveOrder(ctx, p)
	if err != nil {
		return nil, err
	}

	// Collect flows settle out-of-band; a second payment against an already
	// captured order must never reach the gateway.
	if isCollectMethod(p.Method, p.VPA) {
		captured, err := u.payments.CapturedExistsForOrder(ctx, repository.NoTX, order.ID)
		if err != nil {
			return nil, err
		}
		if captured {
			return nil, domain.NewPaymentError(domain.CodeDuplicateCapture, string(p.Provider),
				"a payment for this order is already captured", nil)
		}
	}

	gw, err := u.adapters.ResolveWithFallback(ctx, p.TenantID, p.Provider, p.Env)
	if err != nil {
		return nil, err
	}
	provider := gw.Provider()

	if cs, ok := model.Capabilities(provider); ok && !cs.SupportsCurrency(p.Currency) {
		return nil, domain.NewPaymentError(domain.CodeInvalidRequest, string(provider),
			"currency not supported by provider", nil)
	}

	pay, err := model.NewPayment("", order, provider, p.Env, p.Method)
	if err != nil {
		return nil, err
	}
	pay.Description = p.Description

	res, err := gw.CreatePayment(ctx, adapter.CreatePaymentParams{
		PaymentID:   pay.ID,
		OrderID:     order.ID,
		Amount:      pay.Amount,
		Currency:    pay.Currency,
		Method:      p.Method,
		CustomerID:  p.CustomerID,
		Email:       p.Email,
		Phone:       p.Phone,
		VPA:         p.VPA,
		CallbackURL: p.CallbackURL,
		Description: p.Description,
		Notes:       p.Notes,
	})
	if err != nil {
		return nil, err
	}

	pay.Status = res.Status
	pay.ProviderPaymentID = res.ProviderPaymentID
	pay.ProviderOrderID = res.ProviderOrderID
	pay.Meta = res.Metadata

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if fresh {
			if err := u.orders.Save(ctx, tx, order); err != nil {
				return err
			}
		}
		if err := u.payments.Save(ctx, tx, pay); err != nil {
			return err
		}
		// An order with a live attempt is pending; false means an earlier
		// attempt already moved it.
		_, err := u.orders.TransitionState(ctx, tx, order.ID, model.OrderStateCreated, model.OrderStatePending, nil, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.IncPayment(string(provider), string(pay.Status))

	if u.jobs != nil && isCollectMethod(p.Method, p.VPA) {
		if _, err := u.jobs.RegisterJob(ctx, pay.ID, order.ID); err != nil {
			u.log.Warn().Str("payment_id", pay.ID).Err(err).Msg("failed to register reconciliation job")
		}
	}

	u.log.Info().
		Str("tenant_id", p.TenantID).
		Str("payment_id", pay.ID).
		Str("order_id", order.ID).
		Str("provider", string(provider)).
		Int64("amount", pay.Amount).
		Msg("payment created")

	return &CreateResult{Payment: pay, Checkout: res.Metadata}, nil
}

// resolveOrder loads the referenced order or builds a new one. fresh is true
// when the order does not exist yet and must be persisted with the payment.
func (u *paymentUC) resolveOrder(ctx context.Context, p CreateParams) (*model.Order, bool, error) {
	if p.OrderID == "" {
		o, err := model.NewOrder("", p.TenantID, p.Amount, p.Currency)
		return o, true, err
	}
	o, err := u.orders.FindByID(ctx, repository.NoTX, p.OrderID)
	if errors.Is(err, domain.ErrNotFound) {
		o, err := model.NewOrder(p.OrderID, p.TenantID, p.Amount, p.Currency)
		return o, true, err
	}
	if err != nil {
		return nil, false, err
	}
	if o.TenantID != p.TenantID {
		logging.Security(u.log).
			Str("tenant_id", p.TenantID).
			Str("order_id", p.OrderID).
			Msg("cross-tenant order access denied")
		return nil, false, domain.ErrNotFound
	}
	if o.Amount != p.Amount {
		return nil, false, domain.NewPaymentError(domain.CodeInvalidRequest, string(p.Provider),
			"amount does not match order", nil)
	}
	return o, false, nil
}

func (u *paymentUC) Get(ctx context.Context, tenantID, paymentID string) (*model.Payment, error) {
	return u.loadPayment(ctx, tenantID, paymentID)
}

func (u *paymentUC) Verify(ctx context.Context, tenantID, paymentID string) (*model.Payment, bool, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Verify")()

	pay, err := u.loadPayment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, false, err
	}
	if pay.ProviderPaymentID == "" {
		return nil, false, domain.NewPaymentError(domain.CodePaymentNotFound, string(pay.Provider),
			"payment has no provider reference yet", nil)
	}
	gw, err := u.adapters.Resolve(ctx, pay.TenantID, pay.Provider, pay.Env)
	if err != nil {
		return nil, false, err
	}
	res, err := gw.VerifyPayment(ctx, pay.ProviderPaymentID)
	if err != nil {
		return nil, false, err
	}
	if res.Status == pay.Status {
		return pay, false, nil
	}
	changed, after, err := applyPaymentStatus(ctx, u.tm, u.payments, u.orders, u.log, statusPatch{
		paymentID:         pay.ID,
		status:            res.Status,
		providerPaymentID: res.ProviderPaymentID,
	})
	if err != nil {
		return nil, false, err
	}
	return after, changed, nil
}

func (u *paymentUC) Capture(ctx context.Context, tenantID, paymentID string, amount int64) (*model.Payment, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.Capture")()

	pay, err := u.loadPayment(ctx, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	if pay.Status == model.PaymentStatusCaptured {
		return nil, domain.NewPaymentError(domain.CodeDuplicateCapture, string(pay.Provider),
			"payment is already captured", nil)
	}
	if amount == 0 {
		amount = pay.Amount
	}
	if amount < 0 || amount > pay.Amount {
		return nil, domain.NewPaymentError(domain.CodeAmountExceedsPayment, string(pay.Provider),
			"capture amount exceeds payment amount", nil)
	}

	gw, err := u.adapters.Resolve(ctx, pay.TenantID, pay.Provider, pay.Env)
	if err != nil {
		return nil, err
	}
	res, err := gw.CapturePayment(ctx, pay.ProviderPaymentID, amount)
	if err != nil {
		return nil, err
	}
	_, after, err := applyPaymentStatus(ctx, u.tm, u.payments, u.orders, u.log, statusPatch{
		paymentID:         pay.ID,
		status:            res.Status,
		providerPaymentID: res.ProviderPaymentID,
	})
	if err != nil {
		return nil, err
	}
	return after, nil
}

func (u *paymentUC) CreateRefund(ctx context.Context, p RefundParams) (*model.Refund, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.CreateRefund")()

	pay, err := u.loadPayment(ctx, p.TenantID, p.PaymentID)
	if err != nil {
		return nil, err
	}
	cs, _ := model.Capabilities(pay.Provider)
	if !cs.Refunds {
		return nil, domain.NewPaymentError(domain.CodeRefundNotSupported, string(pay.Provider),
			"provider does not support refunds", nil)
	}
	switch pay.Status {
	case model.PaymentStatusCaptured, model.PaymentStatusPartiallyRefunded:
	default:
		return nil, domain.NewPaymentError(domain.CodePaymentNotCaptured, string(pay.Provider),
			"only captured payments can be refunded", nil)
	}

	reserved, err := u.refunds.SumReservedByPayment(ctx, repository.NoTX, pay.ID)
	if err != nil {
		return nil, err
	}
	remaining := pay.Amount - reserved
	amount := p.Amount
	if amount == 0 {
		amount = remaining
	}
	if amount <= 0 || amount > remaining {
		return nil, domain.NewPaymentError(domain.CodeAmountExceedsPayment, string(pay.Provider),
			"refund amount exceeds refundable balance", nil)
	}
	if amount < remaining && !cs.PartialRefund {
		return nil, domain.NewPaymentError(domain.CodeRefundNotSupported, string(pay.Provider),
			"provider does not support partial refunds", nil)
	}

	now := time.Now()
	ref := &model.Refund{
		ID:        uuid.NewString(),
		PaymentID: pay.ID,
		TenantID:  pay.TenantID,
		Provider:  pay.Provider,
		Env:       pay.Env,
		Amount:    amount,
		Currency:  pay.Currency,
		Status:    model.RefundStatusPending,
		Reason:    p.Reason,
		CreatedAt: now,
		UpdatedAt: now,
	}

	notes := map[string]string{"refund_id": ref.ID}
	for k, v := range p.Notes {
		notes[k] = v
	}
	if p.Reason != "" {
		notes["reason"] = p.Reason
	}

	gw, err := u.adapters.Resolve(ctx, pay.TenantID, pay.Provider, pay.Env)
	if err != nil {
		return nil, err
	}
	res, err := gw.CreateRefund(ctx, pay.ProviderPaymentID, amount, notes)
	if err != nil {
		return nil, err
	}

	ref.Status = res.Status
	ref.ProviderRefundID = res.ProviderRefundID
	ref.CompletedAt = res.ProcessedAt
	ref.Meta = res.Metadata

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.refunds.Save(ctx, tx, ref); err != nil {
			return err
		}
		if ref.Status == model.RefundStatusCompleted {
			done, err := u.refunds.SumCompletedByPayment(ctx, tx, pay.ID)
			if err != nil {
				return err
			}
			return stampRefunded(ctx, u.payments, tx, pay, done)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.IncRefund(string(pay.Provider), string(ref.Status))

	u.log.Info().
		Str("tenant_id", p.TenantID).
		Str("payment_id", pay.ID).
		Str("refund_id", ref.ID).
		Int64("amount", amount).
		Str("status", string(ref.Status)).
		Msg("refund created")

	return ref, nil
}

func (u *paymentUC) RefundStatus(ctx context.Context, tenantID, refundID string) (*model.Refund, error) {
	defer logging.TraceDuration(u.log, "PaymentUC.RefundStatus")()

	ref, err := u.refunds.FindByID(ctx, repository.NoTX, refundID)
	if err != nil {
		return nil, err
	}
	if ref.TenantID != tenantID {
		logging.Security(u.log).
			Str("tenant_id", tenantID).
			Str("refund_id", refundID).
			Msg("cross-tenant refund access denied")
		return nil, domain.ErrNotFound
	}
	if ref.Status.IsTerminal() || ref.ProviderRefundID == "" {
		return ref, nil
	}

	gw, err := u.adapters.Resolve(ctx, ref.TenantID, ref.Provider, ref.Env)
	if err != nil {
		return nil, err
	}
	res, err := gw.RefundStatus(ctx, ref.ProviderRefundID)
	if err != nil {
		return nil, err
	}
	if res.Status == ref.Status {
		return ref, nil
	}

	completedAt := res.ProcessedAt
	if res.Status == model.RefundStatusCompleted && completedAt == nil {
		now := time.Now()
		completedAt = &now
	}
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.refunds.UpdateStatus(ctx, tx, ref.ID, res.Status, nil, completedAt); err != nil {
			return err
		}
		if res.Status == model.RefundStatusCompleted {
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
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	ref.Status = res.Status
	ref.CompletedAt = completedAt
	metrics.IncRefund(string(ref.Provider), string(ref.Status))
	return ref, nil
}

// stampRefunded moves the payment to refunded or partially_refunded once
// refunds totalling refundedTotal have completed. This is the only write past
// a terminal payment status, and only captured payments reach it. Shared with
// the webhook router for provider-initiated refund events.
func stampRefunded(ctx context.Context, payments repository.PaymentRepository, tx repository.Tx, pay *model.Payment, refundedTotal int64) error {
	status := model.PaymentStatusPartiallyRefunded
	if refundedTotal >= pay.Amount {
		status = model.PaymentStatusRefunded
	}
	return payments.UpdateStatus(ctx, tx, pay.ID, status, nil, nil)
}

func (u *paymentUC) loadPayment(ctx context.Context, tenantID, paymentID string) (*model.Payment, error) {
	p, err := u.payments.FindByID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if p.TenantID != tenantID {
		logging.Security(u.log).
			Str("tenant_id", tenantID).
			Str("payment_id", paymentID).
			Msg("cross-tenant payment access denied")
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// isCollectMethod reports whether the payment settles out-of-band through a
// collect request rather than an inline authorization.
func isCollectMethod(method, vpa string) bool {
	return method == "upi" || vpa != ""
}

// statusPatch is one gateway-reported status to fold into a stored payment.
type statusPatch struct {
	paymentID         string
	status            model.PaymentStatus
	providerPaymentID string
	occurredAt        time.Time
}

// applyPaymentStatus applies a verified gateway report to the payment row and
// its order inside one transaction with row locks, enforcing the lifecycle
// guard: terminal states absorb, replays and backward moves are no-ops with
// zero writes. Shared by verification, capture and the webhook router.
func applyPaymentStatus(
	ctx context.Context,
	tm repository.TransactionManager,
	payments repository.PaymentRepository,
	orders repository.OrderRepository,
	log *zerolog.Logger,
	patch statusPatch,
) (bool, *model.Payment, error) {
	var changed bool
	var after *model.Payment

	err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		p, err := payments.FindByID(ctx, tx, patch.paymentID)
		if err != nil {
			return err
		}
		after = p
		if !model.CanAdvancePayment(p.Status, patch.status) {
			logging.Audit(log).
				Str("payment_id", p.ID).
				Str("from", string(p.Status)).
				Str("to", string(patch.status)).
				Msg("lifecycle transition suppressed")
			return nil
		}

		var ppid *string
		if patch.providerPaymentID != "" && patch.providerPaymentID != p.ProviderPaymentID {
			ppid = &patch.providerPaymentID
		}
		var capturedAt *time.Time
		if patch.status == model.PaymentStatusCaptured {
			at := patch.occurredAt
			if at.IsZero() {
				at = time.Now()
			}
			capturedAt = &at
		}

		ok, err := payments.UpdateStatusIfOpen(ctx, tx, p.ID, patch.status, ppid, capturedAt)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		changed = true
		p.Status = patch.status
		p.UpdatedAt = time.Now()
		if ppid != nil {
			p.ProviderPaymentID = *ppid
		}
		if capturedAt != nil {
			p.CapturedAt = capturedAt
		}
		return advanceOrder(ctx, payments, orders, tx, p)
	})
	if err != nil {
		return false, nil, err
	}
	if changed {
		metrics.IncPayment(string(after.Provider), string(after.Status))
		if after.Status == model.PaymentStatusCaptured {
			metrics.AddPaymentRevenue(after.Currency, after.Amount)
		}
	}
	return changed, after, nil
}

// advanceOrder moves the parent order along its lifecycle to match the
// payment. A failing payment only fails the order when no other attempt can
// still settle it.
func advanceOrder(ctx context.Context, payments repository.PaymentRepository, orders repository.OrderRepository, tx repository.Tx, p *model.Payment) error {
	target := model.OrderStateForPayment(p.Status)
	o, err := orders.FindByID(ctx, tx, p.OrderID)
	if err != nil {
		return err
	}
	if !model.CanTransition(o.State, target) {
		return nil
	}
	switch target {
	case model.OrderStateCompleted:
		_, err = orders.TransitionState(ctx, tx, o.ID, o.State, target, &p.ID, nil)
	case model.OrderStateFailed:
		siblings, lerr := payments.ListByOrder(ctx, tx, o.ID)
		if lerr != nil {
			return lerr
		}
		for _, sib := range siblings {
			if sib.ID != p.ID && !sib.Status.IsTerminal() {
				return nil
			}
		}
		at := time.Now()
		_, err = orders.TransitionState(ctx, tx, o.ID, o.State, target, nil, &at)
	default:
		_, err = orders.TransitionState(ctx, tx, o.ID, o.State, target, nil, nil)
	}
	return err
}
