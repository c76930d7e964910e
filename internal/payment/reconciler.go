package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tobiloba/ajopool/internal/group"
	"github.com/tobiloba/ajopool/internal/joinrequest"
	"github.com/tobiloba/ajopool/internal/membership"
	"github.com/tobiloba/ajopool/internal/slot"
	"github.com/tobiloba/ajopool/pkg/metrics"
)

// GroupGetter supplies group state for amount validation and dispatch.
type GroupGetter interface {
	GetByID(ctx context.Context, id int64) (*group.Group, error)
}

// Members is the slice of the membership service the reconciler drives.
type Members interface {
	Add(ctx context.Context, groupID, userID int64, position int, isCreator bool) (*membership.Membership, bool, error)
	MarkDepositPaid(ctx context.Context, groupID, userID int64) error
	Get(ctx context.Context, groupID, userID int64) (*membership.Membership, error)
	CountActive(ctx context.Context, groupID int64) (int, error)
}

// CycleRecorder is the slice of the cycle engine the reconciler drives.
type CycleRecorder interface {
	RecordContribution(ctx context.Context, groupID, userID int64, cycleNumber int, amount int64, reference string) (bool, error)
	ActivateGroup(ctx context.Context, g *group.Group) error
}

// JoinRequests resolves and completes approved join requests.
type JoinRequests interface {
	GetApproved(ctx context.Context, groupID, userID int64) (*joinrequest.JoinRequest, error)
	MarkCompleted(ctx context.Context, requestID int64) error
}

// Notifier delivers best-effort notifications; failures never surface here.
type Notifier interface {
	MembershipActivated(ctx context.Context, recipientID, groupID int64, position int)
}

// Reconciler turns an externally confirmed payment into membership,
// contribution and cycle state, exactly once. Both the synchronous
// post-checkout check and the asynchronous webhook call the same Reconcile;
// a reference-scoped lock serializes them and idempotent conditional writes
// at every step make replays no-ops.
type Reconciler struct {
	payments Store
	gateway  Gateway
	locks    KeyedLock
	groups   GroupGetter
	slots    slot.Ledger
	members  Members
	cycles   CycleRecorder
	requests JoinRequests
	notifier Notifier
}

// NewReconciler creates a new payment reconciler
func NewReconciler(
	payments Store,
	gateway Gateway,
	locks KeyedLock,
	groups GroupGetter,
	slots slot.Ledger,
	members Members,
	cycles CycleRecorder,
	requests JoinRequests,
	notifier Notifier,
) *Reconciler {
	return &Reconciler{
		payments: payments,
		gateway:  gateway,
		locks:    locks,
		groups:   groups,
		slots:    slots,
		members:  members,
		cycles:   cycles,
		requests: requests,
		notifier: notifier,
	}
}

// Reconcile is the single entry point for payment confirmation. Retryable
// failures (ErrBusy, ErrGatewayVerification, ErrPaymentPending) carry no
// side effects; everything after gateway verification is idempotent.
func (r *Reconciler) Reconcile(ctx context.Context, reference string) (*Result, error) {
	if reference == "" {
		return nil, ErrInvalidReference
	}

	unlock, ok, err := r.locks.TryAcquire(ctx, "payment:"+reference)
	if err != nil {
		return nil, err
	}
	if !ok {
		metrics.ReconcileTotal.WithLabelValues("busy").Inc()
		return nil, ErrBusy
	}
	defer unlock()

	p, err := r.payments.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if p != nil && p.Applied {
		// Fully applied on a previous delivery; hand back the stored
		// result without touching the gateway or business state.
		metrics.ReconcileTotal.WithLabelValues("already_applied").Inc()
		return appliedResult(p), nil
	}

	start := time.Now()
	tx, err := r.gateway.Verify(ctx, reference)
	metrics.GatewayVerifyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues("gateway_error").Inc()
		return nil, fmt.Errorf("%w: %v", ErrGatewayVerification, err)
	}

	switch tx.Status {
	case TxStatusSuccess:
	case TxStatusPending:
		metrics.ReconcileTotal.WithLabelValues("pending").Inc()
		return nil, ErrPaymentPending
	default:
		if p != nil {
			if err := r.payments.MarkFailed(ctx, reference); err != nil {
				return nil, err
			}
		}
		metrics.ReconcileTotal.WithLabelValues("not_successful").Inc()
		return nil, ErrPaymentNotSuccessful
	}

	if p == nil {
		// Webhook arrived before (or without) a stored intent; rebuild it
		// from the metadata attached at checkout.
		p, err = r.intentFromMetadata(ctx, reference, tx)
		if err != nil {
			metrics.ReconcileTotal.WithLabelValues("invalid").Inc()
			return nil, err
		}
	}

	if err := r.payments.MarkVerified(ctx, reference, tx.Amount, tx.Currency); err != nil {
		return nil, err
	}
	p.Verified = true
	p.Amount = tx.Amount

	g, err := r.groups.GetByID(ctx, p.GroupID)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, r.gap(ctx, p, fmt.Errorf("group %d not found", p.GroupID))
	}

	if tx.Amount < requiredAmount(p.Type, g) {
		metrics.ReconcileTotal.WithLabelValues("insufficient_amount").Inc()
		return nil, r.gap(ctx, p, fmt.Errorf("%w: paid %d, required %d",
			ErrInsufficientAmount, tx.Amount, requiredAmount(p.Type, g)))
	}

	position, err := r.apply(ctx, p, g)
	if err != nil {
		metrics.ReconcileTotal.WithLabelValues("apply_failed").Inc()
		return nil, r.gap(ctx, p, err)
	}

	if _, err := r.payments.MarkApplied(ctx, reference, position); err != nil {
		return nil, err
	}

	metrics.ReconcileTotal.WithLabelValues("applied").Inc()
	slog.Info("payment reconciled",
		"reference", reference, "type", p.Type,
		"group_id", p.GroupID, "user_id", p.UserID, "position", position)

	return &Result{
		Reference: reference,
		Success:   true,
		Verified:  true,
		Applied:   true,
		Position:  position,
		Message:   "payment applied",
	}, nil
}

// apply dispatches to the applier for the payment's type. Each applier is
// individually idempotent: it short-circuits when its effects already exist,
// which also closes the gap left by a retry arriving under a fresh
// reference.
func (r *Reconciler) apply(ctx context.Context, p *Payment, g *group.Group) (*int, error) {
	switch p.Type {
	case TypeGroupCreation:
		return r.applyGroupCreation(ctx, p, g)
	case TypeGroupJoin:
		return r.applyGroupJoin(ctx, p, g)
	case TypeContribution:
		return r.applyContribution(ctx, p, g)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPaymentType, p.Type)
	}
}

func (r *Reconciler) applyGroupCreation(ctx context.Context, p *Payment, g *group.Group) (*int, error) {
	if p.UserID != g.CreatorID {
		return nil, ErrNotGroupCreator
	}

	if m, done, err := r.alreadyJoined(ctx, g.ID, p.UserID); err != nil {
		return nil, err
	} else if done {
		// The deposit flag proves a previous delivery got at least that
		// far, not that the whole entry sequence landed. Re-run the tail
		// so a contribution or activation lost to a mid-sequence failure
		// is repaired instead of silently dropped.
		if err := r.finishEntry(ctx, p, g); err != nil {
			return nil, err
		}
		return &m.Position, nil
	}

	number, err := r.resolveSlot(ctx, g.ID, p.PreferredSlot, nil)
	if err != nil {
		return nil, err
	}

	return r.activateMembership(ctx, p, g, number, true)
}

func (r *Reconciler) applyGroupJoin(ctx context.Context, p *Payment, g *group.Group) (*int, error) {
	if m, done, err := r.alreadyJoined(ctx, g.ID, p.UserID); err != nil {
		return nil, err
	} else if done {
		if err := r.finishEntry(ctx, p, g); err != nil {
			return nil, err
		}
		// The approved request may also have survived the failed attempt;
		// retire it so it stops occupying the user's open-request slot.
		if jr, err := r.requests.GetApproved(ctx, g.ID, p.UserID); err != nil {
			return nil, err
		} else if jr != nil {
			if err := r.requests.MarkCompleted(ctx, jr.ID); err != nil {
				return nil, err
			}
		}
		return &m.Position, nil
	}

	jr, err := r.requests.GetApproved(ctx, g.ID, p.UserID)
	if err != nil {
		return nil, err
	}
	if jr == nil {
		return nil, ErrNoApprovedRequest
	}

	number, err := r.resolveSlot(ctx, g.ID, jr.PreferredSlot, p.PreferredSlot)
	if err != nil {
		return nil, err
	}

	position, err := r.activateMembership(ctx, p, g, number, false)
	if err != nil {
		return nil, err
	}

	if err := r.requests.MarkCompleted(ctx, jr.ID); err != nil {
		return nil, err
	}

	return position, nil
}

func (r *Reconciler) applyContribution(ctx context.Context, p *Payment, g *group.Group) (*int, error) {
	m, err := r.members.Get(ctx, g.ID, p.UserID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.Status != membership.StatusActive {
		return nil, ErrNotAMember
	}

	if _, err := r.cycles.RecordContribution(ctx, g.ID, p.UserID, g.CurrentCycle, g.ContributionAmount, p.Reference); err != nil {
		return nil, err
	}

	return &m.Position, nil
}

// activateMembership runs the shared entry sequence: assign the slot, add
// the member, flag the deposit, record the first contribution and activate
// the group if it just filled up.
func (r *Reconciler) activateMembership(ctx context.Context, p *Payment, g *group.Group, number int, isCreator bool) (*int, error) {
	if err := r.slots.Assign(ctx, g.ID, number, p.UserID); err != nil {
		return nil, err
	}

	m, _, err := r.members.Add(ctx, g.ID, p.UserID, number, isCreator)
	if err != nil {
		return nil, err
	}

	if err := r.members.MarkDepositPaid(ctx, g.ID, p.UserID); err != nil {
		return nil, err
	}

	if err := r.finishEntry(ctx, p, g); err != nil {
		return nil, err
	}

	r.notifier.MembershipActivated(ctx, p.UserID, g.ID, m.Position)

	return &m.Position, nil
}

// finishEntry is the tail of the entry sequence: the first contribution the
// join cost prepaid, and group activation once the last slot fills. Every
// step is a conditional write, so it reruns on redelivery to close out an
// earlier attempt that failed partway through.
func (r *Reconciler) finishEntry(ctx context.Context, p *Payment, g *group.Group) error {
	// Entry payments always fund cycle 1: groups only admit members while
	// forming, and pinning the cycle keeps a late redelivery from crediting
	// whatever cycle is current by then.
	if _, err := r.cycles.RecordContribution(ctx, g.ID, p.UserID, 1, g.ContributionAmount, p.Reference); err != nil {
		return err
	}

	count, err := r.members.CountActive(ctx, g.ID)
	if err != nil {
		return err
	}
	if count >= g.TotalSlots {
		return r.cycles.ActivateGroup(ctx, g)
	}
	return nil
}

// alreadyJoined reports whether a previous delivery already completed the
// entry sequence for this user.
func (r *Reconciler) alreadyJoined(ctx context.Context, groupID, userID int64) (*membership.Membership, bool, error) {
	m, err := r.members.Get(ctx, groupID, userID)
	if err != nil {
		return nil, false, err
	}
	if m != nil && m.HasPaidDeposit {
		return m, true, nil
	}
	return m, false, nil
}

// resolveSlot picks the slot to assign: the request's reservation first,
// then the payment's stated preference, then the lowest available.
func (r *Reconciler) resolveSlot(ctx context.Context, groupID int64, preferences ...*int) (int, error) {
	for _, pref := range preferences {
		if pref != nil && *pref > 0 {
			return *pref, nil
		}
	}
	return r.slots.NextAvailable(ctx, groupID)
}

// gap records a verified-but-unapplied payment and returns the wrapped
// error. These are operator-visible inconsistencies, never silent drops.
func (r *Reconciler) gap(ctx context.Context, p *Payment, cause error) error {
	slog.Error("reconciliation gap: verified payment could not be applied",
		"reference", p.Reference, "type", p.Type,
		"group_id", p.GroupID, "user_id", p.UserID, "error", cause)

	if err := r.payments.RecordApplyError(ctx, p.Reference, cause.Error()); err != nil {
		slog.Error("failed to record apply error", "reference", p.Reference, "error", err)
	}

	return cause
}

// intentFromMetadata rebuilds a payment intent from gateway metadata when no
// stored row exists for the reference.
func (r *Reconciler) intentFromMetadata(ctx context.Context, reference string, tx *Transaction) (*Payment, error) {
	paymentType := Type(tx.Metadata["payment_type"])
	switch paymentType {
	case TypeGroupCreation, TypeGroupJoin, TypeContribution:
	default:
		return nil, fmt.Errorf("%w: no stored intent and no usable metadata", ErrUnknownReference)
	}

	groupID, err := strconv.ParseInt(tx.Metadata["group_id"], 10, 64)
	if err != nil || groupID <= 0 {
		return nil, fmt.Errorf("%w: metadata group_id missing", ErrUnknownReference)
	}
	userID, err := strconv.ParseInt(tx.Metadata["user_id"], 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: metadata user_id missing", ErrUnknownReference)
	}

	var preferredSlot *int
	if raw, found := tx.Metadata["preferred_slot"]; found {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			preferredSlot = &n
		}
	}

	return r.payments.Create(ctx, &Payment{
		Reference:     reference,
		UserID:        userID,
		GroupID:       groupID,
		Type:          paymentType,
		Amount:        tx.Amount,
		Currency:      tx.Currency,
		PreferredSlot: preferredSlot,
	})
}

// requiredAmount is the minimum the gateway must have collected for the
// payment to count.
func requiredAmount(t Type, g *group.Group) int64 {
	switch t {
	case TypeGroupCreation, TypeGroupJoin:
		return g.JoinCost()
	default:
		return g.ContributionAmount
	}
}

func appliedResult(p *Payment) *Result {
	return &Result{
		Reference: p.Reference,
		Success:   true,
		Verified:  true,
		Applied:   true,
		Position:  p.Position,
		Message:   "payment already applied",
	}
}

// IsRetryable reports whether the caller should retry the reconciliation.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusy) ||
		errors.Is(err, ErrGatewayVerification) ||
		errors.Is(err, ErrPaymentPending)
}
