package cycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tobiloba/ajopool/internal/group"
	"github.com/tobiloba/ajopool/internal/membership"
	"github.com/tobiloba/ajopool/pkg/metrics"
)

// GroupStore is the slice of group persistence the engine needs. Implemented
// by the group repository.
type GroupStore interface {
	GetByID(ctx context.Context, id int64) (*group.Group, error)
	SetStatus(ctx context.Context, id int64, from, to group.Status) (bool, error)
	AdvanceCycle(ctx context.Context, id int64, from int) (bool, error)
}

// Roster supplies the active member set. Implemented by the membership
// service.
type Roster interface {
	CountActive(ctx context.Context, groupID int64) (int, error)
	GetByPosition(ctx context.Context, groupID int64, position int) (*membership.Membership, error)
}

// TransferInitiator disburses a payout through the payment gateway.
// Resolution of the member's bank account belongs to the identity/KYC layer;
// the engine only hands over the recipient user and an idempotent reference.
type TransferInitiator interface {
	InitiateTransfer(ctx context.Context, recipientUserID, amount int64, reference string) (transferCode string, err error)
}

// Notifier delivers best-effort notifications; implementations never return
// errors into the engine.
type Notifier interface {
	CycleCompleted(ctx context.Context, recipientID, groupID int64, cycleNumber int, amount int64)
}

// Engine drives the per-group cycle lifecycle: contributions accumulate, a
// fully funded cycle closes exactly once, the payout goes to the slot whose
// number matches the cycle, and the next cycle opens. Everything the engine
// decides is derived from contribution rows, so a missed trigger is always
// repairable by Sweep.
type Engine struct {
	store     Store
	groups    GroupStore
	members   Roster
	transfers TransferInitiator
	notifier  Notifier
	feeBps    int64
}

// NewEngine creates a new cycle engine. feeBps is the platform service fee
// in basis points, deducted from each payout.
func NewEngine(store Store, groups GroupStore, members Roster, transfers TransferInitiator, notifier Notifier, feeBps int64) *Engine {
	return &Engine{
		store:     store,
		groups:    groups,
		members:   members,
		transfers: transfers,
		notifier:  notifier,
		feeBps:    feeBps,
	}
}

// EnsurePending seeds a pending contribution row (membership seeding hook)
func (e *Engine) EnsurePending(ctx context.Context, groupID, userID int64, cycleNumber int, amount int64) error {
	return e.store.EnsurePending(ctx, groupID, userID, cycleNumber, amount)
}

// ActivateGroup transitions a fully subscribed group from forming to active,
// creates its cycles and opens cycle 1. Safe to call from racing
// reconciliations: the status transition picks a winner and the cycle setup
// is conditional writes throughout, so a replay finishes the setup if the
// winner's attempt died partway and is a no-op once cycle 1 is open.
func (e *Engine) ActivateGroup(ctx context.Context, g *group.Group) error {
	won, err := e.groups.SetStatus(ctx, g.ID, group.StatusForming, group.StatusActive)
	if err != nil {
		return err
	}
	if !won {
		// The status already flipped, but cycle setup may not have landed:
		// either the winning caller is still mid-activation or its setup
		// failed after the flip. Fall through to re-run the idempotent
		// setup while cycle 1 is not yet open; otherwise this is a replay.
		current, err := e.groups.GetByID(ctx, g.ID)
		if err != nil {
			return err
		}
		if current == nil || current.Status != group.StatusActive {
			return nil
		}
		first, err := e.store.GetCycle(ctx, g.ID, 1)
		if err != nil {
			return err
		}
		if first != nil && first.Status != CycleStatusPending {
			return nil
		}
	} else {
		slog.Info("group activated", "group_id", g.ID, "total_slots", g.TotalSlots)
	}

	if err := e.store.CreateCycles(ctx, g.ID, g.TotalSlots); err != nil {
		return err
	}
	if _, err := e.store.ActivateCycle(ctx, g.ID, 1); err != nil {
		return err
	}

	// Members pre-pay their first contribution with the join deposit, so
	// cycle 1 may already be fully funded at activation.
	return e.EvaluateCycle(ctx, g.ID, 1)
}

// RecordContribution upserts the member's contribution to paid and
// re-evaluates the cycle. Returns whether this call changed state (false on
// an idempotent replay).
func (e *Engine) RecordContribution(ctx context.Context, groupID, userID int64, cycleNumber int, amount int64, reference string) (bool, error) {
	changed, err := e.store.MarkPaid(ctx, groupID, userID, cycleNumber, amount, reference)
	if err != nil {
		return false, err
	}

	if err := e.EvaluateCycle(ctx, groupID, cycleNumber); err != nil {
		// The contribution is recorded; a failed evaluation is retried by
		// the periodic sweep rather than failing the payment.
		slog.Error("cycle evaluation failed after contribution",
			"group_id", groupID, "cycle", cycleNumber, "error", err)
	}

	return changed, nil
}

// EvaluateCycle closes the cycle iff every active member has paid, then
// generates the payout and opens the next cycle. The active -> completed
// conditional update guarantees a single winner under concurrent triggers.
func (e *Engine) EvaluateCycle(ctx context.Context, groupID int64, cycleNumber int) error {
	g, err := e.groups.GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if g == nil || g.Status != group.StatusActive {
		return nil
	}

	memberCount, err := e.members.CountActive(ctx, groupID)
	if err != nil {
		return err
	}
	if memberCount == 0 {
		return nil
	}

	paid, err := e.store.CountPaid(ctx, groupID, cycleNumber)
	if err != nil {
		return err
	}
	if paid < memberCount {
		return nil
	}

	// Slot k collects in cycle k; resolve the collector before closing so a
	// roster inconsistency leaves the cycle open for repair.
	collector, err := e.members.GetByPosition(ctx, groupID, cycleNumber)
	if err != nil {
		return err
	}
	if collector == nil {
		slog.Error("cycle fully funded but collecting position is unfilled",
			"group_id", groupID, "cycle", cycleNumber)
		return ErrNoCollector
	}

	won, err := e.store.CompleteCycle(ctx, groupID, cycleNumber)
	if err != nil {
		return err
	}
	if !won {
		return nil
	}

	sum, err := e.store.SumPaid(ctx, groupID, cycleNumber)
	if err != nil {
		return err
	}
	fee := sum * e.feeBps / 10000

	payout, err := e.store.CreatePayout(ctx, &Payout{
		GroupID:     groupID,
		CycleNumber: cycleNumber,
		UserID:      collector.UserID,
		Amount:      sum - fee,
		ServiceFee:  fee,
		Reference:   uuid.NewString(),
	})
	if err != nil {
		if err != ErrPayoutExists {
			return err
		}
		if payout == nil {
			// The insert hit the unique constraint but the row is gone
			// (deleted out of band). Nothing sane to disburse against.
			return fmt.Errorf("payout for group %d cycle %d exists but could not be loaded", groupID, cycleNumber)
		}
	}

	metrics.CyclesCompleted.Inc()
	slog.Info("cycle completed",
		"group_id", groupID, "cycle", cycleNumber,
		"collector", collector.UserID, "payout", payout.Amount, "fee", fee)

	if payout.Status == PayoutStatusPending {
		code, transferErr := e.transfers.InitiateTransfer(ctx, collector.UserID, payout.Amount, payout.Reference)
		if transferErr != nil {
			// Payout stays pending; the operator replays the transfer with
			// the same reference.
			slog.Error("payout transfer initiation failed",
				"group_id", groupID, "cycle", cycleNumber,
				"reference", payout.Reference, "error", transferErr)
		} else if err := e.store.MarkPayoutTransferred(ctx, payout.Reference, code); err != nil {
			slog.Error("failed to record transfer code",
				"reference", payout.Reference, "error", err)
		}
	}

	e.notifier.CycleCompleted(ctx, collector.UserID, groupID, cycleNumber, payout.Amount)

	opened, err := e.store.ActivateCycle(ctx, groupID, cycleNumber+1)
	if err != nil {
		return err
	}
	if opened {
		_, err = e.groups.AdvanceCycle(ctx, groupID, cycleNumber)
		return err
	}

	// No next cycle: every slot has collected and the group is done.
	_, err = e.groups.SetStatus(ctx, groupID, group.StatusActive, group.StatusCompleted)
	return err
}

// Sweep re-evaluates every active cycle. It is the safety net for triggers
// lost to transient failures; all the work it performs is idempotent.
func (e *Engine) Sweep(ctx context.Context) {
	cycles, err := e.store.ListActiveCycles(ctx)
	if err != nil {
		slog.Error("cycle sweep failed to list active cycles", "error", err)
		return
	}

	for _, c := range cycles {
		if err := e.EvaluateCycle(ctx, c.GroupID, c.Number); err != nil {
			slog.Error("cycle sweep evaluation failed",
				"group_id", c.GroupID, "cycle", c.Number, "error", err)
		}
	}
}

// ListCycles returns all cycles for a group
func (e *Engine) ListCycles(ctx context.Context, groupID int64) ([]*Cycle, error) {
	return e.store.ListCycles(ctx, groupID)
}

// ListPayouts returns all payouts for a group
func (e *Engine) ListPayouts(ctx context.Context, groupID int64) ([]*Payout, error) {
	return e.store.ListPayouts(ctx, groupID)
}

// ListContributions returns all contributions for a cycle
func (e *Engine) ListContributions(ctx context.Context, groupID int64, cycleNumber int) ([]*Contribution, error) {
	return e.store.ListContributions(ctx, groupID, cycleNumber)
}
