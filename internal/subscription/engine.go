// Package subscription implements C8: the activation matrix, cycle engine
// and cancellation API that drive a subscription through
// PendingActivation/TrialActive/TrialExpired/Active/Cancelled/Ended,
// grounded on the teacher's UpdateBillingPeriods/processSubscriptionPeriod
// batch-cron idiom (spec.md §4.8).
package subscription

import (
	"context"
	"time"

	"github.com/ledgerbase/billing/internal/billing"
	"github.com/ledgerbase/billing/internal/domain/checkout"
	"github.com/ledgerbase/billing/internal/domain/customer"
	"github.com/ledgerbase/billing/internal/domain/invoice"
	"github.com/ledgerbase/billing/internal/domain/plan"
	"github.com/ledgerbase/billing/internal/domain/price"
	"github.com/ledgerbase/billing/internal/domain/slot"
	subdomain "github.com/ledgerbase/billing/internal/domain/subscription"
	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/ledgerbase/billing/internal/logger"
	"github.com/ledgerbase/billing/internal/period"
	"github.com/ledgerbase/billing/internal/slotledger"
	"github.com/ledgerbase/billing/internal/types"
)

// OutboxWriter is the narrow dependency Engine needs to record lifecycle
// events transactionally (C10).
type OutboxWriter interface {
	Write(ctx context.Context, tenantID, topic, aggregateID string, payload []byte) error
}

// Engine drives subscription state transitions: activation at creation
// time, the recurring cycle transitions picked up by the scheduler, and
// the due-event sweep for time-based housekeeping (spec.md §4.8).
type Engine struct {
	composer  *billing.Composer
	finalizer *billing.Finalizer
	subs      subdomain.Repository
	plans     plan.Repository
	customers customer.Repository
	checkouts checkout.Repository
	outbox    OutboxWriter
	slots     *slotledger.Ledger
	log       *logger.Logger
}

func New(
	composer *billing.Composer,
	finalizer *billing.Finalizer,
	subs subdomain.Repository,
	plans plan.Repository,
	customers customer.Repository,
	checkouts checkout.Repository,
	outbox OutboxWriter,
	slots *slotledger.Ledger,
	log *logger.Logger,
) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		composer: composer, finalizer: finalizer,
		subs: subs, plans: plans, customers: customers, checkouts: checkouts,
		outbox: outbox, slots: slots, log: log,
	}
}

// Activate runs the activation matrix of spec.md §4.8 against a freshly
// constructed (not yet persisted) Subscription and creates it.
func (e *Engine) Activate(ctx context.Context, tenantID string, sub *subdomain.Subscription, pv *plan.PlanVersion, cust *customer.Customer) error {
	switch sub.ActivationCondition {
	case types.ACTIVATION_ON_START:
		if pv.Trial != nil && pv.Trial.Duration > 0 {
			sub.Status = types.SubscriptionStatusTrialActive
			end := sub.StartDate.Add(pv.Trial.Duration)
			sub.CurrentPeriodStart = sub.StartDate
			sub.CurrentPeriodEnd = &end
			sub.NextCycleAction = types.CYCLE_ACTION_END_TRIAL
			if err := e.subs.Create(ctx, sub); err != nil {
				return err
			}
			return e.emit(ctx, tenantID, "subscription.trial_started", sub.ID)
		}

		sub.Status = types.SubscriptionStatusActive
		p := period.At(sub.EffectiveAnchorDate(), sub.BillingDayAnchor, sub.BillingPeriod, 0)
		sub.CurrentPeriodStart = p.Start
		sub.CurrentPeriodEnd = &p.End
		sub.NextCycleAction = types.CYCLE_ACTION_RENEW
		if err := e.subs.Create(ctx, sub); err != nil {
			return err
		}
		if err := e.composeAndFinalize(ctx, tenantID, sub, pv, cust, sub.StartDate, false); err != nil {
			return err
		}
		return e.emit(ctx, tenantID, "subscription.activated", sub.ID)

	case types.ACTIVATION_ON_CHECKOUT:
		sub.Status = types.SubscriptionStatusPendingActivation
		return e.subs.Create(ctx, sub)

	case types.ACTIVATION_MANUAL:
		sub.Status = types.SubscriptionStatusPendingActivation
		return e.subs.Create(ctx, sub)

	default:
		return ierr.NewError("unknown activation condition").
			WithReportableDetails(map[string]interface{}{"activation_condition": string(sub.ActivationCondition)}).
			Mark(ierr.ErrValidation).Err()
	}
}

// ActivateManual completes the Manual/OnCheckout activation condition: an
// explicit operator call (Manual) or a successful first payment
// (OnCheckout) moves PendingActivation straight into the OnStart-style
// no-trial/trial branching (spec.md §4.8).
func (e *Engine) ActivateManual(ctx context.Context, tenantID string, sub *subdomain.Subscription, pv *plan.PlanVersion, cust *customer.Customer, now time.Time) error {
	if sub.Status != types.SubscriptionStatusPendingActivation {
		return ierr.NewError("subscription is not pending activation").Mark(ierr.ErrInvalidOperation).Err()
	}

	if pv.Trial != nil && pv.Trial.Duration > 0 {
		sub.Status = types.SubscriptionStatusTrialActive
		end := now.Add(pv.Trial.Duration)
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = &end
		sub.NextCycleAction = types.CYCLE_ACTION_END_TRIAL
		if err := e.subs.Update(ctx, sub); err != nil {
			return err
		}
		return e.emit(ctx, tenantID, "subscription.trial_started", sub.ID)
	}

	sub.Status = types.SubscriptionStatusActive
	p := period.At(sub.EffectiveAnchorDate(), sub.BillingDayAnchor, sub.BillingPeriod, 0)
	sub.CurrentPeriodStart = p.Start
	sub.CurrentPeriodEnd = &p.End
	sub.NextCycleAction = types.CYCLE_ACTION_RENEW
	if err := e.subs.Update(ctx, sub); err != nil {
		return err
	}
	if err := e.composeAndFinalize(ctx, tenantID, sub, pv, cust, now, false); err != nil {
		return err
	}
	return e.emit(ctx, tenantID, "subscription.activated", sub.ID)
}

// hasPostTrialPrice reports whether the plan version carries any component
// that would charge the customer outside of metered usage (spec.md §4.8:
// "plan has no post-trial price").
func hasPostTrialPrice(pv *plan.PlanVersion) bool {
	for _, c := range pv.Components {
		if _, isUsage := c.(*price.Usage); isUsage {
			continue
		}
		return true
	}
	return false
}

func (e *Engine) composeAndFinalize(ctx context.Context, tenantID string, sub *subdomain.Subscription, pv *plan.PlanVersion, cust *customer.Customer, invoiceDate time.Time, finalPeriod bool) error {
	in := billing.Input{
		Subscription:     sub,
		PlanVersion:      pv,
		Customer:         cust,
		InvoiceDate:      invoiceDate,
		AutoApplyCredits: true,
		FinalPeriod:      finalPeriod,
	}
	inv, err := e.composer.Compose(ctx, in)
	if err != nil {
		return err
	}
	if err := e.finalizer.CreateAndFinalize(ctx, tenantID, cust.InvoicingEntityID, inv, cust, in); err != nil {
		return err
	}

	// Invariant 6: mrr_cents tracks the recurring-fee contribution of the
	// current period, monthly-normalized. Skipped on the closing invoice
	// of a cancellation/expiry, where processCancellation zeroes it
	// itself right after this call returns.
	if !finalPeriod {
		months := sub.BillingPeriod.Months()
		if months > 0 {
			sub.MRRCents = inv.SubtotalRecurringCents / int64(months)
		}
		if err := e.subs.Update(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) emit(ctx context.Context, tenantID, topic, aggregateID string) error {
	if e.outbox == nil {
		return nil
	}
	return e.outbox.Write(ctx, tenantID, topic, aggregateID, nil)
}

// CycleTransitionResult summarizes one get_and_process_cycle_transitions
// tick (spec.md §4.8), mirroring the teacher's
// SubscriptionUpdatePeriodResponse shape.
type CycleTransitionResult struct {
	StartAt      time.Time
	TotalSuccess int
	TotalFailed  int
	Failures     map[string]string
}

// ProcessCycleTransitions claims every subscription whose current period
// has ended (bounded to limit per tick) and runs its armed
// next_cycle_action inside the caller's transaction (spec.md §4.8).
func (e *Engine) ProcessCycleTransitions(ctx context.Context, tenantID string, now time.Time, limit int) (*CycleTransitionResult, error) {
	result := &CycleTransitionResult{StartAt: now, Failures: map[string]string{}}

	due, err := e.subs.ListDue(ctx, tenantID, now)
	if err != nil {
		return result, err
	}
	if limit > 0 && len(due) > limit {
		e.log.Infow("cycle transition batch truncated to limit",
			"tenant_id", tenantID, "due", len(due), "limit", limit)
		due = due[:limit]
	}

	for _, sub := range due {
		if err := e.processOne(ctx, tenantID, sub, now); err != nil {
			e.log.Errorw("cycle transition failed",
				"subscription_id", sub.ID, "next_cycle_action", sub.NextCycleAction, "error", err)
			result.TotalFailed++
			result.Failures[sub.ID] = err.Error()
			continue
		}
		result.TotalSuccess++
	}
	return result, nil
}

func (e *Engine) processOne(ctx context.Context, tenantID string, sub *subdomain.Subscription, now time.Time) error {
	switch sub.NextCycleAction {
	case types.CYCLE_ACTION_END_TRIAL:
		return e.endTrial(ctx, tenantID, sub, now)
	case types.CYCLE_ACTION_RENEW:
		return e.renew(ctx, tenantID, sub, now)
	case types.CYCLE_ACTION_CANCEL:
		return e.processCancellation(ctx, tenantID, sub, now, types.SubscriptionStatusCancelled, "subscription.cancelled")
	case types.CYCLE_ACTION_EXPIRE:
		return e.processCancellation(ctx, tenantID, sub, now, types.SubscriptionStatusEnded, "subscription.ended")
	default:
		return nil
	}
}

// endTrial implements the EndTrial row of spec.md §4.8's cycle-action
// table: a free trial with no post-trial price or no payment method on
// file settles into TrialExpired instead of renewing.
func (e *Engine) endTrial(ctx context.Context, tenantID string, sub *subdomain.Subscription, now time.Time) error {
	if sub.Status != types.SubscriptionStatusTrialActive {
		return nil
	}
	pv, err := e.plans.GetVersion(ctx, tenantID, sub.PlanVersionID)
	if err != nil {
		return err
	}
	cust, err := e.customers.Get(ctx, tenantID, sub.CustomerID)
	if err != nil {
		return err
	}

	freeTrial := pv.Trial != nil && pv.Trial.Free
	if freeTrial && (!hasPostTrialPrice(pv) || !cust.HasPaymentMethod()) {
		sub.Status = types.SubscriptionStatusTrialExpired
		sub.NextCycleAction = types.CYCLE_ACTION_NONE
		if err := e.subs.Update(ctx, sub); err != nil {
			return err
		}
		return e.emit(ctx, tenantID, "subscription.trial_expired", sub.ID)
	}

	sub.Status = types.SubscriptionStatusActive
	sub.NextCycleAction = types.CYCLE_ACTION_RENEW
	return e.renew(ctx, tenantID, sub, now)
}

// renew implements the RenewSubscription row: advance to the next period,
// compose and finalize the new invoice via C7, and re-arm renewal.
func (e *Engine) renew(ctx context.Context, tenantID string, sub *subdomain.Subscription, now time.Time) error {
	if sub.Status != types.SubscriptionStatusActive && sub.Status != types.SubscriptionStatusTrialExpired {
		return nil
	}
	pv, err := e.plans.GetVersion(ctx, tenantID, sub.PlanVersionID)
	if err != nil {
		return err
	}
	cust, err := e.customers.Get(ctx, tenantID, sub.CustomerID)
	if err != nil {
		return err
	}

	if err := e.composeAndFinalize(ctx, tenantID, sub, pv, cust, now, false); err != nil {
		return err
	}

	idx := period.CurrentIndex(sub.EffectiveAnchorDate(), sub.BillingDayAnchor, sub.BillingPeriod, now)
	next := period.At(sub.EffectiveAnchorDate(), sub.BillingDayAnchor, sub.BillingPeriod, idx)
	sub.Status = types.SubscriptionStatusActive
	sub.CurrentPeriodStart = next.Start
	sub.CurrentPeriodEnd = &next.End
	sub.NextCycleAction = types.CYCLE_ACTION_RENEW
	if err := e.subs.Update(ctx, sub); err != nil {
		return err
	}
	return e.emit(ctx, tenantID, "subscription.renewed", sub.ID)
}

// processCancellation implements both the CancelSubscription and Expire
// rows: emit the final arrear invoice for whatever period is still
// outstanding, move to the terminal status, and clear current_period_end
// so the cycle engine never reclaims this row again.
//
// MRR is zeroed exactly once here and nowhere else; invoice finalization
// (Finalizer.Finalize) never touches MRRCents, which is the structural fix
// for the double-decrement the cancellation path used to exhibit (spec.md
// §9).
func (e *Engine) processCancellation(ctx context.Context, tenantID string, sub *subdomain.Subscription, now time.Time, terminal types.SubscriptionStatus, topic string) error {
	pv, err := e.plans.GetVersion(ctx, tenantID, sub.PlanVersionID)
	if err != nil {
		return err
	}
	cust, err := e.customers.Get(ctx, tenantID, sub.CustomerID)
	if err != nil {
		return err
	}

	if err := e.composeAndFinalize(ctx, tenantID, sub, pv, cust, now, true); err != nil {
		return err
	}

	sub.Status = terminal
	sub.CurrentPeriodEnd = nil
	sub.NextCycleAction = types.CYCLE_ACTION_NONE
	sub.MRRCents = 0
	if sub.EndDate == nil {
		sub.EndDate = &now
	}
	if err := e.subs.Update(ctx, sub); err != nil {
		return err
	}
	return e.emit(ctx, tenantID, topic, sub.ID)
}

// Cancel implements cancel_subscription: it records the cancellation
// request and arms the CancelSubscription cycle action at the resolved
// effective date, without running the cancellation itself (that happens on
// the next cycle-engine tick once current_period_end <= now, spec.md
// §4.8).
func (e *Engine) Cancel(ctx context.Context, tenantID, subscriptionID, reason string, effective types.CancellationEffective, effectiveDate *time.Time, now time.Time) error {
	sub, err := e.subs.Get(ctx, tenantID, subscriptionID)
	if err != nil {
		return err
	}
	if sub.Status.IsTerminal() {
		return ierr.NewError("subscription is already in a terminal state").Mark(ierr.ErrInvalidOperation).Err()
	}

	var at time.Time
	switch effective {
	case types.CancellationImmediate:
		at = now
	case types.CancellationEndOfPeriod:
		if sub.CurrentPeriodEnd != nil {
			at = *sub.CurrentPeriodEnd
		} else {
			at = now
		}
	case types.CancellationSpecificDate:
		if effectiveDate == nil {
			return ierr.NewError("effective date is required for a dated cancellation").Mark(ierr.ErrValidation).Err()
		}
		at = *effectiveDate
	default:
		return ierr.NewError("unknown cancellation effective mode").Mark(ierr.ErrValidation).Err()
	}

	sub.CanceledAt = &now
	sub.EndDate = &at
	sub.CurrentPeriodEnd = &at
	sub.NextCycleAction = types.CYCLE_ACTION_CANCEL
	return e.subs.Update(ctx, sub)
}

// AddSlots implements a mid-cycle slot count change on a Slot component
// (spec.md §4.4): it locks and writes the transaction through the slot
// ledger (C4), then, for an upgrade under SLOT_UPGRADE_PRORATED taking
// effect before the current period ends, prices and bills the prorated
// delta as a standalone Adjustment invoice (spec.md §4.2: "on upgrade
// mid-period, the delta is prorated and charged"). The returned invoice
// is nil when no delta is billable (a downgrade, an immediate-policy
// upgrade, or a zero-amount proration).
func (e *Engine) AddSlots(ctx context.Context, tenantID, subscriptionID, componentID string, delta int64, now time.Time) (*slot.Transaction, *invoice.Invoice, error) {
	if e.slots == nil {
		return nil, nil, ierr.NewError("slot ledger is not configured").Mark(ierr.ErrInvalidOperation).Err()
	}
	sub, err := e.subs.Get(ctx, tenantID, subscriptionID)
	if err != nil {
		return nil, nil, err
	}
	if sub.CurrentPeriodEnd == nil {
		return nil, nil, ierr.NewError("subscription has no active billing period").Mark(ierr.ErrInvalidOperation).Err()
	}
	pv, err := e.plans.GetVersion(ctx, tenantID, sub.PlanVersionID)
	if err != nil {
		return nil, nil, err
	}
	slotComp, ok := findSlotComponent(pv, sub, componentID)
	if !ok {
		return nil, nil, ierr.NewError("component is not a slot component on this subscription").Mark(ierr.ErrValidation).Err()
	}

	tx, err := e.slots.AddTransaction(ctx, tenantID, subscriptionID, slotComp, delta, now, *sub.CurrentPeriodEnd)
	if err != nil {
		return nil, nil, err
	}

	if delta <= 0 || slotComp.UpgradePolicy != types.SLOT_UPGRADE_PRORATED || !now.Before(*sub.CurrentPeriodEnd) {
		return tx, nil, nil
	}

	cust, err := e.customers.Get(ctx, tenantID, sub.CustomerID)
	if err != nil {
		return tx, nil, err
	}
	inv, err := e.composer.ComposeSlotAdjustment(ctx, sub, pv, cust, slotComp, delta, now)
	if err != nil {
		return tx, nil, err
	}
	if inv == nil {
		return tx, nil, nil
	}
	if err := e.finalizer.CreateAndFinalizeAdjustment(ctx, tenantID, cust.InvoicingEntityID, inv, cust); err != nil {
		return tx, nil, err
	}
	return tx, inv, nil
}

// findSlotComponent looks up a Slot component by ID among the plan
// version's own components and the subscription's add-ons, the same two
// sources billing.attachedComponents merges for pricing.
func findSlotComponent(pv *plan.PlanVersion, sub *subdomain.Subscription, componentID string) (*price.Slot, bool) {
	for _, c := range pv.Components {
		if c.ComponentID() == componentID {
			if s, ok := c.(*price.Slot); ok {
				return s, true
			}
		}
	}
	for _, a := range sub.AddOns {
		if a.Component.ComponentID() == componentID {
			if s, ok := a.Component.(*price.Slot); ok {
				return s, true
			}
		}
	}
	return nil, false
}

// ProcessDueEvents drains the tenant-wide, time-based housekeeping sweep:
// expiring checkout sessions past their deadline (spec.md §4.8
// mark_expired_batch). Trial reminders and payment retries are driven off
// the outbox/webhook pipeline (C10) rather than this sweep, since they are
// not state transitions owned by this engine.
func (e *Engine) ProcessDueEvents(ctx context.Context, tenantID string, now time.Time, limit int) (int, error) {
	if e.checkouts == nil {
		return 0, nil
	}
	sessions, err := e.checkouts.ListExpiring(ctx, tenantID, now, limit)
	if err != nil {
		return 0, err
	}
	var processed int
	for _, s := range sessions {
		s.Status = types.CheckoutStatusExpired
		if err := e.checkouts.Update(ctx, s); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}
