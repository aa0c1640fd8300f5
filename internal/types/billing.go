package types

import "github.com/samber/lo"

// BillingPeriod is the cadence at which a subscription renews (spec.md §3).
type BillingPeriod string

const (
	BILLING_PERIOD_MONTHLY BillingPeriod = "MONTHLY"
	BILLING_PERIOD_QUARTER BillingPeriod = "QUARTERLY"
	BILLING_PERIOD_ANNUAL  BillingPeriod = "ANNUAL"
)

// Months returns how many months a single billing period spans.
func (b BillingPeriod) Months() int {
	switch b {
	case BILLING_PERIOD_MONTHLY:
		return 1
	case BILLING_PERIOD_QUARTER:
		return 3
	case BILLING_PERIOD_ANNUAL:
		return 12
	default:
		return 1
	}
}

func (b BillingPeriod) Validate() error {
	allowed := []BillingPeriod{BILLING_PERIOD_MONTHLY, BILLING_PERIOD_QUARTER, BILLING_PERIOD_ANNUAL}
	if !lo.Contains(allowed, b) {
		return errInvalid("billing period", string(b))
	}
	return nil
}

// PriceType distinguishes recurring flat fees from metered usage fees.
type PriceType string

const (
	PRICE_TYPE_FIXED PriceType = "FIXED"
	PRICE_TYPE_USAGE PriceType = "USAGE"
)

// BillingCadence marks whether a component bills in advance of, or in
// arrears for, the period it covers (spec.md §4.2).
type BillingCadence string

const (
	BILLING_CADENCE_ADVANCE BillingCadence = "ADVANCE"
	BILLING_CADENCE_ARREAR  BillingCadence = "ARREAR"
)

// UsagePricingModel is the `pricing` variant of a Usage PriceComponent
// (spec.md §3).
type UsagePricingModel string

const (
	USAGE_PRICING_PER_UNIT UsagePricingModel = "PER_UNIT"
	USAGE_PRICING_TIERED   UsagePricingModel = "TIERED"
	USAGE_PRICING_VOLUME   UsagePricingModel = "VOLUME"
	USAGE_PRICING_PACKAGE  UsagePricingModel = "PACKAGE"
	USAGE_PRICING_MATRIX   UsagePricingModel = "MATRIX"
)

// SlotUpgradePolicy / SlotDowngradePolicy control when a slot delta takes
// effect (spec.md §4.2, §4.4).
type SlotUpgradePolicy string
type SlotDowngradePolicy string

const (
	SLOT_UPGRADE_IMMEDIATE SlotUpgradePolicy = "IMMEDIATE"
	SLOT_UPGRADE_PRORATED  SlotUpgradePolicy = "PRORATED"

	SLOT_DOWNGRADE_END_OF_PERIOD SlotDowngradePolicy = "END_OF_PERIOD"
	SLOT_DOWNGRADE_IMMEDIATE     SlotDowngradePolicy = "IMMEDIATE"
)

// AggregationType is the BillableMetric aggregation function (spec.md §3).
type AggregationType string

const (
	AGGREGATION_SUM            AggregationType = "SUM"
	AGGREGATION_AVG            AggregationType = "AVG"
	AGGREGATION_MIN            AggregationType = "MIN"
	AGGREGATION_MAX            AggregationType = "MAX"
	AGGREGATION_COUNT          AggregationType = "COUNT"
	AGGREGATION_COUNT_DISTINCT AggregationType = "COUNT_DISTINCT"
	AGGREGATION_LATEST         AggregationType = "LATEST"
)

// SegmentationMatrix describes the group-by shape of a metric (spec.md §4.3).
type SegmentationMatrix string

const (
	SEGMENTATION_NONE   SegmentationMatrix = "NONE"
	SEGMENTATION_SINGLE SegmentationMatrix = "SINGLE"
	SEGMENTATION_DOUBLE SegmentationMatrix = "DOUBLE"
	SEGMENTATION_LINKED SegmentationMatrix = "LINKED"
)

// ActivationCondition controls how a subscription enters its first active
// state (spec.md §3, §4.8).
type ActivationCondition string

const (
	ACTIVATION_ON_START    ActivationCondition = "ON_START"
	ACTIVATION_ON_CHECKOUT ActivationCondition = "ON_CHECKOUT"
	ACTIVATION_MANUAL      ActivationCondition = "MANUAL"
)

// SubscriptionStatus is the lifecycle state machine of spec.md §3/§4.8.
type SubscriptionStatus string

const (
	SubscriptionStatusPendingActivation SubscriptionStatus = "pending_activation"
	SubscriptionStatusTrialActive       SubscriptionStatus = "trial_active"
	SubscriptionStatusTrialExpired      SubscriptionStatus = "trial_expired"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusCancelled         SubscriptionStatus = "cancelled"
	SubscriptionStatusEnded             SubscriptionStatus = "ended"
)

func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusEnded
}

// NextCycleAction is the scheduled work item armed on a subscription for
// the cycle engine (spec.md §4.8).
type NextCycleAction string

const (
	CYCLE_ACTION_NONE              NextCycleAction = ""
	CYCLE_ACTION_END_TRIAL         NextCycleAction = "END_TRIAL"
	CYCLE_ACTION_RENEW             NextCycleAction = "RENEW_SUBSCRIPTION"
	CYCLE_ACTION_CANCEL            NextCycleAction = "CANCEL_SUBSCRIPTION"
	CYCLE_ACTION_EXPIRE            NextCycleAction = "EXPIRE"
)

// CancellationEffective controls when a cancellation takes hold
// (spec.md §4.8).
type CancellationEffective string

const (
	CancellationImmediate       CancellationEffective = "IMMEDIATE"
	CancellationEndOfPeriod     CancellationEffective = "END_OF_BILLING_PERIOD"
	CancellationSpecificDate    CancellationEffective = "DATE"
)

// InvoiceStatus / InvoicePaymentStatus / InvoiceType mirror spec.md §3.
type InvoiceStatus string
type InvoicePaymentStatus string
type InvoiceType string

const (
	InvoiceStatusDraft        InvoiceStatus = "draft"
	InvoiceStatusFinalized    InvoiceStatus = "finalized"
	InvoiceStatusUncollectible InvoiceStatus = "uncollectible"
	InvoiceStatusVoid         InvoiceStatus = "void"

	InvoicePaymentStatusUnpaid         InvoicePaymentStatus = "unpaid"
	InvoicePaymentStatusPartiallyPaid  InvoicePaymentStatus = "partially_paid"
	InvoicePaymentStatusPaid           InvoicePaymentStatus = "paid"
	InvoicePaymentStatusErrored        InvoicePaymentStatus = "errored"

	InvoiceTypeRecurring      InvoiceType = "recurring"
	InvoiceTypeOneOff         InvoiceType = "one_off"
	InvoiceTypeAdjustment     InvoiceType = "adjustment"
	InvoiceTypeUsageThreshold InvoiceType = "usage_threshold"
)

func (s InvoiceStatus) IsMutable() bool {
	return s == InvoiceStatusDraft
}

// SlotTransactionStatus mirrors spec.md §3.
type SlotTransactionStatus string

const (
	SlotTransactionPending   SlotTransactionStatus = "pending"
	SlotTransactionActive    SlotTransactionStatus = "active"
	SlotTransactionCancelled SlotTransactionStatus = "cancelled"
)

// PaymentTransactionStatus / PaymentTransactionType mirror spec.md §3.
type PaymentTransactionStatus string
type PaymentTransactionType string

const (
	PaymentStatusReady     PaymentTransactionStatus = "ready"
	PaymentStatusPending   PaymentTransactionStatus = "pending"
	PaymentStatusSettled   PaymentTransactionStatus = "settled"
	PaymentStatusCancelled PaymentTransactionStatus = "cancelled"
	PaymentStatusFailed    PaymentTransactionStatus = "failed"

	PaymentTypePayment PaymentTransactionType = "payment"
	PaymentTypeRefund  PaymentTransactionType = "refund"
)

// IsActiveHold reports whether a payment transaction still reserves funds
// against the invoice total (spec.md invariant 4).
func (s PaymentTransactionStatus) IsActiveHold() bool {
	return s == PaymentStatusPending || s == PaymentStatusReady || s == PaymentStatusSettled
}

// CheckoutSessionStatus mirrors spec.md §3.
type CheckoutSessionStatus string

const (
	CheckoutStatusCreated         CheckoutSessionStatus = "created"
	CheckoutStatusAwaitingPayment CheckoutSessionStatus = "awaiting_payment"
	CheckoutStatusCompleted       CheckoutSessionStatus = "completed"
	CheckoutStatusCancelled       CheckoutSessionStatus = "cancelled"
	CheckoutStatusExpired         CheckoutSessionStatus = "expired"
)

func (s CheckoutSessionStatus) IsTerminal() bool {
	switch s {
	case CheckoutStatusCompleted, CheckoutStatusCancelled, CheckoutStatusExpired:
		return true
	default:
		return false
	}
}

// CouponDiscountType mirrors spec.md §4.5.
type CouponDiscountType string

const (
	CouponDiscountPercentage CouponDiscountType = "percentage"
	CouponDiscountFixed      CouponDiscountType = "fixed"
)

// TaxExemptionType mirrors spec.md §4.6.
type TaxExemptionType string

const (
	TaxExemptionNone          TaxExemptionType = ""
	TaxExemptionTaxExempt     TaxExemptionType = "tax_exempt"
	TaxExemptionReverseCharge TaxExemptionType = "reverse_charge"
	TaxExemptionNoTax         TaxExemptionType = "no_tax"
)

// TaxEngineKind selects the pluggable tax engine (spec.md §4.6).
type TaxEngineKind string

const (
	TaxEngineManual    TaxEngineKind = "manual"
	TaxEngineAutomatic TaxEngineKind = "automatic"
)

func errInvalid(field, value string) error {
	return &invalidEnumError{field: field, value: value}
}

type invalidEnumError struct {
	field string
	value string
}

func (e *invalidEnumError) Error() string {
	return "invalid " + e.field + ": " + e.value
}
