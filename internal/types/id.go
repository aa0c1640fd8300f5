package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateID returns a k-sortable unique identifier. ULIDs double as the
// "time-ordered identifier" spec.md §4.10 requires for outbox event_id.
func GenerateID() string {
	return ulid.Make().String()
}

// GenerateIDWithPrefix returns a k-sortable identifier with a domain
// prefix, e.g. "evt_01J8Z3K9QJXG7K8F2R6C4M5N8P".
func GenerateIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateID())
}

const (
	IDPrefixEvent        = "evt"
	IDPrefixInvoice      = "inv"
	IDPrefixInvoiceLine  = "inv_line"
	IDPrefixSubscription = "sub"
	IDPrefixCustomer     = "cust"
	IDPrefixPayment      = "pay"
	IDPrefixCheckout     = "cs"
	IDPrefixCoupon       = "coupon"
	IDPrefixSlotTxn      = "slot_txn"
)
