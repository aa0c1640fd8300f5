package price

import "github.com/shopspring/decimal"

func NewRate(id, name string, unitPrice decimal.Decimal) *Rate {
	return &Rate{base: base{ID: id, Name: name}, UnitPrice: unitPrice}
}

func NewSlot(id, name, unit string, unitPrice decimal.Decimal) *Slot {
	return &Slot{base: base{ID: id, Name: name}, Unit: unit, UnitPrice: unitPrice}
}

func NewCapacity(id, name, metricID string, thresholds []CapacityThreshold) *Capacity {
	return &Capacity{base: base{ID: id, Name: name}, MetricID: metricID, Thresholds: thresholds}
}

func NewUsage(id, name, metricID string, pricing UsagePricing) *Usage {
	return &Usage{base: base{ID: id, Name: name}, MetricID: metricID, Pricing: pricing}
}

func NewExtraRecurring(id, name string, unitPrice, quantity decimal.Decimal, cadence ExtraRecurringCadence) *ExtraRecurring {
	return &ExtraRecurring{base: base{ID: id, Name: name}, UnitPrice: unitPrice, Quantity: quantity, Cadence: cadence}
}

func NewOneTime(id, name string, unitPrice, quantity decimal.Decimal) *OneTime {
	return &OneTime{base: base{ID: id, Name: name}, UnitPrice: unitPrice, Quantity: quantity}
}
