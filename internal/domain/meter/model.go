// Package meter models the BillableMetric aggregate (spec.md §3).
package meter

import (
	"context"

	"github.com/ledgerbase/billing/internal/types"
)

// Metric is a named, aggregatable counter over customer events.
type Metric struct {
	ID                 string
	Code               string
	Name               string
	Aggregation        types.AggregationType
	AggregationKey      string
	SegmentationMatrix types.SegmentationMatrix
	// GroupByDimensions lists the event property names that make up the
	// segmentation, in order: [dim1] for Single, [dim1, dim2] for Double
	// or Linked.
	GroupByDimensions []string
	// LinkedDimensionValues restricts dim2 values per dim1 value when
	// SegmentationMatrix is Linked (spec.md §4.3).
	LinkedDimensionValues map[string][]string
	UnitConversionFactor  float64

	types.BaseModel
}

// Repository is the storage port for metrics (C11).
type Repository interface {
	Get(ctx context.Context, tenantID, id string) (*Metric, error)
	GetByCode(ctx context.Context, tenantID, code string) (*Metric, error)
	List(ctx context.Context, tenantID string) ([]*Metric, error)
}
