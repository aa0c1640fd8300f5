// Package usage implements C3: resolving a BillableMetric's aggregation
// over a period into one or more priced quantities, grouped by its
// segmentation matrix (spec.md §4.3). Querying the underlying event store
// is abstracted behind Client so the engine doesn't own event ingestion.
package usage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/ledgerbase/billing/internal/domain/meter"
	ierr "github.com/ledgerbase/billing/internal/errors"
	"github.com/ledgerbase/billing/internal/logger"
	"github.com/ledgerbase/billing/internal/types"
	"github.com/shopspring/decimal"
)

// Group is one segmentation bucket's resolved quantity (spec.md §4.3:
// "a Usage component with a segmented metric produces one priced line per
// distinct dimension-value combination observed in the period").
type Group struct {
	Dim1     string
	Dim2     *string
	Quantity decimal.Decimal
}

// Query describes one aggregation request against the event store.
type Query struct {
	TenantID       string
	EnvironmentID  string
	SubscriptionID string
	MetricID       string
	MetricCode     string
	Aggregation    string // a types.AggregationType value: SUM, AVG, MIN, MAX, COUNT, COUNT_DISTINCT, LATEST
	AggregationKey string
	Period         struct {
		Start time.Time
		End   time.Time
	}
	GroupByDimensions []string
}

// Client queries the event/metering backend for an aggregated quantity.
// The HTTP implementation below talks to an out-of-process metering
// service; tests substitute an in-memory Client.
type Client interface {
	Query(ctx context.Context, q Query) ([]Group, error)
}

// HTTPClient is a Client backed by a metering HTTP API, retried with
// exponential backoff (grounded on the teacher's retryablehttp-based
// provider clients).
type HTTPClient struct {
	base   string
	apiKey string
	client *retryablehttp.Client
	logger *logger.Logger
}

// NewHTTPClient builds an HTTPClient whose retry policy matches the
// teacher's provider adapters: capped exponential backoff, up to 3
// retries after the first attempt.
func NewHTTPClient(baseURL, apiKey string, log *logger.Logger) *HTTPClient {
	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.Logger = log.GetRetryableHTTPLogger()
	return &HTTPClient{base: baseURL, apiKey: apiKey, client: rc, logger: log}
}

type queryRequest struct {
	SubscriptionID string   `json:"subscription_id"`
	MetricCode     string   `json:"metric_code"`
	Aggregation    string   `json:"aggregation"`
	AggregationKey string   `json:"aggregation_key,omitempty"`
	PeriodStart    string   `json:"period_start"`
	PeriodEnd      string   `json:"period_end"`
	GroupBy        []string `json:"group_by,omitempty"`
}

type queryResponse struct {
	Groups []struct {
		Dim1     string  `json:"dim1"`
		Dim2     *string `json:"dim2,omitempty"`
		Quantity string  `json:"quantity"`
	} `json:"groups"`
}

// Query issues the aggregation request and parses the server's response
// into Groups, requiring decimal.Decimal round-trips so arbitrary
// precision survives the wire hop (spec.md §9: never use binary floats
// for anything feeding money math).
func (c *HTTPClient) Query(ctx context.Context, q Query) ([]Group, error) {
	body, err := json.Marshal(queryRequest{
		SubscriptionID: q.SubscriptionID,
		MetricCode:     q.MetricCode,
		Aggregation:    q.Aggregation,
		AggregationKey: q.AggregationKey,
		PeriodStart:    q.Period.Start.UTC().Format(time.RFC3339),
		PeriodEnd:      q.Period.End.UTC().Format(time.RFC3339),
		GroupBy:        q.GroupByDimensions,
	})
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to marshal usage query").Mark(ierr.ErrValidation).Err()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/usage/query", bytes.NewReader(body))
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to build usage query request").Mark(ierr.ErrSystem).Err()
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, ierr.WithError(err).WithMessage("usage query failed").Mark(ierr.ErrUsageBackend).Err()
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, ierr.NewError(fmt.Sprintf("usage query returned status %d", resp.StatusCode)).Mark(ierr.ErrUsageBackend).Err()
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, ierr.WithError(err).WithMessage("failed to decode usage query response").Mark(ierr.ErrUsageBackend).Err()
	}

	groups := make([]Group, 0, len(out.Groups))
	for _, g := range out.Groups {
		qty, err := decimal.NewFromString(g.Quantity)
		if err != nil {
			return nil, ierr.WithError(err).WithMessage("invalid quantity in usage query response").Mark(ierr.ErrUsageBackend).Err()
		}
		groups = append(groups, Group{Dim1: g.Dim1, Dim2: g.Dim2, Quantity: qty})
	}
	return groups, nil
}

// Backoff returns a jittered exponential backoff policy that gives up
// after 10 seconds of total elapsed time. No code path in this module
// calls it; HTTPClient retries through retryablehttp's own policy.
func Backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 10 * time.Second
	return b
}

// Resolve groups a metric's raw Client.Query result according to its
// SegmentationMatrix, collapsing to a single unsegmented Group when the
// metric carries no segmentation (spec.md §4.3).
func Resolve(ctx context.Context, client Client, m *meter.Metric, q Query) ([]Group, error) {
	q.MetricID = m.ID
	q.MetricCode = m.Code
	q.Aggregation = string(m.Aggregation)
	q.AggregationKey = m.AggregationKey
	q.GroupByDimensions = m.GroupByDimensions

	groups, err := client.Query(ctx, q)
	if err != nil {
		return nil, err
	}

	switch m.SegmentationMatrix {
	case types.SEGMENTATION_NONE, "":
		total := decimal.Zero
		for _, g := range groups {
			total = total.Add(g.Quantity)
		}
		return []Group{{Quantity: total}}, nil
	default:
		return linkedFilter(m, groups), nil
	}
}

// linkedFilter drops groups whose dim2 value is not a permitted pairing
// for their dim1 value when the metric uses Linked segmentation (spec.md
// §4.3: "Linked restricts the dim2 domain per dim1 value").
func linkedFilter(m *meter.Metric, groups []Group) []Group {
	if m.SegmentationMatrix != types.SEGMENTATION_LINKED || len(m.LinkedDimensionValues) == 0 {
		return groups
	}
	out := make([]Group, 0, len(groups))
	for _, g := range groups {
		allowed, ok := m.LinkedDimensionValues[g.Dim1]
		if !ok {
			continue
		}
		if g.Dim2 == nil {
			continue
		}
		for _, v := range allowed {
			if v == *g.Dim2 {
				out = append(out, g)
				break
			}
		}
	}
	return out
}
