// Package types holds the enums, filters and shared value objects used
// across every domain package. Grouping them here (rather than inside each
// domain package) mirrors how the rest of the engine cross-references
// status and period enums without import cycles.
package types

import "time"

// Status is the lifecycle status shared by every persisted aggregate,
// independent of the aggregate's own business-level status field.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)

// BaseModel carries the fields every tenant-scoped row has regardless of
// aggregate. Embedding it (rather than repeating the fields) keeps the
// tenant-scoping invariant (spec.md §3) visible on every domain type.
type BaseModel struct {
	TenantID      string    `db:"tenant_id" json:"tenant_id"`
	EnvironmentID string    `db:"environment_id" json:"environment_id,omitempty"`
	Status        Status    `db:"status" json:"status"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
	CreatedBy     string    `db:"created_by" json:"created_by,omitempty"`
	UpdatedBy     string    `db:"updated_by" json:"updated_by,omitempty"`
}

// QueryFilter is the common pagination/sort shape reused by every list
// filter in the codebase.
type QueryFilter struct {
	Limit  int    `json:"limit,omitempty" form:"limit"`
	Offset int    `json:"offset,omitempty" form:"offset"`
	Sort   string `json:"sort,omitempty" form:"sort"`
	Order  string `json:"order,omitempty" form:"order"`
}

const defaultLimit = 50

func NewDefaultQueryFilter() *QueryFilter {
	return &QueryFilter{Limit: defaultLimit, Sort: "created_at", Order: "desc"}
}

func NewNoLimitQueryFilter() *QueryFilter {
	return &QueryFilter{Limit: -1, Sort: "created_at", Order: "desc"}
}

func (f *QueryFilter) IsUnlimited() bool {
	return f != nil && f.Limit < 0
}

func (f *QueryFilter) GetLimit() int {
	if f == nil || f.Limit == 0 {
		return defaultLimit
	}
	return f.Limit
}

func (f *QueryFilter) GetOffset() int {
	if f == nil {
		return 0
	}
	return f.Offset
}
