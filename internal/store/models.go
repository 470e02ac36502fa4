package store

import (
	"context"
	"encoding/json"
	"time"
)

// Experiment statuses.
const (
	StatusDraft  = "draft"
	StatusActive = "active"
)

// Order mirrors the 'orders' table. Orders are never updated or deleted.
type Order struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Amount    float64   `db:"amount"`
	City      *string   `db:"city"`
	CreatedAt time.Time `db:"created_at"`
}

// OrderStats holds the raw aggregates the stats provider turns into facts.
type OrderStats struct {
	TotalOrders int64
	LTV         float64
	LastOrderAt *time.Time
	LastCity    *string
	// WindowCounts maps a window size in days to the number of orders in it.
	WindowCounts map[int]int64
}

// Segment mirrors the 'segments' table. Rules is the raw JSON rule tree.
type Segment struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Description string          `db:"description"`
	Rules       json.RawMessage `db:"rules"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// Variant is one arm of an experiment, stored inside experiments.variants (JSONB).
type Variant struct {
	Name    string `json:"name"`
	Weight  int    `json:"weight"`
	Banners []int  `json:"banners,omitempty"`
}

// Experiment mirrors the 'experiments' table plus its linked segment ids.
type Experiment struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	Status     string    `db:"status"`
	Variants   []Variant `db:"variants"`
	CreatedAt  time.Time `db:"created_at"`
	SegmentIDs []string  `db:"segment_ids"`
}

// UserRepository manages the user registry.
type UserRepository interface {
	// CreateUser registers a user. created is false when the user already existed.
	CreateUser(ctx context.Context, userID string) (created bool, err error)
	UserExists(ctx context.Context, userID string) (bool, error)
}

// OrderRepository is the append-only order ledger.
type OrderRepository interface {
	// CreateOrder persists the order (registering its user if needed).
	// ID and CreatedAt must be set by the caller.
	CreateOrder(ctx context.Context, o *Order) error

	// OrderStats aggregates a user's orders. windows are day counts relative to now.
	OrderStats(ctx context.Context, userID string, now time.Time, windows []int) (*OrderStats, error)

	// HasOrderAfter reports whether the user has an order created strictly after t.
	HasOrderAfter(ctx context.Context, userID string, t time.Time) (bool, error)

	// ListDormantUsers returns users whose most recent order is older than cutoff,
	// most recently dormant first. A non-nil after resumes strictly past that
	// entry of a previous page. limit <= 0 means no limit.
	ListDormantUsers(ctx context.Context, cutoff time.Time, after *DormantUser, limit int) ([]DormantUser, error)
}

// DormantUser is a user without orders since LastOrderAt. It doubles as the
// keyset cursor of ListDormantUsers.
type DormantUser struct {
	UserID      string
	LastOrderAt time.Time
}

// SegmentRepository stores segment definitions.
type SegmentRepository interface {
	// CreateSegment inserts the segment; a duplicate name returns apperr.ErrConflict.
	CreateSegment(ctx context.Context, s *Segment) error
	GetSegment(ctx context.Context, id string) (*Segment, error)
	GetSegmentByName(ctx context.Context, name string) (*Segment, error)
	ListSegments(ctx context.Context) ([]*Segment, error)
	ListSegmentsPage(ctx context.Context, limit, offset int) ([]*Segment, int64, error)
}

// ExperimentRepository stores experiment definitions and their segment links.
type ExperimentRepository interface {
	// CreateExperiment inserts the experiment and links segmentIDs in one transaction.
	// A duplicate name returns apperr.ErrConflict; an unknown segment apperr.ErrNotFound.
	CreateExperiment(ctx context.Context, e *Experiment) error
	GetExperiment(ctx context.Context, id string) (*Experiment, error)
	GetExperimentByName(ctx context.Context, name string) (*Experiment, error)

	// LinkSegments adds links that do not exist yet and returns how many were added.
	LinkSegments(ctx context.Context, experimentID string, segmentIDs []string) (int64, error)

	// ListActiveExperiments returns every active experiment with its segment ids in one query.
	ListActiveExperiments(ctx context.Context) ([]*Experiment, error)
}

// MembershipRepository stores the per-user segment membership snapshot.
type MembershipRepository interface {
	// ReplaceMemberships atomically swaps the user's membership set for segmentIDs.
	ReplaceMemberships(ctx context.Context, userID string, segmentIDs []string) error
	HasMemberships(ctx context.Context, userID string) (bool, error)
	ListMemberships(ctx context.Context, userID string) ([]string, error)
}
