package domain

import "time"

type MovementType string

const (
	MovementTypeAssign  MovementType = "assign"
	MovementTypeRelease MovementType = "release"
)

func (t MovementType) Valid() bool {
	return t == MovementTypeAssign || t == MovementTypeRelease
}

// MovementRecord is an immutable audit entry for one stock change.
type MovementRecord struct {
	ID            string
	ItemID        string
	QuantityMoved int
	MovementType  MovementType
	EventID       string
	Timestamp     time.Time
}

type MovementFilter struct {
	ItemID  string
	EventID string
	Limit   int
}

// MovementTotals sums the quantities moved for a single item.
type MovementTotals struct {
	Assigned int
	Released int
}

// Outstanding is the quantity the audit trail says is still reserved.
func (t MovementTotals) Outstanding() int {
	return t.Assigned - t.Released
}
