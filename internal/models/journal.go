package models

import (
	"time"
)

// Action outcomes as stored in the journal and returned by the API.
const (
	OutcomeOK       = "ok"
	OutcomePartial  = "partial"
	OutcomeFailed   = "failed"
	OutcomeRejected = "rejected"
	OutcomeDeclined = "declined"
)

// ActionRecord is one dispatched operator command. It is an audit trail
// only; snapshots themselves are never persisted.
type ActionRecord struct {
	ID            uint      `gorm:"primarykey" json:"-"`
	ActionID      string    `gorm:"uniqueIndex;size:36;not null" json:"id"`
	Action        string    `gorm:"index;not null" json:"action"`
	Outcome       string    `gorm:"index;not null" json:"outcome"`
	Message       string    `json:"message"`
	FailedTargets string    `json:"failedTargets,omitempty"` // comma-separated target labels
	DurationMS    int64     `json:"durationMs"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
}
