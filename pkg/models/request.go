// Package models contains shared data models used across the Verto gateway codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusIdle       = "idle"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

const (
	TypeAdCopy           = "ad_copy"
	TypeAudienceAnalysis = "audience_analysis"
	TypeAnalyticsReport  = "analytics_report"
)

// Request tracks one unit of marketing-content work handed to an external
// workflow service. At most one submission may be in flight per Request:
// status "processing" is the busy flag, and a second submission while
// processing is rejected rather than queued. Result and ErrorMessage are
// mutually exclusive; both are cleared when a Request re-enters processing.
type Request struct {
	ID             uuid.UUID      `db:"id"               json:"id"`
	OwnerID        uuid.UUID      `db:"owner_id"         json:"owner_id"`
	Type           string         `db:"type"             json:"type"`
	Status         string         `db:"status"           json:"status"`
	Payload        map[string]any `db:"payload"          json:"payload"`
	Result         map[string]any `db:"result"           json:"result,omitempty"`
	ErrorMessage   *string        `db:"error_message"    json:"error_message,omitempty"`
	LastActivityAt time.Time      `db:"last_activity_at" json:"last_activity_at"`
	CreatedAt      time.Time      `db:"created_at"       json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"       json:"updated_at"`
}

// Terminal reports whether the request has reached a resubmittable state.
func (r *Request) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusError
}
