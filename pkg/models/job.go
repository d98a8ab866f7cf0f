package models

import "time"

// Job kinds accepted by the asynchronous dispatcher. Every unit of work
// that crosses the broker is one of these; delivery is at-least-once and
// handlers are expected to be idempotent.
const (
	JobKindProcess   = "process"
	JobKindRoute     = "route"
	JobKindReprocess = "reprocess"
)

type Job struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	TenantID  string    `json:"tenant_id"`
	OwnerID   string    `json:"owner_id,omitempty"`
	VendorID  string    `json:"vendor_id,omitempty"`
	SourceID  string    `json:"source_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Payload carries the raw vendor payload for process jobs. Untouched by
	// the broker; the pipeline owns its interpretation.
	Payload map[string]interface{} `json:"payload,omitempty"`

	// LeadID identifies the persisted lead for route jobs.
	LeadID string `json:"lead_id,omitempty"`

	// RedirectHistory lists source ids already visited by a
	// duplicate-redirect chain. Loop guard for requeues.
	RedirectHistory []string `json:"redirect_history,omitempty"`

	Metadata JobMetadata `json:"metadata"`
}

type JobMetadata struct {
	TraceID      string `json:"trace_id,omitempty"`
	DivertedFrom string `json:"diverted_from,omitempty"`
	Attempt      int    `json:"attempt,omitempty"`

	// DLQ fields are set by the consumer when a job exhausts its retries.
	DLQReason      string     `json:"dlq_reason,omitempty"`
	DLQSourceTopic string     `json:"dlq_source_topic,omitempty"`
	DLQTimestamp   *time.Time `json:"dlq_timestamp,omitempty"`
}

// VisitedSource reports whether sourceID appears in the redirect history.
func (j Job) VisitedSource(sourceID string) bool {
	for _, id := range j.RedirectHistory {
		if id == sourceID {
			return true
		}
	}
	return false
}
