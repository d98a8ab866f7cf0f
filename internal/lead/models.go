package lead

import (
	"strings"
	"time"
)

const (
	StatusNew       = "new"
	StatusProcessed = "processed"
	StatusRejected  = "rejected"
)

const (
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
	DeliveryStatusSkipped   = "skipped"
)

// DeliveryResult records one dispatch attempt against an endpoint.
// Results are append-only; a lead routed to several targets carries one
// entry per attempt.
type DeliveryResult struct {
	TargetGroupID   string    `json:"target_group_id" bson:"target_group_id"`
	TargetGroupName string    `json:"target_group_name,omitempty" bson:"target_group_name,omitempty"`
	TargetID        string    `json:"target_id" bson:"target_id"`
	TargetName      string    `json:"target_name,omitempty" bson:"target_name,omitempty"`
	EndpointID      string    `json:"endpoint_id,omitempty" bson:"endpoint_id,omitempty"`
	EndpointName    string    `json:"endpoint_name,omitempty" bson:"endpoint_name,omitempty"`
	Status          string    `json:"status" bson:"status"`
	DeliveredAt     time.Time `json:"delivered_at" bson:"delivered_at"`
	ErrorMessage    string    `json:"error_message,omitempty" bson:"error_message,omitempty"`
}

type Lead struct {
	ID              string                 `json:"id" bson:"_id"`
	ReadableID      string                 `json:"readable_id,omitempty" bson:"readable_id,omitempty"`
	TenantID        string                 `json:"tenant_id" bson:"tenant_id"`
	OwnerID         string                 `json:"owner_id" bson:"owner_id"`
	VendorID        string                 `json:"vendor_id" bson:"vendor_id"`
	SourceID        string                 `json:"source_id" bson:"source_id"`
	ExternalID      string                 `json:"external_id,omitempty" bson:"external_id,omitempty"`
	Data            map[string]interface{} `json:"data" bson:"data"`
	OriginalPayload map[string]interface{} `json:"original_payload,omitempty" bson:"original_payload,omitempty"`
	Status          string                 `json:"status" bson:"status"`
	RejectionReason string                 `json:"rejection_reason,omitempty" bson:"rejection_reason,omitempty"`
	DivertedFrom    string                 `json:"diverted_from,omitempty" bson:"diverted_from,omitempty"`
	DeliveryResults []DeliveryResult       `json:"delivery_results" bson:"delivery_results"`
	CreatedAt       time.Time              `json:"created_at" bson:"created_at"`
	ProcessedAt     *time.Time             `json:"processed_at,omitempty" bson:"processed_at,omitempty"`
}

// ReadableID derives the short human-facing id from a lead id: "LD-"
// plus the last six characters uppercased.
func ReadableID(id string) string {
	suffix := id
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	return "LD-" + strings.ToUpper(suffix)
}
