package catalog

import "time"

// Alias scopes, narrowest first. Resolution tries source, then vendor,
// then global (or same-owner) entries.
const (
	ScopeGlobal = "global"
	ScopeVendor = "vendor"
	ScopeSource = "source"
)

const (
	ConfidenceManual    = "manual"
	ConfidenceSuggested = "suggested"
)

const (
	UnknownStatusUnmapped = "unmapped"
	UnknownStatusMapped   = "mapped"
	UnknownStatusIgnored  = "ignored"
)

type AliasEntry struct {
	AliasRaw        string `json:"alias_raw" bson:"alias_raw"`
	AliasNormalized string `json:"alias_normalized" bson:"alias_normalized"`
	Scope           string `json:"scope" bson:"scope"`
	Confidence      string `json:"confidence" bson:"confidence"`
	OwnerID         string `json:"owner_id,omitempty" bson:"owner_id,omitempty"`
	VendorID        string `json:"vendor_id,omitempty" bson:"vendor_id,omitempty"`
	SourceID        string `json:"source_id,omitempty" bson:"source_id,omitempty"`
}

// CanonicalField is one key of the tenant's canonical schema. Aliases
// accumulate as vendor spellings get mapped onto it.
type CanonicalField struct {
	ID          string       `json:"id" bson:"_id"`
	TenantID    string       `json:"tenant_id" bson:"tenant_id"`
	OwnerID     string       `json:"owner_id" bson:"owner_id"`
	FieldKey    string       `json:"field_key" bson:"field_key"`
	Label       string       `json:"label" bson:"label"`
	DataType    string       `json:"data_type" bson:"data_type"`
	Category    string       `json:"category,omitempty" bson:"category,omitempty"`
	Description string       `json:"description,omitempty" bson:"description,omitempty"`
	IsRequired  bool         `json:"is_required" bson:"is_required"`
	Aliases     []AliasEntry `json:"aliases" bson:"aliases"`
	CreatedAt   time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" bson:"updated_at"`
}

// UnknownField records a payload key no rule or alias could place.
// One document per (field_name, tenant); SampleValue keeps the last
// few distinct observed values comma-joined.
type UnknownField struct {
	ID            string    `json:"id" bson:"_id"`
	TenantID      string    `json:"tenant_id" bson:"tenant_id"`
	OwnerID       string    `json:"owner_id" bson:"owner_id"`
	SourceID      string    `json:"source_id" bson:"source_id"`
	FieldName     string    `json:"field_name" bson:"field_name"`
	SampleValue   string    `json:"sample_value,omitempty" bson:"sample_value,omitempty"`
	DetectedCount int       `json:"detected_count" bson:"detected_count"`
	Status        string    `json:"status" bson:"status"`
	FirstSeen     time.Time `json:"first_seen" bson:"first_seen"`
	LastSeen      time.Time `json:"last_seen" bson:"last_seen"`
}
