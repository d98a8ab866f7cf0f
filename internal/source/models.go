package source

import (
	"time"

	"github.com/dikshant-ux/vellkopoint/internal/rules"
)

const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

// MappingRule maps one incoming payload key to a canonical field. A nil
// TargetField records a key that was seen but deliberately left unmapped,
// so auto-discovery does not probe it again.
type MappingRule struct {
	SourceField     string  `json:"source_field" bson:"source_field"`
	TargetField     *string `json:"target_field" bson:"target_field"`
	DefaultValue    *string `json:"default_value,omitempty" bson:"default_value,omitempty"`
	IsRequired      bool    `json:"is_required" bson:"is_required"`
	RegexValidation *string `json:"regex_validation,omitempty" bson:"regex_validation,omitempty"`
	IsStatic        bool    `json:"is_static" bson:"is_static"`
}

// Mapping holds a source's declared rules. Discovery of new fields is
// on unless a source explicitly opts out; documents provisioned without
// the flag keep discovering.
type Mapping struct {
	DisableAutoDiscover bool          `json:"disable_auto_discover" bson:"disable_auto_discover"`
	Rules               []MappingRule `json:"rules" bson:"rules"`
}

type NormalizationRule struct {
	Field     string `json:"field" bson:"field"`
	Operation string `json:"operation" bson:"operation"`
}

type Normalization struct {
	Rules []NormalizationRule `json:"rules" bson:"rules"`
}

type Rules struct {
	Filtering *rules.Group `json:"filtering,omitempty" bson:"filtering,omitempty"`
}

// DedupeConfig controls duplicate detection for one source. WindowDays of
// zero means any historical match counts.
type DedupeConfig struct {
	Enabled    bool     `json:"enabled" bson:"enabled"`
	Fields     []string `json:"fields" bson:"fields"`
	Operator   string   `json:"operator" bson:"operator"`
	WindowDays int      `json:"window_days" bson:"window_days"`
	RedirectTo string   `json:"redirect_to,omitempty" bson:"redirect_to,omitempty"`
}

type Config struct {
	Status    string       `json:"status" bson:"status"`
	RateLimit int          `json:"rate_limit" bson:"rate_limit"`
	Dedupe    DedupeConfig `json:"dedupe" bson:"dedupe"`
}

type Source struct {
	ID            string        `json:"id" bson:"id"`
	ReadableID    string        `json:"readable_id,omitempty" bson:"readable_id,omitempty"`
	Name          string        `json:"name" bson:"name"`
	Type          string        `json:"type" bson:"type"`
	APIKey        string        `json:"api_key" bson:"api_key"`
	Config        Config        `json:"config" bson:"config"`
	Mapping       Mapping       `json:"mapping" bson:"mapping"`
	Normalization Normalization `json:"normalization" bson:"normalization"`
	Rules         Rules         `json:"rules" bson:"rules"`
	CreatedAt     time.Time     `json:"created_at" bson:"created_at"`
}

type Vendor struct {
	ID         string    `json:"id" bson:"_id"`
	TenantID   string    `json:"tenant_id" bson:"tenant_id"`
	OwnerID    string    `json:"owner_id" bson:"owner_id"`
	Name       string    `json:"name" bson:"name"`
	ReadableID string    `json:"readable_id,omitempty" bson:"readable_id,omitempty"`
	Status     string    `json:"status" bson:"status"`
	Sources    []Source  `json:"sources" bson:"sources"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// FindSource returns the embedded source with the given id, or nil.
func (v *Vendor) FindSource(sourceID string) *Source {
	for i := range v.Sources {
		if v.Sources[i].ID == sourceID {
			return &v.Sources[i]
		}
	}
	return nil
}

// HasMappingRule reports whether a rule for sourceField already exists.
func (s *Source) HasMappingRule(sourceField string) bool {
	for _, r := range s.Mapping.Rules {
		if r.SourceField == sourceField {
			return true
		}
	}
	return false
}
