package target

import (
	"time"

	"github.com/dikshant-ux/vellkopoint/internal/rules"
	"github.com/dikshant-ux/vellkopoint/internal/source"
)

const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Group bundles targets under one named destination owner. Routing only
// considers targets whose group is enabled.
type Group struct {
	ID         string    `json:"id" bson:"_id"`
	TenantID   string    `json:"tenant_id" bson:"tenant_id"`
	OwnerID    string    `json:"owner_id" bson:"owner_id"`
	Name       string    `json:"name" bson:"name"`
	Status     string    `json:"status" bson:"status"`
	ReadableID string    `json:"readable_id,omitempty" bson:"readable_id,omitempty"`
	Endpoints  []string  `json:"endpoints" bson:"endpoints"`
	Targets    []string  `json:"targets" bson:"targets"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// Config holds a target's routing controls: priority ordering, capacity
// caps, and the delivery schedule. Nil caps mean unlimited.
type Config struct {
	Priority int    `json:"priority" bson:"priority"`
	Weight   int    `json:"weight" bson:"weight"`
	Status   string `json:"status" bson:"status"`

	MondayCap    *int `json:"monday_cap,omitempty" bson:"monday_cap,omitempty"`
	TuesdayCap   *int `json:"tuesday_cap,omitempty" bson:"tuesday_cap,omitempty"`
	WednesdayCap *int `json:"wednesday_cap,omitempty" bson:"wednesday_cap,omitempty"`
	ThursdayCap  *int `json:"thursday_cap,omitempty" bson:"thursday_cap,omitempty"`
	FridayCap    *int `json:"friday_cap,omitempty" bson:"friday_cap,omitempty"`
	SaturdayCap  *int `json:"saturday_cap,omitempty" bson:"saturday_cap,omitempty"`
	SundayCap    *int `json:"sunday_cap,omitempty" bson:"sunday_cap,omitempty"`

	AllDay    bool   `json:"all_day" bson:"all_day"`
	StartTime string `json:"start_time,omitempty" bson:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty" bson:"end_time,omitempty"`

	LifetimeMax *int `json:"lifetime_max,omitempty" bson:"lifetime_max,omitempty"`
	HourlyCap   *int `json:"hourly_cap,omitempty" bson:"hourly_cap,omitempty"`
}

// WeekdayCap returns the cap configured for the given weekday, nil when
// uncapped.
func (c Config) WeekdayCap(day time.Weekday) *int {
	switch day {
	case time.Monday:
		return c.MondayCap
	case time.Tuesday:
		return c.TuesdayCap
	case time.Wednesday:
		return c.WednesdayCap
	case time.Thursday:
		return c.ThursdayCap
	case time.Friday:
		return c.FridayCap
	case time.Saturday:
		return c.SaturdayCap
	default:
		return c.SundayCap
	}
}

// Target is one routable destination: an endpoint reference plus
// eligibility rules, outbound mapping, and capacity config. An empty
// SourceIDs list admits leads from any source.
type Target struct {
	ID          string         `json:"id" bson:"_id"`
	TenantID    string         `json:"tenant_id" bson:"tenant_id"`
	OwnerID     string         `json:"owner_id" bson:"owner_id"`
	GroupID     string         `json:"group_id" bson:"group_id"`
	Name        string         `json:"name" bson:"name"`
	Description string         `json:"description,omitempty" bson:"description,omitempty"`
	ReadableID  string         `json:"readable_id,omitempty" bson:"readable_id,omitempty"`
	EndpointID  string         `json:"endpoint_id" bson:"endpoint_id"`
	SourceIDs   []string       `json:"source_ids" bson:"source_ids"`
	Config      Config         `json:"config" bson:"config"`
	Rules       source.Rules   `json:"rules" bson:"rules"`
	Mapping     source.Mapping `json:"mapping" bson:"mapping"`
	CreatedAt   time.Time      `json:"created_at" bson:"created_at"`
}

// AllowsSource reports whether the target accepts leads from sourceID.
func (t *Target) AllowsSource(sourceID string) bool {
	if len(t.SourceIDs) == 0 {
		return true
	}
	for _, id := range t.SourceIDs {
		if id == sourceID {
			return true
		}
	}
	return false
}

// FilterTree returns the target's eligibility tree, nil when absent.
func (t *Target) FilterTree() *rules.Group {
	return t.Rules.Filtering
}

// EndpointConfig describes how to reach the receiving system.
type EndpointConfig struct {
	URL             string            `json:"url" bson:"url"`
	Method          string            `json:"method" bson:"method"`
	ContentType     string            `json:"content_type,omitempty" bson:"content_type,omitempty"`
	Headers         map[string]string `json:"headers,omitempty" bson:"headers,omitempty"`
	AuthType        string            `json:"auth_type" bson:"auth_type"`
	AuthCredentials map[string]string `json:"auth_credentials,omitempty" bson:"auth_credentials,omitempty"`
	TimeoutSeconds  int               `json:"timeout_seconds" bson:"timeout_seconds"`
}

// Endpoint is an outbound HTTP destination. Delivery requires it to be
// enabled and approved.
type Endpoint struct {
	ID             string         `json:"id" bson:"_id"`
	TenantID       string         `json:"tenant_id" bson:"tenant_id"`
	OwnerID        string         `json:"owner_id" bson:"owner_id"`
	TargetID       string         `json:"target_id,omitempty" bson:"target_id,omitempty"`
	Name           string         `json:"name" bson:"name"`
	Type           string         `json:"type" bson:"type"`
	Config         EndpointConfig `json:"config" bson:"config"`
	Enabled        bool           `json:"enabled" bson:"enabled"`
	ApprovalStatus string         `json:"approval_status" bson:"approval_status"`
	CreatedAt      time.Time      `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" bson:"updated_at"`
}
