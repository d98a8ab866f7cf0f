package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixDedup = "dedup:"
)

const (
	DefaultProcessTopic   = "lead_process"
	DefaultRouteTopic     = "lead_route"
	DefaultReprocessTopic = "lead_reprocess"
)

const (
	DefaultMongoDBName = "vellkopoint"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)

// Sample values retained per unknown field. Distinct values only; older
// samples rotate out.
const MaxUnknownFieldSamples = 5

// Leads older than this lose their original payload to the cleanup job.
const DefaultPayloadRetentionDays = 30
