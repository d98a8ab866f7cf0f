package models

import "fmt"

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateJob(job *Job) error {
	if job == nil {
		return &ValidationError{Field: "job", Message: "job cannot be nil"}
	}

	if job.ID == "" {
		return &ValidationError{Field: "id", Message: "job ID is required"}
	}

	if job.TenantID == "" {
		return &ValidationError{Field: "tenant_id", Message: "tenant id is required"}
	}

	switch job.Kind {
	case JobKindProcess:
		if job.SourceID == "" {
			return &ValidationError{Field: "source_id", Message: "source id is required for process jobs"}
		}
		if job.Payload == nil {
			return &ValidationError{Field: "payload", Message: "payload is required for process jobs"}
		}
	case JobKindRoute:
		if job.LeadID == "" {
			return &ValidationError{Field: "lead_id", Message: "lead id is required for route jobs"}
		}
	case JobKindReprocess:
		if job.SourceID == "" {
			return &ValidationError{Field: "source_id", Message: "source id is required for reprocess jobs"}
		}
	default:
		return &ValidationError{Field: "kind", Message: fmt.Sprintf("unknown job kind '%s'", job.Kind)}
	}

	return nil
}
