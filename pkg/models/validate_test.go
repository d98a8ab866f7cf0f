package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validProcessJob() *Job {
	return &Job{
		ID:       "job-1",
		Kind:     JobKindProcess,
		TenantID: "tenant-1",
		SourceID: "src-1",
		Payload:  map[string]interface{}{"email": "a@b.com"},
	}
}

func TestValidateJob(t *testing.T) {
	require.NoError(t, ValidateJob(validProcessJob()))

	routeJob := &Job{ID: "job-2", Kind: JobKindRoute, TenantID: "tenant-1", LeadID: "lead-1"}
	require.NoError(t, ValidateJob(routeJob))

	reprocessJob := &Job{ID: "job-3", Kind: JobKindReprocess, TenantID: "tenant-1", SourceID: "src-1"}
	require.NoError(t, ValidateJob(reprocessJob))
}

func TestValidateJob_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Job)
		field  string
	}{
		{"nil payload", func(j *Job) { j.Payload = nil }, "payload"},
		{"missing id", func(j *Job) { j.ID = "" }, "id"},
		{"missing tenant", func(j *Job) { j.TenantID = "" }, "tenant_id"},
		{"missing source", func(j *Job) { j.SourceID = "" }, "source_id"},
		{"unknown kind", func(j *Job) { j.Kind = "cleanup" }, "kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := validProcessJob()
			tt.mutate(job)

			err := ValidateJob(job)
			require.Error(t, err)

			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}

	var vErr *ValidationError
	err := ValidateJob(nil)
	require.Error(t, err)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "job", vErr.Field)

	routeJob := &Job{ID: "job-2", Kind: JobKindRoute, TenantID: "tenant-1"}
	err = ValidateJob(routeJob)
	require.Error(t, err)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "lead_id", vErr.Field)
}
