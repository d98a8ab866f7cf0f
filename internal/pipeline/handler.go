package pipeline

import (
	"context"

	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/pkg/models"
)

// Handler adapts the pipeline service to the broker consumer loop. The
// ingest service consumes both the process and reprocess topics with the
// same handler.
type Handler struct {
	service *Service
	logger  logger.Logger
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{service: service, logger: log}
}

func (h *Handler) Handle(ctx context.Context, job models.Job) error {
	switch job.Kind {
	case models.JobKindProcess:
		return h.service.ProcessLead(ctx, job)
	case models.JobKindReprocess:
		return h.service.ReprocessSource(ctx, job)
	default:
		h.logger.WarnwCtx(ctx, "Unexpected job kind on ingest topic",
			"job_id", job.ID,
			"kind", job.Kind,
		)
		return nil
	}
}
