package routing

import (
	"context"
	"fmt"

	"github.com/dikshant-ux/vellkopoint/internal/logger"
	"github.com/dikshant-ux/vellkopoint/pkg/models"
	"github.com/dikshant-ux/vellkopoint/pkg/retry"
)

// Handler adapts the engine to the broker consumer loop.
type Handler struct {
	engine *Engine
	logger logger.Logger
}

func NewHandler(engine *Engine, log logger.Logger) *Handler {
	return &Handler{engine: engine, logger: log}
}

// Handle dispatches one route job. Malformed jobs are fatal so the
// consumer dead-letters them instead of retrying forever.
func (h *Handler) Handle(ctx context.Context, job models.Job) error {
	if job.Kind != models.JobKindRoute {
		h.logger.WarnwCtx(ctx, "Unexpected job kind on routing topic",
			"job_id", job.ID,
			"kind", job.Kind,
		)
		return nil
	}
	if job.LeadID == "" {
		return retry.NewFatalError(fmt.Errorf("route job %s has no lead id", job.ID))
	}

	return h.engine.Route(ctx, job.LeadID)
}
