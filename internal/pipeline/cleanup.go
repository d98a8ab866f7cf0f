package pipeline

import (
	"context"
	"time"

	"github.com/dikshant-ux/vellkopoint/internal/lead"
	"github.com/dikshant-ux/vellkopoint/internal/logger"
)

// Cleaner strips original payloads off leads past the retention window.
// Canonical data stays; only the raw vendor payload is dropped.
type Cleaner struct {
	leads         lead.Repository
	retentionDays int
	interval      time.Duration
	logger        logger.Logger

	now func() time.Time
}

func NewCleaner(leads lead.Repository, retentionDays int, interval time.Duration, log logger.Logger) *Cleaner {
	return &Cleaner{
		leads:         leads,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        log,
		now:           time.Now,
	}
}

// Run sweeps on the configured interval until the context ends. The
// first sweep happens immediately.
func (c *Cleaner) Run(ctx context.Context) error {
	c.sweep(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Cleaner) sweep(ctx context.Context) {
	cutoff := c.now().UTC().AddDate(0, 0, -c.retentionDays)
	stripped, err := c.leads.StripOldPayloads(ctx, cutoff)
	if err != nil {
		c.logger.ErrorwCtx(ctx, "Payload cleanup sweep failed", "error", err)
		return
	}
	if stripped > 0 {
		c.logger.InfowCtx(ctx, "Stripped original payloads past retention",
			"count", stripped,
			"cutoff", cutoff,
		)
	}
}
