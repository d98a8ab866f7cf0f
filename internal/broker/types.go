package broker

import (
	"context"

	"github.com/dikshant-ux/vellkopoint/pkg/models"
)

type Producer interface {
	Publish(ctx context.Context, topic string, job models.Job) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, topic string, handler HandlerFunc) error
	Close() error
	SetServiceName(name string)
}

type HandlerFunc func(ctx context.Context, job models.Job) error
