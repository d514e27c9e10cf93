package notify

import (
	"context"
	"errors"

	"github.com/Alias1177/GlucoPredictor/models"
)

// Sink delivers a persisted notification to an outside channel
type Sink interface {
	Deliver(ctx context.Context, n *models.NotificationRecord) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, n *models.NotificationRecord) error

func (f SinkFunc) Deliver(ctx context.Context, n *models.NotificationRecord) error {
	return f(ctx, n)
}

// Fanout delivers to every sink and joins their errors
type Fanout []Sink

func (f Fanout) Deliver(ctx context.Context, n *models.NotificationRecord) error {
	var errs []error
	for _, s := range f {
		if err := s.Deliver(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
