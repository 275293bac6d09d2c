package notifier

import (
	"context"
	"errors"
)

// Publisher delivers trade events. Publish must not block a trading cycle for
// longer than its context allows.
type Publisher interface {
	Publish(ctx context.Context, ev TradeEvent) error
}

// Multi fans an event out to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev TradeEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, TradeEvent) error { return nil }
