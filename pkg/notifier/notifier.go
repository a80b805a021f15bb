// Package notifier defines the delivery channel contract shared by the
// realtime and push implementations.
package notifier

import (
	"context"

	"notification-engine/internal/domain"
)

// Outcome is the result of one delivery attempt on one channel.
// Attempted=false means the channel was skipped (gated off or not
// configured); Delivered=false with Attempted=true means the attempt
// ran but reached nobody.
type Outcome struct {
	Attempted bool
	Delivered bool
	Err       error
}

// Channel is an independent delivery mechanism. Implementations share
// only this contract; failures stay inside the returned Outcome and
// never propagate as call errors.
type Channel interface {
	Name() domain.Channel
	Deliver(ctx context.Context, recipientID string, event *domain.Event) Outcome
}
