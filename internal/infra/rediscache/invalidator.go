package rediscache

import (
	"context"
	"encoding/json"
	"fmt"

	"salon-billing/internal/domain/subscriptions"
)

// Invalidator drops the cached views named by a signal and publishes the
// signal so other instances can drop their local copies.
type Invalidator struct {
	client Client
}

func NewInvalidator(client Client) *Invalidator {
	return &Invalidator{client: client}
}

func (i *Invalidator) Invalidate(ctx context.Context, sig subscriptions.Signal) error {
	if len(sig.Keys) > 0 {
		if err := i.client.Del(ctx, sig.Keys...).Err(); err != nil {
			return fmt.Errorf("drop views: %w", err)
		}
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("encode signal: %w", err)
	}
	if err := i.client.Publish(ctx, Channel, payload).Err(); err != nil {
		return fmt.Errorf("publish signal: %w", err)
	}
	return nil
}
