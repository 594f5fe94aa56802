package stripewebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/assetdrop-backend/pkg/redis"
)

const (
	guardScope = "stripe_event"

	guardProcessing = "processing"
	guardDone       = "done"

	// processingTTL bounds how long a crashed delivery can block redeliveries.
	processingTTL = 5 * time.Minute
)

// EventState is what the guard knows about an event id.
type EventState int

const (
	// EventNew means the caller now owns processing of the event.
	EventNew EventState = iota
	// EventInFlight means another delivery is still processing the event.
	EventInFlight
	// EventDone means the event was processed successfully.
	EventDone
)

// EventGuard is the event-id fast path in front of the reconciler. It only
// saves work; the unique payment session index is what guarantees a single
// order.
type EventGuard struct {
	store         redis.IdempotencyStore
	ttl           time.Duration
	processingTTL time.Duration
}

func NewEventGuard(store redis.IdempotencyStore, ttl time.Duration) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("event guard ttl must be positive")
	}
	inFlight := processingTTL
	if ttl < inFlight {
		inFlight = ttl
	}
	return &EventGuard{store: store, ttl: ttl, processingTTL: inFlight}, nil
}

// Begin claims eventID for processing. Only EventNew lets the caller proceed;
// the claim must end with Complete or Release.
func (g *EventGuard) Begin(ctx context.Context, eventID string) (EventState, error) {
	if eventID == "" {
		return EventNew, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(guardScope, eventID)
	claimed, err := g.store.SetNX(ctx, key, guardProcessing, g.processingTTL)
	if err != nil {
		return EventNew, fmt.Errorf("claim stripe event: %w", err)
	}
	if claimed {
		return EventNew, nil
	}
	value, err := g.store.Get(ctx, key)
	switch {
	case err == nil && value == guardDone:
		return EventDone, nil
	case err == nil || redis.IsMiss(err):
		// a miss means the holder released between SetNX and Get; the sender retries
		return EventInFlight, nil
	default:
		return EventNew, fmt.Errorf("read stripe event state: %w", err)
	}
}

// Complete records eventID as processed for the full guard ttl.
func (g *EventGuard) Complete(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	if err := g.store.Set(ctx, g.store.IdempotencyKey(guardScope, eventID), guardDone, g.ttl); err != nil {
		return fmt.Errorf("complete stripe event: %w", err)
	}
	return nil
}

// Release forgets eventID so a redelivery is processed again.
func (g *EventGuard) Release(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(guardScope, eventID))
}
