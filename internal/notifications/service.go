package notifications

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/assetdrop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/outbox"
	"github.com/angelmondragon/assetdrop-backend/pkg/outbox/payloads"
)

// Templates understood by the notification service.
const (
	TemplateOrderConfirmed = "order_confirmed"
	TemplateOrderRefunded  = "order_refunded"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Request asks the notification service to deliver a templated message.
// Delivery happens elsewhere; this side only queues the request.
type Request struct {
	Template  string
	UserID    uuid.UUID
	Email     string
	Variables map[string]any
	// DedupeKey collapses repeated requests for the same subject, e.g. the
	// order id for an order confirmation. Zero means always emit.
	DedupeKey uuid.UUID
}

type Service interface {
	RequestTx(ctx context.Context, tx *gorm.DB, req Request) error
	Request(ctx context.Context, req Request) error
}

type service struct {
	tx     txRunner
	outbox outbox.Emitter
}

func NewService(tx txRunner, emitter outbox.Emitter) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &service{tx: tx, outbox: emitter}, nil
}

func (s *service) RequestTx(ctx context.Context, tx *gorm.DB, req Request) error {
	if req.Template == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification template required")
	}
	if req.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "notification recipient required")
	}

	aggregateID := req.DedupeKey
	emit := s.outbox.EmitIfNotExists
	if aggregateID == uuid.Nil {
		aggregateID = uuid.New()
		emit = s.outbox.Emit
	}
	return emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventNotificationRequested,
		AggregateType: enums.AggregateNotification,
		AggregateID:   aggregateID,
		Data: payloads.NotificationRequestedEvent{
			Template:  req.Template,
			UserID:    req.UserID,
			Email:     req.Email,
			Variables: req.Variables,
		},
	})
}

func (s *service) Request(ctx context.Context, req Request) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.RequestTx(ctx, tx, req)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue notification")
	}
	return nil
}
