package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/assetdrop-backend/api/responses"
	stripewebhook "github.com/angelmondragon/assetdrop-backend/internal/webhooks/stripe"
	pkgerrors "github.com/angelmondragon/assetdrop-backend/pkg/errors"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
)

// maxPayloadBytes matches the upper bound Stripe documents for event bodies.
const maxPayloadBytes = 65536

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeEventGuard interface {
	Begin(ctx context.Context, eventID string) (stripewebhook.EventState, error)
	Complete(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

// StripeWebhook verifies and reconciles Stripe checkout and refund events.
// The event guard only short-circuits redeliveries; order creation stays
// correct without it.
func StripeWebhook(svc StripeWebhookService, signingSecret string, guard stripeEventGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if signingSecret == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeDependency, "stripe signing secret not configured"))
			return
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get("Stripe-Signature")
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, signingSecret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "verify signature"))
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"stripe_event_id":   event.ID,
				"stripe_event_type": string(event.Type),
			})
		}

		claimed := false
		if guard != nil {
			state, guardErr := guard.Begin(ctx, event.ID)
			switch {
			case guardErr != nil:
				if logg != nil {
					logg.Warn(ctx, "stripe event guard unavailable, processing anyway")
				}
			case state == stripewebhook.EventDone:
				if logg != nil {
					logg.Info(ctx, "stripe event already processed")
				}
				responses.WriteSuccess(w, nil)
				return
			case state == stripewebhook.EventInFlight:
				// a non-2xx makes Stripe redeliver once the first attempt settles
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "stripe event still processing"))
				return
			default:
				claimed = true
			}
		}

		err = svc.HandleEvent(ctx, &event)
		settleCtx := context.WithoutCancel(ctx)
		if err != nil {
			if claimed {
				if releaseErr := guard.Release(settleCtx, event.ID); releaseErr != nil && logg != nil {
					logg.Error(ctx, "release stripe event guard", releaseErr)
				}
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if claimed {
			if completeErr := guard.Complete(settleCtx, event.ID); completeErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", completeErr.Error()), "stripe event processed but guard not updated")
			}
		}
		if logg != nil {
			logg.Info(ctx, "stripe event processed")
		}
		responses.WriteSuccess(w, nil)
	}
}
