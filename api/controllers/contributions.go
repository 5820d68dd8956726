package controllers

import (
	"net/http"

	"github.com/giftwell/giftwell-backend/api/middleware"
	"github.com/giftwell/giftwell-backend/api/responses"
	"github.com/giftwell/giftwell-backend/api/validators"
	"github.com/giftwell/giftwell-backend/internal/contributions"
	"github.com/giftwell/giftwell-backend/pkg/logger"
)

type contributionPayload struct {
	AmountCents int64 `json:"amount_cents" validate:"required,gt=0"`
}

type contributionResponse struct {
	Contribution contributions.ContributionView `json:"contribution"`
	Funding      contributions.Aggregate        `json:"funding"`
}

// ContributionCreate appends a pledge toward a group-funded item and returns
// the fresh aggregate.
func ContributionCreate(ledger contributions.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		wishlistID, err := uuidParam(r, "wishlistID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		itemID, err := uuidParam(r, "itemID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload contributionPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		view, aggregate, err := ledger.Contribute(ctx, wishlistID, itemID, middleware.ActorFromContext(ctx), payload.AmountCents)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, contributionResponse{Contribution: view, Funding: aggregate})
	}
}

// ContributionAggregate reads the current funding roll-up for an item.
func ContributionAggregate(ledger contributions.Ledger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		wishlistID, err := uuidParam(r, "wishlistID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		itemID, err := uuidParam(r, "itemID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		aggregate, err := ledger.ComputeAggregate(ctx, wishlistID, itemID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]contributions.Aggregate{"funding": aggregate})
	}
}
