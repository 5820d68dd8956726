package controllers

import (
	"net/http"

	"github.com/giftwell/giftwell-backend/api/middleware"
	"github.com/giftwell/giftwell-backend/api/responses"
	"github.com/giftwell/giftwell-backend/api/validators"
	"github.com/giftwell/giftwell-backend/internal/items"
	"github.com/giftwell/giftwell-backend/pkg/logger"
)

type createItemPayload struct {
	Title         string   `json:"title" validate:"required,max=200"`
	PriceCents    *int64   `json:"price_cents" validate:"omitempty,gte=0"`
	IsGroupFunded bool     `json:"is_group_funded"`
	TargetCents   *int64   `json:"target_cents" validate:"omitempty,gt=0"`
	ImageURLs     []string `json:"image_urls" validate:"omitempty,max=4,dive,max=2048"`
}

type updateItemPayload struct {
	Title       *string `json:"title" validate:"omitempty,max=200"`
	PriceCents  *int64  `json:"price_cents" validate:"omitempty,gte=0"`
	TargetCents *int64  `json:"target_cents" validate:"omitempty,gt=0"`
}

func ItemCreate(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		wishlistID, err := uuidParam(r, "wishlistID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload createItemPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		item, err := svc.Create(ctx, wishlistID, middleware.ActorFromContext(ctx), items.CreateInput{
			Title:         payload.Title,
			PriceCents:    payload.PriceCents,
			IsGroupFunded: payload.IsGroupFunded,
			TargetCents:   payload.TargetCents,
			ImageURLs:     payload.ImageURLs,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, item)
	}
}

func ItemUpdate(svc items.Service, logg *logger.Logger) http.HandlerFunc {
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

		var payload updateItemPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		item, err := svc.Update(ctx, wishlistID, itemID, middleware.ActorFromContext(ctx), items.UpdateInput{
			Title:       payload.Title,
			PriceCents:  payload.PriceCents,
			TargetCents: payload.TargetCents,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// ItemArchive soft-deletes the item and force-releases any active claim.
func ItemArchive(svc items.Service, logg *logger.Logger) http.HandlerFunc {
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

		item, err := svc.Archive(ctx, wishlistID, itemID, middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// ItemListOwner returns the full item rows for the wishlist owner.
func ItemListOwner(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		wishlistID, err := uuidParam(r, "wishlistID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := svc.ListOwner(ctx, wishlistID, middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// ItemListPublic returns the visitor projection: held flags and funding
// aggregates only, never who holds or contributed.
func ItemListPublic(svc items.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		wishlistID, err := uuidParam(r, "wishlistID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		list, err := svc.ListPublic(ctx, wishlistID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}
