package controllers

import (
	"net/http"
	"time"

	"github.com/giftwell/giftwell-backend/api/middleware"
	"github.com/giftwell/giftwell-backend/api/responses"
	"github.com/giftwell/giftwell-backend/api/validators"
	"github.com/giftwell/giftwell-backend/internal/wishlists"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
	"github.com/giftwell/giftwell-backend/pkg/logger"
)

type createWishlistPayload struct {
	Title     string     `json:"title" validate:"required,max=200"`
	EventDate *time.Time `json:"event_date"`
	Note      *string    `json:"note" validate:"omitempty,max=2000"`
}

// WishlistCreate opens a new list owned by the calling actor.
func WishlistCreate(svc wishlists.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		ownerID := middleware.ActorFromContext(ctx)
		if ownerID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeActorUnresolvable, "owner identity is required"))
			return
		}

		var payload createWishlistPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		wishlist, err := svc.Create(ctx, wishlists.CreateInput{
			OwnerEmail: ownerID,
			Title:      payload.Title,
			EventDate:  payload.EventDate,
			Note:       payload.Note,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, wishlist)
	}
}

// WishlistGet returns the owner view of one list.
func WishlistGet(svc wishlists.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		wishlistID, err := uuidParam(r, "wishlistID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		wishlist, err := svc.Get(ctx, wishlistID, middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, wishlist)
	}
}

// WishlistDelete tears the list down with its items, reservations,
// contributions and managed storage objects.
func WishlistDelete(svc wishlists.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		wishlistID, err := uuidParam(r, "wishlistID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.Delete(ctx, wishlistID, middleware.ActorFromContext(ctx)); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}
