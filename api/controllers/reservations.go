package controllers

import (
	"net/http"

	"github.com/giftwell/giftwell-backend/api/middleware"
	"github.com/giftwell/giftwell-backend/api/responses"
	"github.com/giftwell/giftwell-backend/internal/reservations"
	"github.com/giftwell/giftwell-backend/pkg/logger"
)

type reservationResponse struct {
	Reservation reservations.ReservationView `json:"reservation"`
	Replayed    bool                         `json:"replayed"`
}

// ItemReserve claims the item for the calling visitor. Reserving an item the
// visitor already holds replays the existing claim.
func ItemReserve(engine reservations.Engine, logg *logger.Logger) http.HandlerFunc {
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

		view, replayed, err := engine.Reserve(ctx, wishlistID, itemID, middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservationResponse{Reservation: view, Replayed: replayed})
	}
}

// ItemUnreserve releases the caller's own active claim.
func ItemUnreserve(engine reservations.Engine, logg *logger.Logger) http.HandlerFunc {
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

		view, err := engine.Unreserve(ctx, wishlistID, itemID, middleware.ActorFromContext(ctx))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservationResponse{Reservation: view})
	}
}
