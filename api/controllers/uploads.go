package controllers

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/giftwell/giftwell-backend/api/middleware"
	"github.com/giftwell/giftwell-backend/api/responses"
	"github.com/giftwell/giftwell-backend/api/validators"
	"github.com/giftwell/giftwell-backend/internal/tickets"
	"github.com/giftwell/giftwell-backend/pkg/config"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
	"github.com/giftwell/giftwell-backend/pkg/logger"
)

type prepareUploadPayload struct {
	Filename  string `json:"filename" validate:"required,max=255"`
	Mime      string `json:"mime" validate:"required,max=100"`
	SizeBytes int64  `json:"size_bytes" validate:"required,gt=0"`
}

// ImagePrepare validates the declared upload and issues a single-use ticket.
func ImagePrepare(mgr tickets.Manager, logg *logger.Logger) http.HandlerFunc {
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

		var payload prepareUploadPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		grant, err := mgr.PrepareUpload(ctx, wishlistID, itemID, middleware.ActorFromContext(ctx), payload.Filename, payload.Mime, payload.SizeBytes)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, grant)
	}
}

// UploadRedeem consumes the ticket and stores the raw request body. The body
// is re-measured server side; the declared size from preparation is not
// trusted here.
func UploadRedeem(mgr tickets.Manager, cfg config.TicketConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := strings.TrimSpace(chi.URLParam(r, "token"))
		if token == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInvalidUploadToken, "upload token is required"))
			return
		}

		// One byte over the cap so an oversized body still reaches the manager,
		// which fails size validation and consumes the ticket.
		r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes()+1)
		data, err := io.ReadAll(r.Body)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if !errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read upload body"))
				return
			}
			// The truncated bytes already exceed the limit, so the manager
			// reports FILE_TOO_LARGE and the ticket is spent.
		}

		item, err := mgr.RedeemUpload(ctx, token, middleware.ActorFromContext(ctx), r.Header.Get("Content-Type"), data)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// ImagePreview issues a preview grant: a direct URL for external images, a
// single-use token for managed storage.
func ImagePreview(mgr tickets.Manager, logg *logger.Logger) http.HandlerFunc {
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

		index, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "index")))
		if err != nil || index < 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "image index must be a non-negative integer"))
			return
		}

		grant, err := mgr.CreatePreview(ctx, wishlistID, itemID, middleware.ActorFromContext(ctx), index)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, grant)
	}
}

// PreviewRedeem exchanges a preview token for a signed read URL.
func PreviewRedeem(mgr tickets.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := strings.TrimSpace(chi.URLParam(r, "token"))
		if token == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInvalidUploadToken, "preview token is required"))
			return
		}

		url, err := mgr.RedeemPreview(ctx, token)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"url": url})
	}
}
