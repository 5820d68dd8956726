package wishlists

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/giftwell/giftwell-backend/internal/contributions"
	"github.com/giftwell/giftwell-backend/internal/items"
	"github.com/giftwell/giftwell-backend/internal/reservations"
	"github.com/giftwell/giftwell-backend/pkg/db"
	"github.com/giftwell/giftwell-backend/pkg/db/models"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
	"github.com/giftwell/giftwell-backend/pkg/logger"
	"github.com/giftwell/giftwell-backend/pkg/storage"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateInput carries the owner-supplied fields for a new wishlist.
type CreateInput struct {
	OwnerEmail string
	Title      string
	EventDate  *time.Time
	Note       *string
}

// Service manages the wishlist shell around items.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Wishlist, error)
	Get(ctx context.Context, id uuid.UUID, ownerID string) (*models.Wishlist, error)
	// Delete tears the wishlist down: ledger rows, reservations, items and the
	// wishlist row go in one transaction; managed storage objects are removed
	// best effort afterwards.
	Delete(ctx context.Context, id uuid.UUID, ownerID string) error
}

// ServiceParams groups dependencies for the wishlist service.
type ServiceParams struct {
	Repo          Repository
	Items         items.Repository
	Reservations  reservations.Repository
	Contributions contributions.Repository
	Tx            txRunner
	Storage       storage.Backend
	Logger        *logger.Logger
	Now           func() time.Time
}

type service struct {
	repo          Repository
	items         items.Repository
	reservations  reservations.Repository
	contributions contributions.Repository
	tx            txRunner
	storage       storage.Backend
	logg          *logger.Logger
	now           func() time.Time
}

// NewService wires a wishlist service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wishlist repo is required")
	}
	if params.Items == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item repo is required")
	}
	if params.Reservations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation repo is required")
	}
	if params.Contributions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contribution repo is required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:          params.Repo,
		items:         params.Items,
		reservations:  params.Reservations,
		contributions: params.Contributions,
		tx:            params.Tx,
		storage:       params.Storage,
		logg:          params.Logger,
		now:           now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Wishlist, error) {
	owner := strings.TrimSpace(strings.ToLower(input.OwnerEmail))
	if owner == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner email is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}

	now := s.now()
	wishlist := &models.Wishlist{
		ID:         uuid.New(),
		OwnerEmail: owner,
		Title:      title,
		EventDate:  input.EventDate,
		Note:       input.Note,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, wishlist); err != nil {
		return nil, classifyRepoError(err, "insert wishlist")
	}
	return wishlist, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID, ownerID string) (*models.Wishlist, error) {
	return s.owned(ctx, id, ownerID)
}

func (s *service) Delete(ctx context.Context, id uuid.UUID, ownerID string) error {
	if _, err := s.owned(ctx, id, ownerID); err != nil {
		return err
	}

	itemIDs, err := s.items.IDsForWishlist(ctx, id)
	if err != nil {
		return classifyRepoError(err, "list wishlist items")
	}

	// Collect managed object paths before the rows disappear.
	var paths []string
	list, err := s.items.ListByWishlist(ctx, id)
	if err != nil {
		return classifyRepoError(err, "load wishlist items")
	}
	for _, item := range list {
		paths = append(paths, item.Images.StoragePaths()...)
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.contributions.WithTx(tx).DeleteByItemIDs(ctx, itemIDs); err != nil {
			return err
		}
		if err := s.reservations.WithTx(tx).DeleteByItemIDs(ctx, itemIDs); err != nil {
			return err
		}
		if err := s.items.WithTx(tx).DeleteByWishlist(ctx, id); err != nil {
			return err
		}
		return s.repo.WithTx(tx).Delete(ctx, id)
	})
	if err != nil {
		return classifyRepoError(err, "delete wishlist")
	}

	// Object deletes are best effort: the rows are gone, orphaned objects are
	// only a storage cost. Collect all failures rather than stop at the first.
	if s.storage != nil && len(paths) > 0 {
		var cleanupErr error
		for _, path := range paths {
			cleanupErr = multierr.Append(cleanupErr, s.storage.Delete(ctx, path))
		}
		if cleanupErr != nil && s.logg != nil {
			s.logg.Error(s.logg.WithWishlistID(ctx, id.String()), "wishlist teardown left orphaned storage objects", cleanupErr)
		}
	}
	return nil
}

func (s *service) owned(ctx context.Context, id uuid.UUID, ownerID string) (*models.Wishlist, error) {
	if ownerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeActorUnresolvable, "owner id is required")
	}
	wishlist, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "wishlist not found")
		}
		return nil, classifyRepoError(err, "load wishlist")
	}
	if !strings.EqualFold(wishlist.OwnerEmail, ownerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not the wishlist owner")
	}
	return wishlist, nil
}

func classifyRepoError(err error, message string) error {
	if db.IsTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
