package items

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftwell/giftwell-backend/internal/contributions"
	"github.com/giftwell/giftwell-backend/pkg/db"
	"github.com/giftwell/giftwell-backend/pkg/db/models"
	dbtypes "github.com/giftwell/giftwell-backend/pkg/db/types"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
	"github.com/giftwell/giftwell-backend/pkg/logger"
)

type wishlistGateway interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wishlist, error)
}

type reservationGateway interface {
	ReleaseAllForItem(ctx context.Context, itemID uuid.UUID, now time.Time) ([]string, error)
	ActiveItemIDs(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

type contributionGateway interface {
	TotalsForItems(ctx context.Context, itemIDs []uuid.UUID) (map[uuid.UUID]contributions.Totals, error)
}

// CreateInput carries the owner-supplied fields for a new item.
type CreateInput struct {
	Title         string
	PriceCents    *int64
	IsGroupFunded bool
	TargetCents   *int64
	ImageURLs     []string
}

// UpdateInput carries the mutable fields. Nil pointers leave the field as is.
type UpdateInput struct {
	Title       *string
	PriceCents  *int64
	TargetCents *int64
}

// PublicItem is the visitor projection: reservation state is reduced to a
// held flag and contributions to their aggregate. Holder and contributor
// identities never leave the service.
type PublicItem struct {
	ID            uuid.UUID                `json:"id"`
	Title         string                   `json:"title"`
	PriceCents    *int64                   `json:"price_cents,omitempty"`
	IsGroupFunded bool                     `json:"is_group_funded"`
	TargetCents   *int64                   `json:"target_cents,omitempty"`
	ImageCount    int                      `json:"image_count"`
	Held          bool                     `json:"held"`
	Funding       *contributions.Aggregate `json:"funding,omitempty"`
}

// Service exposes owner item management and the public visitor view.
type Service interface {
	Create(ctx context.Context, wishlistID uuid.UUID, ownerID string, input CreateInput) (*models.Item, error)
	Update(ctx context.Context, wishlistID, itemID uuid.UUID, ownerID string, input UpdateInput) (*models.Item, error)
	// Archive soft-deletes the item and force-releases every active claim on
	// it. Ledger rows stay untouched.
	Archive(ctx context.Context, wishlistID, itemID uuid.UUID, ownerID string) (*models.Item, error)
	ListOwner(ctx context.Context, wishlistID uuid.UUID, ownerID string) ([]models.Item, error)
	ListPublic(ctx context.Context, wishlistID uuid.UUID) ([]PublicItem, error)
}

// ServiceParams groups dependencies for the item service.
type ServiceParams struct {
	Repo          Repository
	Wishlists     wishlistGateway
	Reservations  reservationGateway
	Contributions contributionGateway
	Logger        *logger.Logger
	Now           func() time.Time
}

type service struct {
	repo          Repository
	wishlists     wishlistGateway
	reservations  reservationGateway
	contributions contributionGateway
	logg          *logger.Logger
	now           func() time.Time
}

// NewService wires an item service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item repo is required")
	}
	if params.Wishlists == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wishlist gateway is required")
	}
	if params.Reservations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reservation gateway is required")
	}
	if params.Contributions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contribution gateway is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:          params.Repo,
		wishlists:     params.Wishlists,
		reservations:  params.Reservations,
		contributions: params.Contributions,
		logg:          params.Logger,
		now:           now,
	}, nil
}

func (s *service) Create(ctx context.Context, wishlistID uuid.UUID, ownerID string, input CreateInput) (*models.Item, error) {
	if _, err := s.ownedWishlist(ctx, wishlistID, ownerID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if input.PriceCents != nil && *input.PriceCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
	}
	if input.IsGroupFunded {
		if input.TargetCents == nil || *input.TargetCents <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "group funded items need a positive target")
		}
	} else if input.TargetCents != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "target requires a group funded item")
	}

	images := make(dbtypes.ImageRefs, 0, len(input.ImageURLs))
	for _, raw := range input.ImageURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		ref := dbtypes.ImageRef{URL: raw}
		if !images.Contains(ref) {
			images = append(images, ref)
		}
	}

	now := s.now()
	item := &models.Item{
		ID:            uuid.New(),
		WishlistID:    wishlistID,
		Title:         title,
		PriceCents:    input.PriceCents,
		IsGroupFunded: input.IsGroupFunded,
		TargetCents:   input.TargetCents,
		Images:        images,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.Create(ctx, item); err != nil {
		return nil, classifyRepoError(err, "insert item")
	}
	return item, nil
}

func (s *service) Update(ctx context.Context, wishlistID, itemID uuid.UUID, ownerID string, input UpdateInput) (*models.Item, error) {
	if _, err := s.ownedWishlist(ctx, wishlistID, ownerID); err != nil {
		return nil, err
	}
	item, err := s.loadItem(ctx, wishlistID, itemID)
	if err != nil {
		return nil, err
	}
	if item.Archived() {
		return nil, pkgerrors.New(pkgerrors.CodeArchived, "item has been archived")
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
		}
		item.Title = title
	}
	if input.PriceCents != nil {
		if *input.PriceCents < 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "price must not be negative")
		}
		item.PriceCents = input.PriceCents
	}
	if input.TargetCents != nil {
		if !item.IsGroupFunded {
			return nil, pkgerrors.New(pkgerrors.CodeNotGroupFunded, "item does not accept contributions")
		}
		if *input.TargetCents <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "target must be positive")
		}
		item.TargetCents = input.TargetCents
	}

	item.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, item); err != nil {
		return nil, classifyRepoError(err, "update item")
	}
	return item, nil
}

func (s *service) Archive(ctx context.Context, wishlistID, itemID uuid.UUID, ownerID string) (*models.Item, error) {
	if _, err := s.ownedWishlist(ctx, wishlistID, ownerID); err != nil {
		return nil, err
	}
	item, err := s.loadItem(ctx, wishlistID, itemID)
	if err != nil {
		return nil, err
	}
	if item.Archived() {
		return item, nil
	}

	now := s.now()
	if err := s.repo.Archive(ctx, itemID, now); err != nil {
		return nil, classifyRepoError(err, "archive item")
	}

	holders, err := s.reservations.ReleaseAllForItem(ctx, itemID, now)
	if err != nil {
		return nil, classifyRepoError(err, "release reservations")
	}
	if len(holders) > 0 && s.logg != nil {
		s.logg.Info(s.logg.WithItemID(ctx, itemID.String()), "archived item had active reservations released")
	}

	item.ArchivedAt = &now
	item.UpdatedAt = now
	return item, nil
}

func (s *service) ListOwner(ctx context.Context, wishlistID uuid.UUID, ownerID string) ([]models.Item, error) {
	if _, err := s.ownedWishlist(ctx, wishlistID, ownerID); err != nil {
		return nil, err
	}
	list, err := s.repo.ListByWishlist(ctx, wishlistID)
	if err != nil {
		return nil, classifyRepoError(err, "list items")
	}
	return list, nil
}

func (s *service) ListPublic(ctx context.Context, wishlistID uuid.UUID) ([]PublicItem, error) {
	if _, err := s.wishlists.FindByID(ctx, wishlistID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "wishlist not found")
		}
		return nil, classifyRepoError(err, "load wishlist")
	}

	list, err := s.repo.ListByWishlist(ctx, wishlistID)
	if err != nil {
		return nil, classifyRepoError(err, "list items")
	}

	visible := make([]models.Item, 0, len(list))
	ids := make([]uuid.UUID, 0, len(list))
	for _, item := range list {
		if item.Archived() {
			continue
		}
		visible = append(visible, item)
		ids = append(ids, item.ID)
	}

	held, err := s.reservations.ActiveItemIDs(ctx, ids)
	if err != nil {
		return nil, classifyRepoError(err, "load reservation state")
	}
	totals, err := s.contributions.TotalsForItems(ctx, ids)
	if err != nil {
		return nil, classifyRepoError(err, "roll up contributions")
	}

	out := make([]PublicItem, 0, len(visible))
	for _, item := range visible {
		public := PublicItem{
			ID:            item.ID,
			Title:         item.Title,
			PriceCents:    item.PriceCents,
			IsGroupFunded: item.IsGroupFunded,
			TargetCents:   item.TargetCents,
			ImageCount:    len(item.Images),
			Held:          held[item.ID],
		}
		if item.IsGroupFunded {
			aggregate := contributions.BuildAggregate(totals[item.ID], item.TargetCents)
			public.Funding = &aggregate
		}
		out = append(out, public)
	}
	return out, nil
}

func (s *service) ownedWishlist(ctx context.Context, wishlistID uuid.UUID, ownerID string) (*models.Wishlist, error) {
	if ownerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeActorUnresolvable, "owner id is required")
	}
	wishlist, err := s.wishlists.FindByID(ctx, wishlistID)
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

func (s *service) loadItem(ctx context.Context, wishlistID, itemID uuid.UUID) (*models.Item, error) {
	item, err := s.repo.FindInWishlist(ctx, wishlistID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "item not found")
		}
		return nil, classifyRepoError(err, "load item")
	}
	return item, nil
}

func classifyRepoError(err error, message string) error {
	if db.IsTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
