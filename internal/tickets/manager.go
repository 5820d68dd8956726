package tickets

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftwell/giftwell-backend/pkg/config"
	"github.com/giftwell/giftwell-backend/pkg/db"
	"github.com/giftwell/giftwell-backend/pkg/db/models"
	dbtypes "github.com/giftwell/giftwell-backend/pkg/db/types"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
	"github.com/giftwell/giftwell-backend/pkg/metrics"
	"github.com/giftwell/giftwell-backend/pkg/storage"
)

type itemGateway interface {
	FindInWishlist(ctx context.Context, wishlistID, itemID uuid.UUID) (*models.Item, error)
	SetImages(ctx context.Context, itemID uuid.UUID, images dbtypes.ImageRefs, now time.Time) error
}

type wishlistGateway interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wishlist, error)
}

// UploadGrant is returned by PrepareUpload.
type UploadGrant struct {
	Token       string    `json:"token"`
	StoragePath string    `json:"storage_path"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// PreviewGrant is returned by CreatePreview. Exactly one of URL and Token is
// set: external images resolve to their URL directly, managed images get a
// short-lived token.
type PreviewGrant struct {
	URL       string     `json:"url,omitempty"`
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Manager issues and redeems the single-use tickets gating storage access.
type Manager interface {
	PrepareUpload(ctx context.Context, wishlistID, itemID uuid.UUID, ownerID, filename, mime string, sizeBytes int64) (UploadGrant, error)
	// RedeemUpload re-validates everything the ticket was prepared under,
	// stores the bytes and appends the image reference. On any failure except
	// INVALID_UPLOAD_TOKEN the ticket is still consumed.
	RedeemUpload(ctx context.Context, token, ownerID, mime string, data []byte) (*models.Item, error)
	CreatePreview(ctx context.Context, wishlistID, itemID uuid.UUID, requesterID string, imageIndex int) (PreviewGrant, error)
	// RedeemPreview exchanges a preview token for a signed read URL.
	RedeemPreview(ctx context.Context, token string) (string, error)
}

// ManagerParams groups dependencies for the ticket manager.
type ManagerParams struct {
	Store     Store
	Items     itemGateway
	Wishlists wishlistGateway
	Storage   storage.Backend
	Config    config.TicketConfig
	Download  time.Duration
	Metrics   *metrics.CoreMetrics
	Now       func() time.Time
}

type manager struct {
	store     Store
	items     itemGateway
	wishlists wishlistGateway
	storage   storage.Backend
	cfg       config.TicketConfig
	download  time.Duration
	metrics   *metrics.CoreMetrics
	now       func() time.Time
}

// NewManager wires a ticket manager with the required dependencies.
func NewManager(params ManagerParams) (Manager, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket store is required")
	}
	if params.Items == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item gateway is required")
	}
	if params.Wishlists == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wishlist gateway is required")
	}
	if params.Storage == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "storage backend is required")
	}
	if params.Config.UploadTTL <= 0 || params.Config.PreviewTTL <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ticket ttls must be positive")
	}
	if params.Config.MaxImages <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image limit must be positive")
	}
	download := params.Download
	if download <= 0 {
		download = params.Config.PreviewTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &manager{
		store:     params.Store,
		items:     params.Items,
		wishlists: params.Wishlists,
		storage:   params.Storage,
		cfg:       params.Config,
		download:  download,
		metrics:   params.Metrics,
		now:       now,
	}, nil
}

func (m *manager) PrepareUpload(ctx context.Context, wishlistID, itemID uuid.UUID, ownerID, filename, mime string, sizeBytes int64) (UploadGrant, error) {
	item, err := m.loadOwnedItem(ctx, wishlistID, itemID, ownerID)
	if err != nil {
		return UploadGrant{}, err
	}
	if err := m.validateUpload(item, mime, sizeBytes); err != nil {
		return UploadGrant{}, err
	}

	filename = strings.TrimSpace(filename)
	if filename == "" {
		return UploadGrant{}, pkgerrors.New(pkgerrors.CodeValidation, "filename is required")
	}

	now := m.now()
	token, err := newToken()
	if err != nil {
		return UploadGrant{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue upload ticket")
	}
	ticket := UploadTicket{
		Token:       token,
		WishlistID:  wishlistID,
		ItemID:      itemID,
		OwnerID:     ownerID,
		StoragePath: buildStoragePath(ownerID, wishlistID, itemID, filename, now),
		Mime:        strings.TrimSpace(mime),
		SizeBytes:   sizeBytes,
		ExpiresAt:   now.Add(m.cfg.UploadTTL),
	}
	if err := m.store.PutUpload(ctx, ticket, m.cfg.UploadTTL); err != nil {
		return UploadGrant{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store upload ticket")
	}
	return UploadGrant{
		Token:       ticket.Token,
		StoragePath: ticket.StoragePath,
		ExpiresAt:   ticket.ExpiresAt,
	}, nil
}

func (m *manager) RedeemUpload(ctx context.Context, token, ownerID, mime string, data []byte) (*models.Item, error) {
	// Take first: from here on the ticket is spent no matter what fails, so a
	// bad token cannot be hammered into a retry storm.
	ticket, found, err := m.store.TakeUpload(ctx, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read upload ticket")
	}
	now := m.now()
	if !found || !ticket.ExpiresAt.After(now) {
		m.metrics.IncTicketRedemption("upload", "invalid_token")
		return nil, pkgerrors.New(pkgerrors.CodeInvalidUploadToken, "upload token invalid or expired")
	}

	item, err := m.redeemUploadTicket(ctx, ticket, ownerID, mime, data, now)
	if err != nil {
		m.metrics.IncTicketRedemption("upload", "rejected")
		return nil, err
	}
	m.metrics.IncTicketRedemption("upload", "ok")
	return item, nil
}

// redeemUploadTicket re-runs every preparation check. State may have changed
// between the two calls (item archived, images added, ownership moved).
func (m *manager) redeemUploadTicket(ctx context.Context, ticket UploadTicket, ownerID, mime string, data []byte, now time.Time) (*models.Item, error) {
	if ownerID != ticket.OwnerID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "upload token belongs to another owner")
	}

	item, err := m.loadOwnedItem(ctx, ticket.WishlistID, ticket.ItemID, ownerID)
	if err != nil {
		return nil, err
	}

	mime = strings.TrimSpace(mime)
	if !strings.EqualFold(mime, ticket.Mime) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidMime, "mime type differs from the prepared upload")
	}
	if err := m.validateUpload(item, mime, int64(len(data))); err != nil {
		return nil, err
	}

	ref := dbtypes.ImageRef{StoragePath: ticket.StoragePath}
	if item.Images.Contains(ref) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "image already attached")
	}

	if err := m.storage.Upload(ctx, ticket.StoragePath, mime, data); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUpload, err, "store uploaded file")
	}

	images := append(item.Images, ref)
	if err := m.items.SetImages(ctx, item.ID, images, now); err != nil {
		return nil, classifyRepoError(err, "attach image reference")
	}
	item.Images = images
	item.UpdatedAt = now
	return item, nil
}

func (m *manager) CreatePreview(ctx context.Context, wishlistID, itemID uuid.UUID, requesterID string, imageIndex int) (PreviewGrant, error) {
	item, err := m.loadOwnedItem(ctx, wishlistID, itemID, requesterID)
	if err != nil {
		return PreviewGrant{}, err
	}
	if imageIndex < 0 || imageIndex >= len(item.Images) {
		return PreviewGrant{}, pkgerrors.New(pkgerrors.CodeNotFound, "image index out of range")
	}

	ref := item.Images[imageIndex]
	if ref.External() {
		return PreviewGrant{URL: ref.URL}, nil
	}

	now := m.now()
	token, err := newToken()
	if err != nil {
		return PreviewGrant{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue preview ticket")
	}
	ticket := PreviewTicket{
		Token:       token,
		StoragePath: ref.StoragePath,
		ExpiresAt:   now.Add(m.cfg.PreviewTTL),
	}
	if err := m.store.PutPreview(ctx, ticket, m.cfg.PreviewTTL); err != nil {
		return PreviewGrant{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store preview ticket")
	}
	return PreviewGrant{Token: ticket.Token, ExpiresAt: &ticket.ExpiresAt}, nil
}

func (m *manager) RedeemPreview(ctx context.Context, token string) (string, error) {
	ticket, found, err := m.store.TakePreview(ctx, token)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read preview ticket")
	}
	if !found || !ticket.ExpiresAt.After(m.now()) {
		m.metrics.IncTicketRedemption("preview", "invalid_token")
		return "", pkgerrors.New(pkgerrors.CodeInvalidUploadToken, "preview token invalid or expired")
	}

	url, err := m.storage.SignedReadURL(ticket.StoragePath, m.download)
	if err != nil {
		m.metrics.IncTicketRedemption("preview", "rejected")
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign preview url")
	}
	m.metrics.IncTicketRedemption("preview", "ok")
	return url, nil
}

func (m *manager) loadOwnedItem(ctx context.Context, wishlistID, itemID uuid.UUID, ownerID string) (*models.Item, error) {
	if ownerID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeActorUnresolvable, "owner id is required")
	}

	wishlist, err := m.wishlists.FindByID(ctx, wishlistID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "wishlist not found")
		}
		return nil, classifyRepoError(err, "load wishlist")
	}
	if !strings.EqualFold(wishlist.OwnerEmail, ownerID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not the wishlist owner")
	}

	item, err := m.items.FindInWishlist(ctx, wishlistID, itemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "item not found")
		}
		return nil, classifyRepoError(err, "load item")
	}
	if item.Archived() {
		return nil, pkgerrors.New(pkgerrors.CodeArchived, "item has been archived")
	}
	return item, nil
}

func (m *manager) validateUpload(item *models.Item, mime string, sizeBytes int64) error {
	mime = strings.TrimSpace(mime)
	if !m.mimeAllowed(mime) {
		return pkgerrors.New(pkgerrors.CodeInvalidMime, "mime type not allowed").
			WithDetails(map[string]any{"allowed": m.cfg.AllowedMimes})
	}
	if sizeBytes <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidSize, "file size invalid")
	}
	if sizeBytes > m.cfg.MaxUploadBytes() {
		return pkgerrors.New(pkgerrors.CodeFileTooLarge, "file exceeds the upload size limit").
			WithDetails(map[string]any{"max_bytes": m.cfg.MaxUploadBytes()})
	}
	if len(item.Images) >= m.cfg.MaxImages {
		return pkgerrors.New(pkgerrors.CodeImageLimitReached, "image limit reached for this item").
			WithDetails(map[string]any{"max_images": m.cfg.MaxImages})
	}
	return nil
}

func (m *manager) mimeAllowed(mime string) bool {
	for _, candidate := range m.cfg.AllowedMimes {
		if strings.EqualFold(strings.TrimSpace(candidate), mime) {
			return true
		}
	}
	return false
}

// buildStoragePath keys the object by owner, wishlist, item, and preparation
// time so two uploads of the same filename can never collide.
func buildStoragePath(ownerID string, wishlistID, itemID uuid.UUID, filename string, now time.Time) string {
	clean := sanitizeFilename(filename)
	if clean == "" {
		clean = "upload"
	}
	return fmt.Sprintf(
		"images/%s/%s/%s/%d-%s",
		sanitizeFilename(ownerID),
		wishlistID.String(),
		itemID.String(),
		now.UnixNano(),
		clean,
	)
}

func sanitizeFilename(name string) string {
	if name == "" {
		return ""
	}
	clean := path.Base(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case r == '/' || r == '\\' || r == '@' || unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_.")
}

func classifyRepoError(err error, message string) error {
	if db.IsTimeout(err) {
		return pkgerrors.Wrap(pkgerrors.CodeTimeout, err, message)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, message)
}
