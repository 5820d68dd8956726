package contributions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/giftwell/giftwell-backend/pkg/db"
	"github.com/giftwell/giftwell-backend/pkg/db/models"
	pkgerrors "github.com/giftwell/giftwell-backend/pkg/errors"
)

// MinAmountCents is the smallest pledge the ledger accepts.
const MinAmountCents int64 = 100

type itemGateway interface {
	FindInWishlist(ctx context.Context, wishlistID, itemID uuid.UUID) (*models.Item, error)
	Touch(ctx context.Context, itemID uuid.UUID, now time.Time) error
}

// ContributionView is the caller-facing projection of one pledge.
type ContributionView struct {
	ID          uuid.UUID `json:"id"`
	ItemID      uuid.UUID `json:"item_id"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
}

// Aggregate is derived from the full contribution set on every read. Sums are
// recomputed rather than incrementally cached so the ledger can never drift.
type Aggregate struct {
	FundedCents      int64   `json:"funded_cents"`
	ContributorCount int64   `json:"contributor_count"`
	ProgressRatio    float64 `json:"progress_ratio"`
}

// Ledger accepts pledges toward group-funded items and rolls them up.
type Ledger interface {
	// Contribute appends a pledge. Repeated pledges by the same visitor
	// accumulate; there is no dedup by actor.
	Contribute(ctx context.Context, wishlistID, itemID uuid.UUID, actorID string, amountCents int64) (ContributionView, Aggregate, error)
	ComputeAggregate(ctx context.Context, wishlistID, itemID uuid.UUID) (Aggregate, error)
}

// LedgerParams groups dependencies for the contribution ledger.
type LedgerParams struct {
	Repo  Repository
	Items itemGateway
	Now   func() time.Time
}

type ledger struct {
	repo  Repository
	items itemGateway
	now   func() time.Time
}

// NewLedger wires a contribution ledger with the required dependencies.
func NewLedger(params LedgerParams) (Ledger, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "contribution repo is required")
	}
	if params.Items == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item gateway is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &ledger{repo: params.Repo, items: params.Items, now: now}, nil
}

func (l *ledger) Contribute(ctx context.Context, wishlistID, itemID uuid.UUID, actorID string, amountCents int64) (ContributionView, Aggregate, error) {
	if actorID == "" {
		return ContributionView{}, Aggregate{}, pkgerrors.New(pkgerrors.CodeActorUnresolvable, "actor id is required")
	}
	if amountCents < MinAmountCents {
		return ContributionView{}, Aggregate{}, pkgerrors.New(pkgerrors.CodeInvalidAmount, "contribution amount invalid").
			WithDetails(map[string]any{"min_amount_cents": MinAmountCents})
	}

	item, err := l.loadItem(ctx, wishlistID, itemID)
	if err != nil {
		return ContributionView{}, Aggregate{}, err
	}
	if item.Archived() {
		return ContributionView{}, Aggregate{}, pkgerrors.New(pkgerrors.CodeArchived, "item has been archived")
	}
	if !item.IsGroupFunded {
		return ContributionView{}, Aggregate{}, pkgerrors.New(pkgerrors.CodeNotGroupFunded, "item does not accept contributions")
	}

	now := l.now()
	contribution := &models.Contribution{
		ID:          uuid.New(),
		ItemID:      itemID,
		ActorID:     actorID,
		AmountCents: amountCents,
		CreatedAt:   now,
	}
	if err := l.repo.Insert(ctx, contribution); err != nil {
		return ContributionView{}, Aggregate{}, classifyRepoError(err, "insert contribution")
	}
	if err := l.items.Touch(ctx, itemID, now); err != nil {
		return ContributionView{}, Aggregate{}, classifyRepoError(err, "touch item")
	}

	aggregate, err := l.aggregateFor(ctx, item)
	if err != nil {
		return ContributionView{}, Aggregate{}, err
	}
	view := ContributionView{
		ID:          contribution.ID,
		ItemID:      contribution.ItemID,
		AmountCents: contribution.AmountCents,
		CreatedAt:   contribution.CreatedAt,
	}
	return view, aggregate, nil
}

func (l *ledger) ComputeAggregate(ctx context.Context, wishlistID, itemID uuid.UUID) (Aggregate, error) {
	item, err := l.loadItem(ctx, wishlistID, itemID)
	if err != nil {
		return Aggregate{}, err
	}
	return l.aggregateFor(ctx, item)
}

func (l *ledger) aggregateFor(ctx context.Context, item *models.Item) (Aggregate, error) {
	totals, err := l.repo.TotalsForItem(ctx, item.ID)
	if err != nil {
		return Aggregate{}, classifyRepoError(err, "roll up contributions")
	}
	return BuildAggregate(totals, item.TargetCents), nil
}

// BuildAggregate clamps the funding ratio at 1.0 even when overfunded. An
// absent or non-positive target yields a ratio of 0.
func BuildAggregate(totals Totals, targetCents *int64) Aggregate {
	aggregate := Aggregate{
		FundedCents:      totals.TotalCents,
		ContributorCount: totals.DistinctContributors,
	}
	if targetCents != nil && *targetCents > 0 {
		funded := totals.TotalCents
		if funded > *targetCents {
			funded = *targetCents
		}
		aggregate.ProgressRatio = float64(funded) / float64(*targetCents)
	}
	return aggregate
}

func (l *ledger) loadItem(ctx context.Context, wishlistID, itemID uuid.UUID) (*models.Item, error) {
	item, err := l.items.FindInWishlist(ctx, wishlistID, itemID)
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
