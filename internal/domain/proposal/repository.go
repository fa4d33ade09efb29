package proposal

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type Repository interface {
	Create(ctx context.Context, p *Proposal) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id uint64) (*Proposal, error)
	GetForUpdate(ctx context.Context, id uint64) (*Proposal, error)
	Save(ctx context.Context, p *Proposal) error

	AddCollateral(ctx context.Context, items []Collateral) error
	ListCollateral(ctx context.Context, proposalID uint64) ([]Collateral, error)

	// GetLockedFunds returns a zero row for lenders that never locked.
	GetLockedFunds(ctx context.Context, lender common.Address) (*LockedFunds, error)
	SaveLockedFunds(ctx context.Context, l *LockedFunds) error
	ListActiveCounterOffers(ctx context.Context, lender common.Address) ([]Proposal, error)
}
