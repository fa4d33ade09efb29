package proposalmock

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	domain "nftlend-backend/internal/domain/proposal"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Unset getters return domain.ErrNotFound; unset writers succeed.
type Repo struct {
	CreateFn                  func(ctx context.Context, p *domain.Proposal) error
	GetFn                     func(ctx context.Context, id uint64) (*domain.Proposal, error)
	GetForUpdateFn            func(ctx context.Context, id uint64) (*domain.Proposal, error)
	SaveFn                    func(ctx context.Context, p *domain.Proposal) error
	AddCollateralFn           func(ctx context.Context, items []domain.Collateral) error
	ListCollateralFn          func(ctx context.Context, proposalID uint64) ([]domain.Collateral, error)
	GetLockedFundsFn          func(ctx context.Context, lender common.Address) (*domain.LockedFunds, error)
	SaveLockedFundsFn         func(ctx context.Context, l *domain.LockedFunds) error
	ListActiveCounterOffersFn func(ctx context.Context, lender common.Address) ([]domain.Proposal, error)
}

func (m *Repo) Create(ctx context.Context, p *domain.Proposal) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, p)
	}
	return nil
}

func (m *Repo) Get(ctx context.Context, id uint64) (*domain.Proposal, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) GetForUpdate(ctx context.Context, id uint64) (*domain.Proposal, error) {
	if m.GetForUpdateFn != nil {
		return m.GetForUpdateFn(ctx, id)
	}
	return m.Get(ctx, id)
}

func (m *Repo) Save(ctx context.Context, p *domain.Proposal) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, p)
	}
	return nil
}

func (m *Repo) AddCollateral(ctx context.Context, items []domain.Collateral) error {
	if m.AddCollateralFn != nil {
		return m.AddCollateralFn(ctx, items)
	}
	return nil
}

func (m *Repo) ListCollateral(ctx context.Context, proposalID uint64) ([]domain.Collateral, error) {
	if m.ListCollateralFn != nil {
		return m.ListCollateralFn(ctx, proposalID)
	}
	return nil, nil
}

func (m *Repo) GetLockedFunds(ctx context.Context, lender common.Address) (*domain.LockedFunds, error) {
	if m.GetLockedFundsFn != nil {
		return m.GetLockedFundsFn(ctx, lender)
	}
	return &domain.LockedFunds{Lender: lender}, nil
}

func (m *Repo) SaveLockedFunds(ctx context.Context, l *domain.LockedFunds) error {
	if m.SaveLockedFundsFn != nil {
		return m.SaveLockedFundsFn(ctx, l)
	}
	return nil
}

func (m *Repo) ListActiveCounterOffers(ctx context.Context, lender common.Address) ([]domain.Proposal, error) {
	if m.ListActiveCounterOffersFn != nil {
		return m.ListActiveCounterOffersFn(ctx, lender)
	}
	return nil, nil
}
