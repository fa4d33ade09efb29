package loanmock

import (
	"context"

	domain "nftlend-backend/internal/domain/loan"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Unset getters return domain.ErrNotFound; unset writers succeed.
type Repo struct {
	CreateFn         func(ctx context.Context, l *domain.Loan) error
	GetFn            func(ctx context.Context, id uint64) (*domain.Loan, error)
	GetForUpdateFn   func(ctx context.Context, id uint64) (*domain.Loan, error)
	SaveFn           func(ctx context.Context, l *domain.Loan) error
	AddCollateralFn  func(ctx context.Context, items []domain.Collateral) error
	ListCollateralFn func(ctx context.Context, loanID uint64) ([]domain.Collateral, error)
}

func (m *Repo) Create(ctx context.Context, l *domain.Loan) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, l)
	}
	return nil
}

func (m *Repo) Get(ctx context.Context, id uint64) (*domain.Loan, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *Repo) GetForUpdate(ctx context.Context, id uint64) (*domain.Loan, error) {
	if m.GetForUpdateFn != nil {
		return m.GetForUpdateFn(ctx, id)
	}
	return m.Get(ctx, id)
}

func (m *Repo) Save(ctx context.Context, l *domain.Loan) error {
	if m.SaveFn != nil {
		return m.SaveFn(ctx, l)
	}
	return nil
}

func (m *Repo) AddCollateral(ctx context.Context, items []domain.Collateral) error {
	if m.AddCollateralFn != nil {
		return m.AddCollateralFn(ctx, items)
	}
	return nil
}

func (m *Repo) ListCollateral(ctx context.Context, loanID uint64) ([]domain.Collateral, error) {
	if m.ListCollateralFn != nil {
		return m.ListCollateralFn(ctx, loanID)
	}
	return nil, nil
}
