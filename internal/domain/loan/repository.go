package loan

import "context"

type Repository interface {
	Create(ctx context.Context, l *Loan) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id uint64) (*Loan, error)
	GetForUpdate(ctx context.Context, id uint64) (*Loan, error)
	Save(ctx context.Context, l *Loan) error

	AddCollateral(ctx context.Context, items []Collateral) error
	ListCollateral(ctx context.Context, loanID uint64) ([]Collateral, error)
}
