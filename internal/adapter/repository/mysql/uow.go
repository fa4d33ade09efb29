package mysql

import (
	"context"

	"gorm.io/gorm"

	"nftlend-backend/internal/domain/loan"
	"nftlend-backend/internal/domain/uow"
)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

// Repos binds every repository to db. Its Tx opens savepoints on db when db
// is already a transaction.
func Repos(db *gorm.DB) uow.Repos {
	return uow.Repos{
		Proposals:  &ProposalRepository{db: db},
		Loans:      &LoanRepository{db: db},
		Collateral: &CollateralRepository{db: db},
		Vault:      &VaultRepository{db: db},
		Accounts:   &AccountRepository{db: db},
		Tokens:     &TokenRepository{db: db},
		Events:     &EventRepository{db: db},
		Admin:      &AdminRepository{db: db},
		Tx:         &GormUoW{db: db},
	}
}

// WithinTx runs fn in a transaction. Called on a GormUoW bound to a running
// transaction, gorm nests it as a savepoint.
func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(Repos(tx))
	})
}

func (u *GormUoW) WithinLoanTx(ctx context.Context, loanID uint64, fn func(r uow.Repos, l *loan.Loan) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := Repos(tx)
		// lock the loan row up-front to prevent races
		l, err := r.Loans.GetForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		return fn(r, l)
	})
}
