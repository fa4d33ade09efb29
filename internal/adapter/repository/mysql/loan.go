package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	loanDomain "nftlend-backend/internal/domain/loan"
)

type LoanRepository struct{ db *gorm.DB }

func NewLoanRepository(db *gorm.DB) *LoanRepository { return &LoanRepository{db: db} }

func (r *LoanRepository) Create(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Create(l).Error
}

func (r *LoanRepository) Save(ctx context.Context, l *loanDomain.Loan) error {
	return r.db.WithContext(ctx).Save(l).Error
}

func (r *LoanRepository) Get(ctx context.Context, id uint64) (*loanDomain.Loan, error) {
	return r.get(r.db.WithContext(ctx), id)
}

// GetForUpdate locks the row for the rest of the transaction.
func (r *LoanRepository) GetForUpdate(ctx context.Context, id uint64) (*loanDomain.Loan, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *LoanRepository) get(db *gorm.DB, id uint64) (*loanDomain.Loan, error) {
	var out loanDomain.Loan
	if err := db.Where("id = ?", id).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, loanDomain.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *LoanRepository) AddCollateral(ctx context.Context, items []loanDomain.Collateral) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *LoanRepository) ListCollateral(ctx context.Context, loanID uint64) ([]loanDomain.Collateral, error) {
	var out []loanDomain.Collateral
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("position ASC").
		Find(&out).Error
	return out, err
}
