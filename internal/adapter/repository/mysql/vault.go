package mysql

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"nftlend-backend/internal/domain/vault"
)

type VaultRepository struct{ db *gorm.DB }

func NewVaultRepository(db *gorm.DB) *VaultRepository { return &VaultRepository{db: db} }

func (r *VaultRepository) GetBalance(ctx context.Context, loanID uint64) (*vault.Balance, error) {
	var out vault.Balance
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &vault.Balance{LoanID: loanID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *VaultRepository) SaveBalance(ctx context.Context, b *vault.Balance) error {
	return r.db.WithContext(ctx).Save(b).Error
}

func (r *VaultRepository) AddEntry(ctx context.Context, e *vault.Entry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *VaultRepository) ListEntries(ctx context.Context, loanID uint64) ([]vault.Entry, error) {
	var out []vault.Entry
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("id ASC").Find(&out).Error
	return out, err
}
