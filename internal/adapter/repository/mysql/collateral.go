package mysql

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"nftlend-backend/internal/domain/collateral"
	"nftlend-backend/pkg/u256"
)

type CollateralRepository struct{ db *gorm.DB }

func NewCollateralRepository(db *gorm.DB) *CollateralRepository {
	return &CollateralRepository{db: db}
}

func (r *CollateralRepository) CreateEscrow(ctx context.Context, e *collateral.Escrow) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *CollateralRepository) SaveEscrow(ctx context.Context, e *collateral.Escrow) error {
	return r.db.WithContext(ctx).Save(e).Error
}

func (r *CollateralRepository) FindEscrow(ctx context.Context, contract common.Address, tokenID u256.Int, loanID uint64) (*collateral.Escrow, error) {
	return r.firstEscrow(r.db.WithContext(ctx).
		Where("nft_address = ? AND token_id = ? AND loan_id = ?", contract, tokenID, loanID))
}

func (r *CollateralRepository) GetEscrowByAddress(ctx context.Context, addr common.Address) (*collateral.Escrow, error) {
	return r.firstEscrow(r.db.WithContext(ctx).Where("address = ?", addr))
}

func (r *CollateralRepository) firstEscrow(db *gorm.DB) (*collateral.Escrow, error) {
	var out collateral.Escrow
	if err := db.First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, collateral.ErrEscrowNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *CollateralRepository) ListEscrowsByLoan(ctx context.Context, loanID uint64) ([]collateral.Escrow, error) {
	var out []collateral.Escrow
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *CollateralRepository) FindActiveRecord(ctx context.Context, contract common.Address, tokenID u256.Int, loanID uint64) (*collateral.Record, error) {
	var out collateral.Record
	err := r.db.WithContext(ctx).
		Where("nft_address = ? AND token_id = ? AND loan_id = ? AND active = ?", contract, tokenID, loanID, true).
		First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *CollateralRepository) CreateRecord(ctx context.Context, rec *collateral.Record) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *CollateralRepository) SaveRecord(ctx context.Context, rec *collateral.Record) error {
	return r.db.WithContext(ctx).Save(rec).Error
}

func (r *CollateralRepository) ListRecordsByLoan(ctx context.Context, loanID uint64) ([]collateral.Record, error) {
	var out []collateral.Record
	err := r.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("id ASC").Find(&out).Error
	return out, err
}

func (r *CollateralRepository) SaveDelegate(ctx context.Context, d *collateral.Delegate) error {
	return r.db.WithContext(ctx).Save(d).Error
}

func (r *CollateralRepository) IsDelegate(ctx context.Context, escrowID uint64, addr common.Address) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&collateral.Delegate{}).
		Where("escrow_id = ? AND address = ? AND active = ?", escrowID, addr, true).
		Count(&n).Error
	return n > 0, err
}

func (r *CollateralRepository) ListDelegates(ctx context.Context, escrowID uint64) ([]common.Address, error) {
	var rows []collateral.Delegate
	if err := r.db.WithContext(ctx).
		Where("escrow_id = ? AND active = ?", escrowID, true).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]common.Address, 0, len(rows))
	for _, d := range rows {
		out = append(out, d.Address)
	}
	return out, nil
}

func (r *CollateralRepository) GetPartnerInterface(ctx context.Context, id string) (*collateral.PartnerInterface, error) {
	var out collateral.PartnerInterface
	if err := r.db.WithContext(ctx).Where("interface_id = ?", id).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, collateral.ErrInterfaceNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *CollateralRepository) SavePartnerInterface(ctx context.Context, p *collateral.PartnerInterface) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *CollateralRepository) ListPartnerInterfaces(ctx context.Context) ([]collateral.PartnerInterface, error) {
	var out []collateral.PartnerInterface
	err := r.db.WithContext(ctx).Where("active = ?", true).Order("interface_id ASC").Find(&out).Error
	return out, err
}

func (r *CollateralRepository) CreateBenefitClaim(ctx context.Context, c *collateral.BenefitClaim) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *CollateralRepository) ListBenefitClaims(ctx context.Context, escrowID uint64) ([]collateral.BenefitClaim, error) {
	var out []collateral.BenefitClaim
	err := r.db.WithContext(ctx).Where("escrow_id = ?", escrowID).Order("id ASC").Find(&out).Error
	return out, err
}
