package mysql

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"nftlend-backend/internal/domain/proposal"
)

type ProposalRepository struct{ db *gorm.DB }

func NewProposalRepository(db *gorm.DB) *ProposalRepository { return &ProposalRepository{db: db} }

func (r *ProposalRepository) Create(ctx context.Context, p *proposal.Proposal) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ProposalRepository) Save(ctx context.Context, p *proposal.Proposal) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *ProposalRepository) Get(ctx context.Context, id uint64) (*proposal.Proposal, error) {
	return r.get(r.db.WithContext(ctx), id)
}

func (r *ProposalRepository) GetForUpdate(ctx context.Context, id uint64) (*proposal.Proposal, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *ProposalRepository) get(db *gorm.DB, id uint64) (*proposal.Proposal, error) {
	var out proposal.Proposal
	if err := db.Where("id = ?", id).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, proposal.ErrNotFound
		}
		return nil, err
	}
	return &out, nil
}

func (r *ProposalRepository) AddCollateral(ctx context.Context, items []proposal.Collateral) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *ProposalRepository) ListCollateral(ctx context.Context, proposalID uint64) ([]proposal.Collateral, error) {
	var out []proposal.Collateral
	err := r.db.WithContext(ctx).
		Where("proposal_id = ?", proposalID).
		Order("position ASC").
		Find(&out).Error
	return out, err
}

func (r *ProposalRepository) GetLockedFunds(ctx context.Context, lender common.Address) (*proposal.LockedFunds, error) {
	var out proposal.LockedFunds
	err := r.db.WithContext(ctx).Where("lender = ?", lender).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &proposal.LockedFunds{Lender: lender}, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *ProposalRepository) SaveLockedFunds(ctx context.Context, l *proposal.LockedFunds) error {
	return r.db.WithContext(ctx).Save(l).Error
}

func (r *ProposalRepository) ListActiveCounterOffers(ctx context.Context, lender common.Address) ([]proposal.Proposal, error) {
	var out []proposal.Proposal
	err := r.db.WithContext(ctx).
		Where("lender = ? AND is_counter_offer = ? AND is_active = ?", lender, true, true).
		Order("id ASC").
		Find(&out).Error
	return out, err
}
