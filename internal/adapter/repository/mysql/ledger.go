package mysql

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/gorm"

	"nftlend-backend/internal/domain/account"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/pkg/u256"
)

type AccountRepository struct{ db *gorm.DB }

func NewAccountRepository(db *gorm.DB) *AccountRepository { return &AccountRepository{db: db} }

func (r *AccountRepository) Get(ctx context.Context, addr common.Address) (*account.Account, error) {
	var out account.Account
	err := r.db.WithContext(ctx).Where("address = ?", addr).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &account.Account{Address: addr}, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *AccountRepository) Save(ctx context.Context, a *account.Account) error {
	return r.db.WithContext(ctx).Save(a).Error
}

type TokenRepository struct{ db *gorm.DB }

func NewTokenRepository(db *gorm.DB) *TokenRepository { return &TokenRepository{db: db} }

func (r *TokenRepository) Get(ctx context.Context, contract common.Address, tokenID u256.Int) (*nft.Token, error) {
	var out nft.Token
	err := r.db.WithContext(ctx).Where("contract = ? AND token_id = ?", contract, tokenID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nft.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *TokenRepository) Save(ctx context.Context, t *nft.Token) error {
	return r.db.WithContext(ctx).Save(t).Error
}

func (r *TokenRepository) IsOperator(ctx context.Context, contract, owner, operator common.Address) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&nft.OperatorApproval{}).
		Where("contract = ? AND owner = ? AND operator = ? AND approved = ?", contract, owner, operator, true).
		Count(&n).Error
	return n > 0, err
}

func (r *TokenRepository) SetOperator(ctx context.Context, a *nft.OperatorApproval) error {
	return r.db.WithContext(ctx).Save(a).Error
}
