package nft

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/pkg/u256"
)

type Repository interface {
	// Get returns ErrTokenNotFound for unknown tokens.
	Get(ctx context.Context, contract common.Address, tokenID u256.Int) (*Token, error)
	Save(ctx context.Context, t *Token) error
	IsOperator(ctx context.Context, contract, owner, operator common.Address) (bool, error)
	SetOperator(ctx context.Context, a *OperatorApproval) error
}
