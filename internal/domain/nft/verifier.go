package nft

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/pkg/u256"
)

// Verifier answers ownership and approval questions about NFTs. Approval is
// always relative to the collateral custodian.
type Verifier interface {
	CheckOwnership(ctx context.Context, owner, contract common.Address, tokenID u256.Int) (bool, error)
	CheckApproval(ctx context.Context, owner, contract common.Address, tokenID u256.Int) (bool, error)
	// VerifyOwnership also accepts owner as beneficial owner of an escrow
	// currently holding the token.
	VerifyOwnership(ctx context.Context, owner, contract common.Address, tokenID u256.Int) (bool, error)
}
