package ledger

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/internal/domain/collateral"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/internal/domain/uow"
	"nftlend-backend/pkg/u256"
)

// Verifier answers ownership questions from the ledger bound to r. Approval
// is checked against custodian.
type Verifier struct {
	r         uow.Repos
	custodian common.Address
}

var _ nft.Verifier = (*Verifier)(nil)

func NewVerifier(r uow.Repos, custodian common.Address) *Verifier {
	return &Verifier{r: r, custodian: custodian}
}

func (v *Verifier) token(ctx context.Context, contract common.Address, tokenID u256.Int) (*nft.Token, error) {
	tok, err := v.r.Tokens.Get(ctx, contract, tokenID)
	if errors.Is(err, nft.ErrTokenNotFound) {
		return nil, nil
	}
	return tok, err
}

func (v *Verifier) CheckOwnership(ctx context.Context, owner, contract common.Address, tokenID u256.Int) (bool, error) {
	tok, err := v.token(ctx, contract, tokenID)
	if err != nil || tok == nil {
		return false, err
	}
	return tok.Owner == owner, nil
}

func (v *Verifier) CheckApproval(ctx context.Context, owner, contract common.Address, tokenID u256.Int) (bool, error) {
	tok, err := v.token(ctx, contract, tokenID)
	if err != nil || tok == nil || tok.Owner != owner {
		return false, err
	}
	if tok.Approved == v.custodian {
		return true, nil
	}
	return v.r.Tokens.IsOperator(ctx, contract, owner, v.custodian)
}

func (v *Verifier) VerifyOwnership(ctx context.Context, owner, contract common.Address, tokenID u256.Int) (bool, error) {
	tok, err := v.token(ctx, contract, tokenID)
	if err != nil || tok == nil {
		return false, err
	}
	if tok.Owner == owner {
		return true, nil
	}
	esc, err := v.r.Collateral.GetEscrowByAddress(ctx, tok.Owner)
	if errors.Is(err, collateral.ErrEscrowNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return esc.Holding() && esc.Borrower == owner, nil
}
