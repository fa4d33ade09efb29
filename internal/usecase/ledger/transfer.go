// Package ledger moves funds and NFTs on the chain ledger. Every transfer
// either applies fully or returns an error without touching state.
package ledger

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/internal/domain/account"
	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/internal/domain/uow"
	"nftlend-backend/pkg/u256"
)

// Transfer moves amount of native currency from one account to another.
func Transfer(ctx context.Context, r uow.Repos, from, to common.Address, amount u256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if to == (common.Address{}) {
		return account.ErrZeroAddress
	}
	src, err := r.Accounts.Get(ctx, from)
	if err != nil {
		return err
	}
	dst, err := r.Accounts.Get(ctx, to)
	if err != nil {
		return err
	}
	if dst.RejectsPayments {
		return fmt.Errorf("%w: %s", account.ErrPaymentRejected, to.Hex())
	}
	if from == to {
		if src.Balance.Lt(amount) {
			return account.ErrInsufficientBalance
		}
		return nil
	}
	debited, err := src.Balance.Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: %s has %s, needs %s", account.ErrInsufficientBalance, from.Hex(), src.Balance, amount)
	}
	credited, err := dst.Balance.Add(amount)
	if err != nil {
		return err
	}
	src.Balance = debited
	dst.Balance = credited
	if err := r.Accounts.Save(ctx, src); err != nil {
		return err
	}
	return r.Accounts.Save(ctx, dst)
}

// Collect moves the value attached to call into the callee's custody.
func Collect(ctx context.Context, r uow.Repos, call msg.Call, callee common.Address) error {
	return Transfer(ctx, r, call.From, callee, call.Value)
}

// TransferNFT moves a token on behalf of operator, who must be the owner, the
// approved address or an approved operator of the owner. Approval is cleared.
func TransferNFT(ctx context.Context, r uow.Repos, operator, from, to, contract common.Address, tokenID u256.Int) error {
	if to == (common.Address{}) {
		return nft.ErrZeroRecipient
	}
	tok, err := r.Tokens.Get(ctx, contract, tokenID)
	if err != nil {
		return err
	}
	if tok.Owner != from {
		return nft.ErrNotTokenOwner
	}
	if operator != from && tok.Approved != operator {
		ok, err := r.Tokens.IsOperator(ctx, contract, from, operator)
		if err != nil {
			return err
		}
		if !ok {
			return nft.ErrNotApproved
		}
	}
	if tok.Frozen {
		return nft.ErrTransferBlocked
	}
	tok.Owner = to
	tok.Approved = common.Address{}
	return r.Tokens.Save(ctx, tok)
}
