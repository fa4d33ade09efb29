package ledger

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/internal/domain/account"
	"nftlend-backend/internal/domain/collateral"
	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/internal/domain/protocol"
	"nftlend-backend/internal/domain/uow"
	"nftlend-backend/internal/usecase/guard"
	"nftlend-backend/pkg/u256"
)

// Usecase exposes the chain ledger to local deployments: faucet, minting and
// the ERC-721 style approval calls users make before borrowing. Custody
// accounts of the protocol can never be the caller.
type Usecase struct {
	uow   uow.UnitOfWork
	lock  guard.Locker
	addrs protocol.Addresses
}

func NewUsecase(tx uow.UnitOfWork, lock guard.Locker, addrs protocol.Addresses) *Usecase {
	return &Usecase{uow: tx, lock: lock, addrs: addrs}
}

// requireExternal rejects callers that are component or escrow custody
// accounts. Nobody holds a key for those.
func (u *Usecase) requireExternal(ctx context.Context, r uow.Repos, caller common.Address) error {
	if u.addrs.IsComponent(caller) {
		return account.ErrCustodyCaller
	}
	_, err := r.Collateral.GetEscrowByAddress(ctx, caller)
	switch {
	case err == nil:
		return account.ErrCustodyCaller
	case errors.Is(err, collateral.ErrEscrowNotFound):
		return nil
	default:
		return err
	}
}

func requireOwner(ctx context.Context, r uow.Repos, caller common.Address) error {
	st, err := r.Admin.Get(ctx)
	if err != nil {
		return err
	}
	return st.RequireOwner(caller)
}

// Credit mints native currency to addr. Owner only.
func (u *Usecase) Credit(ctx context.Context, call msg.Call, addr common.Address, amount u256.Int) (*account.Account, error) {
	var out *account.Account
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := requireOwner(ctx, r, call.From); err != nil {
			return err
		}
		if addr == (common.Address{}) {
			return account.ErrZeroAddress
		}
		acc, err := r.Accounts.Get(ctx, addr)
		if err != nil {
			return err
		}
		if acc.Balance, err = acc.Balance.Add(amount); err != nil {
			return err
		}
		out = acc
		return r.Accounts.Save(ctx, acc)
	})
	return out, err
}

// Send is a plain value transfer from the caller.
func (u *Usecase) Send(ctx context.Context, call msg.Call, to common.Address, amount u256.Int) error {
	return guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := u.requireExternal(ctx, r, call.From); err != nil {
			return err
		}
		return Transfer(ctx, r, call.From, to, amount)
	})
}

// SetRejectsPayments makes addr refuse incoming transfers. Owner only.
func (u *Usecase) SetRejectsPayments(ctx context.Context, call msg.Call, addr common.Address, rejects bool) error {
	return guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := requireOwner(ctx, r, call.From); err != nil {
			return err
		}
		acc, err := r.Accounts.Get(ctx, addr)
		if err != nil {
			return err
		}
		acc.RejectsPayments = rejects
		return r.Accounts.Save(ctx, acc)
	})
}

// Mint creates a token owned by to. Owner only.
func (u *Usecase) Mint(ctx context.Context, call msg.Call, contract common.Address, tokenID u256.Int, to common.Address) (*nft.Token, error) {
	var out *nft.Token
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := requireOwner(ctx, r, call.From); err != nil {
			return err
		}
		if to == (common.Address{}) {
			return nft.ErrZeroRecipient
		}
		_, err := r.Tokens.Get(ctx, contract, tokenID)
		switch {
		case err == nil:
			return nft.ErrTokenExists
		case !errors.Is(err, nft.ErrTokenNotFound):
			return err
		}
		out = &nft.Token{Contract: contract, TokenID: tokenID, Owner: to}
		return r.Tokens.Save(ctx, out)
	})
	return out, err
}

// Approve sets the single approved address of a token. Caller must be the
// owner or one of its operators.
func (u *Usecase) Approve(ctx context.Context, call msg.Call, contract common.Address, tokenID u256.Int, approved common.Address) error {
	return guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := u.requireExternal(ctx, r, call.From); err != nil {
			return err
		}
		tok, err := r.Tokens.Get(ctx, contract, tokenID)
		if err != nil {
			return err
		}
		if tok.Owner != call.From {
			ok, err := r.Tokens.IsOperator(ctx, contract, tok.Owner, call.From)
			if err != nil {
				return err
			}
			if !ok {
				return nft.ErrNotTokenOwner
			}
		}
		tok.Approved = approved
		return r.Tokens.Save(ctx, tok)
	})
}

func (u *Usecase) SetApprovalForAll(ctx context.Context, call msg.Call, contract, operator common.Address, approved bool) error {
	return guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := u.requireExternal(ctx, r, call.From); err != nil {
			return err
		}
		return r.Tokens.SetOperator(ctx, &nft.OperatorApproval{
			Contract: contract,
			Owner:    call.From,
			Operator: operator,
			Approved: approved,
		})
	})
}

// TransferToken moves a token from its current owner to to.
func (u *Usecase) TransferToken(ctx context.Context, call msg.Call, contract common.Address, tokenID u256.Int, to common.Address) error {
	return guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := u.requireExternal(ctx, r, call.From); err != nil {
			return err
		}
		tok, err := r.Tokens.Get(ctx, contract, tokenID)
		if err != nil {
			return err
		}
		return TransferNFT(ctx, r, call.From, tok.Owner, to, contract, tokenID)
	})
}

// Freeze makes every transfer of the token revert. Owner only.
func (u *Usecase) Freeze(ctx context.Context, call msg.Call, contract common.Address, tokenID u256.Int, frozen bool) error {
	return guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := requireOwner(ctx, r, call.From); err != nil {
			return err
		}
		tok, err := r.Tokens.Get(ctx, contract, tokenID)
		if err != nil {
			return err
		}
		tok.Frozen = frozen
		return r.Tokens.Save(ctx, tok)
	})
}

func (u *Usecase) Account(ctx context.Context, addr common.Address) (*account.Account, error) {
	var out *account.Account
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		out, err = r.Accounts.Get(ctx, addr)
		return err
	})
	return out, err
}

func (u *Usecase) Token(ctx context.Context, contract common.Address, tokenID u256.Int) (*nft.Token, error) {
	var out *nft.Token
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		out, err = r.Tokens.Get(ctx, contract, tokenID)
		return err
	})
	return out, err
}
