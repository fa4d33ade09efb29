package uow

import (
	"context"

	"nftlend-backend/internal/domain/account"
	"nftlend-backend/internal/domain/admin"
	"nftlend-backend/internal/domain/collateral"
	"nftlend-backend/internal/domain/event"
	"nftlend-backend/internal/domain/loan"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/internal/domain/proposal"
	"nftlend-backend/internal/domain/vault"
)

// Repos is the set of repositories bound to one transaction.
type Repos struct {
	Proposals  proposal.Repository
	Loans      loan.Repository
	Collateral collateral.Repository
	Vault      vault.Repository
	Accounts   account.Repository
	Tokens     nft.Repository
	Events     event.Repository
	Admin      admin.Repository

	// Tx opens nested scopes (savepoints) inside the current transaction.
	// A failing nested scope rolls back only its own writes.
	Tx UnitOfWork
}

type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// WithinLoanTx locks the loan row first, then passes it in.
	WithinLoanTx(ctx context.Context, loanID uint64, fn func(r Repos, l *loan.Loan) error) error
}
