package uowmock

import (
	"context"
	"errors"

	"nftlend-backend/internal/domain/loan"
	"nftlend-backend/internal/domain/uow"
)

// Ensure compile-time compliance
var _ uow.UnitOfWork = (*UoW)(nil)

var errUnimplemented = errors.New("uowmock: method not implemented")

// UoW is a function-backed mock that satisfies uow.UnitOfWork.
// Fill in the function fields you need in a test; unfilled ones return errUnimplemented.
type UoW struct {
	WithinTxFn     func(ctx context.Context, fn func(r uow.Repos) error) error
	WithinLoanTxFn func(ctx context.Context, loanID uint64, fn func(r uow.Repos, l *loan.Loan) error) error
}

func New() *UoW { return &UoW{} }

// Passthrough runs every scope directly against repos, with m as the nested
// scope opener. Loans are fetched from repos.Loans.
func Passthrough(repos uow.Repos) *UoW {
	m := &UoW{}
	repos.Tx = m
	m.WithinTxFn = func(_ context.Context, fn func(uow.Repos) error) error { return fn(repos) }
	m.WithinLoanTxFn = func(ctx context.Context, loanID uint64, fn func(uow.Repos, *loan.Loan) error) error {
		l, err := repos.Loans.GetForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		return fn(repos, l)
	}
	return m
}

func (m *UoW) WithWithinTx(fn func(context.Context, func(uow.Repos) error) error) *UoW {
	m.WithinTxFn = fn
	return m
}
func (m *UoW) WithWithinLoanTx(fn func(context.Context, uint64, func(uow.Repos, *loan.Loan) error) error) *UoW {
	m.WithinLoanTxFn = fn
	return m
}
func (m *UoW) Reset() { *m = UoW{} }

func (m *UoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	if m.WithinTxFn != nil {
		return m.WithinTxFn(ctx, fn)
	}
	return errUnimplemented
}
func (m *UoW) WithinLoanTx(ctx context.Context, loanID uint64, fn func(r uow.Repos, l *loan.Loan) error) error {
	if m.WithinLoanTxFn != nil {
		return m.WithinLoanTxFn(ctx, loanID, fn)
	}
	return errUnimplemented
}
