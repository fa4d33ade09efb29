package uowmock

import (
	"context"
	"errors"
	"testing"

	"nftlend-backend/internal/domain/loan"
	"nftlend-backend/internal/domain/uow"
	"nftlend-backend/internal/testutil/loanmock"
	"nftlend-backend/internal/testutil/proposalmock"
)

func TestUoW_WithinTx_Forwards(t *testing.T) {
	ctx := context.Background()
	loans := &loanmock.Repo{}
	props := &proposalmock.Repo{}
	repos := uow.Repos{Loans: loans, Proposals: props}

	innerCalled := false
	m := &UoW{
		WithinTxFn: func(gotCtx context.Context, fn func(r uow.Repos) error) error {
			if gotCtx != ctx {
				t.Fatalf("WithinTx: ctx mismatch")
			}
			return fn(repos)
		},
	}
	err := m.WithinTx(ctx, func(r uow.Repos) error {
		innerCalled = true
		if r.Loans != loans || r.Proposals != props {
			t.Fatalf("WithinTx: repos not forwarded correctly")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithinTx: unexpected err: %v", err)
	}
	if !innerCalled {
		t.Fatalf("WithinTx: inner fn not called")
	}
}

func TestUoW_Defaults_Unimplemented(t *testing.T) {
	ctx := context.Background()
	m := New()
	if err := m.WithinTx(ctx, func(uow.Repos) error { return nil }); !errors.Is(err, errUnimplemented) {
		t.Fatalf("WithinTx default: want errUnimplemented, got %v", err)
	}
	if err := m.WithinLoanTx(ctx, 1, func(uow.Repos, *loan.Loan) error { return nil }); !errors.Is(err, errUnimplemented) {
		t.Fatalf("WithinLoanTx default: want errUnimplemented, got %v", err)
	}
}

func TestPassthrough(t *testing.T) {
	ctx := context.Background()
	want := &loan.Loan{ID: 7}
	loans := &loanmock.Repo{
		GetForUpdateFn: func(_ context.Context, id uint64) (*loan.Loan, error) {
			if id != 7 {
				return nil, loan.ErrNotFound
			}
			return want, nil
		},
	}
	m := Passthrough(uow.Repos{Loans: loans})

	err := m.WithinLoanTx(ctx, 7, func(r uow.Repos, l *loan.Loan) error {
		if l != want {
			t.Fatalf("WithinLoanTx: loan not forwarded: %+v", l)
		}
		if r.Tx != m {
			t.Fatalf("WithinLoanTx: nested scope should reuse the mock")
		}
		return r.Tx.WithinTx(ctx, func(uow.Repos) error { return nil })
	})
	if err != nil {
		t.Fatalf("WithinLoanTx: unexpected err: %v", err)
	}
	if err := m.WithinLoanTx(ctx, 8, func(uow.Repos, *loan.Loan) error { return nil }); !errors.Is(err, loan.ErrNotFound) {
		t.Fatalf("WithinLoanTx missing loan: want ErrNotFound, got %v", err)
	}
}

func TestUoW_FluentSetters_And_Reset(t *testing.T) {
	m := New()
	m.WithWithinTx(func(context.Context, func(uow.Repos) error) error { return nil }).
		WithWithinLoanTx(func(context.Context, uint64, func(uow.Repos, *loan.Loan) error) error { return nil })
	if m.WithinTxFn == nil || m.WithinLoanTxFn == nil {
		t.Fatalf("fluent setters didn't assign funcs")
	}
	m.Reset()
	if m.WithinTxFn != nil || m.WithinLoanTxFn != nil {
		t.Fatalf("Reset should clear function fields")
	}
}
