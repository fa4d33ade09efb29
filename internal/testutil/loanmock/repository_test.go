package loanmock

import (
	"context"
	"errors"
	"testing"

	domain "nftlend-backend/internal/domain/loan"
)

func TestRepo_Create(t *testing.T) {
	ctx := context.Background()
	l := &domain.Loan{ID: 1}

	wantErr := errors.New("boom")
	m := &Repo{
		CreateFn: func(gotCtx context.Context, got *domain.Loan) error {
			if gotCtx != ctx || got != l {
				t.Fatalf("Create arg mismatch")
			}
			return wantErr
		},
	}
	if err := m.Create(ctx, l); !errors.Is(err, wantErr) {
		t.Fatalf("Create: want %v, got %v", wantErr, err)
	}
	if err := (&Repo{}).Create(ctx, l); err != nil {
		t.Fatalf("Create default: want nil, got %v", err)
	}
}

func TestRepo_Get(t *testing.T) {
	ctx := context.Background()
	want := &domain.Loan{ID: 2}
	m := &Repo{
		GetFn: func(_ context.Context, id uint64) (*domain.Loan, error) {
			if id != 2 {
				t.Fatalf("Get id mismatch: got %d", id)
			}
			return want, nil
		},
	}
	got, err := m.Get(ctx, 2)
	if err != nil || got != want {
		t.Fatalf("Get: got %+v, %v", got, err)
	}
	// GetForUpdate falls back to GetFn
	if got, err = m.GetForUpdate(ctx, 2); err != nil || got != want {
		t.Fatalf("GetForUpdate: got %+v, %v", got, err)
	}

	if _, err := (&Repo{}).Get(ctx, 2); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get default: want ErrNotFound, got %v", err)
	}
}

func TestRepo_Collateral(t *testing.T) {
	ctx := context.Background()
	var stored []domain.Collateral
	m := &Repo{
		AddCollateralFn: func(_ context.Context, items []domain.Collateral) error {
			stored = append(stored, items...)
			return nil
		},
		ListCollateralFn: func(_ context.Context, loanID uint64) ([]domain.Collateral, error) {
			return stored, nil
		},
	}
	if err := m.AddCollateral(ctx, []domain.Collateral{{LoanID: 3}, {LoanID: 3, Position: 1}}); err != nil {
		t.Fatalf("AddCollateral: %v", err)
	}
	got, err := m.ListCollateral(ctx, 3)
	if err != nil || len(got) != 2 {
		t.Fatalf("ListCollateral: got %d items, %v", len(got), err)
	}
	if got, _ := (&Repo{}).ListCollateral(ctx, 3); got != nil {
		t.Fatalf("ListCollateral default: want nil, got %+v", got)
	}
}
