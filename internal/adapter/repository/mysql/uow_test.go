package mysql

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"nftlend-backend/internal/domain/account"
	loanDomain "nftlend-backend/internal/domain/loan"
	"nftlend-backend/internal/domain/uow"
	"nftlend-backend/internal/infrastructure/db"
	"nftlend-backend/pkg/u256"
)

var (
	borrower = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	lender   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	punks    = common.HexToAddress("0x00000000000000000000000000000000000000e1")
)

// openTestDB migrates every table into a single-connection sqlite :memory:.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return gdb
}

func makeLoan() *loanDomain.Loan {
	return &loanDomain.Loan{
		Borrower:     borrower,
		Lender:       lender,
		Principal:    u256.MustParse("1000000000000000000"),
		StartTime:    1_700_000_000,
		Duration:     86400,
		InterestRate: 500,
		Active:       true,
	}
}

func TestGormUoW_WithinTx_Commit(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	guow := NewGormUoW(gdb)

	var id uint64
	err := guow.WithinTx(ctx, func(r uow.Repos) error {
		l := makeLoan()
		if err := r.Loans.Create(ctx, l); err != nil {
			return err
		}
		if l.ID == 0 {
			t.Fatalf("loan auto ID not set")
		}
		id = l.ID
		return r.Accounts.Save(ctx, &account.Account{Address: borrower, Balance: u256.New(5)})
	})
	if err != nil {
		t.Fatalf("WithinTx commit err: %v", err)
	}

	repos := Repos(gdb)
	if _, err := repos.Loans.Get(ctx, id); err != nil {
		t.Fatalf("loan not visible after commit: %v", err)
	}
	acc, err := repos.Accounts.Get(ctx, borrower)
	if err != nil || !acc.Balance.Eq(u256.New(5)) {
		t.Fatalf("account after commit = %+v, %v", acc, err)
	}
}

func TestGormUoW_WithinTx_Rollback(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	guow := NewGormUoW(gdb)
	sentinel := errors.New("boom")

	var id uint64
	err := guow.WithinTx(ctx, func(r uow.Repos) error {
		l := makeLoan()
		if err := r.Loans.Create(ctx, l); err != nil {
			return err
		}
		id = l.ID
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("want sentinel, got %v", err)
	}
	if _, err := Repos(gdb).Loans.Get(ctx, id); !errors.Is(err, loanDomain.ErrNotFound) {
		t.Fatalf("expected loan not found after rollback, got %v", err)
	}
}

func TestGormUoW_NestedTxIsSavepoint(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	guow := NewGormUoW(gdb)

	err := guow.WithinTx(ctx, func(r uow.Repos) error {
		if err := r.Accounts.Save(ctx, &account.Account{Address: borrower, Balance: u256.New(1)}); err != nil {
			return err
		}
		inner := r.Tx.WithinTx(ctx, func(r uow.Repos) error {
			if err := r.Accounts.Save(ctx, &account.Account{Address: lender, Balance: u256.New(2)}); err != nil {
				return err
			}
			return errors.New("inner failure")
		})
		if inner == nil {
			t.Fatalf("inner error swallowed")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("outer tx: %v", err)
	}

	repos := Repos(gdb)
	if acc, _ := repos.Accounts.Get(ctx, borrower); !acc.Balance.Eq(u256.New(1)) {
		t.Fatalf("outer write lost: %s", acc.Balance)
	}
	if acc, _ := repos.Accounts.Get(ctx, lender); !acc.Balance.IsZero() {
		t.Fatalf("savepoint write survived rollback: %s", acc.Balance)
	}
}

func TestGormUoW_WithinLoanTx(t *testing.T) {
	gdb := openTestDB(t)
	ctx := context.Background()
	guow := NewGormUoW(gdb)

	seed := makeLoan()
	if err := Repos(gdb).Loans.Create(ctx, seed); err != nil {
		t.Fatalf("seed loan: %v", err)
	}

	if err := guow.WithinLoanTx(ctx, seed.ID, func(r uow.Repos, l *loanDomain.Loan) error {
		if l == nil || l.ID != seed.ID || !l.Active {
			t.Fatalf("unexpected loan passed to fn: %+v", l)
		}
		l.Active = false
		l.RepaidAt = 1_700_000_100
		return r.Loans.Save(ctx, l)
	}); err != nil {
		t.Fatalf("WithinLoanTx commit err: %v", err)
	}
	got, err := Repos(gdb).Loans.Get(ctx, seed.ID)
	if err != nil || got.Active || got.RepaidAt != 1_700_000_100 {
		t.Fatalf("loan after commit = %+v, %v", got, err)
	}

	err = guow.WithinLoanTx(ctx, seed.ID, func(r uow.Repos, l *loanDomain.Loan) error {
		l.Liquidated = true
		if err := r.Loans.Save(ctx, l); err != nil {
			return err
		}
		return errors.New("stop")
	})
	if err == nil {
		t.Fatalf("expected callback error")
	}
	if got, _ := Repos(gdb).Loans.Get(ctx, seed.ID); got.Liquidated {
		t.Fatalf("rolled back change persisted")
	}
}

func TestGormUoW_WithinLoanTx_LoanNotFound(t *testing.T) {
	gdb := openTestDB(t)
	err := NewGormUoW(gdb).WithinLoanTx(context.Background(), 404, func(uow.Repos, *loanDomain.Loan) error {
		t.Fatalf("callback should not be called when loan missing")
		return nil
	})
	if !errors.Is(err, loanDomain.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
