package vault

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/internal/adapter/repository/mysql"
	"nftlend-backend/internal/domain/account"
	"nftlend-backend/internal/domain/admin"
	"nftlend-backend/internal/domain/loan"
	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/domain/protocol"
	"nftlend-backend/internal/domain/uow"
	domain "nftlend-backend/internal/domain/vault"
	"nftlend-backend/internal/testutil/testdb"
	"nftlend-backend/internal/usecase/guard"
	"nftlend-backend/pkg/u256"
)

var (
	owner    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	borrower = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	lender   = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	ether    = u256.MustParse("1000000000000000000")
)

type env struct {
	chain *testdb.Chain
	clock *testdb.Clock
	addrs protocol.Addresses
	uc    *Usecase
	loan  *loan.Loan
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gdb := testdb.Open(t)
	chain := testdb.NewChain(t, gdb)
	chain.InitAdmin(owner)
	clock := testdb.NewClock(1_700_000_000)
	addrs := protocol.DefaultAddresses()

	l := &loan.Loan{
		Borrower:     borrower,
		Lender:       lender,
		Principal:    ether,
		StartTime:    clock.Now(),
		Duration:     30 * 24 * 3600,
		InterestRate: 1000,
		Active:       true,
	}
	if err := chain.R.Loans.Create(context.Background(), l); err != nil {
		t.Fatalf("create loan: %v", err)
	}

	uc := NewUsecase(mysql.NewGormUoW(gdb), guard.NewMutexLocker(), addrs)
	uc.SetNowFunc(clock.Now)
	uc.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &env{chain: chain, clock: clock, addrs: addrs, uc: uc, loan: l}
}

func TestDeposit_CreditsPoolAndCustody(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.chain.Fund(lender, ether)

	bal, err := e.uc.Deposit(ctx, msg.WithValue(lender, ether), e.loan.ID)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if !bal.Balance.Eq(ether) {
		t.Fatalf("balance = %s", bal.Balance)
	}
	if !e.chain.Balance(e.addrs.Vault).Eq(ether) || !e.chain.Balance(lender).IsZero() {
		t.Fatalf("custody not moved: vault=%s lender=%s", e.chain.Balance(e.addrs.Vault), e.chain.Balance(lender))
	}
	entries, err := e.uc.Entries(ctx, e.loan.ID)
	if err != nil || len(entries) != 1 || entries[0].Kind != domain.EntryDeposit || entries[0].Actor != lender {
		t.Fatalf("entries = %+v, %v", entries, err)
	}
	if got := e.chain.Events("vault.deposit"); len(got) != 1 {
		t.Fatalf("deposit events = %d", len(got))
	}
}

func TestDeposit_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	if _, err := e.uc.Deposit(ctx, msg.From(lender), e.loan.ID); !errors.Is(err, domain.ErrZeroDeposit) {
		t.Fatalf("zero: want ErrZeroDeposit, got %v", err)
	}
	if _, err := e.uc.Deposit(ctx, msg.WithValue(lender, ether), 999); !errors.Is(err, domain.ErrLoanNotFound) {
		t.Fatalf("unknown loan: want ErrLoanNotFound, got %v", err)
	}
	if _, err := e.uc.Deposit(ctx, msg.WithValue(lender, ether), e.loan.ID); !errors.Is(err, account.ErrInsufficientBalance) {
		t.Fatalf("unfunded: want ErrInsufficientBalance, got %v", err)
	}
	e.chain.SetPaused(true)
	e.chain.Fund(lender, ether)
	if _, err := e.uc.Deposit(ctx, msg.WithValue(lender, ether), e.loan.ID); !errors.Is(err, admin.ErrPaused) {
		t.Fatalf("paused: want ErrPaused, got %v", err)
	}
	bal, err := e.uc.Balance(ctx, e.loan.ID)
	if err != nil || !bal.Balance.IsZero() {
		t.Fatalf("balance after rejections = %+v, %v", bal, err)
	}
}

func TestWithdraw_Authorization(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.chain.Fund(lender, ether)
	if _, err := e.uc.Deposit(ctx, msg.WithValue(lender, ether), e.loan.ID); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	half := u256.MustParse("500000000000000000")

	tests := []struct {
		name   string
		caller common.Address
		amount u256.Int
		want   error
	}{
		{"lender on active loan", lender, half, domain.ErrUnauthorizedWithdraw},
		{"owner on active loan", owner, half, domain.ErrUnauthorizedWithdraw},
		{"zero amount", borrower, u256.Zero, domain.ErrZeroWithdraw},
		{"more than pool", borrower, u256.MustParse("2000000000000000000"), domain.ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.uc.Withdraw(ctx, msg.From(tt.caller), e.loan.ID, tt.amount); !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
		})
	}

	bal, err := e.uc.Withdraw(ctx, msg.From(borrower), e.loan.ID, half)
	if err != nil {
		t.Fatalf("borrower Withdraw: %v", err)
	}
	if !bal.Balance.Eq(half) || !e.chain.Balance(borrower).Eq(half) {
		t.Fatalf("after withdraw: pool=%s borrower=%s", bal.Balance, e.chain.Balance(borrower))
	}

	// once the loan closes only the owner may sweep the rest
	e.loan.Active = false
	if err := e.chain.R.Loans.Save(ctx, e.loan); err != nil {
		t.Fatalf("save loan: %v", err)
	}
	if _, err := e.uc.Withdraw(ctx, msg.From(borrower), e.loan.ID, half); !errors.Is(err, domain.ErrUnauthorizedWithdraw) {
		t.Fatalf("borrower after close: want ErrUnauthorizedWithdraw, got %v", err)
	}
	if _, err := e.uc.Withdraw(ctx, msg.From(owner), e.loan.ID, half); err != nil {
		t.Fatalf("owner Withdraw: %v", err)
	}
	if !e.chain.Balance(e.addrs.Vault).IsZero() || !e.chain.Balance(owner).Eq(half) {
		t.Fatalf("vault=%s owner=%s", e.chain.Balance(e.addrs.Vault), e.chain.Balance(owner))
	}
}

func TestWithdraw_FailedPayoutRollsBack(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.chain.Fund(lender, ether)
	if _, err := e.uc.Deposit(ctx, msg.WithValue(lender, ether), e.loan.ID); err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	e.chain.RejectPayments(borrower, true)

	if _, err := e.uc.Withdraw(ctx, msg.From(borrower), e.loan.ID, ether); !errors.Is(err, account.ErrPaymentRejected) {
		t.Fatalf("want ErrPaymentRejected, got %v", err)
	}
	bal, _ := e.uc.Balance(ctx, e.loan.ID)
	if !bal.Balance.Eq(ether) {
		t.Fatalf("pool debited despite failed payout: %s", bal.Balance)
	}
	entries, _ := e.uc.Entries(ctx, e.loan.ID)
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want only the deposit", len(entries))
	}
}

func TestEmergencyWithdraw(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.chain.Fund(lender, ether)
	if _, err := e.uc.Deposit(ctx, msg.WithValue(lender, ether), e.loan.ID); err != nil {
		t.Fatalf("Deposit: %v", err)
	}

	if _, err := e.uc.EmergencyWithdraw(ctx, msg.From(owner), e.loan.ID, ether); !errors.Is(err, admin.ErrNotPaused) {
		t.Fatalf("unpaused: want ErrNotPaused, got %v", err)
	}
	e.chain.SetPaused(true)
	if _, err := e.uc.EmergencyWithdraw(ctx, msg.From(borrower), e.loan.ID, ether); !errors.Is(err, admin.ErrNotOwner) {
		t.Fatalf("borrower: want ErrNotOwner, got %v", err)
	}
	// regular withdrawals stop while paused
	if _, err := e.uc.Withdraw(ctx, msg.From(borrower), e.loan.ID, ether); !errors.Is(err, admin.ErrPaused) {
		t.Fatalf("paused withdraw: want ErrPaused, got %v", err)
	}

	bal, err := e.uc.EmergencyWithdraw(ctx, msg.From(owner), e.loan.ID, ether)
	if err != nil {
		t.Fatalf("EmergencyWithdraw: %v", err)
	}
	if !bal.Balance.IsZero() || !e.chain.Balance(owner).Eq(ether) {
		t.Fatalf("pool=%s owner=%s", bal.Balance, e.chain.Balance(owner))
	}
	entries, _ := e.uc.Entries(ctx, e.loan.ID)
	if len(entries) != 2 || entries[1].Kind != domain.EntryEmergency {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestCalculateInterest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	// minimum interest applies right after creation
	got, err := e.uc.CalculateInterest(ctx, e.loan.ID)
	if err != nil {
		t.Fatalf("CalculateInterest: %v", err)
	}
	if want := u256.MustParse("5000000000000000"); !got.Eq(want) {
		t.Fatalf("minimum interest = %s, want %s", got, want)
	}

	e.clock.Advance(30 * 24 * 3600)
	got, _ = e.uc.CalculateInterest(ctx, e.loan.ID)
	if want := u256.MustParse("8219178082191780"); !got.Eq(want) {
		t.Fatalf("30d interest = %s, want %s", got, want)
	}

	// accrual stops at the deadline
	e.clock.Advance(365 * 24 * 3600)
	late, _ := e.uc.CalculateInterest(ctx, e.loan.ID)
	if !late.Eq(got) {
		t.Fatalf("interest past deadline = %s, want %s", late, got)
	}

	if _, err := e.uc.CalculateInterest(ctx, 999); !errors.Is(err, domain.ErrLoanNotFound) {
		t.Fatalf("unknown loan: want ErrLoanNotFound, got %v", err)
	}
}

func TestProcessInterestPayment_OnlyLoanEngine(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tx := mysql.NewGormUoW(e.chain.DB)
	interest := u256.New(42)

	err := tx.WithinTx(ctx, func(r uow.Repos) error {
		return e.uc.ProcessInterestPaymentWith(ctx, r, msg.From(owner), e.loan.ID, interest)
	})
	if !errors.Is(err, domain.ErrOnlyLoanEngine) {
		t.Fatalf("owner: want ErrOnlyLoanEngine, got %v", err)
	}
	for i := 0; i < 2; i++ {
		err = tx.WithinTx(ctx, func(r uow.Repos) error {
			return e.uc.ProcessInterestPaymentWith(ctx, r, msg.From(e.addrs.LoanEngine), e.loan.ID, interest)
		})
		if err != nil {
			t.Fatalf("ProcessInterestPaymentWith: %v", err)
		}
	}
	bal, _ := e.uc.Balance(ctx, e.loan.ID)
	if !bal.InterestAccrued.Eq(u256.New(84)) || !bal.Balance.IsZero() {
		t.Fatalf("balance = %+v", bal)
	}
}
