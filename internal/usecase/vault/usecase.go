// Package vault keeps the per-loan holding pool: principal deposited at loan
// creation, rerouted payments, interest accounting and emergency recovery.
package vault

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/internal/domain/event"
	"nftlend-backend/internal/domain/loan"
	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/domain/protocol"
	"nftlend-backend/internal/domain/uow"
	domain "nftlend-backend/internal/domain/vault"
	"nftlend-backend/internal/observability/metrics"
	"nftlend-backend/internal/usecase/guard"
	"nftlend-backend/internal/usecase/ledger"
	"nftlend-backend/pkg/u256"
)

type Usecase struct {
	uow     uow.UnitOfWork
	lock    guard.Locker
	addrs   protocol.Addresses
	now     protocol.Clock
	log     *slog.Logger
	metrics *metrics.LendingMetrics
}

func NewUsecase(tx uow.UnitOfWork, lock guard.Locker, addrs protocol.Addresses) *Usecase {
	return &Usecase{
		uow:     tx,
		lock:    lock,
		addrs:   addrs,
		now:     protocol.SystemClock,
		log:     slog.Default(),
		metrics: metrics.Lending(),
	}
}

// SetNowFunc overrides the block clock.
func (u *Usecase) SetNowFunc(now protocol.Clock) {
	if now != nil {
		u.now = now
	}
}

func (u *Usecase) SetLogger(l *slog.Logger) { u.log = l }

func (u *Usecase) getLoan(ctx context.Context, r uow.Repos, loanID uint64) (*loan.Loan, error) {
	l, err := r.Loans.Get(ctx, loanID)
	if errors.Is(err, loan.ErrNotFound) {
		return nil, domain.ErrLoanNotFound
	}
	return l, err
}

// Deposit credits the attached value to a loan's pool.
func (u *Usecase) Deposit(ctx context.Context, call msg.Call, loanID uint64) (*domain.Balance, error) {
	var out *domain.Balance
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		st, err := r.Admin.Get(ctx)
		if err != nil {
			return err
		}
		if err := st.WhenNotPaused(); err != nil {
			return err
		}
		out, err = u.DepositWith(ctx, r, call, loanID, "")
		return err
	})
	u.metrics.ObserveOperation("vault_deposit", err)
	return out, err
}

// DepositWith moves call.Value into the vault and books it to loanID. It is
// also the fallback destination of rerouted payments, so it ignores pause.
func (u *Usecase) DepositWith(ctx context.Context, r uow.Repos, call msg.Call, loanID uint64, memo string) (*domain.Balance, error) {
	if call.Value.IsZero() {
		return nil, domain.ErrZeroDeposit
	}
	if _, err := u.getLoan(ctx, r, loanID); err != nil {
		return nil, err
	}
	if err := ledger.Collect(ctx, r, call, u.addrs.Vault); err != nil {
		return nil, err
	}
	bal, err := r.Vault.GetBalance(ctx, loanID)
	if err != nil {
		return nil, err
	}
	credit := bal.Credit
	if domain.IsRerouted(memo) {
		credit = bal.CreditRerouted
	}
	if err := credit(call.Value); err != nil {
		return nil, err
	}
	if err := r.Vault.SaveBalance(ctx, bal); err != nil {
		return nil, err
	}
	if err := r.Vault.AddEntry(ctx, &domain.Entry{
		LoanID: loanID,
		Kind:   domain.EntryDeposit,
		Amount: call.Value,
		Actor:  call.From,
		Memo:   memo,
	}); err != nil {
		return nil, err
	}
	return bal, r.Events.Create(ctx, event.New(event.TypeVaultDeposit,
		"from", call.From.Hex(),
		"amount", call.Value.String(),
		"memo", memo,
	).ForLoan(loanID))
}

// Withdraw pays amount out of a loan's pool to the caller. The borrower may
// withdraw the non-rerouted part while the loan is active and not
// liquidated. The owner may withdraw everything once the loan is closed, and
// the rerouted part of a partially repaid loan.
func (u *Usecase) Withdraw(ctx context.Context, call msg.Call, loanID uint64, amount u256.Int) (*domain.Balance, error) {
	var out *domain.Balance
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := call.RequireNoValue(); err != nil {
			return err
		}
		st, err := r.Admin.Get(ctx)
		if err != nil {
			return err
		}
		if err := st.WhenNotPaused(); err != nil {
			return err
		}
		if amount.IsZero() {
			return domain.ErrZeroWithdraw
		}
		l, err := u.getLoan(ctx, r, loanID)
		if err != nil {
			return err
		}
		var take func(*domain.Balance, u256.Int) error
		open := l.Active && !l.Liquidated
		switch {
		case open && call.From == l.Borrower:
			take = (*domain.Balance).DebitAvailable
		case open && l.PartiallyRepaid && st.IsOwner(call.From):
			take = (*domain.Balance).DebitRerouted
		case !open && st.IsOwner(call.From):
			take = (*domain.Balance).Debit
		default:
			return domain.ErrUnauthorizedWithdraw
		}
		out, err = u.debit(ctx, r, loanID, amount, call.From, domain.EntryWithdraw, take)
		if err != nil {
			return err
		}
		return r.Events.Create(ctx, event.New(event.TypeVaultWithdraw,
			"to", call.From.Hex(),
			"amount", amount.String(),
		).ForLoan(loanID))
	})
	u.metrics.ObserveOperation("vault_withdraw", err)
	return out, err
}

// EmergencyWithdraw lets the owner drain a loan's pool while paused,
// regardless of loan state.
func (u *Usecase) EmergencyWithdraw(ctx context.Context, call msg.Call, loanID uint64, amount u256.Int) (*domain.Balance, error) {
	var out *domain.Balance
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := call.RequireNoValue(); err != nil {
			return err
		}
		st, err := r.Admin.Get(ctx)
		if err != nil {
			return err
		}
		if err := st.RequireOwner(call.From); err != nil {
			return err
		}
		if err := st.WhenPaused(); err != nil {
			return err
		}
		if amount.IsZero() {
			return domain.ErrZeroWithdraw
		}
		out, err = u.debit(ctx, r, loanID, amount, call.From, domain.EntryEmergency, (*domain.Balance).Debit)
		if err != nil {
			return err
		}
		return r.Events.Create(ctx, event.New(event.TypeEmergencyWithdraw,
			"to", call.From.Hex(),
			"amount", amount.String(),
		).ForLoan(loanID))
	})
	if err == nil {
		u.log.WarnContext(ctx, "emergency withdrawal", "loan_id", loanID, "amount", amount.String(), "to", call.From.Hex())
	}
	return out, err
}

// debit books the withdrawal with take first, then pays out of vault custody.
func (u *Usecase) debit(ctx context.Context, r uow.Repos, loanID uint64, amount u256.Int, to common.Address, kind domain.EntryKind, take func(*domain.Balance, u256.Int) error) (*domain.Balance, error) {
	bal, err := r.Vault.GetBalance(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if err := take(bal, amount); err != nil {
		return nil, err
	}
	if err := r.Vault.SaveBalance(ctx, bal); err != nil {
		return nil, err
	}
	if err := r.Vault.AddEntry(ctx, &domain.Entry{LoanID: loanID, Kind: kind, Amount: amount, Actor: to}); err != nil {
		return nil, err
	}
	if err := ledger.Transfer(ctx, r, u.addrs.Vault, to, amount); err != nil {
		return nil, err
	}
	return bal, nil
}

// CalculateInterest applies the loan's terms to the time elapsed so far.
func (u *Usecase) CalculateInterest(ctx context.Context, loanID uint64) (u256.Int, error) {
	var out u256.Int
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		out, err = u.CalculateInterestWith(ctx, r, loanID)
		return err
	})
	return out, err
}

func (u *Usecase) CalculateInterestWith(ctx context.Context, r uow.Repos, loanID uint64) (u256.Int, error) {
	l, err := u.getLoan(ctx, r, loanID)
	if err != nil {
		return u256.Zero, err
	}
	return loan.SimulateInterest(l.Principal, l.InterestRate, u.now()-l.StartTime, l.Duration)
}

// ProcessInterestPaymentWith records interest settled on repayment. Only the
// loan engine calls it; no funds move here.
func (u *Usecase) ProcessInterestPaymentWith(ctx context.Context, r uow.Repos, call msg.Call, loanID uint64, interest u256.Int) error {
	if call.From != u.addrs.LoanEngine {
		return domain.ErrOnlyLoanEngine
	}
	bal, err := r.Vault.GetBalance(ctx, loanID)
	if err != nil {
		return err
	}
	if bal.InterestAccrued, err = bal.InterestAccrued.Add(interest); err != nil {
		return err
	}
	if err := r.Vault.SaveBalance(ctx, bal); err != nil {
		return err
	}
	if err := r.Vault.AddEntry(ctx, &domain.Entry{
		LoanID: loanID,
		Kind:   domain.EntryInterest,
		Amount: interest,
		Actor:  call.From,
	}); err != nil {
		return err
	}
	return r.Events.Create(ctx, event.New(event.TypeVaultInterest, "interest", interest.String()).ForLoan(loanID))
}

func (u *Usecase) Balance(ctx context.Context, loanID uint64) (*domain.Balance, error) {
	var out *domain.Balance
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		out, err = r.Vault.GetBalance(ctx, loanID)
		return err
	})
	return out, err
}

func (u *Usecase) Entries(ctx context.Context, loanID uint64) ([]domain.Entry, error) {
	var out []domain.Entry
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		out, err = r.Vault.ListEntries(ctx, loanID)
		return err
	})
	return out, err
}
