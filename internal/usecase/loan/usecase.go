// Package loan is the loan lifecycle engine: creation from accepted
// proposals, repayment with tolerated partial collateral release, and
// liquidation after the deadline.
package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/internal/domain/collateral"
	"nftlend-backend/internal/domain/event"
	domain "nftlend-backend/internal/domain/loan"
	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/internal/domain/protocol"
	"nftlend-backend/internal/domain/uow"
	"nftlend-backend/internal/domain/vault"
	"nftlend-backend/internal/observability/metrics"
	"nftlend-backend/internal/usecase/guard"
	"nftlend-backend/internal/usecase/ledger"
	"nftlend-backend/pkg/u256"
)

// Escrows is the part of the collateral manager the engine drives.
type Escrows interface {
	AddCollateralWith(ctx context.Context, r uow.Repos, call msg.Call, loanID uint64, item nft.Item, borrower, lender common.Address) (*collateral.Escrow, error)
	RemoveCollateralWith(ctx context.Context, r uow.Repos, call msg.Call, loanID uint64, item nft.Item, recipient common.Address) error
}

// Vault is the part of the vault the engine drives.
type Vault interface {
	DepositWith(ctx context.Context, r uow.Repos, call msg.Call, loanID uint64, memo string) (*vault.Balance, error)
	CalculateInterestWith(ctx context.Context, r uow.Repos, loanID uint64) (u256.Int, error)
	ProcessInterestPaymentWith(ctx context.Context, r uow.Repos, call msg.Call, loanID uint64, interest u256.Int) error
}

type Usecase struct {
	uow         uow.UnitOfWork
	lock        guard.Locker
	params      protocol.Params
	escrows     Escrows
	vault       Vault
	verifierFor func(r uow.Repos) nft.Verifier
	now         protocol.Clock
	log         *slog.Logger
	metrics     *metrics.LendingMetrics
}

func NewUsecase(tx uow.UnitOfWork, lock guard.Locker, params protocol.Params, escrows Escrows, v Vault) *Usecase {
	return &Usecase{
		uow:     tx,
		lock:    lock,
		params:  params,
		escrows: escrows,
		vault:   v,
		verifierFor: func(r uow.Repos) nft.Verifier {
			return ledger.NewVerifier(r, params.Addresses.CollateralManager)
		},
		now:     protocol.SystemClock,
		log:     slog.Default(),
		metrics: metrics.Lending(),
	}
}

func (u *Usecase) SetNowFunc(now protocol.Clock) {
	if now != nil {
		u.now = now
	}
}

func (u *Usecase) SetLogger(l *slog.Logger) { u.log = l }

func (u *Usecase) SetVerifierFactory(fn func(r uow.Repos) nft.Verifier) { u.verifierFor = fn }

func (u *Usecase) engine() common.Address { return u.params.Addresses.LoanEngine }

// CreateLoan is the direct creation path, restricted to the owner (the
// proposal engine goes through CreateLoanWith inside its own transaction).
func (u *Usecase) CreateLoan(ctx context.Context, call msg.Call, terms domain.Terms) (*LoanDTO, error) {
	var out *LoanDTO
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		l, err := u.CreateLoanWith(ctx, r, call, terms)
		if err != nil {
			return err
		}
		out, err = u.toDTO(ctx, r, l)
		return err
	})
	u.metrics.ObserveOperation("create_loan", err)
	return out, err
}

// CreateLoanWith records a loan, escrows every collateral item and deposits
// the principal (call.Value) into the vault. Any failure is fatal.
func (u *Usecase) CreateLoanWith(ctx context.Context, r uow.Repos, call msg.Call, terms domain.Terms) (*domain.Loan, error) {
	st, err := r.Admin.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.WhenNotPaused(); err != nil {
		return nil, err
	}
	if call.From != u.params.Addresses.ProposalEngine && !st.IsOwner(call.From) {
		return nil, domain.ErrUnauthorizedCreator
	}
	if err := u.validateTerms(terms); err != nil {
		return nil, err
	}
	if !call.Value.Eq(terms.Principal) {
		return nil, domain.ErrValueMismatch
	}

	v := u.verifierFor(r)
	for _, item := range terms.Collateral {
		owns, err := v.VerifyOwnership(ctx, terms.Borrower, item.Contract, item.TokenID)
		if err != nil {
			return nil, err
		}
		approved, err := v.CheckApproval(ctx, terms.Borrower, item.Contract, item.TokenID)
		if err != nil {
			return nil, err
		}
		if !owns || !approved {
			return nil, fmt.Errorf("%w: %s #%s", domain.ErrCollateralInvalid, item.Contract.Hex(), item.TokenID)
		}
	}

	l := &domain.Loan{
		ProposalID:   terms.ProposalID,
		Borrower:     terms.Borrower,
		Lender:       terms.Lender,
		Principal:    terms.Principal,
		StartTime:    u.now(),
		Duration:     terms.Duration,
		InterestRate: terms.InterestRate,
		Active:       true,
	}
	if err := r.Loans.Create(ctx, l); err != nil {
		return nil, err
	}
	rows := make([]domain.Collateral, 0, len(terms.Collateral))
	for i, item := range terms.Collateral {
		rows = append(rows, domain.Collateral{LoanID: l.ID, Position: i, Contract: item.Contract, TokenID: item.TokenID})
	}
	if err := r.Loans.AddCollateral(ctx, rows); err != nil {
		return nil, err
	}

	for _, item := range terms.Collateral {
		if _, err := u.escrows.AddCollateralWith(ctx, r, msg.From(u.engine()), l.ID, item, l.Borrower, l.Lender); err != nil {
			return nil, err
		}
	}
	if err := ledger.Collect(ctx, r, call, u.engine()); err != nil {
		return nil, err
	}
	if _, err := u.vault.DepositWith(ctx, r, msg.WithValue(u.engine(), l.Principal), l.ID, "principal"); err != nil {
		return nil, err
	}

	if err := r.Events.Create(ctx, event.New(event.TypeLoanCreated,
		"borrower", l.Borrower.Hex(),
		"lender", l.Lender.Hex(),
		"principal", l.Principal.String(),
		"duration", fmt.Sprint(l.Duration),
		"interest_rate", fmt.Sprint(l.InterestRate),
	).ForLoan(l.ID).ForProposal(l.ProposalID)); err != nil {
		return nil, err
	}
	u.log.InfoContext(ctx, "loan created", "loan_id", l.ID, "proposal_id", l.ProposalID, "principal", l.Principal.String())
	return l, nil
}

func (u *Usecase) validateTerms(t domain.Terms) error {
	switch {
	case t.Principal.IsZero():
		return domain.ErrInvalidPrincipal
	case !u.params.ValidDuration(t.Duration):
		return domain.ErrInvalidDuration
	case t.InterestRate < u.params.MinInterestBps || t.InterestRate > u.params.MaxInterestBps:
		return domain.ErrInvalidRate
	case len(t.Collateral) == 0:
		return domain.ErrNoCollateral
	case t.Borrower == (common.Address{}):
		return domain.ErrNotBorrower
	case t.Borrower == t.Lender && !u.params.AllowSelfDealing:
		return domain.ErrSelfDealing
	}
	return nil
}

// RepayLoan settles principal plus interest. Collateral is released item by
// item; items that fail stay in escrow and leave the loan PartiallyRepaid.
// Payments that cannot reach their recipient are parked in the vault.
func (u *Usecase) RepayLoan(ctx context.Context, call msg.Call, loanID uint64) (*RepayResult, error) {
	var out *RepayResult
	err := guard.Run(ctx, u.lock, func(ctx context.Context) error {
		return u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *domain.Loan) error {
			var err error
			out, err = u.repay(ctx, r, call, l)
			return err
		})
	})
	u.metrics.ObserveOperation("repay_loan", err)
	if err != nil {
		return nil, err
	}
	if out.PartiallyRepaid {
		u.metrics.ObserveDegraded("partial_repayment")
		u.log.WarnContext(ctx, "loan partially repaid", "loan_id", loanID, "stuck", len(out.StuckCollateral))
	}
	for range out.Rerouted {
		u.metrics.ObserveDegraded("payment_rerouted")
	}
	if out.Fallback {
		u.metrics.ObserveDegraded("interest_fallback")
	}
	return out, nil
}

func (u *Usecase) repay(ctx context.Context, r uow.Repos, call msg.Call, l *domain.Loan) (*RepayResult, error) {
	if call.From != l.Borrower {
		return nil, domain.ErrNotBorrower
	}
	now := u.now()
	if err := l.CheckRepayable(now); err != nil {
		return nil, err
	}

	quote, err := u.quote(ctx, r, l)
	if err != nil {
		return nil, err
	}
	if quote.Fallback {
		if err := r.Events.Create(ctx, event.New(event.TypeInterestFallback).ForLoan(l.ID)); err != nil {
			return nil, err
		}
	}
	if call.Value.Lt(quote.Total) {
		return nil, domain.ErrInsufficientPayment
	}
	refund, err := call.Value.Sub(quote.Total)
	if err != nil {
		return nil, err
	}
	if err := ledger.Collect(ctx, r, call, u.engine()); err != nil {
		return nil, err
	}

	l.Active = false
	l.RepaidAt = now
	l.InterestPaid = quote.Interest
	l.FeePaid = quote.Fee

	items, err := r.Loans.ListCollateral(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	res := &RepayResult{Quote: *quote, LoanID: l.ID, Refund: refund}
	for _, c := range items {
		item := c.Item()
		if err := u.release(ctx, r, l, item, l.Borrower); err != nil {
			res.StuckCollateral = append(res.StuckCollateral, item)
		}
	}
	if len(res.StuckCollateral) > 0 {
		// payment settles; the loan stays open until its collateral is out
		l.Active = true
		l.PartiallyRepaid = true
		res.PartiallyRepaid = true
	}
	if err := r.Loans.Save(ctx, l); err != nil {
		return nil, err
	}

	if err := r.Tx.WithinTx(ctx, func(sr uow.Repos) error {
		return u.vault.ProcessInterestPaymentWith(ctx, sr, msg.From(u.engine()), l.ID, quote.Interest)
	}); err != nil {
		u.log.WarnContext(ctx, "interest accounting failed", "loan_id", l.ID, "error", err)
	}

	lenderShare, err := quote.Total.Sub(quote.Fee)
	if err != nil {
		return nil, err
	}
	payouts := []struct {
		purpose string
		to      common.Address
		amount  u256.Int
	}{
		{"lender", l.Lender, lenderShare},
		{"fee", u.params.FeeCollector, quote.Fee},
		{"refund", l.Borrower, refund},
	}
	for _, p := range payouts {
		rerouted, err := u.pay(ctx, r, l.ID, p.purpose, p.to, p.amount)
		if err != nil {
			return nil, err
		}
		if rerouted {
			res.Rerouted = append(res.Rerouted, p.purpose)
		}
	}

	kind := event.TypeLoanRepaid
	if res.PartiallyRepaid {
		kind = event.TypeLoanPartiallyRepaid
	}
	if err := r.Events.Create(ctx, event.New(kind,
		"principal", quote.Principal.String(),
		"interest", quote.Interest.String(),
		"fee", quote.Fee.String(),
		"stuck_collateral", fmt.Sprint(len(res.StuckCollateral)),
	).ForLoan(l.ID)); err != nil {
		return nil, err
	}
	return res, nil
}

// release tries to return one item inside a savepoint. A failure is recorded
// as an event and leaves the item's escrow state untouched.
func (u *Usecase) release(ctx context.Context, r uow.Repos, l *domain.Loan, item nft.Item, to common.Address) error {
	err := r.Tx.WithinTx(ctx, func(sr uow.Repos) error {
		return u.escrows.RemoveCollateralWith(ctx, sr, msg.From(u.engine()), l.ID, item, to)
	})
	if err == nil {
		return nil
	}
	u.log.WarnContext(ctx, "collateral release failed", "loan_id", l.ID, "nft", item.Contract.Hex(), "token_id", item.TokenID.String(), "error", err)
	if evErr := r.Events.Create(ctx, event.New(event.TypeCollateralReleaseFail,
		"nft", item.Contract.Hex(),
		"token_id", item.TokenID.String(),
		"recipient", to.Hex(),
		"reason", err.Error(),
	).ForLoan(l.ID)); evErr != nil {
		return evErr
	}
	return err
}

// pay sends amount from the engine to to. If there is no recipient or the
// transfer fails, the amount is deposited into the loan's vault pool instead.
func (u *Usecase) pay(ctx context.Context, r uow.Repos, loanID uint64, purpose string, to common.Address, amount u256.Int) (bool, error) {
	if amount.IsZero() {
		return false, nil
	}
	reason := "no recipient"
	if to != (common.Address{}) {
		err := r.Tx.WithinTx(ctx, func(sr uow.Repos) error {
			return ledger.Transfer(ctx, sr, u.engine(), to, amount)
		})
		if err == nil {
			return false, nil
		}
		reason = err.Error()
	}
	if _, err := u.vault.DepositWith(ctx, r, msg.WithValue(u.engine(), amount), loanID, vault.ReroutedMemo(purpose)); err != nil {
		return false, fmt.Errorf("reroute %s payment: %w", purpose, err)
	}
	return true, r.Events.Create(ctx, event.New(event.TypePaymentRerouted,
		"purpose", purpose,
		"intended", to.Hex(),
		"amount", amount.String(),
		"reason", reason,
	).ForLoan(loanID))
}

// LiquidateLoan hands every collateral item to the lender once the deadline
// has passed. Anyone may call it; any release failure aborts.
func (u *Usecase) LiquidateLoan(ctx context.Context, call msg.Call, loanID uint64) (*LoanDTO, error) {
	var out *LoanDTO
	err := guard.Run(ctx, u.lock, func(ctx context.Context) error {
		return u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *domain.Loan) error {
			if err := call.RequireNoValue(); err != nil {
				return err
			}
			now := u.now()
			if err := l.CheckLiquidatable(now); err != nil {
				return err
			}
			st, err := r.Admin.Get(ctx)
			if err != nil {
				return err
			}
			l.Active = false
			l.Liquidated = true
			l.LiquidatedAt = now
			if err := r.Loans.Save(ctx, l); err != nil {
				return err
			}

			recipient := l.Lender
			if !l.HasLender() {
				recipient = st.Owner
			}
			items, err := r.Loans.ListCollateral(ctx, l.ID)
			if err != nil {
				return err
			}
			for _, c := range items {
				if err := u.escrows.RemoveCollateralWith(ctx, r, msg.From(u.engine()), l.ID, c.Item(), recipient); err != nil {
					return fmt.Errorf("liquidate loan %d: %w", l.ID, err)
				}
			}
			if err := r.Events.Create(ctx, event.New(event.TypeLoanLiquidated,
				"caller", call.From.Hex(),
				"recipient", recipient.Hex(),
				"items", fmt.Sprint(len(items)),
			).ForLoan(l.ID)); err != nil {
				return err
			}
			out, err = u.toDTO(ctx, r, l)
			return err
		})
	})
	u.metrics.ObserveOperation("liquidate_loan", err)
	return out, err
}

// RetryCollateralRelease retries the items still in escrow after a partial
// repayment. Once none remain the loan is closed as repaid.
func (u *Usecase) RetryCollateralRelease(ctx context.Context, call msg.Call, loanID uint64) (*RetryResult, error) {
	var out *RetryResult
	err := guard.Run(ctx, u.lock, func(ctx context.Context) error {
		return u.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, l *domain.Loan) error {
			if err := call.RequireNoValue(); err != nil {
				return err
			}
			st, err := r.Admin.Get(ctx)
			if err != nil {
				return err
			}
			if call.From != l.Borrower && !st.IsOwner(call.From) {
				return domain.ErrUnauthorizedRelease
			}
			if !l.PartiallyRepaid {
				return domain.ErrNotPartiallyRepaid
			}
			items, err := r.Loans.ListCollateral(ctx, l.ID)
			if err != nil {
				return err
			}
			out = &RetryResult{LoanID: l.ID}
			for _, c := range items {
				rec, err := r.Collateral.FindActiveRecord(ctx, c.Contract, c.TokenID, l.ID)
				if err != nil {
					return err
				}
				if rec == nil {
					continue
				}
				if err := u.release(ctx, r, l, c.Item(), l.Borrower); err != nil {
					out.Remaining++
					continue
				}
				out.Released++
			}
			if out.Remaining > 0 {
				return nil
			}
			l.Active = false
			l.PartiallyRepaid = false
			out.Repaid = true
			if err := r.Loans.Save(ctx, l); err != nil {
				return err
			}
			return r.Events.Create(ctx, event.New(event.TypeLoanRepaid, "retry", "true").ForLoan(l.ID))
		})
	})
	u.metrics.ObserveOperation("retry_collateral_release", err)
	return out, err
}

// quote computes the repayment amount. A failing interest calculation falls
// back to zero interest.
func (u *Usecase) quote(ctx context.Context, r uow.Repos, l *domain.Loan) (*Quote, error) {
	q := &Quote{Principal: l.Principal}
	interest, err := u.vault.CalculateInterestWith(ctx, r, l.ID)
	if err != nil {
		u.log.WarnContext(ctx, "interest calculation failed, using zero", "loan_id", l.ID, "error", err)
		interest, q.Fallback = u256.Zero, true
	}
	q.Interest = interest
	if q.Fee, err = domain.ProtocolFee(interest, u.params.ProtocolFeeBps); err != nil {
		return nil, err
	}
	if q.Total, err = l.Principal.Add(interest); err != nil {
		return nil, err
	}
	return q, nil
}

func (u *Usecase) GetRepaymentAmount(ctx context.Context, loanID uint64) (*Quote, error) {
	var out *Quote
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.Get(ctx, loanID)
		if err != nil {
			return err
		}
		out, err = u.quote(ctx, r, l)
		return err
	})
	return out, err
}

// SimulateInterest estimates the interest of a loan of principal at rateBps
// repaid after elapsed seconds, before the loan exists.
func (u *Usecase) SimulateInterest(principal u256.Int, rateBps uint32, elapsed int64) (u256.Int, error) {
	return domain.SimulateInterest(principal, rateBps, elapsed, elapsed)
}

func (u *Usecase) GetLoan(ctx context.Context, loanID uint64) (*LoanDTO, error) {
	var out *LoanDTO
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		l, err := r.Loans.Get(ctx, loanID)
		if err != nil {
			return err
		}
		out, err = u.toDTO(ctx, r, l)
		return err
	})
	return out, err
}

func (u *Usecase) GetLoanCollaterals(ctx context.Context, loanID uint64) ([]nft.Item, error) {
	var out []nft.Item
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		if _, err := r.Loans.Get(ctx, loanID); err != nil {
			return err
		}
		var err error
		out, err = collateralItems(ctx, r, loanID)
		return err
	})
	return out, err
}

// EscrowAddresses maps each collateral item of a loan to its escrow.
func (u *Usecase) EscrowAddresses(ctx context.Context, loanID uint64) (map[string]common.Address, error) {
	out := make(map[string]common.Address)
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		items, err := collateralItems(ctx, r, loanID)
		if err != nil {
			return err
		}
		for _, item := range items {
			esc, err := r.Collateral.FindEscrow(ctx, item.Contract, item.TokenID, loanID)
			if errors.Is(err, collateral.ErrEscrowNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out[item.Contract.Hex()+":"+item.TokenID.String()] = esc.Address
		}
		return nil
	})
	return out, err
}

func collateralItems(ctx context.Context, r uow.Repos, loanID uint64) ([]nft.Item, error) {
	rows, err := r.Loans.ListCollateral(ctx, loanID)
	if err != nil {
		return nil, err
	}
	out := make([]nft.Item, 0, len(rows))
	for _, c := range rows {
		out = append(out, c.Item())
	}
	return out, nil
}

func (u *Usecase) toDTO(ctx context.Context, r uow.Repos, l *domain.Loan) (*LoanDTO, error) {
	items, err := collateralItems(ctx, r, l.ID)
	if err != nil {
		return nil, err
	}
	return &LoanDTO{
		ID:              l.ID,
		ProposalID:      l.ProposalID,
		Borrower:        l.Borrower,
		Lender:          l.Lender,
		Principal:       l.Principal,
		StartTime:       l.StartTime,
		Duration:        l.Duration,
		Deadline:        l.Deadline(),
		InterestRate:    l.InterestRate,
		Active:          l.Active,
		Liquidated:      l.Liquidated,
		PartiallyRepaid: l.PartiallyRepaid,
		Status:          string(l.Status()),
		InterestPaid:    l.InterestPaid,
		FeePaid:         l.FeePaid,
		Collateral:      items,
	}, nil
}
