// Package proposal is the negotiation engine: borrowers propose, lenders
// counter with pre-locked funds, and acceptance hands off to loan creation.
package proposal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/internal/domain/event"
	"nftlend-backend/internal/domain/loan"
	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/domain/nft"
	domain "nftlend-backend/internal/domain/proposal"
	"nftlend-backend/internal/domain/protocol"
	"nftlend-backend/internal/domain/uow"
	"nftlend-backend/internal/observability/metrics"
	"nftlend-backend/internal/usecase/guard"
	"nftlend-backend/internal/usecase/ledger"
	"nftlend-backend/pkg/u256"
)

// LoanCreator is the loan engine entry used on acceptance.
type LoanCreator interface {
	CreateLoanWith(ctx context.Context, r uow.Repos, call msg.Call, terms loan.Terms) (*loan.Loan, error)
}

type Usecase struct {
	uow         uow.UnitOfWork
	lock        guard.Locker
	params      protocol.Params
	loans       LoanCreator
	verifierFor func(r uow.Repos) nft.Verifier
	now         protocol.Clock
	log         *slog.Logger
	metrics     *metrics.LendingMetrics
}

func NewUsecase(tx uow.UnitOfWork, lock guard.Locker, params protocol.Params, loans LoanCreator) *Usecase {
	return &Usecase{
		uow:    tx,
		lock:   lock,
		params: params,
		loans:  loans,
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

func (u *Usecase) engine() common.Address { return u.params.Addresses.ProposalEngine }

func whenNotPaused(ctx context.Context, r uow.Repos) error {
	st, err := r.Admin.Get(ctx)
	if err != nil {
		return err
	}
	return st.WhenNotPaused()
}

// CreateProposal opens an original proposal for the caller as borrower.
func (u *Usecase) CreateProposal(ctx context.Context, call msg.Call, req CreateProposalRequest) (*ProposalDTO, error) {
	var out *ProposalDTO
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := whenNotPaused(ctx, r); err != nil {
			return err
		}
		if err := call.RequireNoValue(); err != nil {
			return err
		}
		switch {
		case len(req.NFTAddresses) == 0:
			return domain.ErrEmptyCollateral
		case len(req.NFTAddresses) != len(req.TokenIDs):
			return domain.ErrCollateralLengthMismatch
		case req.Amount.IsZero():
			return domain.ErrInvalidAmount
		case !u.params.ValidDuration(req.Duration):
			return domain.ErrInvalidDuration
		}

		items := make([]nft.Item, len(req.NFTAddresses))
		v := u.verifierFor(r)
		for i := range req.NFTAddresses {
			items[i] = nft.Item{Contract: req.NFTAddresses[i], TokenID: req.TokenIDs[i]}
			owns, err := v.CheckOwnership(ctx, call.From, items[i].Contract, items[i].TokenID)
			if err != nil {
				return err
			}
			if !owns {
				return fmt.Errorf("%w: %s #%s", nft.ErrNotTokenOwner, items[i].Contract.Hex(), items[i].TokenID)
			}
			approved, err := v.CheckApproval(ctx, call.From, items[i].Contract, items[i].TokenID)
			if err != nil {
				return err
			}
			if !approved {
				return fmt.Errorf("%w: %s #%s", nft.ErrNotApproved, items[i].Contract.Hex(), items[i].TokenID)
			}
		}

		p := &domain.Proposal{
			Borrower:     call.From,
			Amount:       req.Amount,
			Duration:     req.Duration,
			InterestRate: req.InterestRate,
			CreatedAt:    u.now(),
			IsActive:     true,
			Status:       domain.StatusActive,
		}
		if err := u.insert(ctx, r, p, items); err != nil {
			return err
		}
		if err := r.Events.Create(ctx, event.New(event.TypeProposalCreated,
			"borrower", p.Borrower.Hex(),
			"amount", p.Amount.String(),
			"duration", fmt.Sprint(p.Duration),
			"interest_rate", fmt.Sprint(p.InterestRate),
			"items", fmt.Sprint(len(items)),
		).ForProposal(p.ID)); err != nil {
			return err
		}
		out = toDTO(p, items)
		return nil
	})
	u.metrics.ObserveOperation("create_proposal", err)
	return out, err
}

func (u *Usecase) insert(ctx context.Context, r uow.Repos, p *domain.Proposal, items []nft.Item) error {
	if err := r.Proposals.Create(ctx, p); err != nil {
		return err
	}
	rows := make([]domain.Collateral, len(items))
	for i, item := range items {
		rows[i] = domain.Collateral{ProposalID: p.ID, Position: i, Contract: item.Contract, TokenID: item.TokenID}
	}
	return r.Proposals.AddCollateral(ctx, rows)
}

// CreateCounterOffer answers an active proposal with new terms. The caller
// becomes lender and must send at least the offered amount, which stays
// locked in the engine until the offer resolves.
func (u *Usecase) CreateCounterOffer(ctx context.Context, call msg.Call, req CounterOfferRequest) (*ProposalDTO, error) {
	var out *ProposalDTO
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := whenNotPaused(ctx, r); err != nil {
			return err
		}
		target, err := r.Proposals.GetForUpdate(ctx, req.ProposalID)
		if err != nil {
			return err
		}
		now := u.now()
		switch {
		case !target.IsActive:
			return domain.ErrNotActive
		case target.Expired(now):
			return domain.ErrCounterOfferExpired
		case req.ValidityPeriod <= 0 || req.ValidityPeriod > u.params.MaxOfferValidity:
			return domain.ErrInvalidValidity
		case req.Amount.IsZero():
			return domain.ErrInvalidAmount
		case !u.params.ValidDuration(req.Duration):
			return domain.ErrInvalidDuration
		case call.From == target.Borrower && !u.params.AllowSelfDealing:
			return domain.ErrBorrowerCannotLend
		case call.Value.Lt(req.Amount):
			return domain.ErrInsufficientValue
		}

		collateral, err := r.Proposals.ListCollateral(ctx, target.ID)
		if err != nil {
			return err
		}
		items := make([]nft.Item, len(collateral))
		for i, c := range collateral {
			items[i] = c.Item()
		}

		if err := ledger.Collect(ctx, r, call, u.engine()); err != nil {
			return err
		}
		if err := u.lockFunds(ctx, r, call.From, req.Amount); err != nil {
			return err
		}
		p := &domain.Proposal{
			ParentID:       target.ID,
			Borrower:       target.Borrower,
			Lender:         call.From,
			Amount:         req.Amount,
			Duration:       req.Duration,
			InterestRate:   req.InterestRate,
			CreatedAt:      now,
			ExpiresAt:      now + req.ValidityPeriod,
			IsActive:       true,
			IsCounterOffer: true,
			Status:         domain.StatusActive,
		}
		if err := u.insert(ctx, r, p, items); err != nil {
			return err
		}
		if err := r.Events.Create(ctx, event.New(event.TypeCounterOfferCreated,
			"parent_id", fmt.Sprint(target.ID),
			"lender", p.Lender.Hex(),
			"amount", p.Amount.String(),
			"expires_at", fmt.Sprint(p.ExpiresAt),
		).ForProposal(p.ID)); err != nil {
			return err
		}
		if err := u.refundExcess(ctx, r, call, req.Amount); err != nil {
			return err
		}
		out = toDTO(p, items)
		return nil
	})
	u.metrics.ObserveOperation("create_counter_offer", err)
	return out, err
}

// AcceptProposal matches a proposal and creates its loan. For originals the
// caller is the lender and funds the principal; for counter-offers the caller
// is the borrower and the locked funds are used.
func (u *Usecase) AcceptProposal(ctx context.Context, call msg.Call, proposalID uint64) (*AcceptResult, error) {
	var out *AcceptResult
	err := guard.Run(ctx, u.lock, func(ctx context.Context) error {
		err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
			var err error
			out, err = u.accept(ctx, r, call, proposalID)
			return err
		})
		var verr *VerificationError
		if errors.As(err, &verr) {
			u.recordVerificationFailure(ctx, call, verr)
		}
		return err
	})
	u.metrics.ObserveOperation("accept_proposal", err)
	return out, err
}

func (u *Usecase) accept(ctx context.Context, r uow.Repos, call msg.Call, proposalID uint64) (*AcceptResult, error) {
	if err := whenNotPaused(ctx, r); err != nil {
		return nil, err
	}
	p, err := r.Proposals.GetForUpdate(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, domain.ErrNotActive
	}
	collateral, err := r.Proposals.ListCollateral(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	items := make([]nft.Item, len(collateral))
	for i, c := range collateral {
		items[i] = c.Item()
	}
	now := u.now()

	if p.IsCounterOffer {
		if call.From != p.Borrower {
			return nil, domain.ErrNotBorrower
		}
		if p.Expired(now) {
			return nil, domain.ErrCounterOfferExpired
		}
		if err := call.RequireNoValue(); err != nil {
			return nil, err
		}
		if err := u.verifyCollateral(ctx, r, p, items); err != nil {
			return nil, err
		}
		if err := u.unlockFunds(ctx, r, p.Lender, p.Amount); err != nil {
			return nil, err
		}
	} else {
		if call.From == p.Borrower && !u.params.AllowSelfDealing {
			return nil, domain.ErrBorrowerCannotLend
		}
		if call.Value.Lt(p.Amount) {
			return nil, domain.ErrInsufficientValue
		}
		if err := ledger.Collect(ctx, r, call, u.engine()); err != nil {
			return nil, err
		}
		p.Lender = call.From
		if err := u.lockFunds(ctx, r, p.Lender, p.Amount); err != nil {
			return nil, err
		}
		if err := u.unlockFunds(ctx, r, p.Lender, p.Amount); err != nil {
			return nil, err
		}
		if err := u.refundExcess(ctx, r, call, p.Amount); err != nil {
			return nil, err
		}
	}

	if err := p.Resolve(domain.StatusAccepted, now); err != nil {
		return nil, err
	}
	l, err := u.loans.CreateLoanWith(ctx, r, msg.WithValue(u.engine(), p.Amount), loan.Terms{
		ProposalID:   p.ID,
		Borrower:     p.Borrower,
		Lender:       p.Lender,
		Principal:    p.Amount,
		Duration:     p.Duration,
		InterestRate: p.InterestRate,
		Collateral:   items,
	})
	if err != nil {
		return nil, err
	}
	p.LoanID = l.ID
	if err := r.Proposals.Save(ctx, p); err != nil {
		return nil, err
	}
	if err := r.Events.Create(ctx, event.New(event.TypeProposalAccepted,
		"accepted_by", call.From.Hex(),
		"lender", p.Lender.Hex(),
		"counter_offer", fmt.Sprint(p.IsCounterOffer),
	).ForProposal(p.ID).ForLoan(l.ID)); err != nil {
		return nil, err
	}
	u.log.InfoContext(ctx, "proposal accepted", "proposal_id", p.ID, "loan_id", l.ID)
	return &AcceptResult{ProposalID: p.ID, LoanID: l.ID, Principal: p.Amount}, nil
}

func (u *Usecase) verifyCollateral(ctx context.Context, r uow.Repos, p *domain.Proposal, items []nft.Item) error {
	v := u.verifierFor(r)
	for _, item := range items {
		owns, err := v.CheckOwnership(ctx, p.Borrower, item.Contract, item.TokenID)
		if err != nil {
			return err
		}
		if !owns {
			return &VerificationError{ProposalID: p.ID, Item: item, Reason: nft.ErrNotTokenOwner.Error()}
		}
		approved, err := v.CheckApproval(ctx, p.Borrower, item.Contract, item.TokenID)
		if err != nil {
			return err
		}
		if !approved {
			return &VerificationError{ProposalID: p.ID, Item: item, Reason: nft.ErrNotApproved.Error()}
		}
	}
	return nil
}

// recordVerificationFailure persists the failure signal after the accepting
// transaction has rolled back.
func (u *Usecase) recordVerificationFailure(ctx context.Context, call msg.Call, verr *VerificationError) {
	u.metrics.ObserveVerificationFailed()
	u.log.WarnContext(ctx, "counter offer collateral verification failed",
		"proposal_id", verr.ProposalID, "nft", verr.Item.Contract.Hex(), "token_id", verr.Item.TokenID.String(), "reason", verr.Reason)
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		return r.Events.Create(ctx, event.New(event.TypeProposalVerificationFailed,
			"caller", call.From.Hex(),
			"nft", verr.Item.Contract.Hex(),
			"token_id", verr.Item.TokenID.String(),
			"reason", verr.Reason,
		).ForProposal(verr.ProposalID))
	})
	if err != nil {
		u.log.ErrorContext(ctx, "record verification failure", "proposal_id", verr.ProposalID, "error", err)
	}
}

// CancelProposal withdraws an active proposal. Counter-offers can only be
// cancelled before they expire; the lender's funds are returned.
func (u *Usecase) CancelProposal(ctx context.Context, call msg.Call, proposalID uint64) (*ProposalDTO, error) {
	return u.resolve(ctx, "cancel_proposal", call, proposalID, func(p *domain.Proposal, now int64) (domain.Status, string, error) {
		if call.From != p.Borrower {
			return "", "", domain.ErrNotBorrower
		}
		if p.Expired(now) {
			return "", "", domain.ErrCounterOfferAlreadyExpired
		}
		return domain.StatusCancelled, event.TypeProposalCancelled, nil
	})
}

// RejectCounterOffer lets the borrower turn down an unexpired counter-offer.
func (u *Usecase) RejectCounterOffer(ctx context.Context, call msg.Call, proposalID uint64) (*ProposalDTO, error) {
	return u.resolve(ctx, "reject_counter_offer", call, proposalID, func(p *domain.Proposal, now int64) (domain.Status, string, error) {
		if !p.IsCounterOffer {
			return "", "", domain.ErrNotCounterOffer
		}
		if call.From != p.Borrower {
			return "", "", domain.ErrNotBorrower
		}
		if p.Expired(now) {
			return "", "", domain.ErrCounterOfferExpired
		}
		return domain.StatusRejected, event.TypeCounterOfferRejected, nil
	})
}

// ProcessExpiredOffer closes an expired counter-offer and refunds its
// lender. Anyone may call it.
func (u *Usecase) ProcessExpiredOffer(ctx context.Context, call msg.Call, proposalID uint64) (*ProposalDTO, error) {
	return u.resolve(ctx, "process_expired_offer", call, proposalID, func(p *domain.Proposal, now int64) (domain.Status, string, error) {
		if !p.IsCounterOffer {
			return "", "", domain.ErrNotCounterOffer
		}
		if !p.Expired(now) {
			return "", "", domain.ErrOfferNotExpired
		}
		return domain.StatusExpired, event.TypeOfferExpired, nil
	})
}

type resolveCheck func(p *domain.Proposal, now int64) (domain.Status, string, error)

// resolve runs one of the refunding terminal transitions. They stay
// available while paused.
func (u *Usecase) resolve(ctx context.Context, op string, call msg.Call, proposalID uint64, check resolveCheck) (*ProposalDTO, error) {
	var out *ProposalDTO
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := call.RequireNoValue(); err != nil {
			return err
		}
		p, err := r.Proposals.GetForUpdate(ctx, proposalID)
		if err != nil {
			return err
		}
		if !p.IsActive {
			return domain.ErrNotActive
		}
		now := u.now()
		status, kind, err := check(p, now)
		if err != nil {
			return err
		}
		if err := p.Resolve(status, now); err != nil {
			return err
		}
		if err := r.Proposals.Save(ctx, p); err != nil {
			return err
		}

		refunded := u256.Zero
		if p.IsCounterOffer {
			if err := u.unlockFunds(ctx, r, p.Lender, p.Amount); err != nil {
				return err
			}
			if err := ledger.Transfer(ctx, r, u.engine(), p.Lender, p.Amount); err != nil {
				return fmt.Errorf("refund lender: %w", err)
			}
			refunded = p.Amount
		}
		if err := r.Events.Create(ctx, event.New(kind,
			"caller", call.From.Hex(),
			"lender", p.Lender.Hex(),
			"refunded", refunded.String(),
		).ForProposal(p.ID)); err != nil {
			return err
		}
		collateral, err := r.Proposals.ListCollateral(ctx, p.ID)
		if err != nil {
			return err
		}
		items := make([]nft.Item, len(collateral))
		for i, c := range collateral {
			items[i] = c.Item()
		}
		out = toDTO(p, items)
		return nil
	})
	u.metrics.ObserveOperation(op, err)
	return out, err
}

func (u *Usecase) lockFunds(ctx context.Context, r uow.Repos, lender common.Address, amount u256.Int) error {
	lf, err := r.Proposals.GetLockedFunds(ctx, lender)
	if err != nil {
		return err
	}
	if err := lf.Lock(amount); err != nil {
		return err
	}
	if err := r.Proposals.SaveLockedFunds(ctx, lf); err != nil {
		return err
	}
	return r.Events.Create(ctx, event.New(event.TypeFundsLocked,
		"lender", lender.Hex(),
		"amount", amount.String(),
		"total", lf.Amount.String(),
	))
}

func (u *Usecase) unlockFunds(ctx context.Context, r uow.Repos, lender common.Address, amount u256.Int) error {
	lf, err := r.Proposals.GetLockedFunds(ctx, lender)
	if err != nil {
		return err
	}
	if err := lf.Unlock(amount); err != nil {
		return err
	}
	if err := r.Proposals.SaveLockedFunds(ctx, lf); err != nil {
		return err
	}
	return r.Events.Create(ctx, event.New(event.TypeFundsUnlocked,
		"lender", lender.Hex(),
		"amount", amount.String(),
		"total", lf.Amount.String(),
	))
}

// refundExcess returns what the caller sent above required. Failure aborts.
func (u *Usecase) refundExcess(ctx context.Context, r uow.Repos, call msg.Call, required u256.Int) error {
	excess, err := call.Value.Sub(required)
	if err != nil {
		return domain.ErrInsufficientValue
	}
	if excess.IsZero() {
		return nil
	}
	if err := ledger.Transfer(ctx, r, u.engine(), call.From, excess); err != nil {
		return fmt.Errorf("refund excess: %w", err)
	}
	return nil
}

// IsOfferExpired reports whether proposalID is a counter-offer past expiry.
func (u *Usecase) IsOfferExpired(ctx context.Context, proposalID uint64) (bool, error) {
	var expired bool
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		p, err := r.Proposals.Get(ctx, proposalID)
		if err != nil {
			return err
		}
		expired = p.Expired(u.now())
		return nil
	})
	return expired, err
}

func (u *Usecase) GetProposal(ctx context.Context, proposalID uint64) (*ProposalDTO, error) {
	var out *ProposalDTO
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		p, err := r.Proposals.Get(ctx, proposalID)
		if err != nil {
			return err
		}
		items, err := u.collateral(ctx, r, proposalID)
		if err != nil {
			return err
		}
		out = toDTO(p, items)
		return nil
	})
	return out, err
}

func (u *Usecase) GetProposalCollateral(ctx context.Context, proposalID uint64) ([]nft.Item, error) {
	var out []nft.Item
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		if _, err := r.Proposals.Get(ctx, proposalID); err != nil {
			return err
		}
		var err error
		out, err = u.collateral(ctx, r, proposalID)
		return err
	})
	return out, err
}

func (u *Usecase) collateral(ctx context.Context, r uow.Repos, proposalID uint64) ([]nft.Item, error) {
	rows, err := r.Proposals.ListCollateral(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	out := make([]nft.Item, len(rows))
	for i, c := range rows {
		out[i] = c.Item()
	}
	return out, nil
}

func (u *Usecase) GetLockedFunds(ctx context.Context, lender common.Address) (u256.Int, error) {
	var out u256.Int
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		lf, err := r.Proposals.GetLockedFunds(ctx, lender)
		if err != nil {
			return err
		}
		out = lf.Amount
		return nil
	})
	return out, err
}

// CheckLockedFunds recomputes a lender's locked total from its active
// counter-offers.
func (u *Usecase) CheckLockedFunds(ctx context.Context, lender common.Address) (*LockedFundsReport, error) {
	out := &LockedFundsReport{Lender: lender}
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		lf, err := r.Proposals.GetLockedFunds(ctx, lender)
		if err != nil {
			return err
		}
		offers, err := r.Proposals.ListActiveCounterOffers(ctx, lender)
		if err != nil {
			return err
		}
		sum := u256.Zero
		for _, p := range offers {
			if sum, err = sum.Add(p.Amount); err != nil {
				return err
			}
		}
		out.Locked, out.ActiveSum, out.Offers = lf.Amount, sum, len(offers)
		out.Consistent = lf.Amount.Eq(sum)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.Consistent {
		u.log.ErrorContext(ctx, "locked funds mismatch", "lender", lender.Hex(), "locked", out.Locked.String(), "active_sum", out.ActiveSum.String())
	}
	return out, nil
}

func toDTO(p *domain.Proposal, items []nft.Item) *ProposalDTO {
	return &ProposalDTO{
		ID:             p.ID,
		ParentID:       p.ParentID,
		Borrower:       p.Borrower,
		Lender:         p.Lender,
		Amount:         p.Amount,
		Duration:       p.Duration,
		InterestRate:   p.InterestRate,
		CreatedAt:      p.CreatedAt,
		ExpiresAt:      p.ExpiresAt,
		IsActive:       p.IsActive,
		IsCounterOffer: p.IsCounterOffer,
		Status:         p.Status,
		LoanID:         p.LoanID,
		Collateral:     items,
	}
}
