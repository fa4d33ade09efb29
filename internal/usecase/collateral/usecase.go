// Package collateral is the escrow manager: one isolated custody record per
// pledged NFT per loan, with delegated benefit claiming while locked.
package collateral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/internal/domain/admin"
	domain "nftlend-backend/internal/domain/collateral"
	"nftlend-backend/internal/domain/event"
	"nftlend-backend/internal/domain/msg"
	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/internal/domain/protocol"
	"nftlend-backend/internal/domain/uow"
	"nftlend-backend/internal/observability/metrics"
	"nftlend-backend/internal/usecase/guard"
	"nftlend-backend/internal/usecase/ledger"
	"nftlend-backend/pkg/u256"
)

type Usecase struct {
	uow         uow.UnitOfWork
	lock        guard.Locker
	addrs       protocol.Addresses
	benefits    domain.BenefitCaller
	verifierFor func(r uow.Repos) nft.Verifier
	log         *slog.Logger
	metrics     *metrics.LendingMetrics
}

func NewUsecase(tx uow.UnitOfWork, lock guard.Locker, addrs protocol.Addresses, benefits domain.BenefitCaller) *Usecase {
	return &Usecase{
		uow:      tx,
		lock:     lock,
		addrs:    addrs,
		benefits: benefits,
		verifierFor: func(r uow.Repos) nft.Verifier {
			return ledger.NewVerifier(r, addrs.CollateralManager)
		},
		log:     slog.Default(),
		metrics: metrics.Lending(),
	}
}

func (u *Usecase) SetLogger(l *slog.Logger) { u.log = l }

// SetVerifierFactory replaces the ledger-backed ownership verifier.
func (u *Usecase) SetVerifierFactory(fn func(r uow.Repos) nft.Verifier) { u.verifierFor = fn }

// Address is the manager's custody address.
func (u *Usecase) Address() common.Address { return u.addrs.CollateralManager }

func (u *Usecase) authorize(ctx context.Context, r uow.Repos, caller common.Address) (*admin.State, error) {
	st, err := r.Admin.Get(ctx)
	if err != nil {
		return nil, err
	}
	if caller != u.addrs.LoanEngine && !st.IsOwner(caller) {
		return nil, domain.ErrUnauthorized
	}
	return st, nil
}

// CreateEscrow instantiates the escrow for one (nft, tokenId, loanId)
// triple, seeded with the borrower as delegate. Loan engine or owner only.
func (u *Usecase) CreateEscrow(ctx context.Context, call msg.Call, loanID uint64, item nft.Item, borrower, lender common.Address) (*EscrowDTO, error) {
	var out *EscrowDTO
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := call.RequireNoValue(); err != nil {
			return err
		}
		if _, err := u.authorize(ctx, r, call.From); err != nil {
			return err
		}
		esc, err := u.CreateEscrowWith(ctx, r, loanID, item, borrower, lender)
		if err != nil {
			return err
		}
		out, err = u.toDTO(ctx, r, esc)
		return err
	})
	return out, err
}

// CreateEscrowWith returns the existing escrow for the triple or creates it.
func (u *Usecase) CreateEscrowWith(ctx context.Context, r uow.Repos, loanID uint64, item nft.Item, borrower, lender common.Address) (*domain.Escrow, error) {
	esc, err := r.Collateral.FindEscrow(ctx, item.Contract, item.TokenID, loanID)
	if err == nil {
		return esc, nil
	}
	if !errors.Is(err, domain.ErrEscrowNotFound) {
		return nil, err
	}
	esc = &domain.Escrow{
		Address:  domain.EscrowAddress(u.addrs.CollateralManager, item.Contract, item.TokenID, loanID),
		Contract: item.Contract,
		TokenID:  item.TokenID,
		LoanID:   loanID,
		Borrower: borrower,
		Lender:   lender,
	}
	if err := r.Collateral.CreateEscrow(ctx, esc); err != nil {
		return nil, err
	}
	if err := r.Collateral.SaveDelegate(ctx, &domain.Delegate{EscrowID: esc.ID, Address: borrower, Active: true}); err != nil {
		return nil, err
	}
	return esc, r.Events.Create(ctx, event.New(event.TypeEscrowCreated,
		"escrow", esc.Address.Hex(),
		"nft", item.Contract.Hex(),
		"token_id", item.TokenID.String(),
	).ForLoan(loanID))
}

// AddCollateral pledges one NFT to a loan and moves it into its escrow.
func (u *Usecase) AddCollateral(ctx context.Context, call msg.Call, loanID uint64, item nft.Item, borrower, lender common.Address) (*EscrowDTO, error) {
	var out *EscrowDTO
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		esc, err := u.AddCollateralWith(ctx, r, call, loanID, item, borrower, lender)
		if err != nil {
			return err
		}
		out, err = u.toDTO(ctx, r, esc)
		return err
	})
	u.metrics.ObserveOperation("add_collateral", err)
	return out, err
}

func (u *Usecase) AddCollateralWith(ctx context.Context, r uow.Repos, call msg.Call, loanID uint64, item nft.Item, borrower, lender common.Address) (*domain.Escrow, error) {
	if err := call.RequireNoValue(); err != nil {
		return nil, err
	}
	st, err := u.authorize(ctx, r, call.From)
	if err != nil {
		return nil, err
	}
	if err := st.WhenNotPaused(); err != nil {
		return nil, err
	}

	v := u.verifierFor(r)
	owns, err := v.CheckOwnership(ctx, borrower, item.Contract, item.TokenID)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, nft.ErrNotTokenOwner
	}
	approved, err := v.CheckApproval(ctx, borrower, item.Contract, item.TokenID)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, domain.ErrNotApproved
	}

	active, err := r.Collateral.FindActiveRecord(ctx, item.Contract, item.TokenID, loanID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, domain.ErrAlreadyCollateral
	}

	esc, err := u.CreateEscrowWith(ctx, r, loanID, item, borrower, lender)
	if err != nil {
		return nil, err
	}
	// a released escrow never takes custody again
	if esc.Released {
		return nil, domain.ErrAlreadyReleased
	}
	if esc.Deposited {
		return nil, domain.ErrAlreadyDeposited
	}

	rec := &domain.Record{
		Contract:      item.Contract,
		TokenID:       item.TokenID,
		LoanID:        loanID,
		Active:        true,
		EscrowAddress: esc.Address,
	}
	if err := r.Collateral.CreateRecord(ctx, rec); err != nil {
		return nil, err
	}

	if err := ledger.TransferNFT(ctx, r, u.addrs.CollateralManager, borrower, esc.Address, item.Contract, item.TokenID); err != nil {
		return nil, fmt.Errorf("deposit %s #%s: %w", item.Contract.Hex(), item.TokenID, err)
	}
	// confirm by reading back the actual owner
	tok, err := r.Tokens.Get(ctx, item.Contract, item.TokenID)
	if err != nil {
		return nil, err
	}
	if tok.Owner != esc.Address {
		return nil, domain.ErrDepositNotConfirmed
	}
	if err := esc.MarkDeposited(); err != nil {
		return nil, err
	}
	if err := r.Collateral.SaveEscrow(ctx, esc); err != nil {
		return nil, err
	}
	return esc, r.Events.Create(ctx, event.New(event.TypeCollateralAdded,
		"escrow", esc.Address.Hex(),
		"nft", item.Contract.Hex(),
		"token_id", item.TokenID.String(),
		"borrower", borrower.Hex(),
	).ForLoan(loanID))
}

// RemoveCollateral releases one pledged NFT to recipient.
func (u *Usecase) RemoveCollateral(ctx context.Context, call msg.Call, loanID uint64, item nft.Item, recipient common.Address) error {
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		return u.RemoveCollateralWith(ctx, r, call, loanID, item, recipient)
	})
	u.metrics.ObserveOperation("remove_collateral", err)
	return err
}

func (u *Usecase) RemoveCollateralWith(ctx context.Context, r uow.Repos, call msg.Call, loanID uint64, item nft.Item, recipient common.Address) error {
	if err := call.RequireNoValue(); err != nil {
		return err
	}
	if _, err := u.authorize(ctx, r, call.From); err != nil {
		return err
	}
	if recipient == (common.Address{}) {
		return domain.ErrZeroRecipient
	}
	rec, err := r.Collateral.FindActiveRecord(ctx, item.Contract, item.TokenID, loanID)
	if err != nil {
		return err
	}
	if rec == nil {
		return domain.ErrNoActiveCollateral
	}
	esc, err := r.Collateral.FindEscrow(ctx, item.Contract, item.TokenID, loanID)
	if err != nil {
		return err
	}

	rec.Active = false
	if err := r.Collateral.SaveRecord(ctx, rec); err != nil {
		return err
	}
	if err := esc.MarkReleased(); err != nil {
		return err
	}
	if err := r.Collateral.SaveEscrow(ctx, esc); err != nil {
		return err
	}
	if err := ledger.TransferNFT(ctx, r, esc.Address, esc.Address, recipient, item.Contract, item.TokenID); err != nil {
		return fmt.Errorf("release %s #%s: %w", item.Contract.Hex(), item.TokenID, err)
	}
	return r.Events.Create(ctx, event.New(event.TypeCollateralRemoved,
		"escrow", esc.Address.Hex(),
		"nft", item.Contract.Hex(),
		"token_id", item.TokenID.String(),
		"recipient", recipient.Hex(),
	).ForLoan(loanID))
}

// ClaimBenefits forwards payload from the escrow to target. The call is best
// effort: a reverted target is reported, not returned as an error. The target
// runs outside the guard; the claim is recorded in a second transaction.
func (u *Usecase) ClaimBenefits(ctx context.Context, call msg.Call, loanID uint64, item nft.Item, target common.Address, payload []byte) (*ClaimResult, error) {
	var esc *domain.Escrow
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		var err error
		esc, err = u.claimableEscrow(ctx, r, call, loanID, item, target)
		return err
	})
	if err != nil {
		return nil, err
	}

	out := &ClaimResult{}
	if u.benefits == nil {
		out.Error = "no benefit caller configured"
	} else if res, err := u.benefits.Call(ctx, esc.Address, target, payload); err != nil {
		out.Error = err.Error()
	} else {
		out.Success, out.Result = true, res
	}

	err = guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		claim := &domain.BenefitClaim{
			EscrowID: esc.ID,
			Caller:   call.From,
			Target:   target,
			Payload:  payload,
			Success:  out.Success,
			Result:   out.Result,
			Error:    truncate(out.Error, 255),
		}
		if err := r.Collateral.CreateBenefitClaim(ctx, claim); err != nil {
			return err
		}
		return r.Events.Create(ctx, event.New(event.TypeBenefitsClaimed,
			"escrow", esc.Address.Hex(),
			"target", target.Hex(),
			"success", fmt.Sprint(out.Success),
		).ForLoan(loanID))
	})
	if err != nil {
		u.log.ErrorContext(ctx, "record benefit claim", "loan_id", loanID, "target", target.Hex(), "success", out.Success, "error", err)
		return out, err
	}
	u.metrics.ObserveBenefitClaim(out.Success)
	if !out.Success {
		u.log.WarnContext(ctx, "benefit claim failed", "loan_id", loanID, "target", target.Hex(), "error", out.Error)
	}
	return out, nil
}

func (u *Usecase) claimableEscrow(ctx context.Context, r uow.Repos, call msg.Call, loanID uint64, item nft.Item, target common.Address) (*domain.Escrow, error) {
	if err := call.RequireNoValue(); err != nil {
		return nil, err
	}
	l, err := r.Loans.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if l.Borrower != call.From {
		return nil, domain.ErrNotBorrower
	}
	if target == (common.Address{}) {
		return nil, domain.ErrZeroTarget
	}
	if target == item.Contract {
		return nil, domain.ErrForbiddenTarget
	}
	esc, err := r.Collateral.FindEscrow(ctx, item.Contract, item.TokenID, loanID)
	if err != nil {
		return nil, err
	}
	if !esc.Holding() {
		if esc.Released {
			return nil, domain.ErrAlreadyReleased
		}
		return nil, domain.ErrNotDeposited
	}
	return esc, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func (u *Usecase) AddDelegate(ctx context.Context, call msg.Call, escrowAddr, delegate common.Address) error {
	return u.setDelegate(ctx, call, escrowAddr, delegate, true)
}

// RemoveDelegate revokes a delegate; the borrower itself cannot be removed.
func (u *Usecase) RemoveDelegate(ctx context.Context, call msg.Call, escrowAddr, delegate common.Address) error {
	return u.setDelegate(ctx, call, escrowAddr, delegate, false)
}

func (u *Usecase) setDelegate(ctx context.Context, call msg.Call, escrowAddr, delegate common.Address, active bool) error {
	return guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		if err := call.RequireNoValue(); err != nil {
			return err
		}
		esc, err := r.Collateral.GetEscrowByAddress(ctx, escrowAddr)
		if err != nil {
			return err
		}
		if call.From != esc.Borrower {
			return domain.ErrNotBorrower
		}
		if delegate == (common.Address{}) {
			return domain.ErrZeroDelegate
		}
		kind := event.TypeDelegateAdded
		if !active {
			if delegate == esc.Borrower {
				return domain.ErrCannotRemoveBorrower
			}
			kind = event.TypeDelegateRemoved
		}
		if err := r.Collateral.SaveDelegate(ctx, &domain.Delegate{EscrowID: esc.ID, Address: delegate, Active: active}); err != nil {
			return err
		}
		return r.Events.Create(ctx, event.New(kind,
			"escrow", esc.Address.Hex(),
			"delegate", delegate.Hex(),
		).ForLoan(esc.LoanID))
	})
}

func (u *Usecase) IsDelegate(ctx context.Context, escrowAddr, addr common.Address) (bool, error) {
	var out bool
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		esc, err := r.Collateral.GetEscrowByAddress(ctx, escrowAddr)
		if err != nil {
			return err
		}
		out, err = r.Collateral.IsDelegate(ctx, esc.ID, addr)
		return err
	})
	return out, err
}

// IsBeneficialOwner reports whether addr is the borrower of an escrow that
// still holds its NFT.
func (u *Usecase) IsBeneficialOwner(ctx context.Context, escrowAddr, addr common.Address) (bool, error) {
	var out bool
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		esc, err := r.Collateral.GetEscrowByAddress(ctx, escrowAddr)
		if err != nil {
			return err
		}
		out = esc.Holding() && esc.Borrower == addr
		return nil
	})
	return out, err
}

// RegisterPartnerInterface lets partner ecosystems recognise escrows as valid
// holders. Owner only.
func (u *Usecase) RegisterPartnerInterface(ctx context.Context, call msg.Call, interfaceID, partner string) (*domain.PartnerInterface, error) {
	var out *domain.PartnerInterface
	err := guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		id, err := u.requireOwnerAndID(ctx, r, call, interfaceID)
		if err != nil {
			return err
		}
		out = &domain.PartnerInterface{InterfaceID: id, Partner: partner, Active: true, RegisteredBy: call.From}
		if err := r.Collateral.SavePartnerInterface(ctx, out); err != nil {
			return err
		}
		return r.Events.Create(ctx, event.New(event.TypePartnerRegistered, "interface_id", id, "partner", partner))
	})
	return out, err
}

func (u *Usecase) DeregisterPartnerInterface(ctx context.Context, call msg.Call, interfaceID string) error {
	return guard.Tx(ctx, u.lock, u.uow, func(ctx context.Context, r uow.Repos) error {
		id, err := u.requireOwnerAndID(ctx, r, call, interfaceID)
		if err != nil {
			return err
		}
		p, err := r.Collateral.GetPartnerInterface(ctx, id)
		if err != nil {
			return err
		}
		p.Active = false
		if err := r.Collateral.SavePartnerInterface(ctx, p); err != nil {
			return err
		}
		return r.Events.Create(ctx, event.New(event.TypePartnerDeregistered, "interface_id", id))
	})
}

func (u *Usecase) requireOwnerAndID(ctx context.Context, r uow.Repos, call msg.Call, interfaceID string) (string, error) {
	if err := call.RequireNoValue(); err != nil {
		return "", err
	}
	st, err := r.Admin.Get(ctx)
	if err != nil {
		return "", err
	}
	if err := st.RequireOwner(call.From); err != nil {
		return "", err
	}
	return domain.NormalizeInterfaceID(interfaceID)
}

// SupportsInterface answers ERC-165 queries for every escrow.
func (u *Usecase) SupportsInterface(ctx context.Context, interfaceID string) (bool, error) {
	id, err := domain.NormalizeInterfaceID(interfaceID)
	if err != nil {
		return false, nil
	}
	if id == domain.InterfaceERC165 || id == domain.InterfaceERC721Receiver {
		return true, nil
	}
	var out bool
	err = u.uow.WithinTx(ctx, func(r uow.Repos) error {
		p, err := r.Collateral.GetPartnerInterface(ctx, id)
		if errors.Is(err, domain.ErrInterfaceNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		out = p.Active
		return nil
	})
	return out, err
}

func (u *Usecase) ListPartnerInterfaces(ctx context.Context) ([]domain.PartnerInterface, error) {
	var out []domain.PartnerInterface
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		out, err = r.Collateral.ListPartnerInterfaces(ctx)
		return err
	})
	return out, err
}

func (u *Usecase) GetEscrow(ctx context.Context, escrowAddr common.Address) (*EscrowDTO, error) {
	var out *EscrowDTO
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		esc, err := r.Collateral.GetEscrowByAddress(ctx, escrowAddr)
		if err != nil {
			return err
		}
		out, err = u.toDTO(ctx, r, esc)
		return err
	})
	return out, err
}

// EscrowAddress returns the escrow of an existing (nft, tokenId, loanId) triple.
func (u *Usecase) EscrowAddress(ctx context.Context, loanID uint64, contract common.Address, tokenID u256.Int) (common.Address, error) {
	var out common.Address
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		esc, err := r.Collateral.FindEscrow(ctx, contract, tokenID, loanID)
		if err != nil {
			return err
		}
		out = esc.Address
		return nil
	})
	return out, err
}

func (u *Usecase) ListEscrows(ctx context.Context, loanID uint64) ([]EscrowDTO, error) {
	var out []EscrowDTO
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		escrows, err := r.Collateral.ListEscrowsByLoan(ctx, loanID)
		if err != nil {
			return err
		}
		out = make([]EscrowDTO, 0, len(escrows))
		for i := range escrows {
			dto, err := u.toDTO(ctx, r, &escrows[i])
			if err != nil {
				return err
			}
			out = append(out, *dto)
		}
		return nil
	})
	return out, err
}

func (u *Usecase) ListRecords(ctx context.Context, loanID uint64) ([]domain.Record, error) {
	var out []domain.Record
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		var err error
		out, err = r.Collateral.ListRecordsByLoan(ctx, loanID)
		return err
	})
	return out, err
}

func (u *Usecase) ListBenefitClaims(ctx context.Context, escrowAddr common.Address) ([]domain.BenefitClaim, error) {
	var out []domain.BenefitClaim
	err := u.uow.WithinTx(ctx, func(r uow.Repos) error {
		esc, err := r.Collateral.GetEscrowByAddress(ctx, escrowAddr)
		if err != nil {
			return err
		}
		out, err = r.Collateral.ListBenefitClaims(ctx, esc.ID)
		return err
	})
	return out, err
}

func (u *Usecase) toDTO(ctx context.Context, r uow.Repos, esc *domain.Escrow) (*EscrowDTO, error) {
	delegates, err := r.Collateral.ListDelegates(ctx, esc.ID)
	if err != nil {
		return nil, err
	}
	return &EscrowDTO{
		ID:        esc.ID,
		Address:   esc.Address,
		NFT:       esc.Contract,
		TokenID:   esc.TokenID.String(),
		LoanID:    esc.LoanID,
		Borrower:  esc.Borrower,
		Lender:    esc.Lender,
		Deposited: esc.Deposited,
		Released:  esc.Released,
		Delegates: delegates,
	}, nil
}
