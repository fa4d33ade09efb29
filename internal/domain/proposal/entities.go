package proposal

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/pkg/u256"
)

var (
	ErrNotFound                     = errors.New("proposal not found")
	ErrNotActive                    = errors.New("Proposal not active")
	ErrEmptyCollateral              = errors.New("No collateral provided")
	ErrCollateralLengthMismatch     = errors.New("Array lengths mismatch")
	ErrInvalidAmount                = errors.New("Amount must be greater than 0")
	ErrInvalidDuration              = errors.New("Duration must be greater than 0")
	ErrInvalidValidity              = errors.New("Invalid validity period")
	ErrInsufficientValue            = errors.New("Insufficient funds sent")
	ErrNotBorrower                  = errors.New("Only borrower can perform this action")
	ErrBorrowerCannotLend           = errors.New("Borrower cannot accept own proposal")
	ErrNotCounterOffer              = errors.New("Not a counter offer")
	ErrCounterOfferExpired          = errors.New("Counter offer expired")
	ErrCounterOfferAlreadyExpired   = errors.New("Counter offer already expired")
	ErrOfferNotExpired              = errors.New("Offer not expired yet")
	ErrCollateralVerificationFailed = errors.New("Collateral verification failed")
	ErrLockedFundsUnderflow         = errors.New("locked funds underflow")
)

// Status is the terminal outcome recorded together with IsActive=false.
type Status string

const (
	StatusActive    Status = "active"
	StatusAccepted  Status = "accepted"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
)

// Table: proposals. Rows are never deleted; resolution only flips IsActive.
type Proposal struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// ParentID is the proposal a counter-offer responds to (0 for originals).
	ParentID       uint64         `gorm:"column:parent_id;index"`
	Borrower       common.Address `gorm:"column:borrower;size:20;not null;index"`
	Lender         common.Address `gorm:"column:lender;size:20;not null;index"`
	Amount         u256.Int       `gorm:"column:amount;size:78;not null"`
	Duration       int64          `gorm:"column:duration;not null"`
	InterestRate   uint32         `gorm:"column:interest_rate;not null"`
	CreatedAt      int64          `gorm:"column:created_at;autoCreateTime:false;not null"`
	ExpiresAt      int64          `gorm:"column:expires_at;not null;default:0"`
	IsActive       bool           `gorm:"column:is_active;not null;index"`
	IsCounterOffer bool           `gorm:"column:is_counter_offer;not null"`
	Status         Status         `gorm:"column:status;size:16;not null"`
	ResolvedAt     int64          `gorm:"column:resolved_at;not null;default:0"`
	LoanID         uint64         `gorm:"column:loan_id;not null;default:0"`
	UpdatedAt      time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Proposal) TableName() string { return "proposals" }

// HasLender reports whether a lender has been matched.
func (p *Proposal) HasLender() bool { return p.Lender != (common.Address{}) }

// Expired only applies to counter-offers; originals never expire.
func (p *Proposal) Expired(now int64) bool {
	return p.IsCounterOffer && p.ExpiresAt != 0 && now > p.ExpiresAt
}

// Resolve performs the single terminal transition of an active proposal.
func (p *Proposal) Resolve(status Status, now int64) error {
	if !p.IsActive {
		return ErrNotActive
	}
	p.IsActive = false
	p.Status = status
	p.ResolvedAt = now
	return nil
}

// Collateral is one position of a proposal's collateral set.
type Collateral struct {
	ID         uint64         `gorm:"column:id;primaryKey;autoIncrement"`
	ProposalID uint64         `gorm:"column:proposal_id;not null;index"`
	Position   int            `gorm:"column:position;not null"`
	Contract   common.Address `gorm:"column:nft_address;size:20;not null"`
	TokenID    u256.Int       `gorm:"column:token_id;size:78;not null"`
}

func (Collateral) TableName() string { return "proposal_collaterals" }

func (c Collateral) Item() nft.Item { return nft.Item{Contract: c.Contract, TokenID: c.TokenID} }

// LockedFunds is the running total a lender has escrowed against pending
// counter-offers.
type LockedFunds struct {
	Lender    common.Address `gorm:"column:lender;primaryKey;size:20"`
	Amount    u256.Int       `gorm:"column:amount;size:78;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (LockedFunds) TableName() string { return "locked_funds" }

func (l *LockedFunds) Lock(amount u256.Int) error {
	next, err := l.Amount.Add(amount)
	if err != nil {
		return err
	}
	l.Amount = next
	return nil
}

func (l *LockedFunds) Unlock(amount u256.Int) error {
	next, err := l.Amount.Sub(amount)
	if err != nil {
		return ErrLockedFundsUnderflow
	}
	l.Amount = next
	return nil
}
