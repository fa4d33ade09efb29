package loan

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/pkg/u256"
)

var (
	ErrNotFound             = errors.New("loan not found")
	ErrUnauthorizedCreator  = errors.New("Only proposal engine or owner can create loans")
	ErrInvalidRate          = errors.New("Interest rate out of bounds")
	ErrInvalidPrincipal     = errors.New("Principal must be greater than 0")
	ErrInvalidDuration      = errors.New("Duration must be greater than 0")
	ErrValueMismatch        = errors.New("Sent value must equal principal")
	ErrNoCollateral         = errors.New("No collateral provided")
	ErrSelfDealing          = errors.New("Borrower and lender must differ")
	ErrCollateralInvalid    = errors.New("Collateral ownership or approval invalid")
	ErrNotBorrower          = errors.New("Only borrower can repay")
	ErrNotActive            = errors.New("Loan not active")
	ErrAlreadyLiquidated    = errors.New("Already liquidated")
	ErrLoanExpired          = errors.New("Loan expired")
	ErrNotExpired           = errors.New("Loan not expired yet")
	ErrInsufficientPayment  = errors.New("Insufficient repayment amount")
	ErrAlreadySettled       = errors.New("Loan already settled, only collateral release is pending")
	ErrNotPartiallyRepaid   = errors.New("Loan is not partially repaid")
	ErrUnauthorizedRelease  = errors.New("Only borrower or owner can retry collateral release")
	ErrPartiallyRepaidState = errors.New("Loan was repaid, collateral release pending")
)

// Status is derived from the flags; it is not stored.
type Status string

const (
	StatusActive          Status = "active"
	StatusRepaid          Status = "repaid"
	StatusLiquidated      Status = "liquidated"
	StatusPartiallyRepaid Status = "partially_repaid"
)

// Table: loans. liquidated implies !active; an inactive loan never reactivates,
// except that a partially repaid loan stays active until its collateral is out.
type Loan struct {
	ID              uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	ProposalID      uint64         `gorm:"column:proposal_id;index" json:"proposal_id,omitempty"`
	Borrower        common.Address `gorm:"column:borrower;size:20;not null;index" json:"borrower"`
	Lender          common.Address `gorm:"column:lender;size:20;not null;index" json:"lender"`
	Principal       u256.Int       `gorm:"column:principal;size:78;not null" json:"principal"`
	StartTime       int64          `gorm:"column:start_time;not null" json:"start_time"`
	Duration        int64          `gorm:"column:duration;not null" json:"duration"`
	InterestRate    uint32         `gorm:"column:interest_rate;not null" json:"interest_rate"`
	Active          bool           `gorm:"column:active;not null;index" json:"active"`
	Liquidated      bool           `gorm:"column:liquidated;not null" json:"liquidated"`
	PartiallyRepaid bool           `gorm:"column:partially_repaid;not null" json:"partially_repaid"`
	InterestPaid    u256.Int       `gorm:"column:interest_paid;size:78;not null" json:"interest_paid"`
	FeePaid         u256.Int       `gorm:"column:fee_paid;size:78;not null" json:"fee_paid"`
	RepaidAt        int64          `gorm:"column:repaid_at;not null;default:0" json:"repaid_at,omitempty"`
	LiquidatedAt    int64          `gorm:"column:liquidated_at;not null;default:0" json:"liquidated_at,omitempty"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (Loan) TableName() string { return "loans" }

func (l *Loan) Deadline() int64 { return l.StartTime + l.Duration }

func (l *Loan) Status() Status {
	switch {
	case l.Liquidated:
		return StatusLiquidated
	case l.PartiallyRepaid:
		return StatusPartiallyRepaid
	case l.Active:
		return StatusActive
	default:
		return StatusRepaid
	}
}

func (l *Loan) HasLender() bool { return l.Lender != (common.Address{}) }

// CheckRepayable validates the repayment window. Repayment is allowed up to
// and including the deadline; liquidation only strictly after it.
func (l *Loan) CheckRepayable(now int64) error {
	switch {
	case l.Liquidated:
		return ErrAlreadyLiquidated
	case !l.Active:
		return ErrNotActive
	case l.PartiallyRepaid:
		return ErrAlreadySettled
	case now > l.Deadline():
		return ErrLoanExpired
	}
	return nil
}

func (l *Loan) CheckLiquidatable(now int64) error {
	switch {
	case l.Liquidated:
		return ErrAlreadyLiquidated
	case !l.Active:
		return ErrNotActive
	case l.PartiallyRepaid:
		return ErrPartiallyRepaidState
	case now <= l.Deadline():
		return ErrNotExpired
	}
	return nil
}

// Collateral is one item of a loan's immutable collateral set.
type Collateral struct {
	ID       uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	LoanID   uint64         `gorm:"column:loan_id;not null;index" json:"loan_id"`
	Position int            `gorm:"column:position;not null" json:"position"`
	Contract common.Address `gorm:"column:nft_address;size:20;not null" json:"nft_address"`
	TokenID  u256.Int       `gorm:"column:token_id;size:78;not null" json:"token_id"`
}

func (Collateral) TableName() string { return "loan_collaterals" }

func (c Collateral) Item() nft.Item { return nft.Item{Contract: c.Contract, TokenID: c.TokenID} }

// Terms are the inputs of loan creation.
type Terms struct {
	ProposalID   uint64         `json:"proposal_id,omitempty"`
	Borrower     common.Address `json:"borrower"`
	Lender       common.Address `json:"lender"`
	Principal    u256.Int       `json:"principal"`
	Duration     int64          `json:"duration"`
	InterestRate uint32         `json:"interest_rate"`
	Collateral   []nft.Item     `json:"collateral"`
}
