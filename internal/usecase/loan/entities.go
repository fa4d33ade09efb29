package loan

import (
	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/pkg/u256"
)

type LoanDTO struct {
	ID              uint64         `json:"id"`
	ProposalID      uint64         `json:"proposal_id,omitempty"`
	Borrower        common.Address `json:"borrower"`
	Lender          common.Address `json:"lender"`
	Principal       u256.Int       `json:"principal"`
	StartTime       int64          `json:"start_time"`
	Duration        int64          `json:"duration"`
	Deadline        int64          `json:"deadline"`
	InterestRate    uint32         `json:"interest_rate"`
	Active          bool           `json:"active"`
	Liquidated      bool           `json:"liquidated"`
	PartiallyRepaid bool           `json:"partially_repaid"`
	Status          string         `json:"status"`
	InterestPaid    u256.Int       `json:"interest_paid"`
	FeePaid         u256.Int       `json:"fee_paid"`
	Collateral      []nft.Item     `json:"collateral"`
}

// Quote is what repaying now would cost.
type Quote struct {
	Principal u256.Int `json:"principal"`
	Interest  u256.Int `json:"interest"`
	Fee       u256.Int `json:"fee"`
	Total     u256.Int `json:"total"`
	// Fallback is set when interest could not be computed and zero was used.
	Fallback bool `json:"fallback,omitempty"`
}

type RepayResult struct {
	Quote
	LoanID          uint64     `json:"loan_id"`
	Refund          u256.Int   `json:"refund"`
	PartiallyRepaid bool       `json:"partially_repaid"`
	StuckCollateral []nft.Item `json:"stuck_collateral,omitempty"`
	Rerouted        []string   `json:"rerouted,omitempty"`
}

type RetryResult struct {
	LoanID    uint64 `json:"loan_id"`
	Released  int    `json:"released"`
	Remaining int    `json:"remaining"`
	Repaid    bool   `json:"repaid"`
}
