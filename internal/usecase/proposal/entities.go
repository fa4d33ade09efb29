package proposal

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/internal/domain/nft"
	domain "nftlend-backend/internal/domain/proposal"
	"nftlend-backend/pkg/u256"
)

// CreateProposalRequest carries the parallel collateral arrays as submitted.
type CreateProposalRequest struct {
	NFTAddresses []common.Address
	TokenIDs     []u256.Int
	Amount       u256.Int
	Duration     int64
	InterestRate uint32
}

type CounterOfferRequest struct {
	ProposalID     uint64
	Amount         u256.Int
	Duration       int64
	InterestRate   uint32
	ValidityPeriod int64
}

type ProposalDTO struct {
	ID             uint64         `json:"id"`
	ParentID       uint64         `json:"parent_id,omitempty"`
	Borrower       common.Address `json:"borrower"`
	Lender         common.Address `json:"lender"`
	Amount         u256.Int       `json:"amount"`
	Duration       int64          `json:"duration"`
	InterestRate   uint32         `json:"interest_rate"`
	CreatedAt      int64          `json:"created_at"`
	ExpiresAt      int64          `json:"expires_at"`
	IsActive       bool           `json:"is_active"`
	IsCounterOffer bool           `json:"is_counter_offer"`
	Status         domain.Status  `json:"status"`
	LoanID         uint64         `json:"loan_id,omitempty"`
	Collateral     []nft.Item     `json:"collateral"`
}

// AcceptResult links an accepted proposal to the loan it created.
type AcceptResult struct {
	ProposalID uint64   `json:"proposal_id"`
	LoanID     uint64   `json:"loan_id"`
	Principal  u256.Int `json:"principal"`
}

// LockedFundsReport compares a lender's locked total with its active
// counter-offers.
type LockedFundsReport struct {
	Lender     common.Address `json:"lender"`
	Locked     u256.Int       `json:"locked"`
	ActiveSum  u256.Int       `json:"active_sum"`
	Offers     int            `json:"active_offers"`
	Consistent bool           `json:"consistent"`
}

// VerificationError reports a counter-offer whose collateral no longer
// verifies at acceptance.
type VerificationError struct {
	ProposalID uint64
	Item       nft.Item
	Reason     string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("%s: proposal %d, %s #%s: %s",
		domain.ErrCollateralVerificationFailed, e.ProposalID, e.Item.Contract.Hex(), e.Item.TokenID, e.Reason)
}

func (e *VerificationError) Unwrap() error { return domain.ErrCollateralVerificationFailed }
