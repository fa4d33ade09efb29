package collateral

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type ClaimResult struct {
	Success bool          `json:"success"`
	Result  hexutil.Bytes `json:"result"`
	Error   string        `json:"error,omitempty"`
}

type EscrowDTO struct {
	ID        uint64           `json:"id"`
	Address   common.Address   `json:"address"`
	NFT       common.Address   `json:"nft_address"`
	TokenID   string           `json:"token_id"`
	LoanID    uint64           `json:"loan_id"`
	Borrower  common.Address   `json:"borrower"`
	Lender    common.Address   `json:"lender"`
	Deposited bool             `json:"deposited"`
	Released  bool             `json:"released"`
	Delegates []common.Address `json:"delegates"`
}
