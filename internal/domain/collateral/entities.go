package collateral

import (
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"nftlend-backend/internal/domain/nft"
	"nftlend-backend/pkg/u256"
)

var (
	ErrEscrowNotFound       = errors.New("Escrow not found")
	ErrAlreadyCollateral    = errors.New("Collateral already active for this loan")
	ErrNoActiveCollateral   = errors.New("No active collateral for this loan")
	ErrNotApproved          = errors.New("Manager not approved for NFT")
	ErrUnauthorized         = errors.New("Caller not authorized")
	ErrNotBorrower          = errors.New("Only borrower")
	ErrForbiddenTarget      = errors.New("Cannot call NFT contract")
	ErrCannotRemoveBorrower = errors.New("Cannot remove borrower as delegate")
	ErrAlreadyDeposited     = errors.New("Already deposited")
	ErrNotDeposited         = errors.New("Not deposited")
	ErrAlreadyReleased      = errors.New("Already released")
	ErrDepositNotConfirmed  = errors.New("Deposit not confirmed")
	ErrZeroRecipient        = errors.New("Invalid recipient")
	ErrInvalidInterfaceID   = errors.New("Invalid interface id")
	ErrInterfaceNotFound    = errors.New("Interface not registered")
	ErrZeroTarget           = errors.New("Invalid benefit target")
	ErrZeroDelegate         = errors.New("Invalid delegate")
)

// Built-in interface ids the escrow always answers for.
const (
	InterfaceERC165         = "0x01ffc9a7"
	InterfaceERC721Receiver = "0x150b7a02"
)

var escrowInitCodeHash = crypto.Keccak256([]byte("nftlend.escrow.v1"))

// EscrowAddress derives the custody address of the escrow for one
// (nft, tokenId, loanId) triple, CREATE2-style from the manager address.
func EscrowAddress(manager, contract common.Address, tokenID u256.Int, loanID uint64) common.Address {
	token := tokenID.Bytes32()
	loan := u256.New(loanID).Bytes32()
	salt := crypto.Keccak256(contract.Bytes(), token[:], loan[:])
	var s [32]byte
	copy(s[:], salt)
	return crypto.CreateAddress2(manager, s, escrowInitCodeHash)
}

// NormalizeInterfaceID returns the canonical lower-case "0x" + 8 hex form.
func NormalizeInterfaceID(id string) (string, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	if !strings.HasPrefix(id, "0x") {
		id = "0x" + id
	}
	if len(id) != 10 {
		return "", ErrInvalidInterfaceID
	}
	for _, c := range id[2:] {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return "", ErrInvalidInterfaceID
		}
	}
	if id == "0xffffffff" {
		return "", ErrInvalidInterfaceID
	}
	return id, nil
}

// Escrow is the isolated custody record for exactly one NFT of one loan.
// Lifecycle: not deposited -> deposited -> released.
type Escrow struct {
	ID        uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	Address   common.Address `gorm:"column:address;size:20;not null;uniqueIndex" json:"address"`
	Contract  common.Address `gorm:"column:nft_address;size:20;not null;uniqueIndex:ux_escrow_triple" json:"nft_address"`
	TokenID   u256.Int       `gorm:"column:token_id;size:78;not null;uniqueIndex:ux_escrow_triple" json:"token_id"`
	LoanID    uint64         `gorm:"column:loan_id;not null;uniqueIndex:ux_escrow_triple" json:"loan_id"`
	Borrower  common.Address `gorm:"column:borrower;size:20;not null" json:"borrower"`
	Lender    common.Address `gorm:"column:lender;size:20;not null" json:"lender"`
	Deposited bool           `gorm:"column:deposited;not null" json:"deposited"`
	Released  bool           `gorm:"column:released;not null" json:"released"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (Escrow) TableName() string { return "escrows" }

func (e *Escrow) Item() nft.Item { return nft.Item{Contract: e.Contract, TokenID: e.TokenID} }

// Holding reports whether the escrow currently has custody.
func (e *Escrow) Holding() bool { return e.Deposited && !e.Released }

func (e *Escrow) MarkDeposited() error {
	switch {
	case e.Released:
		return ErrAlreadyReleased
	case e.Deposited:
		return ErrAlreadyDeposited
	}
	e.Deposited = true
	return nil
}

func (e *Escrow) MarkReleased() error {
	switch {
	case !e.Deposited:
		return ErrNotDeposited
	case e.Released:
		return ErrAlreadyReleased
	}
	e.Released = true
	return nil
}

// Record tracks whether an (nft, tokenId, loanId) triple is pledged.
type Record struct {
	ID            uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"-"`
	Contract      common.Address `gorm:"column:nft_address;size:20;not null;index:idx_collateral_triple" json:"nft_address"`
	TokenID       u256.Int       `gorm:"column:token_id;size:78;not null;index:idx_collateral_triple" json:"token_id"`
	LoanID        uint64         `gorm:"column:loan_id;not null;index:idx_collateral_triple" json:"loan_id"`
	Active        bool           `gorm:"column:active;not null" json:"active"`
	EscrowAddress common.Address `gorm:"column:escrow_address;size:20;not null" json:"escrow_address"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt     time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (Record) TableName() string { return "collateral_records" }

// Delegate is an address the borrower lets exercise NFT utility.
type Delegate struct {
	EscrowID  uint64         `gorm:"column:escrow_id;primaryKey" json:"escrow_id"`
	Address   common.Address `gorm:"column:address;primaryKey;size:20" json:"address"`
	Active    bool           `gorm:"column:active;not null" json:"active"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (Delegate) TableName() string { return "escrow_delegates" }

// PartnerInterface is an externally recognised interface id.
type PartnerInterface struct {
	InterfaceID  string         `gorm:"column:interface_id;primaryKey;size:10" json:"interface_id"`
	Partner      string         `gorm:"column:partner;size:128;not null" json:"partner"`
	Active       bool           `gorm:"column:active;not null" json:"active"`
	RegisteredBy common.Address `gorm:"column:registered_by;size:20;not null" json:"registered_by"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (PartnerInterface) TableName() string { return "partner_interfaces" }

// BenefitClaim is the audit row of one best-effort benefit call.
type BenefitClaim struct {
	ID        uint64         `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	EscrowID  uint64         `gorm:"column:escrow_id;not null;index" json:"escrow_id"`
	Caller    common.Address `gorm:"column:caller;size:20;not null" json:"caller"`
	Target    common.Address `gorm:"column:target;size:20;not null" json:"target"`
	Payload   []byte         `gorm:"column:payload" json:"payload"`
	Success   bool           `gorm:"column:success;not null" json:"success"`
	Result    []byte         `gorm:"column:result" json:"result"`
	Error     string         `gorm:"column:error;size:255" json:"error,omitempty"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (BenefitClaim) TableName() string { return "benefit_claims" }
