package nft

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/pkg/u256"
)

var (
	ErrTokenNotFound   = errors.New("token not found")
	ErrNotTokenOwner   = errors.New("Not owner of NFT")
	ErrNotApproved     = errors.New("NFT not approved")
	ErrTransferBlocked = errors.New("NFT transfer reverted")
	ErrZeroRecipient   = errors.New("NFT transfer to the zero address")
	ErrTokenExists     = errors.New("token already minted")
)

// Item identifies one NFT: contract address plus token id.
type Item struct {
	Contract common.Address `json:"nft_address"`
	TokenID  u256.Int       `json:"token_id"`
}

// Token is the ownership record of one NFT on the chain ledger. Frozen models a
// token contract whose transfer reverts.
type Token struct {
	Contract  common.Address `gorm:"column:contract;primaryKey;size:20"`
	TokenID   u256.Int       `gorm:"column:token_id;primaryKey;size:78"`
	Owner     common.Address `gorm:"column:owner;size:20;not null;index"`
	Approved  common.Address `gorm:"column:approved;size:20;not null"`
	Frozen    bool           `gorm:"column:frozen;not null;default:false"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (Token) TableName() string { return "nft_tokens" }

func (t *Token) Item() Item { return Item{Contract: t.Contract, TokenID: t.TokenID} }

// OperatorApproval is an ERC-721 setApprovalForAll entry.
type OperatorApproval struct {
	Contract  common.Address `gorm:"column:contract;primaryKey;size:20"`
	Owner     common.Address `gorm:"column:owner;primaryKey;size:20"`
	Operator  common.Address `gorm:"column:operator;primaryKey;size:20"`
	Approved  bool           `gorm:"column:approved;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}

func (OperatorApproval) TableName() string { return "nft_operator_approvals" }
