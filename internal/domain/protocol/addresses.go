// Package protocol names the custody accounts owned by the lending components.
package protocol

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Addresses holds the custody account of every component. Funds and NFTs held
// "by" a component live under these addresses in the chain ledger.
type Addresses struct {
	ProposalEngine    common.Address
	LoanEngine        common.Address
	CollateralManager common.Address
	Vault             common.Address
}

// ComponentAddress derives a stable address for a named component.
func ComponentAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("nftlend:" + name)))
}

// DefaultAddresses derives the component addresses used by every deployment.
func DefaultAddresses() Addresses {
	return Addresses{
		ProposalEngine:    ComponentAddress("proposal-engine"),
		LoanEngine:        ComponentAddress("loan-engine"),
		CollateralManager: ComponentAddress("collateral-manager"),
		Vault:             ComponentAddress("vault"),
	}
}

// IsComponent reports whether addr belongs to one of the components.
func (a Addresses) IsComponent(addr common.Address) bool {
	switch addr {
	case a.ProposalEngine, a.LoanEngine, a.CollateralManager, a.Vault:
		return true
	}
	return false
}
