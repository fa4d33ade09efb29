// Package msg carries the caller envelope passed into every mutating
// operation: who is calling and how much value travels with the call.
package msg

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"nftlend-backend/pkg/u256"
)

// Call mirrors a payable transaction: Value moves from From into the callee's
// custody account atomically with the operation.
type Call struct {
	From  common.Address
	Value u256.Int
}

// From builds a call without attached value.
func From(addr common.Address) Call { return Call{From: addr} }

// WithValue builds a payable call.
func WithValue(addr common.Address, value u256.Int) Call { return Call{From: addr, Value: value} }

// ErrNonPayable rejects value sent to an operation that does not accept it.
var ErrNonPayable = errors.New("function is not payable")

// RequireNoValue fails when c carries value.
func (c Call) RequireNoValue() error {
	if !c.Value.IsZero() {
		return ErrNonPayable
	}
	return nil
}
