package protocol

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Params are the lending parameters fixed at startup.
type Params struct {
	Addresses    Addresses
	FeeCollector common.Address

	ProtocolFeeBps uint32
	MinInterestBps uint32
	MaxInterestBps uint32
	// MaxOfferValidity bounds a counter-offer's validity, in seconds.
	MaxOfferValidity int64
	// MaxLoanDuration bounds a loan's duration, in seconds.
	MaxLoanDuration  int64
	AllowSelfDealing bool
}

// ValidDuration reports whether d is a usable loan duration.
func (p Params) ValidDuration(d int64) bool { return d > 0 && d <= p.MaxLoanDuration }

// DefaultParams mirrors the configuration defaults.
func DefaultParams(feeCollector common.Address) Params {
	return Params{
		Addresses:        DefaultAddresses(),
		FeeCollector:     feeCollector,
		ProtocolFeeBps:   1000,
		MinInterestBps:   100,
		MaxInterestBps:   10000,
		MaxOfferValidity: int64((30 * 24 * time.Hour).Seconds()),
		MaxLoanDuration:  int64((5 * 365 * 24 * time.Hour).Seconds()),
	}
}

// Clock returns the current block-timestamp equivalent in unix seconds.
type Clock func() int64

func SystemClock() int64 { return time.Now().Unix() }
