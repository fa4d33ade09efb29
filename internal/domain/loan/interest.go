package loan

import "nftlend-backend/pkg/u256"

const (
	SecondsPerYear = 365 * 24 * 60 * 60
	BpsDenominator = 10_000

	// floor = principal * rate * 5 / 1_000_000
	minInterestNumerator   = 5
	minInterestDenominator = 1_000_000
)

// SimulateInterest returns the interest owed on principal at rateBps after
// elapsed seconds of a loan lasting duration seconds. Elapsed time is capped
// at the duration and the result never drops below the minimum-interest floor.
func SimulateInterest(principal u256.Int, rateBps uint32, elapsed, duration int64) (u256.Int, error) {
	if elapsed < 0 {
		elapsed = 0
	}
	if duration >= 0 && elapsed > duration {
		elapsed = duration
	}
	pr, err := principal.Mul(u256.New(uint64(rateBps)))
	if err != nil {
		return u256.Zero, err
	}
	regular, err := pr.MulDiv(u256.New(uint64(elapsed)), u256.New(BpsDenominator*SecondsPerYear))
	if err != nil {
		return u256.Zero, err
	}
	floor, err := pr.MulDiv(u256.New(minInterestNumerator), u256.New(minInterestDenominator))
	if err != nil {
		return u256.Zero, err
	}
	return u256.Max(regular, floor), nil
}

// ProtocolFee is the share of interest kept by the protocol.
func ProtocolFee(interest u256.Int, feeBps uint32) (u256.Int, error) {
	return interest.MulDiv(u256.New(uint64(feeBps)), u256.New(BpsDenominator))
}
