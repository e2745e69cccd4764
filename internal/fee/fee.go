package fee

// Policy computes the platform fee retained from gross escrow funding.
// It is the single source of truth for both the funding confirmation path
// and UI-facing estimates; amounts are in currency minor units.
type Policy struct {
	BasisPoints int64
	FloorCents  int64
}

// Default is the platform contract: 5% with a 50 cent floor.
func Default() Policy {
	return Policy{BasisPoints: 500, FloorCents: 50}
}

// Compute splits gross into platform fee and net payable amount.
// Invariants: fee >= FloorCents for gross > 0, and net + fee == gross.
func (p Policy) Compute(gross int64) (fee int64, net int64) {
	if gross <= 0 {
		return 0, 0
	}

	fee = (gross*p.BasisPoints + 5_000) / 10_000
	if fee < p.FloorCents {
		fee = p.FloorCents
	}
	if fee > gross {
		fee = gross
	}
	return fee, gross - fee
}
