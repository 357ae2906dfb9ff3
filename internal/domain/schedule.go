package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidSchedule indicates a discount schedule violating the tier invariants.
// Schedules are authored with the catalog, so hitting this at runtime means the
// stored data is corrupt.
var ErrInvalidSchedule = errors.New("schedule: invalid discount schedule")

// DiscountTier maps a minimum participant count to a discounted unit price.
type DiscountTier struct {
	MinCount     int           `firestore:"minCount" json:"minCount"`
	Price        int64         `firestore:"price" json:"price"`
	SavingsLabel LocalizedText `firestore:"savingsLabel" json:"savingsLabel"`
}

// DiscountSchedule is an ordered sequence of tiers sorted ascending by
// MinCount. The base price acts as the implicit MinCount=1 tier.
type DiscountSchedule []DiscountTier

// Clone returns an independent copy of the schedule.
func (s DiscountSchedule) Clone() DiscountSchedule {
	if s == nil {
		return nil
	}
	clone := make(DiscountSchedule, len(s))
	copy(clone, s)
	return clone
}

// Validate checks the tier invariants against the given base price: MinCount
// strictly increasing and at least 2, prices positive, and price never
// increasing as the headcount requirement grows (a tier may not cost more
// than a lower tier, and no tier may exceed the base price).
func (s DiscountSchedule) Validate(basePrice int64) error {
	if basePrice <= 0 {
		return fmt.Errorf("%w: base price must be positive", ErrInvalidSchedule)
	}
	prevCount := 1
	prevPrice := basePrice
	for i, tier := range s {
		if tier.MinCount <= prevCount {
			return fmt.Errorf("%w: tier %d minCount %d must exceed %d", ErrInvalidSchedule, i, tier.MinCount, prevCount)
		}
		if tier.Price <= 0 {
			return fmt.Errorf("%w: tier %d price must be positive", ErrInvalidSchedule, i)
		}
		if tier.Price > prevPrice {
			return fmt.Errorf("%w: tier %d price %d exceeds lower tier price %d", ErrInvalidSchedule, i, tier.Price, prevPrice)
		}
		prevCount = tier.MinCount
		prevPrice = tier.Price
	}
	return nil
}

// PriceQuote is the outcome of resolving a schedule for a participant count.
type PriceQuote struct {
	UnitPrice int64 `json:"unitPrice"`
	Savings   int64 `json:"savings"`
	// Tier is nil when the count qualifies for no tier and the base price applies.
	Tier *DiscountTier `json:"tier,omitempty"`
}

// ResolvePrice returns the unit price for the given participant count: the
// tier with the highest MinCount not exceeding the count wins, otherwise the
// base price. Deterministic and side-effect free.
func ResolvePrice(schedule DiscountSchedule, basePrice int64, count int) (PriceQuote, error) {
	if err := schedule.Validate(basePrice); err != nil {
		return PriceQuote{}, err
	}
	if count < 0 {
		count = 0
	}

	quote := PriceQuote{UnitPrice: basePrice}
	for i := range schedule {
		if schedule[i].MinCount > count {
			break
		}
		tier := schedule[i]
		quote.UnitPrice = tier.Price
		quote.Tier = &tier
	}
	quote.Savings = basePrice - quote.UnitPrice
	return quote, nil
}
