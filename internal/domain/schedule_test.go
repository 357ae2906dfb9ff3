package domain

import (
	"errors"
	"testing"
)

func testSchedule() DiscountSchedule {
	return DiscountSchedule{
		{MinCount: 3, Price: 4799, SavingsLabel: LocalizedText{En: "Save 200 SAR", Ar: "وفر 200 ريال"}},
		{MinCount: 5, Price: 4599, SavingsLabel: LocalizedText{En: "Save 400 SAR", Ar: "وفر 400 ريال"}},
		{MinCount: 10, Price: 4199, SavingsLabel: LocalizedText{En: "Save 800 SAR", Ar: "وفر 800 ريال"}},
	}
}

func TestResolvePrice_TierSelection(t *testing.T) {
	schedule := testSchedule()
	cases := []struct {
		count     int
		wantPrice int64
		wantTier  int
	}{
		{count: 0, wantPrice: 4999, wantTier: 0},
		{count: 1, wantPrice: 4999, wantTier: 0},
		{count: 2, wantPrice: 4999, wantTier: 0},
		{count: 3, wantPrice: 4799, wantTier: 3},
		{count: 4, wantPrice: 4799, wantTier: 3},
		{count: 5, wantPrice: 4599, wantTier: 5},
		{count: 9, wantPrice: 4599, wantTier: 5},
		{count: 10, wantPrice: 4199, wantTier: 10},
		{count: 42, wantPrice: 4199, wantTier: 10},
	}

	for _, tc := range cases {
		quote, err := ResolvePrice(schedule, 4999, tc.count)
		if err != nil {
			t.Fatalf("ResolvePrice(%d): %v", tc.count, err)
		}
		if quote.UnitPrice != tc.wantPrice {
			t.Fatalf("ResolvePrice(%d) price = %d, want %d", tc.count, quote.UnitPrice, tc.wantPrice)
		}
		if tc.wantTier == 0 {
			if quote.Tier != nil {
				t.Fatalf("ResolvePrice(%d) expected base price, got tier %d", tc.count, quote.Tier.MinCount)
			}
		} else if quote.Tier == nil || quote.Tier.MinCount != tc.wantTier {
			t.Fatalf("ResolvePrice(%d) tier = %+v, want minCount %d", tc.count, quote.Tier, tc.wantTier)
		}
		if quote.Savings != 4999-tc.wantPrice {
			t.Fatalf("ResolvePrice(%d) savings = %d", tc.count, quote.Savings)
		}
	}
}

func TestResolvePrice_NegativeCountTreatedAsZero(t *testing.T) {
	quote, err := ResolvePrice(testSchedule(), 4999, -3)
	if err != nil {
		t.Fatalf("ResolvePrice: %v", err)
	}
	if quote.UnitPrice != 4999 || quote.Tier != nil {
		t.Fatalf("expected base price, got %+v", quote)
	}
}

func TestScheduleValidate_NonMonotonicMinCount(t *testing.T) {
	schedule := DiscountSchedule{
		{MinCount: 5, Price: 4599},
		{MinCount: 3, Price: 4799},
	}
	if err := schedule.Validate(4999); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestScheduleValidate_PriceIncreasesWithHeadcount(t *testing.T) {
	schedule := DiscountSchedule{
		{MinCount: 3, Price: 4599},
		{MinCount: 5, Price: 4799},
	}
	if err := schedule.Validate(4999); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestScheduleValidate_TierAboveBasePrice(t *testing.T) {
	schedule := DiscountSchedule{{MinCount: 3, Price: 5999}}
	if err := schedule.Validate(4999); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
}

func TestScheduleValidate_EmptyScheduleIsValid(t *testing.T) {
	if err := DiscountSchedule(nil).Validate(4999); err != nil {
		t.Fatalf("empty schedule should be valid: %v", err)
	}
}

func TestScheduleClone_Independent(t *testing.T) {
	original := testSchedule()
	clone := original.Clone()
	clone[0].Price = 1
	if original[0].Price == 1 {
		t.Fatalf("clone shares backing array with original")
	}
}
