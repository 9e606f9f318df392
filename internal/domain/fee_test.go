package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFeeScheduleQuadraticRoundsUpToCent(t *testing.T) {
	kalshi := FeeSchedule{Venue: VenueKalshi, Model: FeeModelQuadratic, TakerFee: d("0.07")}

	cases := []struct {
		price string
		size  int64
		want  string
	}{
		{"0.50", 1, "0.02"},   // 0.0175
		{"0.50", 100, "1.75"}, // exact
		{"0.10", 1, "0.01"},   // 0.0063
		{"0.99", 10, "0.01"},  // 0.00693
	}
	for _, tc := range cases {
		got := kalshi.Fee(d(tc.price), tc.size, OrderTypeTaker)
		assert.True(t, got.Equal(d(tc.want)), "price %s size %d: got %s want %s", tc.price, tc.size, got, tc.want)
	}
}

func TestFeeScheduleClampAndPerContract(t *testing.T) {
	f := FeeSchedule{
		Venue:          VenuePolymarket,
		Model:          FeeModelNotional,
		TakerFee:       d("0.02"),
		MakerFee:       d("0"),
		PerContractFee: d("0.01"),
		MinFee:         d("0.05"),
		MaxFee:         d("0.50"),
	}

	// 0.02*0.5*1 + 0.01 = 0.02, below min.
	assert.True(t, f.Fee(d("0.50"), 1, OrderTypeTaker).Equal(d("0.05")))
	// 0.02*0.5*100 + 1.00 = 2.00, above max.
	assert.True(t, f.Fee(d("0.50"), 100, OrderTypeTaker).Equal(d("0.50")))
	// maker rate zero leaves the per-contract term: 0.10 for 10.
	assert.True(t, f.Fee(d("0.50"), 10, OrderTypeMaker).Equal(d("0.10")))
	assert.True(t, f.Fee(d("0.50"), 0, OrderTypeTaker).IsZero())
}

func TestFeeScheduleProfitModels(t *testing.T) {
	f := FeeSchedule{
		Model:           FeeModelProfit,
		TakerFee:        d("0.10"),
		SettlementModel: SettlementProfit,
		SettlementFee:   d("0.05"),
	}
	assert.True(t, f.Fee(d("0.40"), 10, OrderTypeTaker).Equal(d("0.6")))
	assert.True(t, f.Settlement(d("0.40"), 10).Equal(d("0.3")))

	per := FeeSchedule{SettlementModel: SettlementPerContract, SettlementFee: d("0.03")}
	assert.True(t, per.Settlement(d("0.40"), 10).Equal(d("0.3")))
	assert.True(t, FeeSchedule{}.Settlement(d("0.40"), 10).IsZero())
}

func TestFeeScheduleValidate(t *testing.T) {
	require.NoError(t, FeeSchedule{Model: FeeModelNotional}.Validate())
	assert.Error(t, FeeSchedule{Model: "tiered"}.Validate())
	assert.Error(t, FeeSchedule{Model: FeeModelNotional, TakerFee: d("-0.01")}.Validate())
	assert.Error(t, FeeSchedule{Model: FeeModelNotional, MinFee: d("1"), MaxFee: d("0.5")}.Validate())
}

func TestFillYesEquivalent(t *testing.T) {
	qty, px := Fill{Outcome: OutcomeYes, Side: OrderSideBuy, Price: d("0.46"), Size: 10}.YesEquivalent()
	assert.Equal(t, int64(10), qty)
	assert.True(t, px.Equal(d("0.46")))

	qty, px = Fill{Outcome: OutcomeNo, Side: OrderSideBuy, Price: d("0.50"), Size: 10}.YesEquivalent()
	assert.Equal(t, int64(-10), qty)
	assert.True(t, px.Equal(d("0.50")))

	qty, px = Fill{Outcome: OutcomeNo, Side: OrderSideSell, Price: d("0.30"), Size: 4}.YesEquivalent()
	assert.Equal(t, int64(4), qty)
	assert.True(t, px.Equal(d("0.70")))
}
