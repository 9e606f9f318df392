package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// FeeModel selects how a venue's trading fee rate is applied.
type FeeModel string

const (
	// FeeModelNotional charges rate × price × size.
	FeeModelNotional FeeModel = "notional"
	// FeeModelQuadratic charges ceil_cent(rate × size × price × (1 − price)).
	FeeModelQuadratic FeeModel = "quadratic"
	// FeeModelProfit charges rate × (1 − price) × size, a share of the
	// maximum payout profit.
	FeeModelProfit FeeModel = "profit"
)

// SettlementModel selects how a venue charges on a winning contract.
type SettlementModel string

const (
	SettlementNone        SettlementModel = "none"
	SettlementPerContract SettlementModel = "per_contract"
	SettlementProfit      SettlementModel = "profit"
)

// OrderType is the intended liquidity role of an order.
type OrderType string

const (
	OrderTypeTaker OrderType = "taker"
	OrderTypeMaker OrderType = "maker"
)

var cent = decimal.RequireFromString("0.01")

// FeeSchedule is the immutable fee configuration of one venue.
type FeeSchedule struct {
	Venue           Venue
	Model           FeeModel
	MakerFee        decimal.Decimal
	TakerFee        decimal.Decimal
	PerContractFee  decimal.Decimal
	MinFee          decimal.Decimal
	MaxFee          decimal.Decimal // zero means uncapped
	SettlementModel SettlementModel
	SettlementFee   decimal.Decimal
}

// Validate rejects unknown models and negative terms.
func (f FeeSchedule) Validate() error {
	switch f.Model {
	case FeeModelNotional, FeeModelQuadratic, FeeModelProfit:
	default:
		return fmt.Errorf("fee schedule %s: unknown fee model %q", f.Venue, f.Model)
	}
	switch f.SettlementModel {
	case SettlementNone, SettlementPerContract, SettlementProfit, "":
	default:
		return fmt.Errorf("fee schedule %s: unknown settlement model %q", f.Venue, f.SettlementModel)
	}
	for name, v := range map[string]decimal.Decimal{
		"maker_fee": f.MakerFee, "taker_fee": f.TakerFee, "per_contract_fee": f.PerContractFee,
		"min_fee": f.MinFee, "max_fee": f.MaxFee, "settlement_fee": f.SettlementFee,
	} {
		if v.IsNegative() {
			return fmt.Errorf("fee schedule %s: %s must not be negative", f.Venue, name)
		}
	}
	if f.MaxFee.IsPositive() && f.MaxFee.LessThan(f.MinFee) {
		return fmt.Errorf("fee schedule %s: max_fee below min_fee", f.Venue)
	}
	return nil
}

// Fee returns the total trading fee for size contracts at price.
func (f FeeSchedule) Fee(price decimal.Decimal, size int64, typ OrderType) decimal.Decimal {
	if size <= 0 {
		return decimal.Zero
	}
	rate := f.TakerFee
	if typ == OrderTypeMaker {
		rate = f.MakerFee
	}
	qty := decimal.NewFromInt(size)

	var fee decimal.Decimal
	switch f.Model {
	case FeeModelQuadratic:
		raw := rate.Mul(qty).Mul(price).Mul(One.Sub(price))
		fee = ceilCent(raw)
	case FeeModelProfit:
		fee = rate.Mul(One.Sub(price)).Mul(qty)
	default:
		fee = rate.Mul(price).Mul(qty)
	}
	fee = fee.Add(f.PerContractFee.Mul(qty))

	if fee.LessThan(f.MinFee) {
		fee = f.MinFee
	}
	if f.MaxFee.IsPositive() && fee.GreaterThan(f.MaxFee) {
		fee = f.MaxFee
	}
	return fee
}

// Settlement returns the fee charged if size contracts bought at price win.
func (f FeeSchedule) Settlement(price decimal.Decimal, size int64) decimal.Decimal {
	qty := decimal.NewFromInt(size)
	switch f.SettlementModel {
	case SettlementPerContract:
		return f.SettlementFee.Mul(qty)
	case SettlementProfit:
		return f.SettlementFee.Mul(One.Sub(price)).Mul(qty)
	default:
		return decimal.Zero
	}
}

// ceilCent rounds d up to the next cent.
func ceilCent(d decimal.Decimal) decimal.Decimal {
	return d.Div(cent).Ceil().Mul(cent)
}
