package domain

import "github.com/shopspring/decimal"

// Rates is the effective rate set for one settlement, already normalized to
// fractions (0.04 = 4%).
type Rates struct {
	Platform  decimal.Decimal
	Processor decimal.Decimal
}

// FeeBreakdown is the output of the fee policy engine. All amounts are in
// decimal currency units; conversion to gateway minor units happens only at
// the gateway boundary.
type FeeBreakdown struct {
	PlatformFee     decimal.Decimal
	ProcessorFee    decimal.Decimal
	ClientFees      decimal.Decimal
	CustomerTotal   decimal.Decimal
	OrganizerPayout decimal.Decimal
}

// ComputeFees splits revenue between the platform, the processor and the
// organizer. The platform fee applies to ticket revenue only; add-ons are
// exempt. The processor fee applies to everything that moves. Under the
// customer bearer the customer absorbs both fees and the organizer keeps the
// full subtotal; under the organizer bearer the customer still pays the
// platform fee and the processor fee comes out of the organizer's share.
func ComputeFees(ticketSubtotal, addonSubtotal decimal.Decimal, bearer FeeBearer, rates Rates) FeeBreakdown {
	platformFee := ticketSubtotal.Mul(rates.Platform)
	processorFee := ticketSubtotal.Add(addonSubtotal).Mul(rates.Processor)
	subtotal := ticketSubtotal.Add(addonSubtotal)

	b := FeeBreakdown{PlatformFee: platformFee, ProcessorFee: processorFee}
	switch bearer {
	case FeeBearerOrganizer:
		b.ClientFees = platformFee
		b.CustomerTotal = subtotal.Add(platformFee)
		b.OrganizerPayout = subtotal.Sub(processorFee)
	default:
		b.ClientFees = platformFee.Add(processorFee)
		b.CustomerTotal = subtotal.Add(b.ClientFees)
		b.OrganizerPayout = subtotal
	}
	return b
}

// DiscountedSubtotal applies a discount to price*quantity. Percentage values
// are whole percents (10 = 10% off); fixed values subtract from the line
// total and never push it below zero.
func DiscountedSubtotal(price decimal.Decimal, quantity int, d *Discount) decimal.Decimal {
	sub := price.Mul(decimal.NewFromInt(int64(quantity)))
	if d == nil {
		return sub
	}
	switch d.Kind {
	case DiscountFixed:
		sub = sub.Sub(d.Value)
		if sub.IsNegative() {
			sub = decimal.Zero
		}
	case DiscountPercentage:
		sub = sub.Sub(sub.Mul(d.Value).Div(decimal.NewFromInt(100)))
	}
	return sub
}

// MinorUnits converts a decimal currency amount to integer minor units,
// rounding half up. This is the only place amounts leave decimal space.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
