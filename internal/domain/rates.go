package domain

import "github.com/shopspring/decimal"

var (
	DefaultPlatformRate  = decimal.NewFromFloat(0.04)
	DefaultProcessorRate = decimal.NewFromFloat(0.0198)

	// legacyProcessorRate is the retired processor default. Rows written
	// before the rate migration still carry it and are remapped by exact
	// comparison in ResolveRates.
	legacyProcessorRate = decimal.NewFromFloat(0.015)

	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// GlobalRates is the platform-wide rate configuration, passed in explicitly
// so a settlement is reproducible from its inputs alone.
type GlobalRates struct {
	PlatformFeePercent  decimal.Decimal
	ProcessorFeePercent decimal.Decimal
}

// NormalizeRate disambiguates the two historical rate encodings: values
// below 1.0 are already fractions (0.10 = 10%), values at or above 1.0 are
// whole percents (10 = 10%). Every consumer of a stored rate must go through
// this one function or charge and ledger diverge.
//
// A genuine override of 100% or more cannot be expressed under this rule; it
// would be read as a fraction. Known limitation of the legacy encoding.
func NormalizeRate(v decimal.Decimal) decimal.Decimal {
	if v.LessThan(one) {
		return v
	}
	return v.Div(hundred)
}

// ResolveRates merges the three platform-rate sources: event override first,
// then organizer override, then the global default. The processor rate is
// global-only.
func ResolveRates(defaults GlobalRates, ev Event, org Organizer) Rates {
	platform := defaults.PlatformFeePercent
	switch {
	case ev.PlatformFeePercent != nil:
		platform = *ev.PlatformFeePercent
	case org.PlatformFeePercent != nil:
		platform = *org.PlatformFeePercent
	}

	processor := NormalizeRate(defaults.ProcessorFeePercent)
	if processor.Equal(legacyProcessorRate) {
		processor = DefaultProcessorRate
	}

	return Rates{
		Platform:  NormalizeRate(platform),
		Processor: processor,
	}
}
