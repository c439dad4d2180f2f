package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestNormalizeRate(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"0.10", "0.10"}, // fraction, used as-is
		{"0.04", "0.04"},
		{"10", "0.1"}, // whole percent
		{"4", "0.04"},
		{"1", "0.01"}, // boundary: 1 reads as 1%
		{"0.9999", "0.9999"},
	}
	for _, c := range cases {
		got := NormalizeRate(decimal.RequireFromString(c.in))
		if !got.Equal(decimal.RequireFromString(c.want)) {
			t.Errorf("NormalizeRate(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestResolveRates_Precedence(t *testing.T) {
	defaults := GlobalRates{PlatformFeePercent: dec("4"), ProcessorFeePercent: dec("1.98")}

	evOverride := dec("0.10")
	orgOverride := dec("7")

	// Event override wins over both.
	r := ResolveRates(defaults,
		Event{PlatformFeePercent: &evOverride},
		Organizer{PlatformFeePercent: &orgOverride})
	if !r.Platform.Equal(dec("0.10")) {
		t.Errorf("event override: platform = %s, want 0.10", r.Platform)
	}

	// Organizer override when the event has none.
	r = ResolveRates(defaults, Event{}, Organizer{PlatformFeePercent: &orgOverride})
	if !r.Platform.Equal(dec("0.07")) {
		t.Errorf("organizer override: platform = %s, want 0.07", r.Platform)
	}

	// Global default otherwise.
	r = ResolveRates(defaults, Event{}, Organizer{})
	if !r.Platform.Equal(dec("0.04")) {
		t.Errorf("default: platform = %s, want 0.04", r.Platform)
	}
	if !r.Processor.Equal(dec("0.0198")) {
		t.Errorf("default: processor = %s, want 0.0198", r.Processor)
	}
}

func TestResolveRates_OverrideEncodings(t *testing.T) {
	defaults := GlobalRates{PlatformFeePercent: dec("4"), ProcessorFeePercent: dec("1.98")}

	fraction := dec("0.05")
	r := ResolveRates(defaults, Event{PlatformFeePercent: &fraction}, Organizer{})
	if !r.Platform.Equal(dec("0.05")) {
		t.Errorf("fraction override: platform = %s, want 0.05", r.Platform)
	}

	whole := dec("5")
	r = ResolveRates(defaults, Event{PlatformFeePercent: &whole}, Organizer{})
	if !r.Platform.Equal(dec("0.05")) {
		t.Errorf("whole-percent override: platform = %s, want 0.05", r.Platform)
	}
}

func TestResolveRates_LegacyProcessorRemap(t *testing.T) {
	// The retired default, stored as a fraction.
	defaults := GlobalRates{PlatformFeePercent: dec("4"), ProcessorFeePercent: dec("0.015")}
	r := ResolveRates(defaults, Event{}, Organizer{})
	if !r.Processor.Equal(dec("0.0198")) {
		t.Errorf("legacy fraction: processor = %s, want 0.0198", r.Processor)
	}

	// The retired default, stored as a whole percent.
	defaults.ProcessorFeePercent = dec("1.5")
	r = ResolveRates(defaults, Event{}, Organizer{})
	if !r.Processor.Equal(dec("0.0198")) {
		t.Errorf("legacy whole percent: processor = %s, want 0.0198", r.Processor)
	}

	// A non-legacy value passes through untouched.
	defaults.ProcessorFeePercent = dec("0.02")
	r = ResolveRates(defaults, Event{}, Organizer{})
	if !r.Processor.Equal(dec("0.02")) {
		t.Errorf("custom processor rate = %s, want 0.02", r.Processor)
	}
}
