package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var defaultRates = Rates{Platform: dec("0.04"), Processor: dec("0.0198")}

func TestComputeFees_CustomerBearer(t *testing.T) {
	b := ComputeFees(dec("100"), decimal.Zero, FeeBearerCustomer, defaultRates)

	if !b.PlatformFee.Equal(dec("4")) {
		t.Errorf("platform fee = %s, want 4", b.PlatformFee)
	}
	if !b.ProcessorFee.Equal(dec("1.98")) {
		t.Errorf("processor fee = %s, want 1.98", b.ProcessorFee)
	}
	if !b.ClientFees.Equal(dec("5.98")) {
		t.Errorf("client fees = %s, want 5.98", b.ClientFees)
	}
	if !b.CustomerTotal.Equal(dec("105.98")) {
		t.Errorf("customer total = %s, want 105.98", b.CustomerTotal)
	}
	if !b.OrganizerPayout.Equal(dec("100")) {
		t.Errorf("organizer payout = %s, want 100", b.OrganizerPayout)
	}
}

func TestComputeFees_OrganizerBearer(t *testing.T) {
	b := ComputeFees(dec("100"), decimal.Zero, FeeBearerOrganizer, defaultRates)

	if !b.ClientFees.Equal(dec("4")) {
		t.Errorf("client fees = %s, want 4 (platform fee only)", b.ClientFees)
	}
	if !b.CustomerTotal.Equal(dec("104")) {
		t.Errorf("customer total = %s, want 104", b.CustomerTotal)
	}
	if !b.OrganizerPayout.Equal(dec("98.02")) {
		t.Errorf("organizer payout = %s, want 98.02", b.OrganizerPayout)
	}
}

func TestComputeFees_AddOnsExemptFromPlatformFee(t *testing.T) {
	b := ComputeFees(dec("100"), dec("50"), FeeBearerCustomer, defaultRates)

	if !b.PlatformFee.Equal(dec("4")) {
		t.Errorf("platform fee = %s, want 4 (tickets only)", b.PlatformFee)
	}
	if !b.ProcessorFee.Equal(dec("2.97")) {
		t.Errorf("processor fee = %s, want 2.97 (150 x 0.0198)", b.ProcessorFee)
	}
	if !b.CustomerTotal.Equal(dec("156.97")) {
		t.Errorf("customer total = %s, want 156.97", b.CustomerTotal)
	}
	if !b.OrganizerPayout.Equal(dec("150")) {
		t.Errorf("organizer payout = %s, want 150", b.OrganizerPayout)
	}
}

func TestComputeFees_EventOverrideRate(t *testing.T) {
	rates := Rates{Platform: NormalizeRate(dec("0.10")), Processor: dec("0.0198")}
	b := ComputeFees(dec("100"), decimal.Zero, FeeBearerCustomer, rates)

	if !b.PlatformFee.Equal(dec("10")) {
		t.Errorf("platform fee = %s, want 10", b.PlatformFee)
	}
}

func TestComputeFees_BearerIdentities(t *testing.T) {
	subtotals := []string{"0", "1", "99.99", "12345.67"}
	for _, s := range subtotals {
		sub := dec(s)

		c := ComputeFees(sub, decimal.Zero, FeeBearerCustomer, defaultRates)
		if !c.CustomerTotal.Equal(sub.Add(c.PlatformFee).Add(c.ProcessorFee)) {
			t.Errorf("customer bearer, subtotal %s: total %s != S + fees", s, c.CustomerTotal)
		}
		if !c.OrganizerPayout.Equal(sub) {
			t.Errorf("customer bearer, subtotal %s: payout %s != S", s, c.OrganizerPayout)
		}

		o := ComputeFees(sub, decimal.Zero, FeeBearerOrganizer, defaultRates)
		if !o.OrganizerPayout.Equal(sub.Sub(o.ProcessorFee)) {
			t.Errorf("organizer bearer, subtotal %s: payout %s != S - processor fee", s, o.OrganizerPayout)
		}
		if !o.CustomerTotal.Equal(sub.Add(o.PlatformFee)) {
			t.Errorf("organizer bearer, subtotal %s: total %s != S + platform fee", s, o.CustomerTotal)
		}
	}
}

func TestDiscountedSubtotal(t *testing.T) {
	price := dec("50")

	if got := DiscountedSubtotal(price, 2, nil); !got.Equal(dec("100")) {
		t.Errorf("no discount = %s, want 100", got)
	}

	pct := &Discount{Kind: DiscountPercentage, Value: dec("10")}
	if got := DiscountedSubtotal(price, 2, pct); !got.Equal(dec("90")) {
		t.Errorf("10%% discount = %s, want 90", got)
	}

	fixed := &Discount{Kind: DiscountFixed, Value: dec("30")}
	if got := DiscountedSubtotal(price, 2, fixed); !got.Equal(dec("70")) {
		t.Errorf("fixed 30 discount = %s, want 70", got)
	}

	huge := &Discount{Kind: DiscountFixed, Value: dec("500")}
	if got := DiscountedSubtotal(price, 2, huge); !got.Equal(decimal.Zero) {
		t.Errorf("oversized fixed discount = %s, want 0", got)
	}
}

func TestMinorUnits(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"105.98", 10598},
		{"100", 10000},
		{"0", 0},
		{"1.005", 101}, // half up
		{"1.004", 100},
		{"2.97", 297},
	}
	for _, c := range cases {
		if got := MinorUnits(dec(c.in)); got != c.want {
			t.Errorf("MinorUnits(%s) = %d, want %d", c.in, got, c.want)
		}
	}
}
