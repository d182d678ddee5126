package intent

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"100 triệu", 100_000_000},
		{"500 triệu", 500_000_000},
		{"1,5 tỷ", 1_500_000_000},
		{"2 tỷ", 2_000_000_000},
		{"200k", 200_000},
		{"500.000.000", 500_000_000},
		{"300 nghìn", 300_000},
		{"không có số", 0},
	}
	for _, c := range cases {
		if got := ParseAmount(c.in); got != c.want {
			t.Fatalf("ParseAmount(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestParseTermMonths(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"6 tháng", 6},
		{"15 thang", 15},
		{"2 năm", 24},
		{"5 nam", 60},
		{"60 months", 60},
		{"1 year", 12},
		{"vô thời hạn", 0},
	}
	for _, c := range cases {
		if got := ParseTermMonths(c.in); got != c.want {
			t.Fatalf("ParseTermMonths(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestNormalizeDerivesFields(t *testing.T) {
	in := Intent{Domain: DomainLoan, AmountText: "500 triệu", TermText: "5 năm"}
	out := in.Normalize()
	if out.Principal != 500_000_000 {
		t.Fatalf("Principal = %v, want 500000000", out.Principal)
	}
	if out.TermYears != 5 {
		t.Fatalf("TermYears = %v, want 5", out.TermYears)
	}
	if out.Channel != ChannelOnline {
		t.Fatalf("Channel = %q, want online default", out.Channel)
	}
}

func TestNormalizeKeepsExplicitValues(t *testing.T) {
	in := Intent{Principal: 42, TermYears: 3, Channel: ChannelCounter}
	out := in.Normalize()
	if out.Principal != 42 || out.TermYears != 3 || out.Channel != ChannelCounter {
		t.Fatalf("explicit values changed: %+v", out)
	}
	if out.Domain != DomainGeneral {
		t.Fatalf("Domain = %q, want general default", out.Domain)
	}
}
