package numeric

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return d
}

func TestRoundToNearest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		increment string
		want      string
	}{
		{"exact multiple unchanged", "50000", "0.5", "50000"},
		{"round down side", "50000.2", "0.5", "50000"},
		{"round up side", "50000.3", "0.5", "50000.5"},
		{"half away from zero", "0.75", "0.5", "1"},
		{"negative half away from zero", "-0.75", "0.5", "-1"},
		{"tiny increment", "0.123456", "0.0001", "0.1235"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := RoundToNearest(dec(t, tt.input), dec(t, tt.increment))
			if !got.Equal(dec(t, tt.want)) {
				t.Errorf("RoundToNearest(%s, %s) = %s, want %s", tt.input, tt.increment, got, tt.want)
			}
		})
	}
}

func TestRoundUpDown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		increment string
		wantUp    string
		wantDown  string
	}{
		{"between multiples", "10.01", "0.05", "10.05", "10"},
		{"exact multiple", "10.05", "0.05", "10.05", "10.05"},
		{"negative", "-10.01", "0.05", "-10", "-10.05"},
		{"quantity increment", "0.0019", "0.001", "0.002", "0.001"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in, inc := dec(t, tt.input), dec(t, tt.increment)
			if got := RoundUp(in, inc); !got.Equal(dec(t, tt.wantUp)) {
				t.Errorf("RoundUp = %s, want %s", got, tt.wantUp)
			}
			if got := RoundDown(in, inc); !got.Equal(dec(t, tt.wantDown)) {
				t.Errorf("RoundDown = %s, want %s", got, tt.wantDown)
			}
		})
	}
}

// The result must be an exact decimal multiple of the increment, and
// rounding an already-rounded value must be a no-op.
func TestRoundDownExactMultipleAndIdempotent(t *testing.T) {
	t.Parallel()

	in, inc := dec(t, "123.45678"), dec(t, "0.01")
	once := RoundDown(in, inc)
	if !once.Mod(inc).IsZero() {
		t.Errorf("RoundDown result %s is not a multiple of %s", once, inc)
	}
	twice := RoundDown(once, inc)
	if !twice.Equal(once) {
		t.Errorf("RoundDown not idempotent: %s then %s", once, twice)
	}
}

func TestNormalizeDecimalString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"1.2300", "1.23"},
		{"1.000", "1"},
		{"100", "100"},
		{"0.0010", "0.001"},
		{"10.", "10"},
		{"0", "0"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got := NormalizeDecimalString(tt.in)
			if got != tt.want {
				t.Errorf("NormalizeDecimalString(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if again := NormalizeDecimalString(got); again != got {
				t.Errorf("not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestRemoveLeadingNegativeSign(t *testing.T) {
	t.Parallel()

	if got := RemoveLeadingNegativeSign("-1.5"); got != "1.5" {
		t.Errorf("got %q", got)
	}
	if got := RemoveLeadingNegativeSign("1.5"); got != "1.5" {
		t.Errorf("got %q", got)
	}
}
