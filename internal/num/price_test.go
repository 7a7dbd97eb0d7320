package num

import "testing"

func TestParseAndString(t *testing.T) {
	tests := []struct {
		in      string
		raw     int64
		rendered string
	}{
		{"0", 0, "0"},
		{"2345.5", 23455000, "2345.5"},
		{"2345.50", 23455000, "2345.5"},
		{"-12.25", -122500, "-12.25"},
		{"100", 1000000, "100"},
		{"0.0001", 1, "0.0001"},
		{".5", 5000, "0.5"},
		{"1.23456789", 12345, "1.2345"}, // extra digits truncated
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := Parse(tt.in)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.in, err)
			}
			if p.Raw() != tt.raw {
				t.Fatalf("Parse(%q).Raw()=%d, expected %d", tt.in, p.Raw(), tt.raw)
			}
			if got := p.String(); got != tt.rendered {
				t.Fatalf("String()=%q, expected %q", got, tt.rendered)
			}
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "1,5"} {
		if _, err := Parse(in); err == nil {
			t.Fatalf("Parse(%q) expected error", in)
		}
	}
}

func TestArithmetic(t *testing.T) {
	a := MustParse("100.5")
	b := MustParse("2")
	if got := a.Add(b); got != MustParse("102.5") {
		t.Fatalf("Add=%v", got)
	}
	if got := a.Sub(b); got != MustParse("98.5") {
		t.Fatalf("Sub=%v", got)
	}
	if a.Cmp(b) != 1 || b.Cmp(a) != -1 || a.Cmp(a) != 0 {
		t.Fatal("Cmp ordering wrong")
	}
	if !b.Less(a) || !a.Greater(b) {
		t.Fatal("Less/Greater wrong")
	}
	if got := b.Neg(); got != MustParse("-2") {
		t.Fatalf("Neg=%v", got)
	}
}

// Division must truncate toward zero for both signs.
func TestDivVolTruncatesTowardZero(t *testing.T) {
	tests := []struct {
		amount Price
		vol    int64
		want   Price
	}{
		{FromRaw(10), 3, FromRaw(3)},
		{FromRaw(-10), 3, FromRaw(-3)},
		{FromRaw(10), 0, 0},
		{FromInt(300), 3, FromInt(100)},
	}
	for _, tt := range tests {
		if got := DivVol(tt.amount, tt.vol); got != tt.want {
			t.Fatalf("DivVol(%d,%d)=%d, expected %d", tt.amount, tt.vol, got, tt.want)
		}
	}
}
