package mathx

import "testing"

func TestClamp(t *testing.T) {
	type C struct {
		v, lo, hi, want uint32
	}
	for _, c := range []C{
		{5, 1, 10, 5},
		{0, 1, 10, 1},
		{99, 1, 10, 10},
		{5, 10, 1, 5}, // swapped bounds
		{7, 7, 7, 7},
	} {
		if got := Clamp(c.v, c.lo, c.hi); got != c.want {
			t.Fatalf("Clamp(%d,%d,%d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}

func TestMinMax(t *testing.T) {
	if got := Min(3, 9); got != 3 {
		t.Fatalf("Min(3,9) = %d", got)
	}
	if got := Min(9, 3); got != 3 {
		t.Fatalf("Min(9,3) = %d", got)
	}
	if got := Max(3, 9); got != 9 {
		t.Fatalf("Max(3,9) = %d", got)
	}
	if got := Max("a", "b"); got != "b" {
		t.Fatalf("Max(a,b) = %q", got)
	}
}

func TestCeilDiv(t *testing.T) {
	type C struct {
		a, b, want uint32
	}
	for _, c := range []C{
		{0, 4, 0},
		{1, 4, 1},
		{4, 4, 1},
		{5, 4, 2},
		{256, 256, 1},
		{257, 256, 2},
		{7, 0, 0}, // zero divisor
	} {
		if got := CeilDiv(c.a, c.b); got != c.want {
			t.Fatalf("CeilDiv(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestRoundDiv(t *testing.T) {
	type C struct {
		a, b, want uint64
	}
	for _, c := range []C{
		{0, 10, 0},
		{4, 10, 0},
		{5, 10, 1}, // half rounds up
		{14, 10, 1},
		{15, 10, 2},
		{50 * 100, 200, 25}, // percent maths
		{7, 0, 0},
	} {
		if got := RoundDiv(c.a, c.b); got != c.want {
			t.Fatalf("RoundDiv(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}
