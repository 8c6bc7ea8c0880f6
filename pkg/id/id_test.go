package id

import "testing"

func TestNextMonotonic(t *testing.T) {
	g := NewGenerator()
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		cur := g.Next()
		if prev.Compare(cur) >= 0 {
			t.Fatalf("id %d not increasing: %s >= %s", i, prev, cur)
		}
		prev = cur
	}
}

func TestNextClockBackwards(t *testing.T) {
	g := NewGenerator()
	now := int64(1_700_000_000_000)
	orig := NowMs
	NowMs = func() int64 { return now }
	t.Cleanup(func() { NowMs = orig })

	a := g.Next()
	now -= 50 // clock regression
	b := g.Next()
	if a.Compare(b) >= 0 {
		t.Fatalf("id regressed across clock step: %s >= %s", a, b)
	}
}

func TestStringSortsLikeBytes(t *testing.T) {
	g := NewGenerator()
	a, b := g.Next(), g.Next()
	if !(a.String() < b.String()) {
		t.Fatalf("hex form lost ordering: %s vs %s", a, b)
	}
}
