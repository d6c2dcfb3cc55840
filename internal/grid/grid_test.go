package grid

import "testing"

func TestAdvance(t *testing.T) {
	origin := Coordinate{X: 2, Y: 2}
	cases := []struct {
		h    Heading
		want Coordinate
	}{
		{North, Coordinate{X: 2, Y: 3}},
		{East, Coordinate{X: 3, Y: 2}},
		{South, Coordinate{X: 2, Y: 1}},
		{West, Coordinate{X: 1, Y: 2}},
	}
	for _, tc := range cases {
		if got := Advance(origin, tc.h); got != tc.want {
			t.Fatalf("advance %s: got %s, want %s", tc.h, got, tc.want)
		}
	}
}

func TestTurnedQuarterTurns(t *testing.T) {
	h := North
	for _, want := range []Heading{East, South, West, North} {
		h = Turned(h, true)
		if h != want {
			t.Fatalf("clockwise: got %s, want %s", h, want)
		}
	}
	h = North
	for _, want := range []Heading{West, South, East, North} {
		h = Turned(h, false)
		if h != want {
			t.Fatalf("counter-clockwise: got %s, want %s", h, want)
		}
	}
}

func TestTurnedRoundTrips(t *testing.T) {
	for h := North; h <= West; h++ {
		if Turned(Turned(h, true), false) != h {
			t.Fatalf("turn round trip broken for %s", h)
		}
	}
}
