package boundary

import (
	"reflect"
	"testing"

	"github.com/paulmach/orb"
)

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []orb.Point
	}{
		{
			name: "basic pairs",
			in:   "85.3,27.7 85.4,27.7 85.4,27.8",
			want: []orb.Point{{85.3, 27.7}, {85.4, 27.7}, {85.4, 27.8}},
		},
		{
			name: "altitude dropped",
			in:   "85.3,27.7,1200",
			want: []orb.Point{{85.3, 27.7}},
		},
		{
			name: "newlines and tabs between entries",
			in:   "85.3,27.7\n\t85.4,27.7\n 85.4,27.8 ",
			want: []orb.Point{{85.3, 27.7}, {85.4, 27.7}, {85.4, 27.8}},
		},
		{
			name: "trailing commas stripped",
			in:   "85.3,27.7, 85.4,27.7,,",
			want: []orb.Point{{85.3, 27.7}, {85.4, 27.7}},
		},
		{
			name: "malformed entry skipped",
			in:   "85.3,27.7 garbage 85.4,27.8",
			want: []orb.Point{{85.3, 27.7}, {85.4, 27.8}},
		},
		{
			name: "non-numeric fields skipped",
			in:   "85.3,north 85.4,27.8",
			want: []orb.Point{{85.4, 27.8}},
		},
		{
			name: "lone value skipped",
			in:   "85.3",
			want: nil,
		},
		{
			name: "empty input",
			in:   "",
			want: nil,
		},
		{
			name: "whitespace only",
			in:   " \n\t ",
			want: nil,
		},
		{
			name: "negative coordinates",
			in:   "-2.935,43.263 -2.934,43.264",
			want: []orb.Point{{-2.935, 43.263}, {-2.934, 43.264}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseCoordinates(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseCoordinates(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestCloseRing(t *testing.T) {
	open := orb.Ring{{85.3, 27.7}, {85.4, 27.7}, {85.4, 27.8}}
	closed := closeRing(open)

	if len(closed) != 4 {
		t.Fatalf("expected 4 points after closing, got %d", len(closed))
	}
	if closed[0] != closed[len(closed)-1] {
		t.Errorf("ring not closed: first %v last %v", closed[0], closed[len(closed)-1])
	}
}

func TestCloseRing_AlreadyClosed(t *testing.T) {
	ring := orb.Ring{{85.3, 27.7}, {85.4, 27.7}, {85.4, 27.8}, {85.3, 27.7}}
	got := closeRing(ring)

	if len(got) != 4 {
		t.Errorf("closed ring grew: %d points", len(got))
	}
}

func TestCloseRing_TooShort(t *testing.T) {
	single := orb.Ring{{85.3, 27.7}}
	if got := closeRing(single); len(got) != 1 {
		t.Errorf("single-point ring changed: %v", got)
	}
	if got := closeRing(nil); got != nil {
		t.Errorf("nil ring changed: %v", got)
	}
}
