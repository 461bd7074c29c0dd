package utils

import "testing"

func TestParsePage(t *testing.T) {
	cases := []struct {
		page, size string
		want       Page
		offset     int
	}{
		{"", "", Page{1, DefaultPageSize}, 0},
		{"3", "10", Page{3, 10}, 20},
		{"0", "0", Page{1, DefaultPageSize}, 0},
		{"-2", "500", Page{1, MaxPageSize}, 0},
		{"x", " 5", Page{1, DefaultPageSize}, 0},
		{"2", "999999999999999999999999", Page{2, DefaultPageSize}, DefaultPageSize},
	}
	for _, tc := range cases {
		got := ParsePage(tc.page, tc.size)
		if got != tc.want || got.Offset() != tc.offset {
			t.Errorf("ParsePage(%q, %q) = %+v offset %d; want %+v offset %d",
				tc.page, tc.size, got, got.Offset(), tc.want, tc.offset)
		}
	}
}

func TestPage_TotalsAndHasNext(t *testing.T) {
	cases := []struct {
		p       Page
		total   int64
		pages   int
		hasNext bool
	}{
		{Page{1, 20}, 0, 0, false},
		{Page{1, 20}, 41, 3, true},
		{Page{3, 20}, 41, 3, false},
		{Page{1, 0}, 5, 0, false},
	}
	for _, tc := range cases {
		if got := tc.p.TotalPages(tc.total); got != tc.pages {
			t.Errorf("%+v.TotalPages(%d) = %d; want %d", tc.p, tc.total, got, tc.pages)
		}
		if got := tc.p.HasNext(tc.total); got != tc.hasNext {
			t.Errorf("%+v.HasNext(%d) = %v; want %v", tc.p, tc.total, got, tc.hasNext)
		}
	}
}

func TestClamp(t *testing.T) {
	cases := []struct{ n, lo, hi, want int }{
		{0, 1, 100, 1},
		{50, 1, 100, 50},
		{500, 1, 100, 100},
	}
	for _, tc := range cases {
		if got := Clamp(tc.n, tc.lo, tc.hi); got != tc.want {
			t.Fatalf("Clamp(%d, %d, %d) = %d; want %d", tc.n, tc.lo, tc.hi, got, tc.want)
		}
	}
}
