package slug

import "testing"

func TestMake(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Leicestershire Police", "leicestershire-police"},
		{"Cefn Mawr & Llangollen Rural", "cefn-mawr-llangollen-rural"},
		{"Ynys Môn", "ynys-mon"},
		{"  City   Centre  ", "city-centre"},
		{"St. Mary's (North)", "st-mary-s-north"},
		{"NC04", "nc04"},
		{"", ""},
		{"&&&", ""},
	}
	for _, c := range cases {
		if got := Make(c.in); got != c.want {
			t.Errorf("Make(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
