package notion

import "testing"

func TestIDFromURL(t *testing.T) {
	cases := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"https://x/y/Some-Title-abcdef123", "abcdef123", true},
		{"https://www.notion.so/Buy-milk-0123456789abcdef0123456789abcdef", "0123456789abcdef0123456789abcdef", true},
		{"https://www.notion.so/ws/Plan-a1b2?pvs=4", "a1b2", true},
		{"https://www.notion.so/Plan-a1b2#section", "a1b2", true},
		{"https://x/y/nohyphen", "", false},
		{"https://x/y/Trailing-", "", false},
		{"https://x/y/", "", false},
		{"", "", false},
		{"not a url at all", "", false},
		{"https://x/y/Title-ab.cd", "", false},
	}
	for _, tc := range cases {
		got, ok := IDFromURL(tc.in)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("IDFromURL(%q) = (%q, %v), want (%q, %v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}
}
