package passage

import "testing"

func TestClean(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"collapses internal whitespace", "hello   world", "hello world"},
		{"drops empty lines", "line one\n\n\nline two", "line one\nline two"},
		{"trims leading and trailing whitespace per line", "  padded  \nline", "padded\nline"},
		{"all whitespace collapses to empty", "   \n\t\n  ", ""},
		{"tabs and newlines collapse like spaces", "a\tb  c", "a b c"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in); got != tc.want {
				t.Errorf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
