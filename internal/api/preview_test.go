package api

import "testing"

func TestPreview(t *testing.T) {
	cases := []struct {
		name string
		body string
		head int
		tail int
		want string
	}{
		{"short body unchanged", "hello", 400, 200, "hello"},
		{"long body truncated", "aaaaabbbbbccccc", 5, 5, "aaaaa----ccccc"},
		{"head only", "aaaaabbbbbccccc", 5, 0, "aaaaa----"},
		{"disabled", "aaaaabbbbbccccc", 0, 0, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := preview([]byte(tc.body), tc.head, tc.tail, "----"); got != tc.want {
				t.Errorf("preview = %q, want %q", got, tc.want)
			}
		})
	}
}
