package template

import (
	"testing"
	"time"
)

func TestRender(t *testing.T) {
	cases := []struct {
		name string
		tmpl string
		vars map[string]string
		want string
	}{
		{
			name: "basic substitution",
			tmpl: "{{user}} plays {{game}}",
			vars: map[string]string{"user": "Ari", "game": "Chess"},
			want: "Ari plays Chess",
		},
		{
			name: "unknown placeholder stays literal",
			tmpl: "hello {{foo}}",
			vars: map[string]string{"user": "Ari"},
			want: "hello {{foo}}",
		},
		{
			name: "no placeholders",
			tmpl: "plain text",
			vars: map[string]string{"user": "Ari"},
			want: "plain text",
		},
		{
			name: "unterminated open brace",
			tmpl: "oops {{user",
			vars: map[string]string{"user": "Ari"},
			want: "oops {{user",
		},
		{
			name: "adjacent placeholders",
			tmpl: "{{a}}{{b}}",
			vars: map[string]string{"a": "1", "b": "2"},
			want: "12",
		},
		{
			name: "empty vars",
			tmpl: "{{user}}",
			vars: nil,
			want: "{{user}}",
		},
		{
			name: "repeated placeholder",
			tmpl: "{{user}} and {{user}}",
			vars: map[string]string{"user": "Ari"},
			want: "Ari and Ari",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Render(tc.tmpl, tc.vars); got != tc.want {
				t.Errorf("Render(%q) = %q, want %q", tc.tmpl, got, tc.want)
			}
		})
	}
}

func TestMessageVars(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	vars := MessageVars("ari", "somechannel", now)
	if vars["user"] != "ari" || vars["channel"] != "somechannel" {
		t.Errorf("unexpected identity vars: %v", vars)
	}
	if vars["time"] != "09:26:53" {
		t.Errorf("time = %q", vars["time"])
	}
	if vars["date"] != "2025-03-14" {
		t.Errorf("date = %q", vars["date"])
	}
}

func TestMergeDoesNotMutate(t *testing.T) {
	base := map[string]string{"a": "1"}
	extra := map[string]string{"a": "2", "b": "3"}
	out := Merge(base, extra)
	if out["a"] != "2" || out["b"] != "3" {
		t.Errorf("merge result wrong: %v", out)
	}
	if base["a"] != "1" {
		t.Errorf("base mutated: %v", base)
	}
}
