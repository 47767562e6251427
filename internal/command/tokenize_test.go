package command

import (
	"slices"
	"testing"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"whitespace only", "  \t ", nil},
		{"simple", "service list", []string{"service", "list"}},
		{"collapses runs of spaces", "a   b\tc", []string{"a", "b", "c"}},
		{"single quoted json", `call tool=foo args='{"a":1}'`, []string{"call", "tool=foo", `args={"a":1}`}},
		{"double quoted with spaces", `user create-m2m description="build bot"`, []string{"user", "create-m2m", "description=build bot"}},
		{"escaped quote in double quotes", `x="say \"hi\""`, []string{`x=say "hi"`}},
		{"other backslash kept in double quotes", `x="a\nb"`, []string{`x=a\nb`}},
		{"backslash escapes space", `a\ b c`, []string{"a b", "c"}},
		{"empty quotes make an empty token", `a '' b`, []string{"a", "", "b"}},
		{"single quotes keep backslashes", `'a\b'`, []string{`a\b`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.in)
			if err != nil {
				t.Fatalf("Tokenize(%q) error: %v", tt.in, err)
			}
			if !slices.Equal(got, tt.want) {
				t.Errorf("Tokenize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTokenize_Errors(t *testing.T) {
	for _, in := range []string{`a 'b`, `a "b`, `a\`} {
		if _, err := Tokenize(in); err == nil {
			t.Errorf("Tokenize(%q) succeeded, want error", in)
		}
	}
}
