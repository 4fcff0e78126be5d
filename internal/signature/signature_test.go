package signature

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercase", "Calculate 100 * 25", "calculate 100 * 25"},
		{"collapse whitespace", "calculate   100 *   25", "calculate 100 * 25"},
		{"tabs and newlines", "calculate\t100\n* 25", "calculate 100 * 25"},
		{"surrounding space", "  check disk space  ", "check disk space"},
		{"trailing punctuation", "check disk space!!", "check disk space"},
		{"trailing mixed punctuation", "what is going on?!", "what is going on"},
		{"empty", "", ""},
		{"only whitespace", "   \t\n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"Calculate 100 * 25",
		"  CHECK   disk SPACE?? ",
		"list files in /tmp",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestNormalizeDistinguishesOperandSpacing(t *testing.T) {
	// "100 * 25" and "100*25" differ in non-whitespace characters only by
	// position, but after collapsing they remain distinct strings. Exact-text
	// matching keeps them as separate signatures.
	a := Normalize("calculate 100 * 25")
	b := Normalize("calculate 100*25")
	if a == b {
		t.Errorf("expected distinct signatures, both were %q", a)
	}
}
