package nameguard

import "testing"

func TestValidate_TableDriven(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"plain", "measurements", true},
		{"underscore", "sensor_readings", true},
		{"mixed_case", "SensorReadings", true},
		{"with_digits", "table01", true},
		{"with_space", "My Table", true},
		{"empty", "", false},
		{"blank", "   ", false},
		{"semicolon", "t;", false},
		{"classic_injection", "DROP TABLE X;", false},
		{"drop_lowercase", "drop_stage", false},
		{"drop_embedded", "raindrops", false},
		{"paren", "t(1)", false},
		{"single_quote", "it's", false},
		{"double_quote", `a"b`, false},
		{"brackets", "[t]", false},
		{"comment_marker", "a--b", false},
		{"block_comment", "a/*b*/", false},
		{"equals", "a=b", false},
		{"pipe", "a|b", false},
		{"backtick", "`t`", false},
		{"comma", "a,b", false},
		{"hyphen_ok", "my-table", true},
		{"nul_byte", "a\x00b", false},
		{"newline", "a\nb", false},
		{"tab", "a\tb", false},
		{"delete_char", "a\x7fb", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Validate(tt.in); got != tt.want {
				t.Fatalf("Validate(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateAll_ReturnsFirstOffender(t *testing.T) {
	t.Parallel()

	if bad, ok := ValidateAll("a", "b", "c"); !ok || bad != "" {
		t.Fatalf("expected all valid, got (%q, %v)", bad, ok)
	}
	bad, ok := ValidateAll("a", "b;", "c(")
	if ok || bad != "b;" {
		t.Fatalf("expected first offender b;, got (%q, %v)", bad, ok)
	}
}

func TestCleanColumn(t *testing.T) {
	t.Parallel()

	tests := []struct{ in, want string }{
		{"flow rate", "flow_rate"},
		{"m/s", "m_s"},
		{" padded ", "padded"},
		{"already_clean", "already_clean"},
	}
	for _, tt := range tests {
		if got := CleanColumn(tt.in); got != tt.want {
			t.Errorf("CleanColumn(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
