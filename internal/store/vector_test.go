package store

import (
	"testing"
)

func TestFormatVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float64
		expected string
	}{
		{"empty", nil, "[]"},
		{"single", []float64{0.5}, "[0.5]"},
		{"multiple", []float64{0.1, -0.2, 1}, "[0.1,-0.2,1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatVector(tt.input); got != tt.expected {
				t.Errorf("formatVector(%v) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseVector(t *testing.T) {
	got, err := parseVector("[0.1, -0.2,1]")
	if err != nil {
		t.Fatalf("parseVector failed: %v", err)
	}
	want := []float64{0.1, -0.2, 1}
	if len(got) != len(want) {
		t.Fatalf("expected %d components, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("component %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestParseVectorEmpty(t *testing.T) {
	got, err := parseVector("[]")
	if err != nil {
		t.Fatalf("parseVector failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty vector, got %v", got)
	}
}

func TestParseVectorMalformed(t *testing.T) {
	for _, input := range []string{"", "0.1,0.2", "[0.1,zzz]", "[0.1"} {
		if _, err := parseVector(input); err == nil {
			t.Errorf("parseVector(%q) should fail", input)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	in := []float64{0.123456789, -0.5, 0, 42.0001}
	out, err := parseVector(formatVector(in))
	if err != nil {
		t.Fatalf("round trip failed: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("component %d = %v, want %v", i, out[i], in[i])
		}
	}
}
